package session

import (
	"fmt"
	"testing"
	"time"

	"lumen-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	s := NewStore()
	var n int
	s.newID = func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
	s.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func pendingCount(history []model.Message) int {
	count := 0
	for _, msg := range history {
		if msg.Status == model.StatusPending || msg.Status == model.StatusStreaming {
			count++
		}
	}
	return count
}

func TestAppendRecordsCompleteMessage(t *testing.T) {
	s := newTestStore()
	key := Real("c1")

	msg := s.Append(key, model.RoleUser, "hello")

	assert.Equal(t, model.RoleUser, msg.Role)
	assert.Equal(t, model.StatusComplete, msg.Status)
	require.NotNil(t, msg.Timestamp)

	history := s.History(key)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
}

func TestAddPlaceholderRejectsSecond(t *testing.T) {
	s := newTestStore()
	key := Real("c1")

	msg, err := s.AddPlaceholder(key)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, model.StatusPending, msg.Status)
	assert.Nil(t, msg.Timestamp)

	_, err = s.AddPlaceholder(key)
	assert.Error(t, err)

	assert.Equal(t, 1, pendingCount(s.History(key)))
}

func TestApplyDeltaAccumulatesAndFlipsOnFirstNonEmpty(t *testing.T) {
	s := newTestStore()
	key := Real("c1")
	_, err := s.AddPlaceholder(key)
	require.NoError(t, err)

	// An empty fragment must not start the streaming state.
	s.ApplyDelta(key, "")
	history := s.History(key)
	assert.Equal(t, model.StatusPending, history[0].Status)

	s.ApplyDelta(key, "Hel")
	s.ApplyDelta(key, "lo")

	history = s.History(key)
	assert.Equal(t, model.StatusStreaming, history[0].Status)
	assert.Equal(t, "Hello", history[0].Content)
}

func TestApplyDeltaWithoutPlaceholderIsNoop(t *testing.T) {
	s := newTestStore()
	key := Real("c1")

	s.ApplyDelta(key, "orphan")

	assert.Empty(t, s.History(key))
}

func TestResolvePlaceholderIsIdempotent(t *testing.T) {
	s := newTestStore()
	key := Real("c1")
	_, err := s.AddPlaceholder(key)
	require.NoError(t, err)
	s.ApplyDelta(key, "partial text that gets overwr")

	assert.True(t, s.ResolvePlaceholder(key, "final answer"))
	first := s.History(key)

	assert.False(t, s.ResolvePlaceholder(key, "final answer"))
	second := s.History(key)

	assert.Equal(t, first, second)
	require.Len(t, first, 1)
	assert.Equal(t, "final answer", first[0].Content)
	assert.Equal(t, model.StatusComplete, first[0].Status)
	assert.NotNil(t, first[0].Timestamp)
	assert.Zero(t, pendingCount(first))
}

func TestClearPlaceholderRemovesAndIsIdempotent(t *testing.T) {
	s := newTestStore()
	key := Real("c1")
	s.Append(key, model.RoleUser, "question")
	_, err := s.AddPlaceholder(key)
	require.NoError(t, err)

	s.ClearPlaceholder(key)
	s.ClearPlaceholder(key)

	history := s.History(key)
	require.Len(t, history, 1)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Zero(t, pendingCount(history))
}

func TestMigratePreservesHistoryOrderAndCount(t *testing.T) {
	s := newTestStore()
	draft := Draft()
	s.Append(draft, model.RoleUser, "first")
	s.Append(draft, model.RoleAssistant, "second")
	s.Append(draft, model.RoleUser, "third")
	before := s.History(draft)

	got := s.Migrate(draft, Real("c9"))

	assert.Equal(t, Real("c9"), got)
	assert.Equal(t, before, s.History(Real("c9")))
	assert.Empty(t, s.History(draft))
}

func TestMigrateMovesPlaceholderAndSendFlag(t *testing.T) {
	s := newTestStore()
	draft := Draft()
	require.True(t, s.TrySend(draft))
	_, err := s.AddPlaceholder(draft)
	require.NoError(t, err)

	s.Migrate(draft, Real("c2"))

	// The placeholder now lives under the new key.
	s.ApplyDelta(Real("c2"), "moved")
	history := s.History(Real("c2"))
	require.Len(t, history, 1)
	assert.Equal(t, "moved", history[0].Content)

	// So does the in-flight send slot.
	assert.False(t, s.TrySend(Real("c2")))
	assert.True(t, s.TrySend(draft))
}

func TestMigrateSelectsWhenNothingSelected(t *testing.T) {
	s := newTestStore()
	s.StartCompose()
	require.True(t, s.IsComposing())

	s.Migrate(Draft(), Real("c3"))

	selected, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, Real("c3"), selected)
	assert.False(t, s.IsComposing())
}

func TestMigrateNeverOverwritesSelection(t *testing.T) {
	s := newTestStore()
	s.Select(Real("other"))

	s.Migrate(Draft(), Real("c4"))

	selected, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, Real("other"), selected)
}

func TestMigrateSameKeyIsNoop(t *testing.T) {
	s := newTestStore()
	key := Real("c5")
	s.Select(key)
	s.Append(key, model.RoleUser, "hi")

	got := s.Migrate(key, key)

	assert.Equal(t, key, got)
	selected, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, key, selected)
	assert.Len(t, s.History(key), 1)
}

func TestMigrateToDraftIsNoop(t *testing.T) {
	s := newTestStore()
	key := Real("c6")
	s.Append(key, model.RoleUser, "hi")

	got := s.Migrate(key, Draft())

	assert.Equal(t, key, got)
	assert.Len(t, s.History(key), 1)
}

func TestTrySendClaimsSlotPerKey(t *testing.T) {
	s := newTestStore()

	assert.True(t, s.TrySend(Real("c1")))
	assert.False(t, s.TrySend(Real("c1")))
	assert.True(t, s.TrySend(Real("c2")))

	s.EndSend(Real("c1"))
	assert.True(t, s.TrySend(Real("c1")))
}

func TestDropClearsSelection(t *testing.T) {
	s := newTestStore()
	key := Real("c1")
	s.Select(key)
	s.Append(key, model.RoleUser, "hi")

	s.Drop(key)

	_, ok := s.Selected()
	assert.False(t, ok)
	assert.Empty(t, s.History(key))
}
