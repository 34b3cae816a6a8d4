package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"lumen-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed sequence of stream lines and records
// what it was asked.
type scriptedTransport struct {
	lines []string
	err   error
	body  io.ReadCloser

	calls        int
	lastUserID   string
	lastQuestion string
	lastChatID   string
}

func (t *scriptedTransport) Ask(ctx context.Context, userID, question, chatID string) (io.ReadCloser, error) {
	t.calls++
	t.lastUserID = userID
	t.lastQuestion = question
	t.lastChatID = chatID

	if t.err != nil {
		return nil, t.err
	}
	if t.body != nil {
		return t.body, nil
	}
	return io.NopCloser(strings.NewReader(strings.Join(t.lines, "\n") + "\n")), nil
}

func newTestEngine(transport Transport) (*Engine, *Store) {
	store := newTestStore()
	engine := NewEngine(store, transport)
	engine.SetUser("u1")
	return engine, store
}

func TestSendMigratesDraftToAssignedKey(t *testing.T) {
	transport := &scriptedTransport{lines: []string{
		`{"chatId":"c1","delta":"Hel","done":false}`,
		`{"chatId":"c1","delta":"lo","done":false}`,
		`{"chatId":"c1","done":true,"answer":"Hello"}`,
	}}
	engine, store := newTestEngine(transport)
	store.StartCompose()

	var deltas []string
	var completedKey Key
	var completedAnswer string
	key, err := engine.Send(context.Background(), "hi there", Sink{
		OnDelta: func(text string) { deltas = append(deltas, text) },
		OnComplete: func(k Key, answer string) {
			completedKey = k
			completedAnswer = answer
		},
	})

	require.NoError(t, err)
	assert.Equal(t, Real("c1"), key)

	// A draft key is never sent over the wire.
	assert.Equal(t, "", transport.lastChatID)
	assert.Equal(t, "u1", transport.lastUserID)
	assert.Equal(t, "hi there", transport.lastQuestion)

	// The delta callback sees the running text, not fragments.
	assert.Equal(t, []string{"Hel", "Hello"}, deltas)
	assert.Equal(t, Real("c1"), completedKey)
	assert.Equal(t, "Hello", completedAnswer)

	// All history now lives under the assigned key.
	assert.Empty(t, store.History(Draft()))
	history := store.History(Real("c1"))
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "hi there", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello", history[1].Content)
	assert.Equal(t, model.StatusComplete, history[1].Status)

	selected, ok := store.Selected()
	require.True(t, ok)
	assert.Equal(t, Real("c1"), selected)
	assert.False(t, store.IsComposing())

	// The send slot was released.
	assert.True(t, store.TrySend(Real("c1")))
}

func TestSendOnRealKeySkipsMigrationAndSelection(t *testing.T) {
	transport := &scriptedTransport{lines: []string{
		`{"chatId":"c3","delta":"one","done":false}`,
		`{"chatId":"c3","done":true,"answer":"one"}`,
	}}
	engine, store := newTestEngine(transport)
	store.Select(Real("c3"))
	store.Append(Real("c3"), model.RoleUser, "earlier")

	key, err := engine.Send(context.Background(), "again", Sink{})
	require.NoError(t, err)
	assert.Equal(t, Real("c3"), key)
	assert.Equal(t, "c3", transport.lastChatID)

	transport.lines = []string{
		`{"chatId":"c3","delta":"two","done":false}`,
		`{"chatId":"c3","done":true,"answer":"two"}`,
	}
	key, err = engine.Send(context.Background(), "once more", Sink{})
	require.NoError(t, err)
	assert.Equal(t, Real("c3"), key)

	selected, ok := store.Selected()
	require.True(t, ok)
	assert.Equal(t, Real("c3"), selected)

	history := store.History(Real("c3"))
	assert.Len(t, history, 5)
}

func TestSendUpstreamErrorRunsFailurePath(t *testing.T) {
	transport := &scriptedTransport{lines: []string{
		`{"chatId":"c1","delta":"partial","done":false}`,
		`{"chatId":"c1","error":"model unavailable","done":false}`,
	}}
	engine, store := newTestEngine(transport)
	store.StartCompose()

	key, err := engine.Send(context.Background(), "question", Sink{})

	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Equal(t, Real("c1"), key)

	history := store.History(Real("c1"))
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, model.RoleSystem, history[1].Role)
	assert.Zero(t, pendingCount(history))

	assert.True(t, store.TrySend(Real("c1")))
}

func TestSendEmptyAnswerCompletesPlaceholder(t *testing.T) {
	transport := &scriptedTransport{lines: []string{
		`{"chatId":"c1","delta":"","done":false}`,
		`{"chatId":"c1","done":true,"answer":""}`,
	}}
	engine, store := newTestEngine(transport)
	store.StartCompose()

	var completed string
	completedSet := false
	key, err := engine.Send(context.Background(), "q", Sink{
		OnComplete: func(_ Key, answer string) {
			completed = answer
			completedSet = true
		},
	})

	require.NoError(t, err)
	require.True(t, completedSet)
	assert.Equal(t, "", completed)

	history := store.History(key)
	require.Len(t, history, 2)
	assert.Equal(t, model.StatusComplete, history[1].Status)
	assert.Equal(t, "", history[1].Content)
}

func TestSendDoneWithoutAnswerUsesAccumulatedText(t *testing.T) {
	transport := &scriptedTransport{lines: []string{
		`{"chatId":"c1","delta":"acc","done":false}`,
		`{"chatId":"c1","delta":"umulated","done":false}`,
		`{"chatId":"c1","done":true}`,
	}}
	engine, store := newTestEngine(transport)
	store.StartCompose()

	var completed string
	key, err := engine.Send(context.Background(), "q", Sink{
		OnComplete: func(_ Key, answer string) { completed = answer },
	})

	require.NoError(t, err)
	assert.Equal(t, "accumulated", completed)
	history := store.History(key)
	require.Len(t, history, 2)
	assert.Equal(t, "accumulated", history[1].Content)
}

func TestSendSkipsMalformedLines(t *testing.T) {
	transport := &scriptedTransport{lines: []string{
		`{"chatId":"c1","delta":"a","done":false}`,
		`not json at all`,
		`{"chatId":"c1","done":true,"answer":"a"}`,
	}}
	engine, store := newTestEngine(transport)
	store.StartCompose()

	key, err := engine.Send(context.Background(), "q", Sink{})

	require.NoError(t, err)
	history := store.History(key)
	require.Len(t, history, 2)
	assert.Equal(t, "a", history[1].Content)
}

func TestSendStreamEndingWithoutDoneFails(t *testing.T) {
	transport := &scriptedTransport{lines: []string{
		`{"chatId":"c1","delta":"never finished","done":false}`,
	}}
	engine, store := newTestEngine(transport)
	store.StartCompose()

	key, err := engine.Send(context.Background(), "q", Sink{})

	assert.ErrorIs(t, err, ErrStreamEnded)

	history := store.History(key)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleSystem, history[1].Role)
	assert.Zero(t, pendingCount(history))
}

func TestSendTransportFailureRunsFailurePath(t *testing.T) {
	transport := &scriptedTransport{err: errors.New("connection refused")}
	engine, store := newTestEngine(transport)
	store.StartCompose()

	key, err := engine.Send(context.Background(), "q", Sink{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	// The user message survives the failure; the placeholder does not.
	history := store.History(key)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, model.RoleSystem, history[1].Role)
	assert.Zero(t, pendingCount(history))
	assert.True(t, store.TrySend(key))
}

type blockedBody struct {
	ctx context.Context
}

func (b *blockedBody) Read(p []byte) (int, error) {
	<-b.ctx.Done()
	return 0, errors.New("use of closed network connection")
}

func (b *blockedBody) Close() error { return nil }

func TestSendCancellationRunsFailurePath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transport := &scriptedTransport{body: &blockedBody{ctx: ctx}}
	engine, store := newTestEngine(transport)
	store.StartCompose()

	cancel()
	key, err := engine.Send(ctx, "q", Sink{})

	assert.ErrorIs(t, err, context.Canceled)

	history := store.History(key)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleSystem, history[1].Role)
	assert.Zero(t, pendingCount(history))
}

func TestSendRequiresUser(t *testing.T) {
	engine, store := newTestEngine(&scriptedTransport{})
	engine.SetUser("")
	store.StartCompose()

	_, err := engine.Send(context.Background(), "q", Sink{})

	assert.ErrorIs(t, err, ErrNoUserSelected)
	assert.Empty(t, store.History(Draft()))
}

func TestSendRequiresActiveConversation(t *testing.T) {
	engine, store := newTestEngine(&scriptedTransport{})

	_, err := engine.Send(context.Background(), "q", Sink{})

	assert.ErrorIs(t, err, ErrNoActiveConversation)
	assert.Empty(t, store.History(Draft()))
}

func TestSendRejectsConcurrentSendOnSameKey(t *testing.T) {
	transport := &scriptedTransport{}
	engine, store := newTestEngine(transport)
	store.Select(Real("c1"))
	require.True(t, store.TrySend(Real("c1")))

	_, err := engine.Send(context.Background(), "q", Sink{})

	assert.ErrorIs(t, err, ErrSendInProgress)
	assert.Empty(t, store.History(Real("c1")))
	assert.Zero(t, transport.calls)
}
