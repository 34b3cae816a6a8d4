package session

import (
	"fmt"
	"sync"
	"time"

	"lumen-backend/internal/model"

	"github.com/google/uuid"
)

type conversation struct {
	title         string
	createdAt     time.Time
	messages      []model.Message
	placeholderID string
}

// Store is the client's in-memory conversation state: per-key message
// histories, the in-flight placeholder bookkeeping, the selected
// conversation, and per-key send flags. All operations take the store mutex,
// so each one is atomic with respect to concurrent readers; Migrate in
// particular never exposes a state where the old key is gone and the new key
// is not yet populated.
type Store struct {
	mu          sync.Mutex
	convs       map[Key]*conversation
	selected    Key
	hasSelected bool
	composing   bool
	sending     map[Key]bool

	now   func() time.Time
	newID func() string
}

func NewStore() *Store {
	return &Store{
		convs:   make(map[Key]*conversation),
		sending: make(map[Key]bool),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// ensure returns the conversation for key, creating an empty one on first
// touch. Caller must hold s.mu.
func (s *Store) ensure(key Key) *conversation {
	conv, ok := s.convs[key]
	if !ok {
		conv = &conversation{createdAt: s.now()}
		s.convs[key] = conv
	}
	return conv
}

// History returns a copy of the message history under key, oldest first.
func (s *Store) History(key Key) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[key]
	if !ok {
		return nil
	}

	out := make([]model.Message, len(conv.messages))
	copy(out, conv.messages)
	return out
}

// Append adds a completed message to key's history and returns it.
func (s *Store) Append(key Key, role, content string) model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msg := model.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Status:    model.StatusComplete,
		Timestamp: &now,
	}

	conv := s.ensure(key)
	conv.messages = append(conv.messages, msg)
	return msg
}

// AddPlaceholder appends a pending assistant message with empty content and
// no timestamp, and records it as the conversation's in-flight placeholder.
// At most one placeholder may exist per key; a second call before the first
// is resolved or cleared is a caller bug and is rejected.
func (s *Store) AddPlaceholder(key Key) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.ensure(key)
	if conv.placeholderID != "" {
		return model.Message{}, fmt.Errorf("placeholder already exists for conversation %s", key)
	}

	msg := model.Message{
		ID:     s.newID(),
		Role:   model.RoleAssistant,
		Status: model.StatusPending,
	}
	conv.messages = append(conv.messages, msg)
	conv.placeholderID = msg.ID

	return msg, nil
}

// ApplyDelta appends a fragment to the placeholder's content. The first
// non-empty fragment flips the placeholder from pending to streaming. No-op
// when no placeholder exists.
func (s *Store) ApplyDelta(key Key, fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[key]
	if !ok || conv.placeholderID == "" {
		return
	}

	for i := range conv.messages {
		if conv.messages[i].ID != conv.placeholderID {
			continue
		}
		conv.messages[i].Content += fragment
		if conv.messages[i].Status == model.StatusPending && fragment != "" {
			conv.messages[i].Status = model.StatusStreaming
		}
		return
	}
}

// ResolvePlaceholder finalizes the placeholder with the authoritative answer
// text, marking it complete and stamping it. Returns false when there is
// nothing to resolve, so a second call after success reports false and
// changes nothing.
func (s *Store) ResolvePlaceholder(key Key, finalText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[key]
	if !ok || conv.placeholderID == "" {
		return false
	}

	for i := range conv.messages {
		if conv.messages[i].ID != conv.placeholderID {
			continue
		}
		now := s.now()
		conv.messages[i].Content = finalText
		conv.messages[i].Status = model.StatusComplete
		conv.messages[i].Timestamp = &now
		conv.placeholderID = ""
		return true
	}

	// Placeholder id points at a message that is gone from history.
	conv.placeholderID = ""
	return false
}

// ClearPlaceholder removes the placeholder message from history entirely.
// Idempotent.
func (s *Store) ClearPlaceholder(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[key]
	if !ok || conv.placeholderID == "" {
		return
	}

	for i := range conv.messages {
		if conv.messages[i].ID == conv.placeholderID {
			conv.messages = append(conv.messages[:i], conv.messages[i+1:]...)
			break
		}
	}
	conv.placeholderID = ""
}

// Migrate rebases everything recorded under oldKey onto newKey: the message
// history, the in-flight placeholder reference, and the send flag. When
// nothing is selected yet this also selects newKey and ends the composing
// state, since the server has just assigned the draft its identity. An
// existing selection is never overwritten. Returns the key state now lives
// under; when newKey is a draft or equals oldKey this is a no-op returning
// oldKey.
func (s *Store) Migrate(oldKey, newKey Key) Key {
	if newKey.IsDraft() || oldKey == newKey {
		return oldKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.convs[oldKey]; ok {
		s.convs[newKey] = conv
		delete(s.convs, oldKey)
	} else {
		s.ensure(newKey)
	}

	if s.sending[oldKey] {
		s.sending[newKey] = true
		delete(s.sending, oldKey)
	}

	if !s.hasSelected {
		s.selected = newKey
		s.hasSelected = true
		s.composing = false
	}

	return newKey
}

// Select marks key as the active conversation and ends any composing state.
func (s *Store) Select(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = key
	s.hasSelected = true
	s.composing = false
}

// Selected reports the active conversation, if any.
func (s *Store) Selected() (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.hasSelected
}

// StartCompose clears the selection and marks that the next send targets a
// fresh draft conversation.
func (s *Store) StartCompose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = Key{}
	s.hasSelected = false
	s.composing = true
}

func (s *Store) IsComposing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composing
}

// TrySend claims the per-key send slot. Returns false when a send is already
// in flight for key.
func (s *Store) TrySend(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending[key] {
		return false
	}
	s.sending[key] = true
	return true
}

// EndSend releases the send slot for key.
func (s *Store) EndSend(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sending, key)
}

// Drop discards a conversation from the working set, clearing the selection
// if it pointed at key.
func (s *Store) Drop(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, key)
	delete(s.sending, key)
	if s.hasSelected && s.selected == key {
		s.selected = Key{}
		s.hasSelected = false
	}
}

// SetTitle records the conversation title shown in listings.
func (s *Store) SetTitle(key Key, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(key).title = title
}

func (s *Store) Title(key Key) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.convs[key]; ok {
		return conv.title
	}
	return ""
}
