package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"lumen-backend/internal/model"
	"lumen-backend/internal/stream"
	"lumen-backend/pkg/logger"
)

var (
	ErrNoUserSelected       = errors.New("no user selected")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrSendInProgress       = errors.New("a send is already in progress for this conversation")
	ErrStreamEnded          = errors.New("stream ended before completion")
	ErrUpstream             = errors.New("upstream error")
)

// Transport opens one answer stream. A draft conversation is requested with
// an empty chatID; the server allocates the real identifier in that case.
type Transport interface {
	Ask(ctx context.Context, userID, question, chatID string) (io.ReadCloser, error)
}

// Sink receives progress callbacks during a send. Nil fields are skipped.
// OnDelta gets the full accumulated answer text so far, not the latest
// fragment.
type Sink struct {
	OnDelta    func(text string)
	OnComplete func(key Key, answer string)
}

// Engine orchestrates one send at a time per conversation: it records the
// user message and the assistant placeholder, opens the transport, applies
// each decoded event to the store, migrates a draft onto its server-assigned
// key, and finalizes or fails the placeholder.
type Engine struct {
	store     *Store
	transport Transport
	userID    string
}

func NewEngine(store *Store, transport Transport) *Engine {
	return &Engine{store: store, transport: transport}
}

// SetUser sets the user the next sends act for.
func (e *Engine) SetUser(id string) {
	e.userID = id
}

// Send asks a question in the active conversation and drives the answer
// stream to completion. It returns the key the conversation ended up under,
// which differs from the starting key when a draft was assigned its real
// identity mid-stream.
//
// Precondition failures reject before any store mutation. Any failure after
// the placeholder exists clears it, appends a system message describing the
// failure, and releases the send slot, so no conversation is ever left with
// a dangling pending message.
func (e *Engine) Send(ctx context.Context, question string, sink Sink) (Key, error) {
	if e.userID == "" {
		return Key{}, ErrNoUserSelected
	}

	activeKey, ok := e.store.Selected()
	if !ok {
		if !e.store.IsComposing() {
			return Key{}, ErrNoActiveConversation
		}
		activeKey = Draft()
	}

	if !e.store.TrySend(activeKey) {
		return activeKey, ErrSendInProgress
	}

	e.store.Append(activeKey, model.RoleUser, question)

	if _, err := e.store.AddPlaceholder(activeKey); err != nil {
		e.store.EndSend(activeKey)
		return activeKey, err
	}

	body, err := e.transport.Ask(ctx, e.userID, question, activeKey.ID())
	if err != nil {
		return activeKey, e.fail(activeKey, fmt.Errorf("transport failed: %w", err))
	}
	defer body.Close()

	decoder := stream.NewDecoder(body)
	workingKey := activeKey
	var accumulated strings.Builder

	for {
		event, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return workingKey, e.fail(workingKey, ErrStreamEnded)
			}
			if ctx.Err() != nil {
				// A read error after cancellation is the cancellation.
				err = ctx.Err()
			}
			return workingKey, e.fail(workingKey, fmt.Errorf("stream read failed: %w", err))
		}

		if event.Error != "" {
			return workingKey, e.fail(workingKey, fmt.Errorf("%w: %s", ErrUpstream, event.Error))
		}

		if event.ChatID != "" && Real(event.ChatID) != workingKey {
			workingKey = e.store.Migrate(workingKey, Real(event.ChatID))
			logger.Debugf("Conversation migrated to %s", workingKey)
		}

		if event.Delta != nil {
			accumulated.WriteString(*event.Delta)
			e.store.ApplyDelta(workingKey, *event.Delta)
			if sink.OnDelta != nil {
				sink.OnDelta(accumulated.String())
			}
		}

		if event.Done {
			final := accumulated.String()
			if event.Answer != nil {
				final = *event.Answer
			}
			e.store.ResolvePlaceholder(workingKey, final)
			if sink.OnComplete != nil {
				sink.OnComplete(workingKey, final)
			}
			e.store.EndSend(workingKey)
			return workingKey, nil
		}
	}
}

// fail runs the common failure path: drop the placeholder, record a visible
// system message, release the send slot.
func (e *Engine) fail(key Key, err error) error {
	e.store.ClearPlaceholder(key)
	e.store.Append(key, model.RoleSystem, "Failed to get an answer: "+err.Error())
	e.store.EndSend(key)
	return err
}
