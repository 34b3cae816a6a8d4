package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lumen-backend/internal/config"
	"lumen-backend/internal/llm"
	"lumen-backend/internal/model"
	"lumen-backend/internal/storage"
	"lumen-backend/pkg/logger"

	"github.com/google/uuid"
)

const titleTimeout = 30 * time.Second

type ChatService struct {
	storage  storage.Storage
	provider llm.Provider
	titler   llm.TitleDeriver
	chatCfg  config.ChatConfig
}

func NewChatService(cfg *config.Config, provider llm.Provider, titler llm.TitleDeriver) *ChatService {
	var store storage.Storage

	if cfg.Storage.Type == "disk" {
		store = storage.NewDiskStorage(cfg.Storage.DataDir, cfg.Storage.CacheSize)
	} else {
		store = storage.NewMemoryStorage()
	}

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize storage: %v", err)
		store = storage.NewMemoryStorage()
		store.Init()
	}

	return &ChatService{
		storage:  store,
		provider: provider,
		titler:   titler,
		chatCfg:  cfg.Chat,
	}
}

// NewChatServiceWithStorage wires an explicit storage backend. Used by tests
// and anywhere the backend is shared.
func NewChatServiceWithStorage(store storage.Storage, provider llm.Provider, titler llm.TitleDeriver, chatCfg config.ChatConfig) *ChatService {
	return &ChatService{
		storage:  store,
		provider: provider,
		titler:   titler,
		chatCfg:  chatCfg,
	}
}

// Ask answers a question inside a conversation, streaming the answer
// incrementally. When chatID is empty a new conversation owned by userID is
// allocated and persisted before any event is emitted; the returned id is
// the durable conversation id either way.
//
// Every event on the channel carries the conversation id, so a consumer can
// identify the conversation from any single event. The channel closes after
// exactly one terminal event: done with the full answer on success, or an
// error event on failure. On success the question and answer are persisted,
// in that order, before the done event is emitted, and a title is derived
// in the background if the conversation has none yet.
func (s *ChatService) Ask(ctx context.Context, userID, question, chatID string) (string, <-chan model.StreamEvent, error) {
	conv, err := s.resolveConversation(userID, chatID)
	if err != nil {
		return "", nil, err
	}

	prompt := s.buildPrompt(conv.Messages, question)

	events := make(chan model.StreamEvent, 100)

	go func() {
		defer close(events)

		tokens, err := s.provider.Stream(ctx, prompt)
		if err != nil {
			logger.Errorf("Model invocation failed for conversation %s: %v", conv.ID, err)
			s.emit(ctx, events, model.ErrorEvent(conv.ID, err.Error()))
			return
		}

		var full strings.Builder
		for token := range tokens {
			if token.Err != nil {
				logger.Errorf("Model stream failed for conversation %s: %v", conv.ID, token.Err)
				s.emit(ctx, events, model.ErrorEvent(conv.ID, token.Err.Error()))
				return
			}

			full.WriteString(token.Content)
			if !s.emit(ctx, events, model.DeltaEvent(conv.ID, token.Content)) {
				return
			}
		}

		answer := full.String()

		s.persistExchange(conv.ID, question, answer)

		if conv.Title == "" {
			go s.attachTitle(conv.ID, question, answer)
		}

		s.emit(ctx, events, model.DoneEvent(conv.ID, answer))
	}()

	return conv.ID, events, nil
}

// emit sends an event unless the consumer is gone. Returns false when the
// request context is done and the stream should be abandoned.
func (s *ChatService) emit(ctx context.Context, events chan<- model.StreamEvent, event model.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *ChatService) resolveConversation(userID, chatID string) (*model.Conversation, error) {
	if chatID == "" {
		now := time.Now()
		conv := &model.Conversation{
			ID:        uuid.New().String(),
			UserID:    userID,
			Messages:  make([]model.Message, 0),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.storage.CreateConversation(conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := s.storage.GetConversation(chatID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		// Do not reveal other users' conversation ids.
		return nil, storage.ErrConversationNotFound
	}
	return conv, nil
}

func (s *ChatService) buildPrompt(history []model.Message, question string) []model.Message {
	if max := s.chatCfg.MaxHistoryMessages; max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}

	prompt := make([]model.Message, 0, len(history)+2)
	if s.chatCfg.SystemPrompt != "" {
		prompt = append(prompt, model.Message{Role: model.RoleSystem, Content: s.chatCfg.SystemPrompt})
	}
	prompt = append(prompt, history...)
	prompt = append(prompt, model.Message{Role: model.RoleUser, Content: question})

	return prompt
}

func (s *ChatService) persistExchange(conversationID, question, answer string) {
	questionAt := time.Now()
	if err := s.storage.AppendMessage(conversationID, &model.Message{
		ID:        uuid.New().String(),
		Role:      model.RoleUser,
		Content:   question,
		Status:    model.StatusComplete,
		Timestamp: &questionAt,
	}); err != nil {
		logger.Errorf("Failed to persist question for conversation %s: %v", conversationID, err)
		return
	}

	answerAt := time.Now()
	if err := s.storage.AppendMessage(conversationID, &model.Message{
		ID:        uuid.New().String(),
		Role:      model.RoleAssistant,
		Content:   answer,
		Status:    model.StatusComplete,
		Timestamp: &answerAt,
	}); err != nil {
		logger.Errorf("Failed to persist answer for conversation %s: %v", conversationID, err)
	}
}

// attachTitle derives and stores a conversation title. Failures are logged
// and swallowed; a missing title never fails an answered question.
func (s *ChatService) attachTitle(conversationID, question, answer string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	title, err := s.titler.Derive(ctx, question, answer)
	if err != nil {
		logger.Errorf("Title derivation failed for conversation %s: %v", conversationID, err)
		return
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return
	}

	title = truncateString(title, s.chatCfg.MaxTitleLength)
	if err := s.storage.SetTitle(conversationID, title); err != nil {
		logger.Errorf("Failed to store title for conversation %s: %v", conversationID, err)
	}
}

func (s *ChatService) GetConversation(conversationID string) (*model.Conversation, error) {
	conv, err := s.storage.GetConversation(conversationID)
	if err != nil {
		if err == storage.ErrConversationNotFound {
			return nil, fmt.Errorf("conversation not found: %s", conversationID)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

func (s *ChatService) GetConversationMessages(conversationID string) ([]model.Message, error) {
	messages, err := s.storage.GetMessages(conversationID)
	if err != nil {
		if err == storage.ErrConversationNotFound {
			return nil, fmt.Errorf("conversation not found: %s", conversationID)
		}
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return messages, nil
}

func (s *ChatService) ListConversations(userID string) ([]*model.Conversation, error) {
	conversations, err := s.storage.ListConversations(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	return conversations, nil
}

func (s *ChatService) DeleteConversation(conversationID string) error {
	if err := s.storage.DeleteConversation(conversationID); err != nil {
		if err == storage.ErrConversationNotFound {
			return fmt.Errorf("conversation not found: %s", conversationID)
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	return nil
}

func (s *ChatService) RenameConversation(conversationID, title string) error {
	if err := s.storage.SetTitle(conversationID, title); err != nil {
		if err == storage.ErrConversationNotFound {
			return fmt.Errorf("conversation not found: %s", conversationID)
		}
		return fmt.Errorf("failed to rename conversation: %w", err)
	}

	return nil
}

func truncateString(str string, maxLen int) string {
	runes := []rune(str)
	if len(runes) <= maxLen {
		return str
	}
	return string(runes[:maxLen])
}
