package storage

import (
	"sync"
	"time"

	"lumen-backend/internal/model"
)

type MemoryStorage struct {
	conversations map[string]*model.Conversation
	mu            sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[string]*model.Conversation),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backup() error {
	return nil
}

func (m *MemoryStorage) CreateConversation(conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[conv.ID] = conv
	return nil
}

func (m *MemoryStorage) GetConversation(conversationID string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, exists := m.conversations[conversationID]
	if !exists {
		return nil, ErrConversationNotFound
	}

	return conv, nil
}

func (m *MemoryStorage) UpdateConversation(conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conv.ID]; !exists {
		return ErrConversationNotFound
	}

	m.conversations[conv.ID] = conv
	return nil
}

func (m *MemoryStorage) DeleteConversation(conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conversationID]; !exists {
		return ErrConversationNotFound
	}

	delete(m.conversations, conversationID)
	return nil
}

func (m *MemoryStorage) ListConversations(userID string) ([]*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conversations := make([]*model.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		if userID == "" || conv.UserID == userID {
			conversations = append(conversations, conv)
		}
	}

	return conversations, nil
}

func (m *MemoryStorage) SetTitle(conversationID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, exists := m.conversations[conversationID]
	if !exists {
		return ErrConversationNotFound
	}

	conv.Title = title
	conv.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStorage) AppendMessage(conversationID string, message *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, exists := m.conversations[conversationID]
	if !exists {
		return ErrConversationNotFound
	}

	conv.Messages = append(conv.Messages, *message)
	conv.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStorage) GetMessages(conversationID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, exists := m.conversations[conversationID]
	if !exists {
		return nil, ErrConversationNotFound
	}

	messages := make([]model.Message, len(conv.Messages))
	copy(messages, conv.Messages)

	return messages, nil
}
