package storage

import (
	"lumen-backend/internal/model"
)

type Storage interface {
	// Conversation management
	CreateConversation(conv *model.Conversation) error
	GetConversation(conversationID string) (*model.Conversation, error)
	UpdateConversation(conv *model.Conversation) error
	DeleteConversation(conversationID string) error
	ListConversations(userID string) ([]*model.Conversation, error)
	SetTitle(conversationID, title string) error

	// Message management
	AppendMessage(conversationID string, message *model.Message) error
	GetMessages(conversationID string) ([]model.Message, error)

	// Lifecycle
	Init() error
	Close() error
	Backup() error
}
