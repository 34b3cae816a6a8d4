package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"lumen-backend/internal/model"
	"lumen-backend/pkg/logger"
)

type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     map[string]*model.Conversation
	cacheSize int
}

type ConversationIndex struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]*model.Conversation),
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadConversations(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Disk storage initialized successfully")
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "conversations"),
		filepath.Join(d.dataDir, "messages"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) loadConversations() error {
	indexPath := filepath.Join(d.dataDir, "conversations.json")

	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return d.saveIndex([]*ConversationIndex{})
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return err
	}

	var indexes []*ConversationIndex
	if err := json.Unmarshal(data, &indexes); err != nil {
		return err
	}

	for _, index := range indexes {
		if len(d.cache) >= d.cacheSize {
			break
		}

		conv, err := d.loadConversationFromFile(index.ID)
		if err != nil {
			logger.Errorf("Failed to load conversation %s: %v", index.ID, err)
			continue
		}

		d.cache[index.ID] = conv
	}

	return nil
}

func (d *DiskStorage) loadConversationFromFile(conversationID string) (*model.Conversation, error) {
	convPath := filepath.Join(d.dataDir, "conversations", conversationID+".json")

	data, err := os.ReadFile(convPath)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}

	messages, err := d.loadMessagesFromFile(conversationID)
	if err != nil {
		logger.Errorf("Failed to load messages for conversation %s: %v", conversationID, err)
		messages = []model.Message{}
	}

	conv.Messages = messages
	return &conv, nil
}

func (d *DiskStorage) loadMessagesFromFile(conversationID string) ([]model.Message, error) {
	messagesPath := filepath.Join(d.dataDir, "messages", conversationID+".json")

	if _, err := os.Stat(messagesPath); os.IsNotExist(err) {
		return []model.Message{}, nil
	}

	data, err := os.ReadFile(messagesPath)
	if err != nil {
		return nil, err
	}

	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func (d *DiskStorage) saveIndex(indexes []*ConversationIndex) error {
	indexPath := filepath.Join(d.dataDir, "conversations.json")
	tempPath := indexPath + ".tmp"

	data, err := json.MarshalIndent(indexes, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, indexPath)
}

func (d *DiskStorage) saveConversationToFile(conv *model.Conversation) error {
	convPath := filepath.Join(d.dataDir, "conversations", conv.ID+".json")
	tempPath := convPath + ".tmp"

	// Messages live in their own file; keep the conversation record small.
	convData := *conv
	convData.Messages = nil

	data, err := json.MarshalIndent(convData, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, convPath)
}

func (d *DiskStorage) saveMessagesToFile(conversationID string, messages []model.Message) error {
	messagesPath := filepath.Join(d.dataDir, "messages", conversationID+".json")
	tempPath := messagesPath + ".tmp"

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, messagesPath)
}

func (d *DiskStorage) CreateConversation(conv *model.Conversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.saveConversationToFile(conv); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := d.saveMessagesToFile(conv.ID, conv.Messages); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := d.updateIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[conv.ID] = conv
	d.evictCache()

	return nil
}

func (d *DiskStorage) GetConversation(conversationID string) (*model.Conversation, error) {
	d.mu.RLock()
	if conv, exists := d.cache[conversationID]; exists {
		d.mu.RUnlock()
		return conv, nil
	}
	d.mu.RUnlock()

	conv, err := d.loadConversationFromFile(conversationID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.mu.Lock()
	d.cache[conversationID] = conv
	d.evictCache()
	d.mu.Unlock()

	return conv, nil
}

func (d *DiskStorage) UpdateConversation(conv *model.Conversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(filepath.Join(d.dataDir, "conversations", conv.ID+".json")); os.IsNotExist(err) {
		return ErrConversationNotFound
	}

	if err := d.saveConversationToFile(conv); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := d.saveMessagesToFile(conv.ID, conv.Messages); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := d.updateIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[conv.ID] = conv

	return nil
}

func (d *DiskStorage) DeleteConversation(conversationID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	convPath := filepath.Join(d.dataDir, "conversations", conversationID+".json")
	messagesPath := filepath.Join(d.dataDir, "messages", conversationID+".json")

	if _, err := os.Stat(convPath); os.IsNotExist(err) {
		return ErrConversationNotFound
	}

	if err := os.Remove(convPath); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if _, err := os.Stat(messagesPath); err == nil {
		if err := os.Remove(messagesPath); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}

	delete(d.cache, conversationID)

	return d.updateIndex()
}

func (d *DiskStorage) ListConversations(userID string) ([]*model.Conversation, error) {
	indexPath := filepath.Join(d.dataDir, "conversations.json")

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	var indexes []*ConversationIndex
	if err := json.Unmarshal(data, &indexes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	conversations := make([]*model.Conversation, 0, len(indexes))
	for _, index := range indexes {
		if userID != "" && index.UserID != userID {
			continue
		}
		conversations = append(conversations, &model.Conversation{
			ID:        index.ID,
			UserID:    index.UserID,
			Title:     index.Title,
			CreatedAt: index.CreatedAt,
			UpdatedAt: index.UpdatedAt,
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	return conversations, nil
}

func (d *DiskStorage) SetTitle(conversationID, title string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv, err := d.cachedOrLoad(conversationID)
	if err != nil {
		return err
	}

	conv.Title = title
	conv.UpdatedAt = time.Now()

	if err := d.saveConversationToFile(conv); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	return d.updateIndex()
}

func (d *DiskStorage) AppendMessage(conversationID string, message *model.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv, err := d.cachedOrLoad(conversationID)
	if err != nil {
		return err
	}

	conv.Messages = append(conv.Messages, *message)
	conv.UpdatedAt = time.Now()

	if err := d.saveMessagesToFile(conversationID, conv.Messages); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := d.saveConversationToFile(conv); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	return d.updateIndex()
}

func (d *DiskStorage) GetMessages(conversationID string) ([]model.Message, error) {
	conv, err := d.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	messages := make([]model.Message, len(conv.Messages))
	copy(messages, conv.Messages)

	return messages, nil
}

// cachedOrLoad must be called with the write lock held.
func (d *DiskStorage) cachedOrLoad(conversationID string) (*model.Conversation, error) {
	if conv, exists := d.cache[conversationID]; exists {
		return conv, nil
	}

	conv, err := d.loadConversationFromFile(conversationID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[conversationID] = conv
	return conv, nil
}

func (d *DiskStorage) updateIndex() error {
	conversationsDir := filepath.Join(d.dataDir, "conversations")

	files, err := os.ReadDir(conversationsDir)
	if err != nil {
		return err
	}

	var indexes []*ConversationIndex
	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}

		conversationID := file.Name()[:len(file.Name())-5]
		conv, err := d.loadConversationFromFile(conversationID)
		if err != nil {
			logger.Errorf("Failed to load conversation %s for index update: %v", conversationID, err)
			continue
		}

		indexes = append(indexes, &ConversationIndex{
			ID:        conv.ID,
			UserID:    conv.UserID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		})
	}

	return d.saveIndex(indexes)
}

func (d *DiskStorage) evictCache() {
	if len(d.cache) <= d.cacheSize {
		return
	}

	type cacheEntry struct {
		id        string
		updatedAt time.Time
	}

	var entries []cacheEntry
	for id, conv := range d.cache {
		entries = append(entries, cacheEntry{
			id:        id,
			updatedAt: conv.UpdatedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updatedAt.Before(entries[j].updatedAt)
	})

	toEvict := len(d.cache) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.cache, entries[i].id)
	}
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]*model.Conversation)
	return nil
}

func (d *DiskStorage) Backup() error {
	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().Unix()))

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	sourceDirs := []string{"conversations", "messages"}
	for _, dir := range sourceDirs {
		srcDir := filepath.Join(d.dataDir, dir)
		dstDir := filepath.Join(backupDir, dir)

		if err := os.MkdirAll(dstDir, 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}

		if err := d.copyDir(srcDir, dstDir); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}

	indexSrc := filepath.Join(d.dataDir, "conversations.json")
	indexDst := filepath.Join(backupDir, "conversations.json")
	if err := d.copyFile(indexSrc, indexDst); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func (d *DiskStorage) copyDir(src, dst string) error {
	files, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, file := range files {
		srcPath := filepath.Join(src, file.Name())
		dstPath := filepath.Join(dst, file.Name())

		if err := d.copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0644)
}
