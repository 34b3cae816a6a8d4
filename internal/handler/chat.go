package handler

import (
	"net/http"
	"strings"

	"lumen-backend/internal/model"
	"lumen-backend/internal/service"
	"lumen-backend/internal/utils"
	"lumen-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// Ask streams an answer as newline-delimited JSON events. Errors before the
// first event are plain JSON responses; once streaming has begun, failures
// surface as a terminal error event on the stream itself.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req model.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, events, err := h.chatService.Ask(c.Request.Context(), req.UserID, req.Question, req.ChatID)
	if err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	writer := utils.NewStreamWriter(c.Writer)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writer.Write(event); err != nil {
				logger.Errorf("Failed to write stream event: %v", err)
				return
			}
			if event.Done || event.Error != "" {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	conv, err := h.chatService.GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.ConversationResponse{
		ConversationID: conv.ID,
		Title:          conv.Title,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
		MessageCount:   len(conv.Messages),
	})
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	messages, err := h.chatService.GetConversationMessages(conversationID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := c.Query("user_id")

	conversations, err := h.chatService.ListConversations(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]model.ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		responses = append(responses, model.ConversationResponse{
			ConversationID: conv.ID,
			Title:          conv.Title,
			CreatedAt:      conv.CreatedAt,
			UpdatedAt:      conv.UpdatedAt,
			MessageCount:   len(conv.Messages),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": responses,
	})
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	if err := h.chatService.DeleteConversation(conversationID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

func (h *ChatHandler) RenameConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	var req model.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.chatService.RenameConversation(conversationID, req.Title); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Title updated successfully"})
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "not found")
}
