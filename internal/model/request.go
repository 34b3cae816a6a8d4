package model

type AskRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Question string `json:"question" binding:"required"`
	ChatID   string `json:"chat_id"`
}

type RenameRequest struct {
	Title string `json:"title" binding:"required"`
}
