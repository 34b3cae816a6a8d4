package llm

import (
	"context"
	"errors"
	"strings"

	"lumen-backend/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

const titlePrompt = "Write a short title (at most six words) summarizing the " +
	"conversation below. Reply with the title only, no quotes or punctuation " +
	"around it."

type OpenAITitleDeriver struct {
	client *openai.Client
	model  string
}

func NewOpenAITitleDeriver(cfg config.OpenAIConfig) *OpenAITitleDeriver {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAITitleDeriver{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.TitleModel,
	}
}

func (t *OpenAITitleDeriver) Derive(ctx context.Context, question, answer string) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titlePrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Q: " + question + "\nA: " + answer},
		},
		Temperature: 0.5, // lower temp for more consistent titles
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
