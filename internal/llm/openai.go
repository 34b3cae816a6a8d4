package llm

import (
	"context"
	"errors"
	"io"

	"lumen-backend/internal/config"
	"lumen-backend/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (p *OpenAIProvider) Stream(ctx context.Context, messages []model.Message) (<-chan Token, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}

	tokens := make(chan Token, 100)

	go func() {
		defer close(tokens)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				tokens <- Token{Err: err}
				return
			}

			if len(response.Choices) > 0 && response.Choices[0].Delta.Content != "" {
				tokens <- Token{Content: response.Choices[0].Delta.Content}
			}
		}
	}()

	return tokens, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		// Empty assistant messages confuse some backends; drop them.
		if msg.Content == "" && msg.Role == model.RoleAssistant {
			continue
		}

		result = append(result, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return result
}
