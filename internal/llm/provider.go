// Package llm wraps the generative backend behind small interfaces so the
// rest of the server treats it as an opaque token producer.
package llm

import (
	"context"

	"lumen-backend/internal/model"
)

// Token is one increment of a streamed answer. A non-nil Err terminates the
// stream; no further tokens follow it.
type Token struct {
	Content string
	Err     error
}

// Provider produces the model's answer to a conversation as an incremental
// token stream. The returned channel is closed after the final token.
type Provider interface {
	Stream(ctx context.Context, messages []model.Message) (<-chan Token, error)
}

// TitleDeriver produces a short title for a conversation from its first
// exchange. A blank result means no title could be derived.
type TitleDeriver interface {
	Derive(ctx context.Context, question, answer string) (string, error)
}
