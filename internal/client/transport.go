// Package client talks to the chat server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lumen-backend/internal/model"
	"lumen-backend/internal/utils"
)

// Transport streams answers from the server's ask endpoint. It satisfies
// session.Transport.
type Transport struct {
	baseURL string
	client  *http.Client
}

func NewTransport(baseURL string) *Transport {
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-side deadline: an answer stream stays open for as long
		// as the server produces tokens. The request context cancels it.
		client: utils.NewHTTPClient(0),
	}
}

// Ask opens an answer stream. An empty chatID asks the server to allocate a
// new conversation. The caller owns the returned body and must close it.
func (t *Transport) Ask(ctx context.Context, userID, question, chatID string) (io.ReadCloser, error) {
	payload, err := json.Marshal(model.AskRequest{
		UserID:   userID,
		Question: question,
		ChatID:   chatID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/chat/ask", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp.Body, nil
}
