package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/quill-labs/quill/internal/gateway"
	"github.com/quill-labs/quill/internal/models"
	"github.com/quill-labs/quill/internal/stream"
	"go.uber.org/zap"
)

// RequestError is a non-success response from the proxy. The message comes
// from the forwarded upstream error body when it can be parsed.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// ChatPayload is the body of a proxy chat request.
type ChatPayload struct {
	APIKey      string            `json:"apiKey"`
	Model       string            `json:"model"`
	Prompt      string            `json:"prompt,omitempty"`
	Messages    []gateway.Message `json:"messages,omitempty"`
	Modalities  []string          `json:"modalities,omitempty"`
	ImageConfig map[string]any    `json:"image_config,omitempty"`
}

type titlePayload struct {
	APIKey string `json:"apiKey"`
	Prompt string `json:"prompt"`
}

// ProxyClient talks to the same-origin proxy and decodes its normalized
// event stream.
type ProxyClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewProxyClient(baseURL string, logger *zap.Logger) *ProxyClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// StreamChat posts a chat request and invokes fn for each normalized event
// in arrival order.
func (p *ProxyClient) StreamChat(ctx context.Context, payload ChatPayload, fn func(models.StreamEvent)) error {
	return p.streamPost(ctx, "/api/ai", payload, fn)
}

// StreamTitle posts a title request and invokes onText for each text delta.
func (p *ProxyClient) StreamTitle(ctx context.Context, apiKey, prompt string, onText func(string)) error {
	return p.streamPost(ctx, "/api/title", titlePayload{APIKey: apiKey, Prompt: prompt}, func(ev models.StreamEvent) {
		if ev.Kind() == models.EventText {
			onText(ev.Text)
		}
	})
}

func (p *ProxyClient) streamPost(ctx context.Context, path string, payload any, fn func(models.StreamEvent)) error {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &RequestError{
			Status:  resp.StatusCode,
			Message: decodeErrorBody(resp),
		}
	}

	dec := stream.NewDecoder(p.logger)
	return dec.Drain(ctx, resp.Body, fn)
}

// decodeErrorBody extracts the error message from a failed proxy response:
// the "error" field when the body is JSON, otherwise the HTTP status text.
func decodeErrorBody(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return resp.Status
}
