package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quill-labs/quill/internal/models"
	"go.uber.org/zap"
)

var ErrRequestFailed = errors.New("gateway request failed")

// UpstreamError carries a non-success upstream status and its raw body so the
// proxy can forward both verbatim.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// ErrorJSON returns the upstream error body as JSON: parsed as-is when
// possible, otherwise wrapped as {"error": <raw text>}.
func (e *UpstreamError) ErrorJSON() []byte {
	var probe json.RawMessage
	if json.Unmarshal(e.Body, &probe) == nil && len(bytes.TrimSpace(e.Body)) > 0 {
		return e.Body
	}
	out, _ := json.Marshal(map[string]string{"error": string(e.Body)})
	return out
}

// ChatOptions carries the optional fields of a chat request.
type ChatOptions struct {
	Modalities  []string
	ImageConfig map[string]any
}

// Client talks to the upstream model gateway. The API key is opaque and
// caller-supplied per request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// ChatStream sends a streaming chat request upstream and emits normalized
// events for each chunk. Connection close ends the stream; the upstream
// [DONE] sentinel is treated as an early hint and never forwarded.
func (c *Client) ChatStream(ctx context.Context, apiKey, model string, messages []Message, opts ChatOptions, emit func(models.StreamEvent)) error {
	reqBody := chatRequest{
		Model:       model,
		Messages:    messages,
		Stream:      true,
		Modalities:  opts.Modalities,
		ImageConfig: opts.ImageConfig,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	c.logger.Debug("upstream chat request",
		zap.String("model", model),
		zap.Int("messages", len(messages)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("upstream request failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("upstream error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return &UpstreamError{Status: resp.StatusCode, Body: body}
	}

	return c.processStream(ctx, resp.Body, emit)
}

// processStream reads upstream SSE lines and feeds each data payload to the
// normalizer.
func (c *Client) processStream(ctx context.Context, reader io.Reader, emit func(models.StreamEvent)) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	norm := NewNormalizer(c.logger)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			continue
		}

		for _, ev := range norm.Chunk([]byte(data)) {
			emit(ev)
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("upstream stream read failed", zap.Error(err))
		return err
	}
	return nil
}

// Models fetches the upstream model listing for verbatim passthrough.
func (c *Client) Models(ctx context.Context) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
