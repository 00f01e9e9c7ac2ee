package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/quill-labs/quill/internal/config"
	"github.com/quill-labs/quill/internal/gateway"
	"github.com/quill-labs/quill/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// titleSystemPrompt constrains the title model to a bare 2-3 word title.
const titleSystemPrompt = "You are a title generator. Your task is to create a short, 2-3 word title that summarizes the user's input. Do NOT reply to the user. Do NOT answer questions. Examples:\nInput: 'How do I bake a cake?' -> Title: Baking a Cake\nInput: 'Write a python script' -> Title: Python Script Generation\nInput: 'Hi' -> Title: User Greeting"

type Handler struct {
	gw     *gateway.Client
	cfg    *config.Config
	logger *zap.Logger
}

func NewHandler(gw *gateway.Client, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		gw:     gw,
		cfg:    cfg,
		logger: logger,
	}
}

type chatRequest struct {
	APIKey      string            `json:"apiKey"`
	Model       string            `json:"model"`
	Prompt      string            `json:"prompt"`
	Messages    []gateway.Message `json:"messages"`
	Modalities  []string          `json:"modalities"`
	ImageConfig map[string]any    `json:"image_config"`
}

type titleRequest struct {
	APIKey string `json:"apiKey"`
	Prompt string `json:"prompt"`
}

// HandleChat forwards a chat request upstream and re-emits the normalized
// event stream. Response headers are written lazily, on the first event, so
// an upstream failure can still be forwarded with its own status.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.APIKey == "" || req.Model == "" || (req.Prompt == "" && len(req.Messages) == 0) {
		writeError(w, http.StatusBadRequest, "Missing required fields: apiKey, model, prompt")
		return
	}

	messages := req.Messages
	if len(messages) == 0 {
		messages = []gateway.Message{{Role: "user", Content: req.Prompt}}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	h.logger.Info("chat request",
		zap.String("model", req.Model),
		zap.Int("messages", len(messages)))

	headersSent := false
	emit := func(ev models.StreamEvent) {
		if !headersSent {
			writeSSEHeaders(w)
			headersSent = true
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	opts := gateway.ChatOptions{
		Modalities:  req.Modalities,
		ImageConfig: req.ImageConfig,
	}
	if err := h.gw.ChatStream(r.Context(), req.APIKey, req.Model, messages, opts, emit); err != nil {
		var upstream *gateway.UpstreamError
		switch {
		case errors.As(err, &upstream) && !headersSent:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(upstream.Status)
			w.Write(upstream.ErrorJSON())
		case !headersSent:
			h.logger.Error("chat request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to fetch AI response")
		default:
			// The stream already started; nothing more can be signalled.
			h.logger.Error("chat stream aborted", zap.Error(err))
		}
		return
	}

	if !headersSent {
		writeSSEHeaders(w)
	}
}

// HandleTitle streams a short title for a prompt, text-only, in the same
// normalized framing as the chat endpoint.
func (h *Handler) HandleTitle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.APIKey == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: apiKey, prompt")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	llm, err := openai.New(
		openai.WithToken(req.APIKey),
		openai.WithBaseURL(h.cfg.GatewayURL),
		openai.WithModel(h.cfg.TitleModel),
	)
	if err != nil {
		h.logger.Error("failed to initialize title client", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch AI response")
		return
	}

	headersSent := false
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, titleSystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt),
	}

	_, err = llm.GenerateContent(r.Context(), content,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if !headersSent {
				writeSSEHeaders(w)
				headersSent = true
			}
			data, merr := json.Marshal(models.StreamEvent{Text: string(chunk)})
			if merr != nil {
				return merr
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			return nil
		}))
	if err != nil {
		h.logger.Error("title request failed", zap.Error(err))
		if !headersSent {
			writeError(w, http.StatusInternalServerError, "Failed to fetch AI response")
		}
		return
	}

	if !headersSent {
		writeSSEHeaders(w)
	}
}

// HandleModels passes the upstream model listing through verbatim.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status, body, err := h.gw.Models(r.Context())
	if err != nil {
		h.logger.Error("models fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch models")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// HandleStatus reports service availability.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "up"})
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
