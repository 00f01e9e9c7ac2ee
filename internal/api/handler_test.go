package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quill-labs/quill/internal/config"
	"github.com/quill-labs/quill/internal/gateway"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, upstream http.Handler) *Handler {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.GatewayURL = srv.URL
	return NewHandler(gateway.NewClient(srv.URL, nil), cfg, zap.NewNop())
}

func TestHandleChatNormalizesUpstreamStream(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"id":"cmpl-7","choices":[{"delta":{"content":"Hel"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))

	body := `{"apiKey":"sk-test","model":"openai/gpt-4o","prompt":"Hi"}`
	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"data: {\"id\":\"cmpl-7\"}\n\n"+
			"data: {\"text\":\"Hel\"}\n\n"+
			"data: {\"text\":\"lo\"}\n\n",
		rec.Body.String())
}

func TestHandleChatForwardsUpstreamError(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"quota exceeded"}`))
	}))

	body := `{"apiKey":"sk-test","model":"m","prompt":"Hi"}`
	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(body)))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"quota exceeded"}`, rec.Body.String())
}

func TestHandleChatWrapsNonJSONUpstreamError(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))

	body := `{"apiKey":"sk-test","model":"m","prompt":"Hi"}`
	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"upstream exploded"}`, rec.Body.String())
}

func TestHandleChatValidation(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	}))

	tests := []struct {
		name string
		body string
	}{
		{"missing apiKey", `{"model":"m","prompt":"Hi"}`},
		{"missing model", `{"apiKey":"k","prompt":"Hi"}`},
		{"missing prompt and messages", `{"apiKey":"k","model":"m"}`},
		{"invalid json", `{nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestHandleChatMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodGet, "/api/ai", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleChatAcceptsMessageHistory(t *testing.T) {
	var sawMessages bool
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawMessages = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n\n"))
	}))

	body := `{"apiKey":"k","model":"m","messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"},{"role":"user","content":"c"}]}`
	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(body)))

	assert.True(t, sawMessages)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `{"text":"ok"}`)
}

func TestHandleTitleStreamsTextEvents(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"Baking a Cake"},"index":0,"finish_reason":null}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{},"index":0,"finish_reason":"stop"}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))

	body := `{"apiKey":"sk-test","prompt":"How do I bake a cake?"}`
	rec := httptest.NewRecorder()
	h.HandleTitle(rec, httptest.NewRequest(http.MethodPost, "/api/title", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `data: {"text":"Baking a Cake"}`)
}

func TestHandleTitleValidation(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	}))

	rec := httptest.NewRecorder()
	h.HandleTitle(rec, httptest.NewRequest(http.MethodPost, "/api/title", strings.NewReader(`{"prompt":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleTitle(rec, httptest.NewRequest(http.MethodPost, "/api/title", strings.NewReader(`{"apiKey":"k"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleModelsPassthrough(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"openai/gpt-4o"}]}`))
	}))

	rec := httptest.NewRecorder()
	h.HandleModels(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[{"id":"openai/gpt-4o"}]}`, rec.Body.String())
}

func TestHandleStatus(t *testing.T) {
	h := newTestHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up"}`, rec.Body.String())
}
