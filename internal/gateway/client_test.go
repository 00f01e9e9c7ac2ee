package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quill-labs/quill/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStreamEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "openai/gpt-4o", body["model"])
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"id":"cmpl-1","choices":[{"delta":{"content":"Hi "}}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"there"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, nil)
	var events []models.StreamEvent
	err := c.ChatStream(context.Background(), "test-key", "openai/gpt-4o",
		[]Message{{Role: "user", Content: "Hello"}}, ChatOptions{},
		func(ev models.StreamEvent) { events = append(events, ev) })

	require.NoError(t, err)
	assert.Equal(t, []models.StreamEvent{
		{ID: "cmpl-1"},
		{Text: "Hi "},
		{Text: "there"},
	}, events)
}

func TestChatStreamUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, nil)
	err := c.ChatStream(context.Background(), "bad", "m", []Message{{Role: "user", Content: "x"}}, ChatOptions{},
		func(models.StreamEvent) { t.Fatal("no events expected") })

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusUnauthorized, upstreamErr.Status)
	assert.JSONEq(t, `{"error":"invalid key"}`, string(upstreamErr.ErrorJSON()))
}

func TestUpstreamErrorNonJSONBody(t *testing.T) {
	e := &UpstreamError{Status: 502, Body: []byte("bad gateway")}
	assert.JSONEq(t, `{"error":"bad gateway"}`, string(e.ErrorJSON()))
}

func TestChatStreamTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil)
	err := c.ChatStream(context.Background(), "k", "m", []Message{{Role: "user", Content: "x"}}, ChatOptions{},
		func(models.StreamEvent) {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
}

func TestModelsPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":[{"id":"openai/gpt-4o","name":"GPT-4o"}]}`))
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, nil)
	status, body, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"data":[{"id":"openai/gpt-4o","name":"GPT-4o"}]}`, string(body))
}
