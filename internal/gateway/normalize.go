package gateway

import (
	"encoding/json"
	"strings"

	"github.com/quill-labs/quill/internal/models"
	"go.uber.org/zap"
)

// Normalizer converts raw upstream chunks of either shape into the normalized
// event sequence. It is stateful per response: emitted text is tracked so a
// cumulative completed payload only contributes its unsent suffix, and image
// URLs are deduplicated across the whole response.
type Normalizer struct {
	logger *zap.Logger
	sent   strings.Builder
	images map[string]bool
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		logger: logger,
		images: make(map[string]bool),
	}
}

// Chunk parses one upstream payload (the JSON after the SSE prefix) and
// returns the normalized events it produces. A malformed chunk is logged and
// yields no events; it never aborts the stream.
func (n *Normalizer) Chunk(payload []byte) []models.StreamEvent {
	var c upstreamChunk
	if err := json.Unmarshal(payload, &c); err != nil {
		n.logger.Warn("skipping malformed upstream chunk", zap.Error(err))
		return nil
	}

	var events []models.StreamEvent
	if c.ID != "" {
		events = append(events, models.StreamEvent{ID: c.ID})
	}

	switch {
	case len(c.Choices) > 0:
		events = n.chatCompletionEvents(events, c.Choices[0])
	case strings.HasPrefix(c.Type, "response."):
		events = n.structuredEvents(events, c)
	}
	return events
}

// chatCompletionEvents handles the choices[0].delta shape. Images may arrive
// on the delta or, for terminal chunks, on the message. Message content is
// cumulative, so it goes through the same suffix reconciliation as the
// structured completed payload instead of being re-emitted as a delta.
func (n *Normalizer) chatCompletionEvents(events []models.StreamEvent, choice upstreamChoice) []models.StreamEvent {
	if choice.Delta != nil {
		events = n.emitText(events, choice.Delta.Content)
		events = n.emitImageList(events, choice.Delta.Images)
	}
	if choice.Message != nil {
		events = n.emitUnsentSuffix(events, choice.Message.Content)
		events = n.emitImageList(events, choice.Message.Images)
	}
	return events
}

func (n *Normalizer) emitImageList(events []models.StreamEvent, images []upstreamImage) []models.StreamEvent {
	for _, img := range images {
		if img.Type == "image_url" {
			events = n.emitImage(events, img.ImageURL.URL)
		}
	}
	return events
}

// structuredEvents handles the structured-response shape.
func (n *Normalizer) structuredEvents(events []models.StreamEvent, c upstreamChunk) []models.StreamEvent {
	switch c.Type {
	case eventOutputTextDelta:
		events = n.emitText(events, c.Delta)

	case eventOutputImageGenerate:
		events = n.emitImage(events, c.URL)

	case eventResponseCompleted:
		if c.Response == nil {
			return events
		}
		if c.Response.ID != "" {
			events = append(events, models.StreamEvent{ID: c.Response.ID})
		}

		full, urls := collectOutput(c.Response.Output)
		events = n.emitUnsentSuffix(events, full)
		for _, u := range urls {
			events = n.emitImage(events, u)
		}
	}
	return events
}

// collectOutput walks the output items of a terminal payload and gathers the
// cumulative text and any image URLs.
func collectOutput(items []upstreamOutputItem) (string, []string) {
	var text strings.Builder
	var urls []string
	var walk func([]upstreamOutputItem)
	walk = func(items []upstreamOutputItem) {
		for _, item := range items {
			switch item.Type {
			case "output_text":
				text.WriteString(item.Text)
			case "output_image":
				if item.URL != "" {
					urls = append(urls, item.URL)
				}
			}
			if len(item.Content) > 0 {
				walk(item.Content)
			}
		}
	}
	walk(items)
	return text.String(), urls
}

func (n *Normalizer) emitText(events []models.StreamEvent, text string) []models.StreamEvent {
	if text == "" {
		return events
	}
	n.sent.WriteString(text)
	return append(events, models.StreamEvent{Text: text})
}

// emitUnsentSuffix reconciles a cumulative text against everything streamed
// so far and emits only the part not sent yet. A payload that disagrees with
// the streamed deltas contributes nothing.
func (n *Normalizer) emitUnsentSuffix(events []models.StreamEvent, full string) []models.StreamEvent {
	if full == "" {
		return events
	}
	already := n.sent.String()
	if !strings.HasPrefix(full, already) {
		n.logger.Warn("completed payload does not extend streamed text; ignoring",
			zap.Int("streamed_len", len(already)),
			zap.Int("payload_len", len(full)))
		return events
	}
	return n.emitText(events, full[len(already):])
}

func (n *Normalizer) emitImage(events []models.StreamEvent, url string) []models.StreamEvent {
	if url == "" || n.images[url] {
		return events
	}
	n.images[url] = true
	return append(events, models.StreamEvent{Image: url})
}
