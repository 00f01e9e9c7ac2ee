package gateway

// Message is one chat turn sent to the upstream gateway.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the wire body for the upstream chat-completions call.
type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Stream      bool           `json:"stream"`
	Modalities  []string       `json:"modalities,omitempty"`
	ImageConfig map[string]any `json:"image_config,omitempty"`
}

// upstreamChunk captures one parsed upstream stream chunk. The gateway speaks
// two shapes: chat-completion chunks carry Choices, structured-response
// events carry Type (and Delta/URL/Response depending on the event).
type upstreamChunk struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Delta    string            `json:"delta"`
	URL      string            `json:"url"`
	Choices  []upstreamChoice  `json:"choices"`
	Response *upstreamResponse `json:"response"`
}

type upstreamChoice struct {
	Delta   *upstreamMessage `json:"delta"`
	Message *upstreamMessage `json:"message"`
}

type upstreamMessage struct {
	Content string          `json:"content"`
	Images  []upstreamImage `json:"images"`
}

type upstreamImage struct {
	Type     string `json:"type"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

// upstreamResponse is the terminal payload of the structured shape. Output
// items nest: a message item holds content items, which carry the cumulative
// output_text and any generated images.
type upstreamResponse struct {
	ID     string               `json:"id"`
	Output []upstreamOutputItem `json:"output"`
}

type upstreamOutputItem struct {
	Type    string               `json:"type"`
	Text    string               `json:"text"`
	URL     string               `json:"url"`
	Content []upstreamOutputItem `json:"content"`
}

// Structured-response event types.
const (
	eventOutputTextDelta     = "response.output_text.delta"
	eventOutputImageGenerate = "response.output_image.generated"
	eventResponseCompleted   = "response.completed"
)
