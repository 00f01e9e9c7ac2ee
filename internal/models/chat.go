package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Content block kinds.
const (
	KindInputText   = "input_text"
	KindOutputText  = "output_text"
	KindOutputImage = "output_image"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StatusCompleted marks a finalized assistant message.
const StatusCompleted = "completed"

// DefaultTitle is the title a chat carries until the title generator runs.
const DefaultTitle = "New Chat"

// ContentBlock is one piece of a message body. Text blocks carry displayable
// text; output_image blocks carry an image URL in Text.
type ContentBlock struct {
	Kind string `json:"type"`
	Text string `json:"text"`
}

type Message struct {
	ID          string            `json:"id,omitempty"`
	Role        string            `json:"role"` // user or assistant
	Status      string            `json:"status,omitempty"`
	Content     []ContentBlock    `json:"content"`
	Annotations []json.RawMessage `json:"annotations"`
}

// Text returns the concatenated text of the message's text blocks.
// Image blocks are skipped.
func (m Message) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Kind == KindInputText || c.Kind == KindOutputText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Images returns the image URLs folded into the message content.
func (m Message) Images() []string {
	var urls []string
	for _, c := range m.Content {
		if c.Kind == KindOutputImage {
			urls = append(urls, c.Text)
		}
	}
	return urls
}

// NewUserMessage builds a user message with a single input_text block.
func NewUserMessage(text string) Message {
	return Message{
		Role:        RoleUser,
		Content:     []ContentBlock{{Kind: KindInputText, Text: text}},
		Annotations: []json.RawMessage{},
	}
}

type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// Touch bumps the chat's updated timestamp.
func (c *Chat) Touch() {
	c.UpdatedAt = time.Now().UTC()
}
