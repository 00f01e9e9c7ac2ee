package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteRoundTrip(t *testing.T) {
	full := QuoteText("quoted text", "answer this")

	quote, text, ok := SplitQuoted(full)
	require.True(t, ok)
	assert.Equal(t, "quoted text", quote)
	assert.Equal(t, "answer this", text)
}

func TestSplitQuotedPlainMessage(t *testing.T) {
	_, _, ok := SplitQuoted("just a normal message")
	assert.False(t, ok)
}

func TestSplitQuotedKeepsSeparatorInsideText(t *testing.T) {
	full := QuoteText("q", "first part\n\nUser: tricky")
	quote, text, ok := SplitQuoted(full)
	require.True(t, ok)
	assert.Equal(t, "q", quote)
	// The split is on the first separator; the rest stays in the text.
	assert.Equal(t, "first part\n\nUser: tricky", text)
}

func TestSplitQuotedSeparatorInsideQuote(t *testing.T) {
	full := QuoteText("line one\n\nUser: spoofed", "real text")
	quote, text, ok := SplitQuoted(full)
	require.True(t, ok)
	assert.Equal(t, "line one\n\nUser: spoofed", quote)
	assert.Equal(t, "real text", text)
}

func TestSplitQuotedQuoteMarkInsideQuote(t *testing.T) {
	full := QuoteText(`say "hi" back`, "ok")
	quote, text, ok := SplitQuoted(full)
	require.True(t, ok)
	assert.Equal(t, `say "hi" back`, quote)
	assert.Equal(t, "ok", text)
}

func TestMessageTextAndImages(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentBlock{
			{Kind: KindOutputText, Text: "Hello "},
			{Kind: KindOutputImage, Text: "https://x/img.png"},
			{Kind: KindOutputText, Text: "world"},
		},
	}
	assert.Equal(t, "Hello world", msg.Text())
	assert.Equal(t, []string{"https://x/img.png"}, msg.Images())
}
