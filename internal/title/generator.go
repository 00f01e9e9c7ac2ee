package title

import (
	"context"
	"strings"
	"sync"

	"github.com/quill-labs/quill/internal/models"
	"github.com/quill-labs/quill/internal/store"
	"go.uber.org/zap"
)

// maxLength is the hard cap on a sanitized title, before the ellipsis.
const maxLength = 60

// StreamFunc issues the secondary streaming title request, invoking onText
// for each text delta.
type StreamFunc func(ctx context.Context, prompt string, onText func(string)) error

// Generator derives short chat titles from the first prompt of a chat. At
// most one generation runs per chat id, and a chat that already carries a
// real title is never retitled.
type Generator struct {
	mu      sync.Mutex
	pending map[string]bool
	store   *store.Store
	stream  StreamFunc
	logger  *zap.Logger
}

func New(st *store.Store, stream StreamFunc, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		pending: make(map[string]bool),
		store:   st,
		stream:  stream,
		logger:  logger,
	}
}

// Generate streams a title for the chat and writes it back exactly once.
// Failures fall back to the raw prompt. Safe to call fire-and-forget.
func (g *Generator) Generate(ctx context.Context, chatID, prompt string) {
	g.mu.Lock()
	if g.pending[chatID] {
		g.mu.Unlock()
		return
	}
	current, err := g.store.Title(chatID)
	if err != nil || !isDefault(current) {
		g.mu.Unlock()
		return
	}
	g.pending[chatID] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, chatID)
		g.mu.Unlock()
	}()

	var b strings.Builder
	if err := g.stream(ctx, prompt, func(text string) {
		b.WriteString(text)
	}); err != nil {
		g.logger.Debug("title generation failed, falling back to prompt",
			zap.String("chat_id", chatID),
			zap.Error(err))
		b.Reset()
	}

	result := b.String()
	if strings.TrimSpace(result) == "" {
		result = prompt
	}

	title := Sanitize(result)
	if title == "" {
		return
	}

	// The title may have been set while streaming; write only if still default.
	current, err = g.store.Title(chatID)
	if err != nil || !isDefault(current) {
		return
	}
	if err := g.store.SetTitle(chatID, title); err != nil {
		g.logger.Error("failed to save chat title",
			zap.String("chat_id", chatID),
			zap.Error(err))
	}
}

// Pending reports whether a generation is in flight for the chat id.
func (g *Generator) Pending(chatID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[chatID]
}

func isDefault(title string) bool {
	return title == "" || title == models.DefaultTitle
}

// Sanitize collapses whitespace, trims, and hard-truncates to 60 characters
// with an ellipsis marker.
func Sanitize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > maxLength {
		s = string(r[:maxLength]) + "..."
	}
	return s
}
