package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/quill-labs/quill/internal/config"
	"github.com/quill-labs/quill/internal/gateway"
	"github.com/quill-labs/quill/internal/models"
	"github.com/quill-labs/quill/internal/store"
	"github.com/quill-labs/quill/internal/title"
	"github.com/quill-labs/quill/internal/tokens"
	"go.uber.org/zap"
)

// State is the controller's position in the send lifecycle. Anything other
// than StateIdle counts as busy and gates new sends.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateFinalizing
)

// Regenerate modifier suffixes. "Different model" is not a suffix: it only
// changes the session's selected model id.
const (
	SuffixTryAgain    = ""
	SuffixAddDetails  = " Please add more details."
	SuffixMoreConcise = " Please be more concise."
	SuffixSearchWeb   = " (Search the web)"
	SuffixThinkLonger = " (Think longer)"
)

// Inline notices shown in the assistant bubble instead of a persisted reply.
const (
	noticeNoAPIKey   = "Please set your API Key in Settings first."
	noticeNoResponse = "No response from AI."
	noticeConnFailed = "Failed to connect to server."
)

// contextTokenBudget bounds the transcript context sent upstream. Older
// messages are dropped first; the newest always goes.
const contextTokenBudget = 4000

var ErrBusy = errors.New("a send is already in flight")

// Renderer is the interface the presentation layer provides. Text updates
// carry the full accumulated text so the display can re-render it.
type Renderer interface {
	UserMessage(chatID, quote, text string)
	AssistantStarted(chatID string)
	AssistantUpdate(chatID, accumulated string)
	AssistantImage(chatID, url string)
	AssistantFinal(chatID string, msg models.Message)
	AssistantNotice(chatID, text string)
}

// DisplayMessage is one transcript entry prepared for display, with quoted
// user messages split back into quote and text.
type DisplayMessage struct {
	Role   string
	Quote  string
	Text   string
	Images []string
}

// Controller owns the active conversation: it appends the user turn, drives
// the proxy request, accumulates streamed events into the assistant turn and
// finalizes it. One send runs at a time.
type Controller struct {
	mu           sync.Mutex
	state        State
	chatID       string
	messages     []models.Message
	model        string
	pendingQuote string

	cfg      *config.Config
	store    *store.Store
	proxy    *ProxyClient
	titles   *title.Generator
	renderer Renderer
	counter  *tokens.Counter
	logger   *zap.Logger
}

func NewController(cfg *config.Config, st *store.Store, proxy *ProxyClient, titles *title.Generator, renderer Renderer, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:      cfg,
		store:    st,
		proxy:    proxy,
		titles:   titles,
		renderer: renderer,
		counter:  tokens.NewCounter(),
		model:    cfg.DefaultModel,
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a send is in flight.
func (c *Controller) Busy() bool {
	return c.State() != StateIdle
}

// Model returns the selected model id.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetModel changes the selected model id.
func (c *Controller) SetModel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" {
		c.model = id
	}
}

// SetQuote captures a selection snippet from a prior assistant message. It is
// consumed by the next send and then cleared.
func (c *Controller) SetQuote(snippet string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingQuote = snippet
}

// ChatID returns the active chat id, or empty in a new-chat context.
func (c *Controller) ChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

// Transcript returns a copy of the working message list.
func (c *Controller) Transcript() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

// NewChat switches to a new-chat context. The chat itself is created lazily
// on the first send.
func (c *Controller) NewChat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrBusy
	}
	c.chatID = ""
	c.messages = nil
	c.pendingQuote = ""
	return nil
}

// LoadChat hydrates the active transcript from the store and returns it
// prepared for display, with quoted user messages split apart.
func (c *Controller) LoadChat(id string) ([]DisplayMessage, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.mu.Unlock()

	chat, err := c.store.Load(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.chatID = chat.ID
	c.messages = append([]models.Message(nil), chat.Messages...)
	c.mu.Unlock()

	out := make([]DisplayMessage, 0, len(chat.Messages))
	for _, msg := range chat.Messages {
		out = append(out, toDisplay(msg))
	}
	return out, nil
}

func toDisplay(msg models.Message) DisplayMessage {
	d := DisplayMessage{
		Role:   msg.Role,
		Text:   msg.Text(),
		Images: msg.Images(),
	}
	if msg.Role == models.RoleUser {
		if quote, text, ok := models.SplitQuoted(d.Text); ok {
			d.Quote = quote
			d.Text = text
		}
	}
	return d
}

// Regenerate re-issues a prompt with a fixed modifier suffix appended.
func (c *Controller) Regenerate(ctx context.Context, originalPrompt, suffix string) error {
	return c.Send(ctx, originalPrompt+suffix)
}

// Send drives one full turn: append the user message, stream the assistant
// reply, finalize and persist. It is a no-op while busy, and when both the
// text and any pending quote are empty. The busy state is cleared on every
// outcome.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	quote := c.pendingQuote
	if text == "" && quote == "" {
		c.mu.Unlock()
		return nil
	}
	c.state = StateSending
	c.mu.Unlock()

	defer c.setState(StateIdle)

	chatID, err := c.beginTurn(text, quote)
	if err != nil {
		return err
	}

	c.setState(StateStreaming)
	c.renderer.AssistantStarted(chatID)

	msg, received, err := c.streamTurn(ctx, chatID)

	c.setState(StateFinalizing)

	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			c.renderer.AssistantNotice(chatID, "Error: "+reqErr.Message)
		} else {
			c.logger.Error("chat request failed", zap.Error(err))
			c.renderer.AssistantNotice(chatID, noticeConnFailed)
		}
		return err
	}
	if !received {
		c.renderer.AssistantNotice(chatID, noticeNoResponse)
		return nil
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	if err := c.store.Append(chatID, msg); err != nil {
		return err
	}
	c.renderer.AssistantFinal(chatID, msg)
	return nil
}

// beginTurn performs the pre-stream work: API key check, lazy chat creation,
// user message synthesis and persistence, and the async title kick-off.
func (c *Controller) beginTurn(text, quote string) (string, error) {
	// The key check precedes the quote consumption: a send rejected here
	// leaves the captured quote intact for a retry.
	if err := c.cfg.RequireAPIKey(); err != nil {
		c.renderer.AssistantNotice(c.ChatID(), noticeNoAPIKey)
		return "", err
	}

	c.mu.Lock()
	chatID := c.chatID
	c.pendingQuote = ""
	c.mu.Unlock()

	if chatID == "" {
		chat, err := c.store.Create()
		if err != nil {
			return "", err
		}
		chatID = chat.ID
		c.mu.Lock()
		c.chatID = chatID
		c.mu.Unlock()
	}

	outgoing := text
	if quote != "" {
		outgoing = models.QuoteText(quote, text)
	}

	userMsg := models.NewUserMessage(outgoing)
	c.mu.Lock()
	c.messages = append(c.messages, userMsg)
	c.mu.Unlock()
	if err := c.store.Append(chatID, userMsg); err != nil {
		return "", err
	}
	c.renderer.UserMessage(chatID, quote, text)

	if current, err := c.store.Title(chatID); err == nil && (current == "" || current == models.DefaultTitle) {
		prompt := text
		if prompt == "" {
			prompt = outgoing
		}
		// Fire and forget; the generator deduplicates per chat id and logs
		// its own failures.
		go c.titles.Generate(context.Background(), chatID, prompt)
	}

	return chatID, nil
}

// streamTurn issues the proxy request and accumulates events into the
// in-progress assistant message, applying them strictly in arrival order.
func (c *Controller) streamTurn(ctx context.Context, chatID string) (models.Message, bool, error) {
	var (
		acc       strings.Builder
		images    []string
		pendingID string
		received  bool
	)

	payload := ChatPayload{
		APIKey:   c.cfg.APIKey,
		Model:    c.Model(),
		Messages: c.contextMessages(),
	}

	err := c.proxy.StreamChat(ctx, payload, func(ev models.StreamEvent) {
		switch ev.Kind() {
		case models.EventID:
			pendingID = ev.ID
		case models.EventText:
			received = true
			acc.WriteString(ev.Text)
			c.renderer.AssistantUpdate(chatID, acc.String())
		case models.EventImage:
			received = true
			images = append(images, ev.Image)
			c.renderer.AssistantImage(chatID, ev.Image)
		}
	})
	if err != nil {
		return models.Message{}, false, err
	}
	if !received {
		return models.Message{}, false, nil
	}

	if pendingID == "" {
		pendingID = "msg-" + uuid.NewString()
	}

	content := []models.ContentBlock{{Kind: models.KindOutputText, Text: acc.String()}}
	for _, url := range images {
		content = append(content, models.ContentBlock{Kind: models.KindOutputImage, Text: url})
	}

	return models.Message{
		ID:          pendingID,
		Role:        models.RoleAssistant,
		Status:      models.StatusCompleted,
		Content:     content,
		Annotations: []json.RawMessage{},
	}, true, nil
}

// contextMessages converts the working transcript into the upstream message
// list, trimmed oldest-first to the token budget.
func (c *Controller) contextMessages() []gateway.Message {
	c.mu.Lock()
	msgs := append([]models.Message(nil), c.messages...)
	c.mu.Unlock()

	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text()
	}
	start := c.counter.Keep(texts, contextTokenBudget)

	out := make([]gateway.Message, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		out = append(out, gateway.Message{Role: m.Role, Content: m.Text()})
	}
	return out
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
