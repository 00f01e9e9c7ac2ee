package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/quill-labs/quill/internal/config"
	"github.com/quill-labs/quill/internal/models"
	"github.com/quill-labs/quill/internal/session"
	"github.com/quill-labs/quill/internal/store"
	"github.com/quill-labs/quill/internal/title"
	"go.uber.org/zap"
)

var greetings = []string{
	"What's on the agenda today?",
	"How can I help you today?",
	"Ready to dive in?",
	"What can I help with?",
	"Welcome back!",
	"Good to see you!",
	"What you wanna know?",
	"Hello! How's it going?",
	"How can I be of service?",
	"What's on your mind?",
	"Ready to get started?",
	"What are you working on?",
}

// consoleRenderer writes streamed turns to stdout. Text updates arrive as
// the full accumulated string, so only the unprinted tail is emitted.
type consoleRenderer struct {
	printed int
}

func (r *consoleRenderer) UserMessage(chatID, quote, text string) {
	if quote != "" {
		fmt.Printf("(quoting) %q\n", quote)
	}
}

func (r *consoleRenderer) AssistantStarted(chatID string) {
	r.printed = 0
}

func (r *consoleRenderer) AssistantUpdate(chatID, accumulated string) {
	fmt.Print(accumulated[r.printed:])
	r.printed = len(accumulated)
}

func (r *consoleRenderer) AssistantImage(chatID, url string) {
	fmt.Printf("\n[image] %s\n", url)
}

func (r *consoleRenderer) AssistantFinal(chatID string, msg models.Message) {
	fmt.Println()
}

func (r *consoleRenderer) AssistantNotice(chatID, text string) {
	fmt.Println(text)
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("failed to open chat store",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer st.Close()

	proxy := session.NewProxyClient(cfg.ProxyURL, logger)
	titles := title.New(st, func(ctx context.Context, prompt string, onText func(string)) error {
		return proxy.StreamTitle(ctx, cfg.APIKey, prompt, onText)
	}, logger)

	renderer := &consoleRenderer{}
	ctl := session.NewController(cfg, st, proxy, titles, renderer, logger)

	fmt.Println(greetings[rand.Intn(len(greetings))])
	fmt.Println("Commands: /new /list /open <id> /search <query> /quote <text> /model <id> /quit")

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("\n> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/new":
			if err := ctl.NewChat(); err != nil {
				fmt.Println("Error:", err)
			} else {
				fmt.Println("Started a new chat.")
			}
		case line == "/list":
			for _, c := range st.List() {
				fmt.Printf("%s  %s\n", c.ID, c.Title)
			}
		case strings.HasPrefix(line, "/open "):
			msgs, err := ctl.LoadChat(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
			if err != nil {
				fmt.Println("Error:", err)
				break
			}
			for _, m := range msgs {
				if m.Quote != "" {
					fmt.Printf("[%s] (quoting) %q\n", m.Role, m.Quote)
				}
				fmt.Printf("[%s] %s\n", m.Role, m.Text)
			}
		case strings.HasPrefix(line, "/search "):
			for _, res := range st.Search(strings.TrimPrefix(line, "/search ")) {
				fmt.Printf("%s  %s  %s\n", res.Chat.ID, res.Chat.Title, res.Snippet)
			}
		case strings.HasPrefix(line, "/quote "):
			ctl.SetQuote(strings.TrimPrefix(line, "/quote "))
		case strings.HasPrefix(line, "/model "):
			ctl.SetModel(strings.TrimSpace(strings.TrimPrefix(line, "/model ")))
		default:
			if err := ctl.Send(context.Background(), line); err != nil {
				logger.Debug("send failed", zap.Error(err))
			}
		}
		fmt.Print("\n> ")
	}
}
