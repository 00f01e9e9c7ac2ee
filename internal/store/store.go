package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/quill-labs/quill/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// chatStateKey is the single record holding the full chat collection. The
// record is read once at open and overwritten wholesale on every mutation.
const chatStateKey = "chats"

var ErrChatNotFound = errors.New("chat not found")

// SearchResult pairs a matched chat with a best-effort snippet. Title-only
// matches carry an empty snippet.
type SearchResult struct {
	Chat    models.Chat `json:"chat"`
	Snippet string      `json:"snippet"`
}

// Store owns the chat collection. Mutations persist the whole collection
// before returning; corrupt stored data degrades to an empty collection.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	logger   *zap.Logger
	chats    []*models.Chat
	activeID string
}

func New(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}
	s.load()
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// load hydrates the collection from the durable record. Any read or parse
// failure leaves the collection empty rather than failing the caller.
func (s *Store) load() {
	var value string
	err := s.db.QueryRow(`SELECT value FROM chat_state WHERE key = ?`, chatStateKey).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to read chat state, starting empty", zap.Error(err))
		}
		s.chats = nil
		return
	}

	var chats []*models.Chat
	if err := json.Unmarshal([]byte(value), &chats); err != nil {
		s.logger.Warn("corrupt chat state, starting empty", zap.Error(err))
		s.chats = nil
		return
	}
	s.chats = chats
}

// persist serializes the full collection into the keyed record. Callers hold
// the lock.
func (s *Store) persist() error {
	data, err := json.Marshal(s.chats)
	if err != nil {
		return fmt.Errorf("failed to serialize chats: %w", err)
	}

	_, err = s.db.Exec(`
        INSERT INTO chat_state (key, value, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		chatStateKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to persist chats: %w", err)
	}
	return nil
}

// generateChatID builds a unique id from the current time and a random
// suffix.
func generateChatID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Create registers a new chat with the default title and makes it active.
func (s *Store) Create() (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	chat := &models.Chat{
		ID:        generateChatID(),
		Title:     models.DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.Message{},
	}
	s.chats = append(s.chats, chat)
	s.activeID = chat.ID

	if err := s.persist(); err != nil {
		return nil, err
	}
	c := *chat
	return &c, nil
}

// List returns all chats holding at least one message, newest activity first.
func (s *Store) List() []models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		if len(c.Messages) > 0 {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Load makes the chat active and returns a copy of it.
func (s *Store) Load(id string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(id)
	if chat == nil {
		return nil, ErrChatNotFound
	}
	s.activeID = id
	c := *chat
	c.Messages = append([]models.Message(nil), chat.Messages...)
	return &c, nil
}

// ActiveID returns the currently active chat id, or empty.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Append adds a message to a chat, bumps its activity timestamp and persists.
func (s *Store) Append(chatID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(chatID)
	if chat == nil {
		return ErrChatNotFound
	}
	chat.Messages = append(chat.Messages, msg)
	chat.Touch()
	return s.persist()
}

// Title returns the current title of a chat.
func (s *Store) Title(chatID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(chatID)
	if chat == nil {
		return "", ErrChatNotFound
	}
	return chat.Title, nil
}

// SetTitle updates a chat's title and persists.
func (s *Store) SetTitle(chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(chatID)
	if chat == nil {
		return ErrChatNotFound
	}
	chat.Title = title
	return s.persist()
}

// Search matches the query case-insensitively against chat titles and message
// text. The snippet is the first occurrence within any message text with
// surrounding context.
func (s *Store) Search(query string) []SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	if q == "" {
		return nil
	}

	var results []SearchResult
	for _, chat := range s.chats {
		snip := ""
		matched := strings.Contains(strings.ToLower(chat.Title), q)
		for _, msg := range chat.Messages {
			// Index and slice the same lowered string: lowering can change
			// byte lengths, so an index into it is not valid in the original.
			text := strings.ToLower(msg.Text())
			if i := strings.Index(text, q); i >= 0 {
				matched = true
				snip = snippet(text, i, len(q))
				break
			}
		}
		if matched {
			results = append(results, SearchResult{Chat: *chat, Snippet: snip})
		}
	}
	return results
}

// snippet extracts the match with ~30 characters of leading and ~50 of
// trailing context, marking truncation with ellipses.
func snippet(text string, matchStart, matchLen int) string {
	const (
		leading  = 30
		trailing = 50
	)

	start := matchStart - leading
	end := matchStart + matchLen + trailing
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	out := text[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}

func (s *Store) find(id string) *models.Chat {
	for _, c := range s.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}
