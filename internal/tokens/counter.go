package tokens

import (
	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates token counts for trimming transcript context to a
// budget. When the encoding cannot be loaded it falls back to a rough
// characters/4 estimate.
type Counter struct {
	enc *tiktoken.Tiktoken
}

func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if c.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Keep returns the smallest start index such that texts[start:] fits within
// budget tokens. The last element is always kept, regardless of budget.
func (c *Counter) Keep(texts []string, budget int) int {
	if len(texts) == 0 {
		return 0
	}

	total := 0
	start := len(texts) - 1
	for i := len(texts) - 1; i >= 0; i-- {
		total += c.Count(texts[i])
		if total > budget && i < len(texts)-1 {
			break
		}
		start = i
	}
	return start
}
