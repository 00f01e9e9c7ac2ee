package models

import "strings"

// Quoted user messages are synthesized as a fixed prefix, the quoted snippet
// in double quotes, then a literal separator and the raw user text. The rule
// is reversible so stored transcripts can be redisplayed with the quote and
// the text separated.
const (
	quotePrefix    = "The user is replying to this quoted part of your earlier response: "
	quoteSeparator = "\n\nUser: "
)

// QuoteText synthesizes the outgoing message text for a send that carries a
// quoted snippet.
func QuoteText(quote, text string) string {
	return quotePrefix + `"` + quote + `"` + quoteSeparator + text
}

// SplitQuoted reverses QuoteText. It reports ok=false for messages that were
// not synthesized from a quote. The quote is bounded by its closing quote
// mark, so a snippet that itself contains the separator still splits at the
// synthesized boundary.
func SplitQuoted(full string) (quote, text string, ok bool) {
	if !strings.HasPrefix(full, quotePrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(full, quotePrefix)
	if !strings.HasPrefix(rest, `"`) {
		return "", "", false
	}
	marker := `"` + quoteSeparator
	i := strings.Index(rest[1:], marker)
	if i < 0 {
		return "", "", false
	}
	return rest[1 : 1+i], rest[1+i+len(marker):], true
}
