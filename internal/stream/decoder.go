package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/quill-labs/quill/internal/models"
	"go.uber.org/zap"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// Decoder reassembles newline-delimited normalized events from a byte stream
// delivered in arbitrarily sized pieces. A line may be split across any
// number of physical reads; only completed lines are parsed.
type Decoder struct {
	tail   []byte
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Feed appends a piece of the stream and returns the events completed by it,
// in order. The trailing partial line, if any, is retained for the next call.
func (d *Decoder) Feed(p []byte) []models.StreamEvent {
	d.tail = append(d.tail, p...)

	var events []models.StreamEvent
	for {
		i := bytes.IndexByte(d.tail, '\n')
		if i < 0 {
			break
		}
		line := d.tail[:i]
		d.tail = d.tail[i+1:]

		if ev, ok := d.parseLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Close discards any buffered partial line. A partial line at stream end can
// never be completed, so it is dropped rather than parsed.
func (d *Decoder) Close() {
	d.tail = nil
}

// parseLine decodes a single complete line into a normalized event. Blank
// lines, the end-of-stream sentinel and malformed payloads produce no event.
func (d *Decoder) parseLine(line []byte) (models.StreamEvent, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return models.StreamEvent{}, false
	}
	if !bytes.HasPrefix(trimmed, []byte(dataPrefix)) {
		return models.StreamEvent{}, false
	}

	payload := trimmed[len(dataPrefix):]
	if string(payload) == doneSentinel {
		return models.StreamEvent{}, false
	}

	var ev models.StreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		d.logger.Debug("skipping malformed stream line", zap.Error(err))
		return models.StreamEvent{}, false
	}
	if ev.Kind() == models.EventNone {
		return models.StreamEvent{}, false
	}
	return ev, true
}

// Drain reads r until EOF or context cancellation, invoking fn for each
// decoded event strictly in arrival order. Connection close is the
// authoritative terminal signal.
func (d *Decoder) Drain(ctx context.Context, r io.Reader, fn func(models.StreamEvent)) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			d.Close()
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range d.Feed(buf[:n]) {
				fn(ev)
			}
		}
		if err != nil {
			d.Close()
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}
