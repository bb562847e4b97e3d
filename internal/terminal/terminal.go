// Package terminal keeps the backend's console output that is streamed to
// the client, bounded to the most recent lines.
package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/hotsync/internal/ctxlog"
)

// EventName is the feed event carrying terminal output.
const EventName = "/hotreload.terminal.log"

// DefaultCapacity is the number of lines kept when none is configured.
const DefaultCapacity = 1024

// Buffer is a ring of text lines. It is safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	lines    []string
	start    int
	version  uint64
}

// New creates a Buffer holding at most capacity lines.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append adds text split on newlines. With clear set, existing lines are
// dropped first. A trailing newline does not produce an empty line.
func (b *Buffer) Append(text string, clear bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clear {
		b.reset()
	}
	text = strings.TrimSuffix(text, "\n")
	if text != "" {
		for _, line := range strings.Split(text, "\n") {
			b.push(strings.TrimSuffix(line, "\r"))
		}
	}
	b.version++
}

// Clear drops all lines.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
	b.version++
}

// Lines returns the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.start:]...)
	return append(out, b.lines[:b.start]...)
}

// Text returns the buffered lines joined by newlines.
func (b *Buffer) Text() string {
	return strings.Join(b.Lines(), "\n")
}

// Version increases on every Append and Clear.
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

func (b *Buffer) reset() {
	b.lines = b.lines[:0]
	b.start = 0
}

// push must be called with mu held.
func (b *Buffer) push(line string) {
	if len(b.lines) < b.capacity {
		b.lines = append(b.lines, line)
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % b.capacity
}

type logEvent struct {
	Text  string `json:"text"`
	Clear bool   `json:"clear"`
}

// HandleEvent applies a {"text", "clear"} payload.
func (b *Buffer) HandleEvent(ctx context.Context, payload []byte) error {
	var ev logEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		ctxlog.FromContext(ctx).Warn("Ignoring malformed terminal event.", "error", err)
		return fmt.Errorf("invalid terminal event: %w", err)
	}
	b.Append(ev.Text, ev.Clear)
	return nil
}
