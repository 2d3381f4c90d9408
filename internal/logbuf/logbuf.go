package logbuf

import (
	"fmt"
	"sync"
	"time"
)

// Retention policy: when the buffer grows past maxEntries, it is cut back
// to keepEntries (the most recent half) instead of trimming one line per
// append. This keeps appends cheap once the cap is reached.
const (
	maxEntries  = 1000
	keepEntries = 500
)

const timestampLayout = "2006-01-02 15:04:05"

// Buffer is a bounded, timestamped line buffer for a single script.
// Appends and reads are safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []string
}

func New() *Buffer { return &Buffer{} }

// Append records msg prefixed with the current timestamp.
func (b *Buffer) Append(msg string) {
	b.AppendAt(time.Now(), msg)
}

// AppendAt records msg with an explicit timestamp.
func (b *Buffer) AppendAt(ts time.Time, msg string) {
	line := fmt.Sprintf("[%s] %s", ts.Format(timestampLayout), msg)
	b.mu.Lock()
	b.entries = append(b.entries, line)
	if len(b.entries) > maxEntries {
		kept := make([]string, keepEntries)
		copy(kept, b.entries[len(b.entries)-keepEntries:])
		b.entries = kept
	}
	b.mu.Unlock()
}

// Tail returns the most recent n entries in order. n <= 0 returns nil.
func (b *Buffer) Tail(n int) []string {
	if n <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.entries) {
		n = len(b.entries)
	}
	out := make([]string, n)
	copy(out, b.entries[len(b.entries)-n:])
	return out
}

// Len returns the current number of retained entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear drops all retained entries.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}
