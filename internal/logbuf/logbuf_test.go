package logbuf

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndTail(t *testing.T) {
	b := New()
	b.Append("first")
	b.Append("second")
	b.Append("third")

	got := b.Tail(2)
	require.Len(t, got, 2)
	assert.True(t, strings.HasSuffix(got[0], "second"))
	assert.True(t, strings.HasSuffix(got[1], "third"))
	// "[2006-01-02 15:04:05] msg" prefix shape
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `, got[0])
}

func TestTailBounds(t *testing.T) {
	b := New()
	assert.Nil(t, b.Tail(10))
	b.Append("only")
	assert.Len(t, b.Tail(100), 1)
	assert.Nil(t, b.Tail(0))
	assert.Nil(t, b.Tail(-1))
}

func TestTruncationHysteresis(t *testing.T) {
	b := New()
	for i := 0; i < maxEntries; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}
	// At the cap nothing is dropped yet.
	assert.Equal(t, maxEntries, b.Len())

	// One more append trips the cut down to the most recent keepEntries.
	b.Append("line 1000")
	require.Equal(t, keepEntries, b.Len())
	tail := b.Tail(keepEntries)
	assert.True(t, strings.HasSuffix(tail[0], fmt.Sprintf("line %d", maxEntries+1-keepEntries)))
	assert.True(t, strings.HasSuffix(tail[keepEntries-1], "line 1000"))
}

func TestAppendAtUsesGivenTimestamp(t *testing.T) {
	b := New()
	ts := time.Date(2024, 3, 1, 12, 30, 45, 0, time.Local)
	b.AppendAt(ts, "hello")
	got := b.Tail(1)
	require.Len(t, got, 1)
	assert.Equal(t, "[2024-03-01 12:30:45] hello", got[0])
}

func TestConcurrentAppend(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Append(fmt.Sprintf("g%d-%d", g, i))
			}
		}(g)
	}
	wg.Wait()
	// 1600 appends with the hysteresis policy never retain more than the cap.
	assert.LessOrEqual(t, b.Len(), maxEntries)
	assert.Greater(t, b.Len(), 0)
}

func TestClear(t *testing.T) {
	b := New()
	b.Append("x")
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Tail(5))
}
