package watcher

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBurstCoalescesPerPath checks that a burst of events on a few files keeps
// one pending event per path.
func TestBurstCoalescesPerPath(t *testing.T) {
	d := newDebouncer(time.Hour)
	defer d.stop()

	for i := range 10000 {
		d.addEvent(ChangeEvent{
			Type: EventTypeModified,
			Path: fmt.Sprintf("/src/file%d.ts", i%3),
			Size: int64(i),
		})
	}

	d.mutex.Lock()
	pending := len(d.pending)
	last := d.pending[0]
	d.mutex.Unlock()

	assert.Equal(t, 3, pending)
	assert.Equal(t, int64(9999), last.Size)
}

func TestFlushResetsPending(t *testing.T) {
	d := newDebouncer(time.Hour)
	defer d.stop()

	d.addEvent(ChangeEvent{Path: "a.ts"})
	d.addEvent(ChangeEvent{Path: "b.ts"})
	d.flush()

	batch := <-d.output
	require.Len(t, batch, 2)

	d.addEvent(ChangeEvent{Path: "b.ts"})
	d.flush()

	batch = <-d.output
	require.Len(t, batch, 1)
	assert.Equal(t, "b.ts", batch[0].Path)
}

// TestMemoryStaysBoundedUnderLoad sends a sustained stream of events for a
// single file through a running watcher.
func TestMemoryStaysBoundedUnderLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}

	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddHandler(func(events []ChangeEvent) error { return nil })

	var m1, m2 runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m1)

	for range 10000 {
		fw.debouncer.addEvent(ChangeEvent{
			Type:    EventTypeModified,
			Path:    "/src/app.ts",
			ModTime: time.Now(),
		})
	}

	fw.debouncer.mutex.Lock()
	pending := len(fw.debouncer.pending)
	fw.debouncer.mutex.Unlock()
	assert.LessOrEqual(t, pending, 1)

	runtime.GC()
	runtime.ReadMemStats(&m2)

	var growth int64
	if m2.Alloc > m1.Alloc {
		growth = int64(m2.Alloc - m1.Alloc)
	}
	t.Logf("memory before: %d bytes, after: %d bytes, growth: %d bytes", m1.Alloc, m2.Alloc, growth)
	assert.Less(t, growth, int64(1024*1024))
}

func BenchmarkDebouncerAddEvent(b *testing.B) {
	d := newDebouncer(time.Hour)
	defer d.stop()

	b.ReportAllocs()
	for i := range b.N {
		d.addEvent(ChangeEvent{Type: EventTypeModified, Path: fmt.Sprintf("/src/f%d.ts", i%64)})
	}
}
