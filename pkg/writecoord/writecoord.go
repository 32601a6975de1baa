// Package writecoord implements the three concurrency primitives that
// guard a collection (spec §4.4): an exclusive writer lock, a bounded
// reader semaphore, and an exclusive flusher lock that readers and the
// writer await without acquiring.
package writecoord

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"golang.org/x/sync/semaphore"
)

// DefaultReaderCapacity is the bounded-concurrency admission limit for
// find_one, find, count, and find_and_map (spec §4.4).
const DefaultReaderCapacity = 10

// DefaultFlushDebounce is the 30-second debounce window of spec §4.5.
const DefaultFlushDebounce = 30 * time.Second

// Coordinator bundles the writer lock, reader semaphore, and flusher
// lock for one collection.
type Coordinator struct {
	writerMu sync.Mutex

	readerSem *semaphore.Weighted

	flusherMu sync.Mutex
}

// New constructs a Coordinator with the given reader admission capacity.
func New(readerCapacity int64) *Coordinator {
	if readerCapacity <= 0 {
		readerCapacity = DefaultReaderCapacity
	}
	return &Coordinator{readerSem: semaphore.NewWeighted(readerCapacity)}
}

// LockWriter acquires the exclusive writer lock, held for the entirety
// of insert/find_one_and_update/find_one_and_delete/find_and_update/
// find_and_delete.
func (c *Coordinator) LockWriter() { c.writerMu.Lock() }

// UnlockWriter releases the writer lock.
func (c *Coordinator) UnlockWriter() { c.writerMu.Unlock() }

// AcquireReader admits one of up to readerCapacity (as passed to New)
// concurrent readers, blocking until a permit is free or ctx is done.
func (c *Coordinator) AcquireReader(ctx context.Context) error {
	return c.readerSem.Acquire(ctx, 1)
}

// ReleaseReader returns a reader permit.
func (c *Coordinator) ReleaseReader() { c.readerSem.Release(1) }

// LockFlusher acquires the exclusive flusher lock, held only inside
// flush().
func (c *Coordinator) LockFlusher() { c.flusherMu.Lock() }

// UnlockFlusher releases the flusher lock.
func (c *Coordinator) UnlockFlusher() { c.flusherMu.Unlock() }

// AwaitFlusherUnlocked blocks until no flush is in progress without
// itself holding the flusher lock afterward — the "await, don't
// acquire" rule of spec §4.4 that keeps readers and the writer from
// observing a page mid-write.
func (c *Coordinator) AwaitFlusherUnlocked() {
	c.flusherMu.Lock()
	c.flusherMu.Unlock()
}

// FlushTimer is a debounced, cancellable single-shot timer built on
// bep/debounce: every Arm call restarts the window, and Cancel
// invalidates any pending fire even though bep/debounce itself exposes
// no cancellation. This is done with a generation counter rather than
// by reaching into the library's internal timer.
type FlushTimer struct {
	debounced func(func())
	epoch     atomic.Int64
}

// NewFlushTimer constructs a debounced timer with the given window.
func NewFlushTimer(after time.Duration) *FlushTimer {
	if after <= 0 {
		after = DefaultFlushDebounce
	}
	return &FlushTimer{debounced: debounce.New(after)}
}

// Arm (re-)arms the debounced timer: f fires after the debounce window
// elapses with no further Arm/Cancel calls in between.
func (t *FlushTimer) Arm(f func()) {
	gen := t.epoch.Add(1)
	t.debounced(func() {
		if t.epoch.Load() == gen {
			f()
		}
	})
}

// Cancel invalidates any currently pending fire. A later Arm call
// starts a fresh window.
func (t *FlushTimer) Cancel() {
	t.epoch.Add(1)
}
