// Package queue implements §4.4's cognitive processing queue: a
// priority-ordered, multi-producer multi-consumer queue with
// same-(memory,kind) batching, drained by a fixed-size worker pool.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/mnemosdb/mnemos/engine/domain"
)

// DefaultBatchSize and DefaultBatchWindow are the batching coalescing
// defaults: flush when this many same-key tasks have arrived, or this
// much time has passed since the first of them, whichever comes first.
const (
	DefaultBatchSize      = 8
	DefaultBatchWindow    = 200 * time.Millisecond
	defaultFlushPollEvery = 25 * time.Millisecond
)

type taskItem struct {
	task domain.CognitiveTask
	seq  uint64
}

// taskHeap orders by priority descending, then by arrival order (seq
// ascending) so equal-priority tasks are FIFO.
type taskHeap []taskItem

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(taskItem)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type batchKey struct {
	memoryID string
	kind     domain.CognitiveTaskKind
}

type batchEntry struct {
	task      domain.CognitiveTask
	count     int
	firstSeen time.Time
}

// Queue is the shared priority queue handle. It is safe for concurrent
// use by any number of producers and by the dispatcher goroutine that
// feeds the worker pool's Outbox channel.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  taskHeap
	seq    uint64
	closed bool
	maxLen int

	batchMu     sync.Mutex
	batches     map[batchKey]*batchEntry
	batchSize   int
	batchWindow time.Duration
	stopFlusher chan struct{}
	flusherDone chan struct{}

	outbox chan domain.CognitiveTask
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithMaxLen bounds the queue; Enqueue returns ErrQueueFull once the
// bound is hit. Zero (the default) means unbounded.
func WithMaxLen(n int) Option { return func(q *Queue) { q.maxLen = n } }

// WithBatching overrides the default coalescing size/window.
func WithBatching(size int, window time.Duration) Option {
	return func(q *Queue) {
		if size > 0 {
			q.batchSize = size
		}
		if window > 0 {
			q.batchWindow = window
		}
	}
}

// New builds a Queue and starts its background batch-aging flusher and
// dispatcher goroutine. Call Shutdown to stop both.
func New(opts ...Option) *Queue {
	q := &Queue{
		batches:     make(map[batchKey]*batchEntry),
		batchSize:   DefaultBatchSize,
		batchWindow: DefaultBatchWindow,
		stopFlusher: make(chan struct{}),
		flusherDone: make(chan struct{}),
		outbox:      make(chan domain.CognitiveTask),
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}

	go q.runFlusher()
	go q.dispatch()
	return q
}

// Outbox is the channel workers range over.
func (q *Queue) Outbox() <-chan domain.CognitiveTask { return q.outbox }

// Enqueue pushes task directly onto the priority heap.
func (q *Queue) Enqueue(task domain.CognitiveTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrCancelled
	}
	if q.maxLen > 0 && len(q.items) >= q.maxLen {
		return domain.ErrQueueFull
	}
	q.pushLocked(task)
	return nil
}

func (q *Queue) pushLocked(task domain.CognitiveTask) {
	q.seq++
	heap.Push(&q.items, taskItem{task: task, seq: q.seq})
	q.cond.Signal()
}

// EnqueueWithBatching coalesces task with any pending task sharing its
// (memory_id, kind), flushing immediately once batchSize same-key
// tasks have accumulated. The background flusher also flushes entries
// older than batchWindow.
func (q *Queue) EnqueueWithBatching(task domain.CognitiveTask) error {
	key := batchKey{memoryID: task.MemoryID, kind: task.Kind}

	q.batchMu.Lock()
	entry, ok := q.batches[key]
	if !ok {
		entry = &batchEntry{task: task, count: 1, firstSeen: time.Now()}
		q.batches[key] = entry
	} else {
		if task.Priority > entry.task.Priority {
			entry.task = task
		}
		entry.count++
	}
	shouldFlush := entry.count >= q.batchSize
	if shouldFlush {
		delete(q.batches, key)
	}
	q.batchMu.Unlock()

	if shouldFlush {
		return q.Enqueue(entry.task)
	}
	return nil
}

// FlushBatches pushes every pending coalesced task onto the priority
// heap immediately. Idempotent: a no-op when nothing is pending.
func (q *Queue) FlushBatches() {
	q.batchMu.Lock()
	pending := q.batches
	q.batches = make(map[batchKey]*batchEntry, len(pending))
	q.batchMu.Unlock()

	q.mu.Lock()
	for _, entry := range pending {
		q.pushLocked(entry.task)
	}
	q.mu.Unlock()
}

func (q *Queue) runFlusher() {
	defer close(q.flusherDone)
	ticker := time.NewTicker(defaultFlushPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopFlusher:
			return
		case <-ticker.C:
			q.flushAged()
		}
	}
}

func (q *Queue) flushAged() {
	now := time.Now()
	var ready []domain.CognitiveTask

	q.batchMu.Lock()
	for key, entry := range q.batches {
		if now.Sub(entry.firstSeen) >= q.batchWindow {
			ready = append(ready, entry.task)
			delete(q.batches, key)
		}
	}
	q.batchMu.Unlock()

	if len(ready) == 0 {
		return
	}
	q.mu.Lock()
	for _, t := range ready {
		q.pushLocked(t)
	}
	q.mu.Unlock()
}

// dispatch owns the heap and feeds Outbox in priority order; it is the
// queue's only consumer of items, so workers never contend on the lock.
func (q *Queue) dispatch() {
	defer close(q.outbox)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		task := heap.Pop(&q.items).(taskItem).task
		q.mu.Unlock()

		q.outbox <- task
	}
}

// Shutdown flushes pending batches, then closes the queue so the
// dispatcher drains remaining items and closes Outbox, ending every
// worker's receive loop cleanly (P8: no enqueued task is lost).
func (q *Queue) Shutdown() {
	q.FlushBatches()

	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	close(q.stopFlusher)
	<-q.flusherDone
}

// Len reports the number of items currently sitting in the priority
// heap, excluding anything still buffered for batching.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
