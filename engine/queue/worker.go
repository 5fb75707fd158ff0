package queue

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/mnemosdb/mnemos/pkg/natsutil"
)

// DefaultWorkerCount is the pool size absent explicit configuration.
const DefaultWorkerCount = 2

// Handler processes one cognitive task. A returned error is logged and
// reported in the task's CompletionEvent; the pool itself does not
// change the memory's evaluation_status. Handlers never panic the
// worker loop on their own errors.
type Handler func(ctx context.Context, task domain.CognitiveTask) error

// CompletionEvent is published to CompletionSubject after each task
// finishes, when a NATS connection is configured.
type CompletionEvent struct {
	MemoryID string                   `json:"memory_id"`
	Kind     domain.CognitiveTaskKind `json:"kind"`
	Success  bool                     `json:"success"`
	Error    string                   `json:"error,omitempty"`
}

// CompletionSubject is the NATS subject cognitive-task completions
// fan out on.
const CompletionSubject = "mnemos.cognitive.completed"

// Pool is the fixed-size worker pool draining a Queue (§4.4).
type Pool struct {
	queue   *Queue
	handler Handler
	count   int
	log     *slog.Logger

	nc *nats.Conn

	g *errgroup.Group
}

// NewPool builds a worker pool over q. nc may be nil to disable
// completion fanout.
func NewPool(q *Queue, handler Handler, count int, nc *nats.Conn, log *slog.Logger) *Pool {
	if count <= 0 {
		count = DefaultWorkerCount
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{queue: q, handler: handler, count: count, nc: nc, log: log}
}

// Start launches the worker goroutines. Each runs
// `loop { task := queue.recv(); process(task) }` until Outbox closes.
// The pool's errgroup bounds shutdown: Wait returns only once every
// worker has drained the queue and returned.
func (p *Pool) Start(ctx context.Context) {
	g, gCtx := errgroup.WithContext(ctx)
	p.g = g
	for i := 0; i < p.count; i++ {
		g.Go(func() error {
			p.run(gCtx)
			return nil
		})
	}
}

func (p *Pool) run(ctx context.Context) {
	for task := range p.queue.Outbox() {
		err := p.handler(ctx, task)
		if err != nil {
			p.log.Warn("queue: task failed", "memory_id", task.MemoryID, "kind", task.Kind, "error", err)
		}
		p.publishCompletion(ctx, task, err)
	}
}

func (p *Pool) publishCompletion(ctx context.Context, task domain.CognitiveTask, taskErr error) {
	if p.nc == nil {
		return
	}
	event := CompletionEvent{MemoryID: task.MemoryID, Kind: task.Kind, Success: taskErr == nil}
	if taskErr != nil {
		event.Error = taskErr.Error()
	}
	if err := natsutil.Publish(ctx, p.nc, CompletionSubject, event); err != nil {
		p.log.Warn("queue: completion fanout failed", "error", err)
	}
}

// Wait blocks until every worker goroutine has exited, which happens
// once the queue's Outbox channel is closed.
func (p *Pool) Wait() {
	if p.g != nil {
		_ = p.g.Wait()
	}
}
