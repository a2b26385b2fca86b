// Package chunkgen runs chunk generation on a worker pool and hands the
// results back to the tick goroutine one at a time.
package chunkgen

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelhost.ai/internal/terrain"
	"voxelhost.ai/internal/worldgen"
)

// Source produces a chunk and its spawn supplement. It must be safe to call
// from several goroutines at once.
type Source func(key terrain.ChunkKey) (*terrain.Chunk, worldgen.Supplement)

// Result is one finished job.
type Result struct {
	Key        terrain.ChunkKey
	Chunk      *terrain.Chunk
	Supplement worldgen.Supplement
	Ticket     uint64
}

type job struct {
	key    terrain.ChunkKey
	ticket uint64
}

type Stats struct {
	Pending    int
	Backlog    int
	Dispatched uint64
	Completed  uint64
	Stale      uint64
}

// Pipeline dedupes requests per key. Request, Poll, Forget and Pending
// belong to the tick goroutine; only the job and result channels are
// shared with the workers.
type Pipeline struct {
	src     Source
	workers int
	log     *zap.Logger

	jobs    chan job
	results chan Result

	// pending maps a key to the ticket of its outstanding job.
	pending map[terrain.ChunkKey]uint64
	backlog []job
	ticket  uint64

	cancel  context.CancelFunc
	g       *errgroup.Group
	started bool
	closed  bool
	once    sync.Once

	dispatched atomic.Uint64
	completed  atomic.Uint64
	stale      atomic.Uint64
}

func New(src Source, workers int, log *zap.Logger) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		src:     src,
		workers: workers,
		log:     log.With(zap.String("component", "chunkgen")),
		jobs:    make(chan job, workers*16),
		results: make(chan Result, workers*16),
		pending: map[terrain.ChunkKey]uint64{},
	}
}

// Start launches the workers. They stop when ctx is done or on Close.
func (p *Pipeline) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	p.g = g
	for i := 0; i < p.workers; i++ {
		g.Go(func() error { return p.work(ctx) })
	}
	p.log.Info("generation workers started", zap.Int("workers", p.workers))
}

func (p *Pipeline) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-p.jobs:
			c, sup := p.src(j.key)
			p.completed.Add(1)
			select {
			case p.results <- Result{Key: j.key, Chunk: c, Supplement: sup, Ticket: j.ticket}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Request schedules key unless a job for it is already outstanding. It
// reports whether a new job was created.
func (p *Pipeline) Request(key terrain.ChunkKey) bool {
	if p.closed {
		return false
	}
	if _, ok := p.pending[key]; ok {
		return false
	}
	p.ticket++
	j := job{key: key, ticket: p.ticket}
	p.pending[key] = j.ticket
	p.dispatched.Add(1)
	if len(p.backlog) > 0 {
		p.backlog = append(p.backlog, j)
		return true
	}
	select {
	case p.jobs <- j:
	default:
		p.backlog = append(p.backlog, j)
	}
	return true
}

func (p *Pipeline) Pending(key terrain.ChunkKey) bool {
	_, ok := p.pending[key]
	return ok
}

// PendingKeys returns the outstanding keys in no particular order.
func (p *Pipeline) PendingKeys() []terrain.ChunkKey {
	out := make([]terrain.ChunkKey, 0, len(p.pending))
	for k := range p.pending {
		out = append(out, k)
	}
	return out
}

// Forget drops interest in key. A job that is already running still
// completes, but Poll discards its result. A later Request gets a new
// ticket, so only the newer job's result is accepted.
func (p *Pipeline) Forget(key terrain.ChunkKey) {
	t, ok := p.pending[key]
	if !ok {
		return
	}
	delete(p.pending, key)
	for i, j := range p.backlog {
		if j.key == key && j.ticket == t {
			p.backlog = append(p.backlog[:i], p.backlog[i+1:]...)
			break
		}
	}
}

// Poll returns at most one accepted result without blocking. Results whose
// ticket no longer matches the pending entry are dropped on the way.
func (p *Pipeline) Poll() (Result, bool) {
	p.feed()
	for {
		select {
		case r := <-p.results:
			t, ok := p.pending[r.Key]
			if !ok || t != r.Ticket {
				p.stale.Add(1)
				p.log.Debug("stale generation result dropped", zap.Stringer("chunk", r.Key), zap.Uint64("ticket", r.Ticket))
				continue
			}
			delete(p.pending, r.Key)
			return r, true
		default:
			return Result{}, false
		}
	}
}

func (p *Pipeline) feed() {
	n := 0
	for n < len(p.backlog) {
		select {
		case p.jobs <- p.backlog[n]:
			n++
		default:
			p.backlog = p.backlog[n:]
			return
		}
	}
	p.backlog = p.backlog[:0]
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Pending:    len(p.pending),
		Backlog:    len(p.backlog),
		Dispatched: p.dispatched.Load(),
		Completed:  p.completed.Load(),
		Stale:      p.stale.Load(),
	}
}

// Close stops the workers and waits for them. Jobs still queued are
// abandoned.
func (p *Pipeline) Close() error {
	var err error
	p.once.Do(func() {
		p.closed = true
		if p.cancel != nil {
			p.cancel()
		}
		if p.g != nil {
			err = p.g.Wait()
		}
		p.log.Info("generation workers stopped", zap.Uint64("completed", p.completed.Load()))
	})
	return err
}
