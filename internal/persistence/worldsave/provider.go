package worldsave

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"voxelhost.ai/internal/terrain"
	"voxelhost.ai/internal/worldgen"
)

const DefaultInterval = time.Second

// Recorder observes save activity. The sqlite index implements it.
type Recorder interface {
	RecordChunkSave(key terrain.ChunkKey, digest uint64, height int, err error)
	RecordSaveCycle(c Cycle)
}

// Cycle summarises one flush of the save buffer.
type Cycle struct {
	Seq      uint64
	Started  time.Time
	Duration time.Duration
	Written  int
	Skipped  int
	Failed   int
}

type Options struct {
	Dir      string
	Seed     uint32
	Interval time.Duration
	Store    ChunkStore
	Recorder Recorder
	Log      *zap.Logger
}

type ctlKind int

const (
	ctlRate ctlKind = iota + 1
	ctlStop
)

type ctl struct {
	kind     ctlKind
	interval time.Duration
}

// Stats are cumulative save counters.
type Stats struct {
	Cycles   uint64
	Written  uint64
	Skipped  uint64
	Failed   uint64
	Buffered int
}

// Provider serves chunks to the generation workers and saves edited chunks
// in the background. GetChunk is safe from any goroutine.
type Provider struct {
	dir   string
	sim   *worldgen.Sim
	store ChunkStore
	rec   Recorder
	log   *zap.Logger

	mu       sync.Mutex
	buffer   map[terrain.ChunkKey]*terrain.Chunk
	inflight map[terrain.ChunkKey]*terrain.Chunk

	interval time.Duration
	ctl      chan ctl
	done     chan struct{}
	started  atomic.Bool
	shutOnce sync.Once

	// lastDigest is owned by the save loop.
	lastDigest map[terrain.ChunkKey]uint64
	cycles     atomic.Uint64
	written    atomic.Uint64
	skipped    atomic.Uint64
	failed     atomic.Uint64
}

// Open loads the world in opts.Dir, or generates a new one from opts.Seed
// when there is no complete saved world.
func Open(opts Options) (*Provider, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Store == nil {
		fs, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, err
		}
		opts.Store = fs
	}
	log := opts.Log.With(zap.String("component", "worldsave"))

	sim, err := LoadGlobals(opts.Dir)
	switch {
	case err == nil:
		log.Info("world loaded", zap.String("dir", opts.Dir), zap.Uint32("seed", sim.Seed))
	case errors.Is(err, ErrNoWorld):
		log.Info("generating new world", zap.String("dir", opts.Dir), zap.Uint32("seed", opts.Seed))
		sim = worldgen.NewSim(opts.Seed)
	default:
		log.Warn("saved world unreadable, generating new world", zap.Error(err), zap.Uint32("seed", opts.Seed))
		sim = worldgen.NewSim(opts.Seed)
	}

	return &Provider{
		dir:        opts.Dir,
		sim:        sim,
		store:      opts.Store,
		rec:        opts.Recorder,
		log:        log,
		buffer:     map[terrain.ChunkKey]*terrain.Chunk{},
		interval:   opts.Interval,
		ctl:        make(chan ctl, 8),
		done:       make(chan struct{}),
		lastDigest: map[terrain.ChunkKey]uint64{},
	}, nil
}

func (p *Provider) Sim() *worldgen.Sim { return p.sim }

// GetChunk returns the saved version of a chunk, or generates it. Saved
// chunks come without a supplement so their NPCs are not spawned twice.
// Read failures are logged and fall back to generation.
func (p *Provider) GetChunk(key terrain.ChunkKey) (*terrain.Chunk, worldgen.Supplement) {
	p.mu.Lock()
	c, ok := p.buffer[key]
	if !ok {
		c, ok = p.inflight[key]
	}
	p.mu.Unlock()
	if ok {
		return c.Clone(), worldgen.Supplement{}
	}

	c, err := p.store.LoadChunk(key)
	if err == nil {
		return c, worldgen.Supplement{}
	}
	if !errors.Is(err, ErrChunkNotFound) {
		p.log.Warn("chunk load failed, regenerating", zap.Stringer("chunk", key), zap.Error(err))
	}
	return p.sim.GenerateChunk(key)
}

// RequestSave queues a chunk snapshot. A later request for the same key
// replaces an unflushed earlier one. The caller hands over ownership of c.
func (p *Provider) RequestSave(key terrain.ChunkKey, c *terrain.Chunk) {
	p.mu.Lock()
	p.buffer[key] = c
	p.mu.Unlock()
}

// StartSaveLoop launches the background flusher. It runs until Shutdown.
func (p *Provider) StartSaveLoop() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.loop()
}

// SetRate changes the flush interval.
func (p *Provider) SetRate(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case p.ctl <- ctl{kind: ctlRate, interval: d}:
	case <-p.done:
	}
}

func (p *Provider) loop() {
	defer close(p.done)
	t := time.NewTimer(p.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.flush()
			t.Reset(p.interval)
		case c := <-p.ctl:
			switch c.kind {
			case ctlRate:
				p.interval = c.interval
				if !t.Stop() {
					select {
					case <-t.C:
					default:
					}
				}
				t.Reset(p.interval)
				p.log.Debug("save interval changed", zap.Duration("interval", p.interval))
			case ctlStop:
				p.flush()
				return
			}
		}
	}
}

// flush swaps the buffer out and writes it. Only the loop calls it, or
// Shutdown when the loop never ran.
func (p *Provider) flush() Cycle {
	p.mu.Lock()
	batch := p.buffer
	p.buffer = map[terrain.ChunkKey]*terrain.Chunk{}
	p.inflight = batch
	p.mu.Unlock()

	cyc := Cycle{Seq: p.cycles.Add(1), Started: time.Now()}
	keys := make([]terrain.ChunkKey, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return terrain.Less(keys[i], keys[j]) })

	var retry map[terrain.ChunkKey]*terrain.Chunk
	for _, k := range keys {
		c := batch[k]
		digest := c.Digest()
		if prev, ok := p.lastDigest[k]; ok && prev == digest {
			cyc.Skipped++
			continue
		}
		if err := p.store.SaveChunk(k, c); err != nil {
			werr := &WriteError{Key: k, Err: err}
			p.log.Warn("chunk save failed", zap.Error(werr))
			cyc.Failed++
			if p.rec != nil {
				p.rec.RecordChunkSave(k, digest, c.Height, werr)
			}
			if retry == nil {
				retry = map[terrain.ChunkKey]*terrain.Chunk{}
			}
			retry[k] = c
			continue
		}
		p.lastDigest[k] = digest
		cyc.Written++
		if p.rec != nil {
			p.rec.RecordChunkSave(k, digest, c.Height, nil)
		}
	}

	// Failed writes go back for the next cycle unless a newer copy of the
	// chunk was buffered meanwhile.
	p.mu.Lock()
	for k, c := range retry {
		if _, newer := p.buffer[k]; !newer {
			p.buffer[k] = c
		}
	}
	p.inflight = nil
	p.mu.Unlock()

	cyc.Duration = time.Since(cyc.Started)
	p.written.Add(uint64(cyc.Written))
	p.skipped.Add(uint64(cyc.Skipped))
	p.failed.Add(uint64(cyc.Failed))
	if len(batch) > 0 {
		p.log.Debug("save cycle", zap.Uint64("seq", cyc.Seq), zap.Int("written", cyc.Written),
			zap.Int("skipped", cyc.Skipped), zap.Int("failed", cyc.Failed), zap.Duration("took", cyc.Duration))
		if p.rec != nil {
			p.rec.RecordSaveCycle(cyc)
		}
	}
	return cyc
}

// Save writes the global files.
func (p *Provider) Save() error {
	return SaveGlobals(p.dir, p.sim)
}

// Shutdown stops the save loop after a final flush, saves the global files
// and closes the chunk store. It blocks until everything is written.
func (p *Provider) Shutdown() error {
	var err error
	p.shutOnce.Do(func() {
		if p.started.Load() {
			p.ctl <- ctl{kind: ctlStop}
			<-p.done
		} else {
			p.flush()
		}
		err = errors.Join(p.Save(), p.store.Close())
		p.log.Info("world saved", zap.String("dir", p.dir), zap.Uint64("chunks_written", p.written.Load()))
	})
	return err
}

func (p *Provider) Stats() Stats {
	p.mu.Lock()
	n := len(p.buffer)
	p.mu.Unlock()
	return Stats{
		Cycles:   p.cycles.Load(),
		Written:  p.written.Load(),
		Skipped:  p.skipped.Load(),
		Failed:   p.failed.Load(),
		Buffered: n,
	}
}
