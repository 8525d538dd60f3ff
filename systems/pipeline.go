package systems

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
)

// ErrPathNotReady is returned when a request's result is read before its batch completes.
var ErrPathNotReady = errors.New("path request not ready")

// PipelineState is the phase of the request pipeline as seen by the tick driver.
type PipelineState uint8

const (
	StateCollecting PipelineState = iota // No batch in flight, accepting requests
	StateRunning                         // A batch is being searched off-thread
	StateDraining                        // Completed batch results are being published
)

func (s PipelineState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("PipelineState(%d)", uint8(s))
	}
}

// RequestStatus is the lifecycle of one PathRequest.
type RequestStatus uint8

const (
	RequestPending RequestStatus = iota
	RequestRunning
	RequestDone
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestRunning:
		return "running"
	case RequestDone:
		return "done"
	default:
		return fmt.Sprintf("RequestStatus(%d)", uint8(s))
	}
}

// PathRequest is a single start/end query. It is created by Submit and
// mutated only by the pipeline; callers poll IsDone and read Result once.
type PathRequest struct {
	Agent components.Handle
	Start r3.Vec
	End   r3.Vec

	batch    *pathBatch
	raw      []int // Search output, goal first
	expanded int
	path     *Path
}

// Status reports where the request is in its lifecycle.
func (r *PathRequest) Status() RequestStatus {
	switch {
	case r.batch.done.Load():
		return RequestDone
	case r.batch.dispatched.Load():
		return RequestRunning
	default:
		return RequestPending
	}
}

// IsDone reports whether the result can be read.
func (r *PathRequest) IsDone() bool {
	return r.batch.done.Load()
}

// Result returns the computed path. It returns ErrPathNotReady before the
// owning batch has been published.
func (r *PathRequest) Result() (*Path, error) {
	if !r.batch.done.Load() {
		slog.Warn("path result polled before completion", "agent", r.Agent.String())
		return nil, ErrPathNotReady
	}
	return r.path, nil
}

// pathBatch is one generation of requests. All requests in a batch are
// published together when done flips.
type pathBatch struct {
	requests   []*PathRequest
	grid       *NavGrid
	dispatched atomic.Bool
	done       atomic.Bool
	finished   chan struct{} // Closed by the search goroutine
	started    time.Time
	searchTime time.Duration
}

func newPathBatch(requests []*PathRequest) *pathBatch {
	return &pathBatch{requests: requests[:0]}
}

// BatchStats summarizes a drained batch.
type BatchStats struct {
	Seq        int
	Size       int
	Failed     int
	Expanded   int           // Total nodes closed across the batch
	SearchTime time.Duration // Dispatch to last search finished
	Latency    time.Duration // Dispatch to publish
	PathLens   []float64     // Waypoint count per successful request
}

// PipelineOptions configures a PathPipeline.
type PipelineOptions struct {
	Workers              int // Concurrent searches per batch (0 = GOMAXPROCS)
	MaxOpenNodes         int
	TurnDistance         float64
	PreventCornerCutting bool
	Logger               *slog.Logger
}

// PathPipeline batches path requests and searches them off the tick thread.
// At most one batch is in flight. Requests submitted while a batch runs wait
// for the next one. Update must be called from the tick driver only.
type PathPipeline struct {
	mu         sync.Mutex
	collecting *pathBatch
	staged     *NavGrid

	inflight *pathBatch
	grid     *NavGrid
	state    PipelineState
	spare    []*PathRequest

	pool    sync.Pool
	opts    PipelineOptions
	logger  *slog.Logger
	onBatch func(BatchStats)
	seq     int
}

// NewPathPipeline creates a pipeline searching grid.
func NewPathPipeline(grid *NavGrid, opts PipelineOptions) *PathPipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MaxOpenNodes <= 0 {
		opts.MaxOpenNodes = DefaultMaxOpenNodes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &PathPipeline{
		collecting: newPathBatch(nil),
		grid:       grid,
		opts:       opts,
		logger:     logger,
	}
	p.pool.New = func() any {
		pf := NewPathfinder(opts.MaxOpenNodes)
		pf.PreventCornerCutting = opts.PreventCornerCutting
		return pf
	}
	return p
}

// OnBatch registers a callback invoked on the tick driver after each drain.
func (p *PathPipeline) OnBatch(fn func(BatchStats)) {
	p.onBatch = fn
}

// Submit queues a request for the next batch. Safe for concurrent use.
func (p *PathPipeline) Submit(agent components.Handle, start, end r3.Vec) *PathRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	req := &PathRequest{Agent: agent, Start: start, End: end, batch: p.collecting}
	p.collecting.requests = append(p.collecting.requests, req)
	return req
}

// Pending returns the number of requests waiting for the next batch.
func (p *PathPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.collecting.requests)
}

// State returns the pipeline phase.
func (p *PathPipeline) State() PipelineState { return p.state }

// Running reports whether a batch is in flight.
func (p *PathPipeline) Running() bool { return p.inflight != nil }

// Grid returns the installed navigation grid.
func (p *PathPipeline) Grid() *NavGrid { return p.grid }

// SwapGrid stages a replacement grid. It is installed by Update once no batch
// is in flight; the previous grid is disposed then.
func (p *PathPipeline) SwapGrid(g *NavGrid) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.staged != nil && p.staged != g {
		p.staged.Dispose()
	}
	p.staged = g
}

// Update advances the pipeline by one tick:
// drain a finished batch, install a staged grid, then dispatch pending requests.
func (p *PathPipeline) Update() {
	if p.inflight != nil {
		select {
		case <-p.inflight.finished:
			p.drain()
		default:
			return
		}
	}
	p.installStaged()
	p.dispatch()
}

// Wait blocks until any in-flight batch finishes and publishes it.
func (p *PathPipeline) Wait() {
	if p.inflight == nil {
		return
	}
	<-p.inflight.finished
	p.drain()
}

// Close waits for the in-flight batch and disposes all grids.
// Requests still pending are never answered.
func (p *PathPipeline) Close() {
	p.Wait()
	p.mu.Lock()
	staged := p.staged
	p.staged = nil
	p.mu.Unlock()
	staged.Dispose()
	p.grid.Dispose()
}

func (p *PathPipeline) installStaged() {
	p.mu.Lock()
	staged := p.staged
	p.staged = nil
	p.mu.Unlock()
	if staged == nil || staged == p.grid {
		return
	}
	old := p.grid
	p.grid = staged
	old.Dispose()
	p.logger.Info("navigation grid swapped",
		"width", staged.Width(),
		"height", staged.Height(),
		"walkable", staged.WalkableCount(),
	)
}

func (p *PathPipeline) dispatch() {
	p.mu.Lock()
	b := p.collecting
	if len(b.requests) == 0 {
		p.mu.Unlock()
		p.state = StateCollecting
		return
	}
	p.collecting = newPathBatch(p.spare)
	p.spare = nil
	p.mu.Unlock()

	b.grid = p.grid
	b.finished = make(chan struct{})
	b.started = time.Now()
	b.dispatched.Store(true)

	p.inflight = b
	p.state = StateRunning
	go p.search(b)
}

// search runs every request of b against the batch grid.
func (p *PathPipeline) search(b *pathBatch) {
	defer close(b.finished)

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for _, req := range b.requests {
		g.Go(func() error {
			pf := p.pool.Get().(*Pathfinder)
			req.raw = pf.FindPathInto(req.raw, b.grid, req.Start, req.End)
			req.expanded = pf.Expanded()
			p.pool.Put(pf)
			return nil
		})
	}
	_ = g.Wait()
	b.searchTime = time.Since(b.started)
}

// drain converts raw results to paths and publishes the whole batch at once.
func (p *PathPipeline) drain() {
	b := p.inflight
	p.state = StateDraining

	stats := BatchStats{
		Seq:        p.seq,
		Size:       len(b.requests),
		SearchTime: b.searchTime,
		PathLens:   make([]float64, 0, len(b.requests)),
	}
	for _, req := range b.requests {
		req.path = buildPath(b.grid, req, p.opts.TurnDistance)
		req.raw = nil
		stats.Expanded += req.expanded
		if req.path.Failed {
			stats.Failed++
		} else {
			stats.PathLens = append(stats.PathLens, float64(req.path.Len()))
		}
	}
	b.done.Store(true)
	stats.Latency = time.Since(b.started)

	p.seq++
	p.inflight = nil
	// The published slice still belongs to b; size the next batch like it.
	p.spare = make([]*PathRequest, 0, cap(b.requests))
	p.state = StateCollecting

	p.logger.Debug("path batch published",
		"seq", stats.Seq,
		"size", stats.Size,
		"failed", stats.Failed,
		"expanded", stats.Expanded,
		"latency_us", stats.Latency.Microseconds(),
	)
	if p.onBatch != nil {
		p.onBatch(stats)
	}
}

// buildPath turns a goal-first cell list into a simplified world path that
// starts after the agent's own cell.
func buildPath(grid *NavGrid, req *PathRequest, turnDist float64) *Path {
	cells := req.raw
	if len(cells) == 0 {
		return FailedPath()
	}

	pts := make([]r3.Vec, len(cells))
	for i := range cells {
		x, y := grid.Coords(cells[len(cells)-1-i])
		pts[i] = grid.CellToWorld(x, y)
	}
	pts = Simplify(pts)
	if len(pts) > 1 {
		pts = pts[1:]
	}
	return NewPath(req.Start, pts, turnDist)
}
