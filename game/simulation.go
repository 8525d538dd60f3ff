// Package game ties the movement engine together: the agent store, the path
// request pipeline and the per-tick steering passes, owned by one Simulation.
package game

import (
	"log/slog"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
	"github.com/pthm-cable/legion/config"
	"github.com/pthm-cable/legion/systems"
	"github.com/pthm-cable/legion/telemetry"
)

// AgentView is the per-agent presentation record exported each tick.
type AgentView struct {
	Handle    components.Handle
	Position  r3.Vec
	Rotation  quat.Number
	Animation components.AnimationID
	Alive     bool
}

// Simulation owns all engine state. It is driven from a single goroutine;
// only path searches and pass chunks run elsewhere.
type Simulation struct {
	cfg    *config.Config
	logger *slog.Logger

	agents   *AgentStore
	pipeline *systems.PathPipeline
	tracker  *requestTracker
	hash     *systems.SpatialHash
	pool     *workerPool
	frame    systems.SteeringFrame

	// Per-tick scratch, sized to HighWater
	desired []r3.Vec
	next    []r3.Vec
	nextRot []quat.Number
	arrived []bool
	slots   []systems.FormationSlot

	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	bookmarks *telemetry.BookmarkDetector
	trips     *telemetry.TripTracker
	output    *telemetry.OutputManager
	logStats  bool

	tick int64
}

// New creates a simulation over grid. The simulation takes ownership of the
// grid and disposes it on Close or when it is swapped out.
func New(cfg *config.Config, grid *systems.NavGrid, logger *slog.Logger) *Simulation {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Simulation{
		cfg:       cfg,
		logger:    logger,
		agents:    NewAgentStore(cfg.Agents.MaxAgents, cfg.Agents.Seed, logger),
		hash:      systems.NewSpatialHash(cfg.Derived.CellSize),
		pool:      newWorkerPool(cfg.Derived.PassWorkers, cfg.Workers.ParallelThreshold),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector: telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Sim.DT),
		bookmarks: telemetry.NewBookmarkDetector(10),
		trips:     telemetry.NewTripTracker(),
	}
	s.tracker = newRequestTracker(s.trips)
	s.pipeline = systems.NewPathPipeline(grid, systems.PipelineOptions{
		Workers:              cfg.Derived.PathWorkers,
		MaxOpenNodes:         cfg.Pathfinding.MaxOpenNodes,
		TurnDistance:         cfg.Pathfinding.TurnDistance,
		PreventCornerCutting: cfg.Pathfinding.PreventCornerCutting,
		Logger:               logger,
	})
	s.pipeline.OnBatch(s.recordBatch)

	st := &cfg.Steering
	s.frame.Hash = s.hash
	s.frame.Params = systems.SteeringParams{
		MoveSpeed:        st.MoveSpeed,
		RotationSpeed:    st.RotationSpeed,
		DirectionLerp:    st.DirectionLerp,
		SeparationRadius: st.SeparationRadius,
		SeparationWeight: st.SeparationWeight,
		NoiseMagnitude:   st.NoiseMagnitude,
		ReachDistSq:      cfg.Derived.ReachDistSq,
		LookAhead:        st.LookAhead,
		IdleDamping:      st.IdleDamping,
	}
	return s
}

// Agents returns the agent store.
func (s *Simulation) Agents() *AgentStore { return s.agents }

// Grid returns the navigation grid currently installed.
func (s *Simulation) Grid() *systems.NavGrid { return s.pipeline.Grid() }

// Pipeline returns the path request pipeline.
func (s *Simulation) Pipeline() *systems.PathPipeline { return s.pipeline }

// Tick returns the number of completed steps.
func (s *Simulation) Tick() int64 { return s.tick }

// Perf returns the rolling per-phase timing stats.
func (s *Simulation) Perf() telemetry.PerfStats { return s.perf.Stats() }

// SwapGrid stages a replacement grid. It is installed between path batches.
func (s *Simulation) SwapGrid(g *systems.NavGrid) { s.pipeline.SwapGrid(g) }

// Spawn places a new idle agent at pos, resting on the ground when pos is
// over the grid. It returns InvalidHandle when the store is full.
func (s *Simulation) Spawn(pos r3.Vec) components.Handle {
	if h, ok := s.Grid().HeightAt(pos); ok {
		pos.Y = h
	}
	handle := s.agents.Spawn(pos)
	if handle.Valid() {
		s.collector.RecordSpawn(1)
	}
	return handle
}

// Despawn removes an agent. Stale handles are ignored.
func (s *Simulation) Despawn(h components.Handle) bool {
	if !s.agents.Despawn(h) {
		return false
	}
	s.trips.Remove(uint64(h))
	s.collector.RecordDespawn()
	return true
}

// Step advances the simulation by dt seconds.
func (s *Simulation) Step(dt float64) {
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhasePipeline)
	s.pipeline.Update()

	s.perf.StartPhase(telemetry.PhaseMerge)
	merged := s.tracker.merge(s.agents, s.tick)
	s.collector.RecordSuperseded(merged.Superseded + merged.Stale)

	s.perf.StartPhase(telemetry.PhaseCompact)
	s.agents.CompactWaypoints(s.cfg.Workers.CompactRatio)

	n := s.prepareFrame(dt)
	f := &s.frame

	s.perf.StartPhase(telemetry.PhaseAdvance)
	s.pool.run(n, func(_ *workerScratch, i0, i1 int) { systems.AdvanceWaypoints(f, i0, i1) })

	// Desired directions and hash keys are independent, so one pass writes both.
	s.perf.StartPhase(telemetry.PhaseDesired)
	s.hash.Prepare(f.Position, func(i int) bool { return !f.Alive[i] })
	s.pool.run(n, func(_ *workerScratch, i0, i1 int) {
		systems.DesiredDirections(f, i0, i1)
		s.hash.ComputeKeys(i0, i1)
	})
	s.hash.Place()

	s.perf.StartPhase(telemetry.PhaseSeparation)
	s.pool.run(n, func(w *workerScratch, i0, i1 int) {
		w.Neighbors = systems.Separation(f, i0, i1, w.Neighbors)
	})

	s.perf.StartPhase(telemetry.PhaseIntegrate)
	s.pool.run(n, func(_ *workerScratch, i0, i1 int) { systems.Integrate(f, i0, i1) })

	s.perf.StartPhase(telemetry.PhaseCommit)
	s.pool.run(n, func(_ *workerScratch, i0, i1 int) { systems.Commit(f, i0, i1) })

	s.perf.StartPhase(telemetry.PhaseTransition)
	arrivals := 0
	for i := 0; i < n; i++ {
		if s.arrived[i] {
			s.agents.setState(i, components.UnitIdle)
			if trip, ticks := s.trips.Finish(uint64(s.agents.Handle(i)), s.tick); trip != nil {
				s.collector.RecordTrip(trip, ticks)
			}
			arrivals++
		}
	}
	s.collector.RecordArrivals(arrivals)

	s.perf.EndTick()
	s.tick++

	if every := s.cfg.Sim.ValidateEvery; every > 0 && s.tick%int64(every) == 0 {
		if err := s.agents.Validate(); err != nil {
			s.logger.Error("agent store invariant violated", "tick", s.tick, "error", err)
		}
	}
	s.flushTelemetry()
}

// prepareFrame sizes per-tick scratch and points the frame at the store.
func (s *Simulation) prepareFrame(dt float64) int {
	n := s.agents.HighWater()
	s.desired = resize(s.desired, n)
	s.next = resize(s.next, n)
	s.nextRot = resize(s.nextRot, n)
	s.arrived = resize(s.arrived, n)

	f := &s.frame
	s.agents.Frame(f)
	f.Desired = s.desired
	f.Next = s.next
	f.NextRot = s.nextRot
	f.Arrived = s.arrived
	f.Grid = s.pipeline.Grid()
	f.DT = dt
	return n
}

// Snapshot appends one view per slot up to HighWater. Free slots carry
// InvalidHandle and Alive false.
func (s *Simulation) Snapshot(dst []AgentView) []AgentView {
	a := s.agents
	for i := 0; i < a.HighWater(); i++ {
		if !a.AliveAt(i) {
			dst = append(dst, AgentView{})
			continue
		}
		dst = append(dst, AgentView{
			Handle:    a.Handle(i),
			Position:  a.Position[i],
			Rotation:  a.Rotation[i],
			Animation: a.Anim[i],
			Alive:     true,
		})
	}
	return dst
}

// Moving returns the number of live agents in the Move state.
func (s *Simulation) Moving() int {
	n := 0
	a := s.agents
	for i := 0; i < a.HighWater(); i++ {
		if a.AliveAt(i) && a.State[i] == components.UnitMove {
			n++
		}
	}
	return n
}

// Settle steps until no agent is moving and no request is outstanding,
// or maxTicks steps have run. It returns the number of steps taken.
func (s *Simulation) Settle(dt float64, maxTicks int) int {
	for t := 0; t < maxTicks; t++ {
		if s.Moving() == 0 && s.tracker.outstanding() == 0 {
			return t
		}
		s.Step(dt)
	}
	return maxTicks
}

// Close stops the worker pool, waits for any path batch and releases the grid.
func (s *Simulation) Close() {
	s.pool.stop()
	s.pipeline.Close()
}

// resize returns v with length n, reallocating only when capacity is short.
func resize[T any](v []T, n int) []T {
	if cap(v) < n {
		return make([]T, n)
	}
	return v[:n]
}
