package game

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
	"github.com/pthm-cable/legion/systems"
)

// AgentStore holds every agent in flat per-field columns indexed by slot.
// Columns are allocated at capacity up front; passes only touch [0, HighWater).
//
// Slots are recycled first-in first-out. A slot's generation is bumped on
// despawn so handles issued for an earlier occupant stop resolving.
type AgentStore struct {
	capacity  int
	highWater int
	count     int
	seed      uint64
	logger    *slog.Logger

	gen   []uint32
	alive []bool

	// Free ring, oldest despawned slot first
	free     []int32
	freeHead int
	freeLen  int

	Position []r3.Vec
	Rotation []quat.Number
	Velocity []r3.Vec
	Target   []r3.Vec
	State    []components.UnitState
	Anim     []components.AnimationID
	Selected []bool
	Seq      []uint32 // Bumped on every move request and despawn
	RNG      []rand.PCG

	PathStart []int32
	PathLen   []int32
	Cursor    []int32

	// Waypoint pool shared by all agents, with the turn boundary of each waypoint
	Waypoints []r3.Vec
	Bounds    []systems.Line

	spareWaypoints []r3.Vec
	spareBounds    []systems.Line
}

// NewAgentStore creates a store for up to capacity live agents.
func NewAgentStore(capacity int, seed uint64, logger *slog.Logger) *AgentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentStore{
		capacity:  capacity,
		seed:      seed,
		logger:    logger,
		gen:       make([]uint32, capacity),
		alive:     make([]bool, capacity),
		free:      make([]int32, capacity),
		Position:  make([]r3.Vec, capacity),
		Rotation:  make([]quat.Number, capacity),
		Velocity:  make([]r3.Vec, capacity),
		Target:    make([]r3.Vec, capacity),
		State:     make([]components.UnitState, capacity),
		Anim:      make([]components.AnimationID, capacity),
		Selected:  make([]bool, capacity),
		Seq:       make([]uint32, capacity),
		RNG:       make([]rand.PCG, capacity),
		PathStart: make([]int32, capacity),
		PathLen:   make([]int32, capacity),
		Cursor:    make([]int32, capacity),
	}
}

// Capacity returns the maximum number of live agents.
func (s *AgentStore) Capacity() int { return s.capacity }

// Count returns the number of live agents.
func (s *AgentStore) Count() int { return s.count }

// HighWater returns one past the highest slot ever used.
func (s *AgentStore) HighWater() int { return s.highWater }

// Spawn places a new idle agent at pos. It returns InvalidHandle when the
// store is full.
func (s *AgentStore) Spawn(pos r3.Vec) components.Handle {
	var i int
	switch {
	case s.highWater < s.capacity:
		i = s.highWater
		s.highWater++
	case s.freeLen > 0:
		i = int(s.free[s.freeHead])
		s.freeHead = (s.freeHead + 1) % s.capacity
		s.freeLen--
	default:
		s.logger.Warn("agent store full", "capacity", s.capacity)
		return components.InvalidHandle
	}

	s.alive[i] = true
	s.Position[i] = pos
	s.Rotation[i] = systems.IdentityRotation
	s.Velocity[i] = r3.Vec{}
	s.Target[i] = pos
	s.Selected[i] = false
	s.setState(i, components.UnitIdle)
	s.PathStart[i], s.PathLen[i], s.Cursor[i] = 0, 0, 0
	s.RNG[i] = *rand.NewPCG(s.seed^uint64(s.gen[i]), uint64(i+1)*0x9F6ABC1)
	s.count++
	return components.MakeHandle(i, s.gen[i])
}

// Despawn frees the agent's slot. Stale or dead handles are ignored.
func (s *AgentStore) Despawn(h components.Handle) bool {
	i, ok := s.Resolve(h)
	if !ok {
		return false
	}
	s.alive[i] = false
	s.gen[i]++
	s.Seq[i]++
	s.Selected[i] = false
	s.ClearPath(i)
	s.setState(i, components.UnitIdle)
	s.Velocity[i] = r3.Vec{}

	tail := (s.freeHead + s.freeLen) % s.capacity
	s.free[tail] = int32(i)
	s.freeLen++
	s.count--
	return true
}

// Resolve returns the slot of a live handle.
func (s *AgentStore) Resolve(h components.Handle) (int, bool) {
	i := h.Index()
	if i < 0 || i >= s.highWater || !s.alive[i] || s.gen[i] != h.Generation() {
		return -1, false
	}
	return i, true
}

// Alive reports whether h refers to a live agent.
func (s *AgentStore) Alive(h components.Handle) bool {
	_, ok := s.Resolve(h)
	return ok
}

// AliveAt reports whether slot i is occupied.
func (s *AgentStore) AliveAt(i int) bool { return s.alive[i] }

// Handle returns the current handle for slot i.
func (s *AgentStore) Handle(i int) components.Handle {
	return components.MakeHandle(i, s.gen[i])
}

// setState changes state and animation together.
func (s *AgentStore) setState(i int, st components.UnitState) {
	s.State[i] = st
	s.Anim[i] = st.Animation()
}

// Destination returns where slot i is currently headed: the end of its
// path, its pending target while waiting on a path, or its position.
func (s *AgentStore) Destination(i int) r3.Vec {
	switch {
	case s.PathLen[i] > 0:
		return s.Waypoints[s.PathStart[i]+s.PathLen[i]-1]
	case s.State[i] == components.UnitMove:
		return s.Target[i]
	default:
		return s.Position[i]
	}
}

// AssignPath appends p to the waypoint pool and points slot i at it.
func (s *AgentStore) AssignPath(i int, p *systems.Path) {
	s.PathStart[i] = int32(len(s.Waypoints))
	s.PathLen[i] = int32(p.Len())
	s.Cursor[i] = 0
	s.Waypoints = append(s.Waypoints, p.Waypoints...)
	s.Bounds = append(s.Bounds, p.TurnBoundaries...)
}

// ClearPath detaches slot i from its path. The pool entries become garbage
// until the next compaction.
func (s *AgentStore) ClearPath(i int) {
	s.PathStart[i], s.PathLen[i], s.Cursor[i] = 0, 0, 0
}

// liveWaypoints counts pool entries still reachable from an agent.
func (s *AgentStore) liveWaypoints() int {
	n := 0
	for i := 0; i < s.highWater; i++ {
		if s.alive[i] {
			n += int(s.PathLen[i])
		}
	}
	return n
}

// CompactWaypoints rebuilds the pool once garbage exceeds ratio of it.
// Each agent keeps the waypoint before its cursor for segment projection.
// It must not run while passes read the pool.
func (s *AgentStore) CompactWaypoints(ratio float64) bool {
	total := len(s.Waypoints)
	if total == 0 {
		return false
	}
	garbage := total - s.liveWaypoints()
	if float64(garbage) <= ratio*float64(total) {
		return false
	}

	wps := s.spareWaypoints[:0]
	bounds := s.spareBounds[:0]
	for i := 0; i < s.highWater; i++ {
		if !s.alive[i] || s.PathLen[i] == 0 {
			continue
		}
		from := s.Cursor[i]
		if from > 0 {
			from--
		}
		lo := s.PathStart[i] + from
		hi := s.PathStart[i] + s.PathLen[i]

		s.PathStart[i] = int32(len(wps))
		s.PathLen[i] = hi - lo
		s.Cursor[i] -= from
		wps = append(wps, s.Waypoints[lo:hi]...)
		bounds = append(bounds, s.Bounds[lo:hi]...)
	}

	s.spareWaypoints, s.Waypoints = s.Waypoints[:0], wps
	s.spareBounds, s.Bounds = s.Bounds[:0], bounds
	return true
}

// Frame points the steering frame's agent columns at [0, HighWater).
func (s *AgentStore) Frame(f *systems.SteeringFrame) {
	n := s.highWater
	f.Alive = s.alive[:n]
	f.State = s.State[:n]
	f.Position = s.Position[:n]
	f.Rotation = s.Rotation[:n]
	f.Velocity = s.Velocity[:n]
	f.PathStart = s.PathStart[:n]
	f.PathLen = s.PathLen[:n]
	f.Cursor = s.Cursor[:n]
	f.RNG = s.RNG[:n]
	f.Waypoints = s.Waypoints
	f.Bounds = s.Bounds
}

// Validate checks store invariants. It is meant for tests and periodic
// debug checks, not the hot path.
func (s *AgentStore) Validate() error {
	var errs []error
	live := 0
	for i := 0; i < s.highWater; i++ {
		if !s.alive[i] {
			if s.PathLen[i] != 0 {
				errs = append(errs, fmt.Errorf("slot %d: dead with path length %d", i, s.PathLen[i]))
			}
			continue
		}
		live++
		if s.Anim[i] != s.State[i].Animation() {
			errs = append(errs, fmt.Errorf("slot %d: animation %d does not match state %s", i, s.Anim[i], s.State[i]))
		}
		if s.PathLen[i] < 0 || s.Cursor[i] < 0 {
			errs = append(errs, fmt.Errorf("slot %d: negative path range", i))
			continue
		}
		if s.PathLen[i] > 0 && s.Cursor[i] >= s.PathLen[i] {
			errs = append(errs, fmt.Errorf("slot %d: cursor %d past path length %d", i, s.Cursor[i], s.PathLen[i]))
		}
		if int(s.PathStart[i]+s.PathLen[i]) > len(s.Waypoints) {
			errs = append(errs, fmt.Errorf("slot %d: path [%d,+%d) outside pool of %d", i, s.PathStart[i], s.PathLen[i], len(s.Waypoints)))
		}
	}
	if live != s.count {
		errs = append(errs, fmt.Errorf("live count %d, counted %d", s.count, live))
	}
	if len(s.Bounds) != len(s.Waypoints) {
		errs = append(errs, fmt.Errorf("bounds %d out of step with waypoints %d", len(s.Bounds), len(s.Waypoints)))
	}
	return errors.Join(errs...)
}
