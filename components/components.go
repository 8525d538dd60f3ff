// Package components defines value types shared by the engine packages and
// the ECS components used for path request tracking.
package components

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// UnitState is the coarse movement state of an agent.
type UnitState uint8

const (
	UnitIdle UnitState = iota // Stationary, ignored by separation
	UnitMove                  // Following a path or waiting for one
)

func (s UnitState) String() string {
	switch s {
	case UnitIdle:
		return "idle"
	case UnitMove:
		return "move"
	default:
		return fmt.Sprintf("UnitState(%d)", uint8(s))
	}
}

// AnimationID is the presentation animation index exported in snapshots.
type AnimationID int32

const (
	AnimIdle AnimationID = 0
	AnimMove AnimationID = 1
)

// Animation returns the animation that accompanies a state.
// State and animation always change together.
func (s UnitState) Animation() AnimationID {
	if s == UnitMove {
		return AnimMove
	}
	return AnimIdle
}

// Handle identifies an agent slot at a specific generation.
// The low 32 bits hold index+1 so the zero value is never valid.
type Handle uint64

// InvalidHandle is returned when a slot cannot be allocated.
const InvalidHandle Handle = 0

// MakeHandle packs a slot index and generation.
func MakeHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(index+1)))
}

// Index returns the slot index, or -1 for InvalidHandle.
func (h Handle) Index() int {
	return int(uint32(h)) - 1
}

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint32 {
	return uint32(h >> 32)
}

// Valid reports whether h could refer to a slot.
func (h Handle) Valid() bool {
	return h != InvalidHandle
}

func (h Handle) String() string {
	if !h.Valid() {
		return "agent(invalid)"
	}
	return fmt.Sprintf("agent(%d#%d)", h.Index(), h.Generation())
}

// PathStatus tracks a move request through its lifetime.
type PathStatus uint8

const (
	PathIdle       PathStatus = iota // No request outstanding
	PathRequested                    // Submitted, not yet dispatched
	PathInProgress                   // In a running batch
	PathReady                        // Result merged into the agent
	PathFailed                       // No route, agent stopped
)

func (s PathStatus) String() string {
	switch s {
	case PathIdle:
		return "idle"
	case PathRequested:
		return "requested"
	case PathInProgress:
		return "in_progress"
	case PathReady:
		return "ready"
	case PathFailed:
		return "failed"
	default:
		return fmt.Sprintf("PathStatus(%d)", uint8(s))
	}
}

// PathTicket is the ECS component attached to every outstanding path request.
type PathTicket struct {
	Agent  Handle
	Seq    uint32 // Agent request sequence at submission; older tickets are superseded
	Status PathStatus
	Issued int64 // Tick the request was submitted on
}

// Destination is the ECS component holding a request's formation slot.
type Destination struct {
	Target r3.Vec
}
