package game

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
	"github.com/pthm-cable/legion/systems"
	"github.com/pthm-cable/legion/telemetry"
)

// pathJob links a ticket entity to its in-flight pipeline request.
type pathJob struct {
	Request *systems.PathRequest
}

// mergeStats counts what one merge did.
type mergeStats struct {
	Ready      int
	Failed     int
	Superseded int
	Stale      int
}

// requestTracker keeps one ECS entity per outstanding path request.
// Tickets advance Requested -> InProgress as the pipeline dispatches them and
// are merged into the agent store and removed once their batch is published.
type requestTracker struct {
	world   *ecs.World
	tickets *ecs.Map3[components.PathTicket, components.Destination, pathJob]
	filter  *ecs.Filter3[components.PathTicket, components.Destination, pathJob]
	trips   *telemetry.TripTracker

	done []ecs.Entity
}

func newRequestTracker(trips *telemetry.TripTracker) *requestTracker {
	world := ecs.NewWorld()
	return &requestTracker{
		world:   world,
		trips:   trips,
		tickets: ecs.NewMap3[components.PathTicket, components.Destination, pathJob](world),
		filter:  ecs.NewFilter3[components.PathTicket, components.Destination, pathJob](world),
	}
}

// add records a submitted request for agent h at request sequence seq.
func (t *requestTracker) add(h components.Handle, seq uint32, target r3.Vec, req *systems.PathRequest, tick int64) ecs.Entity {
	ticket := components.PathTicket{Agent: h, Seq: seq, Status: components.PathRequested, Issued: tick}
	dest := components.Destination{Target: target}
	job := pathJob{Request: req}
	return t.tickets.NewEntity(&ticket, &dest, &job)
}

// outstanding counts tickets not yet merged.
func (t *requestTracker) outstanding() int {
	n := 0
	query := t.filter.Query()
	for query.Next() {
		n++
	}
	return n
}

// statusCounts returns the number of outstanding tickets in each state.
func (t *requestTracker) statusCounts() map[components.PathStatus]int {
	counts := make(map[components.PathStatus]int)
	query := t.filter.Query()
	for query.Next() {
		ticket, _, _ := query.Get()
		counts[ticket.Status]++
	}
	return counts
}

// merge applies every published result to the store at tick and removes its
// ticket entity. A ticket whose agent has moved on to a newer request, or
// died, is dropped.
func (t *requestTracker) merge(agents *AgentStore, tick int64) mergeStats {
	var stats mergeStats

	t.done = t.done[:0]
	query := t.filter.Query()
	for query.Next() {
		ticket, _, job := query.Get()
		switch job.Request.Status() {
		case systems.RequestRunning:
			ticket.Status = components.PathInProgress
		case systems.RequestDone:
			if path, err := job.Request.Result(); err != nil || path.Failed {
				ticket.Status = components.PathFailed
			} else {
				ticket.Status = components.PathReady
			}
			t.done = append(t.done, query.Entity())
		}
	}

	// Entities can only be removed once the query is exhausted.
	for _, e := range t.done {
		ticket, dest, job := t.tickets.Get(e)

		i, ok := agents.Resolve(ticket.Agent)
		switch {
		case !ok:
			stats.Stale++
		case agents.Seq[i] != ticket.Seq:
			stats.Superseded++
		case ticket.Status == components.PathFailed:
			agents.ClearPath(i)
			agents.setState(i, components.UnitIdle)
			agents.Target[i] = agents.Position[i]
			t.trips.Remove(uint64(ticket.Agent))
			stats.Failed++
		default:
			path, _ := job.Request.Result()
			agents.AssignPath(i, path)
			agents.Target[i] = dest.Target
			t.trips.RecordPath(uint64(ticket.Agent), tick, path.Len())
			stats.Ready++
		}
		t.world.RemoveEntity(e)
	}
	return stats
}
