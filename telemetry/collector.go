package telemetry

import (
	"github.com/pthm-cable/legion/systems"
)

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int64
	dt                  float64

	windowStartTick int64

	// Event counters for the current window
	spawned      int
	despawned    int
	moveCommands int
	requests     int
	skipped      int
	superseded   int
	arrivals     int

	batches   int
	paths     int
	failed    int
	latencyMS []float64
	expanded  []float64
	waypoints []float64

	tripSec  []float64
	waitSec  []float64
	reissued int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int64(1)
	if dt > 0 {
		ticksPerWindow = max(1, int64(windowDurationSec/dt))
	}
	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordSpawn records n spawned agents.
func (c *Collector) RecordSpawn(n int) { c.spawned += n }

// RecordDespawn records a despawned agent.
func (c *Collector) RecordDespawn() { c.despawned++ }

// RecordMoveCommand records one group move and how many agents it requested or skipped.
func (c *Collector) RecordMoveCommand(requested, skipped int) {
	c.moveCommands++
	c.requests += requested
	c.skipped += skipped
}

// RecordSuperseded records completed requests dropped because a newer one replaced them.
func (c *Collector) RecordSuperseded(n int) { c.superseded += n }

// RecordArrivals records agents that reached the end of their path.
func (c *Collector) RecordArrivals(n int) { c.arrivals += n }

// RecordBatch records a published path batch.
func (c *Collector) RecordBatch(b systems.BatchStats) {
	c.batches++
	c.paths += b.Size
	c.failed += b.Failed
	c.latencyMS = append(c.latencyMS, float64(b.Latency.Microseconds())/1000)
	if b.Size > 0 {
		c.expanded = append(c.expanded, float64(b.Expanded)/float64(b.Size))
	}
	c.waypoints = append(c.waypoints, b.PathLens...)
}

// RecordTrip records a finished trip that took ticks from command to arrival.
func (c *Collector) RecordTrip(trip *TripStats, ticks int64) {
	c.tripSec = append(c.tripSec, float64(ticks)*c.dt)
	if trip.PathTick > 0 {
		c.waitSec = append(c.waitSec, float64(trip.PathTick-trip.StartTick)*c.dt)
	}
	c.reissued += trip.Reissued
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// agents and moving are the population counts at currentTick.
func (c *Collector) Flush(currentTick int64, agents, moving int) WindowStats {
	latency := Summarize(c.latencyMS)
	wps := Summarize(c.waypoints)
	trips := Summarize(c.tripSec)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Agents:  agents,
		Moving:  moving,
		Spawned: c.spawned,
		Despawn: c.despawned,

		MoveCommands: c.moveCommands,
		Requests:     c.requests,
		Skipped:      c.skipped,
		Superseded:   c.superseded,
		Arrivals:     c.arrivals,

		Batches:      c.batches,
		Paths:        c.paths,
		Failed:       c.failed,
		FailureRatio: ratio(float64(c.failed), float64(c.paths)),

		LatencyMeanMS: latency.Mean,
		LatencyStdMS:  latency.Std,
		LatencyP95MS:  latency.P95,
		ExpandedMean:  meanOf(c.expanded),
		WaypointsMean: wps.Mean,
		WaypointsP50:  wps.P50,
		WaypointsP90:  wps.P90,

		Trips:        len(c.tripSec),
		TripMeanSec:  trips.Mean,
		TripP90Sec:   trips.P90,
		PathWaitMean: meanOf(c.waitSec),
		Reissued:     c.reissued,
	}

	c.windowStartTick = currentTick
	c.spawned, c.despawned = 0, 0
	c.moveCommands, c.requests, c.skipped = 0, 0, 0
	c.superseded, c.arrivals = 0, 0
	c.batches, c.paths, c.failed = 0, 0, 0
	c.latencyMS = c.latencyMS[:0]
	c.expanded = c.expanded[:0]
	c.waypoints = c.waypoints[:0]
	c.tripSec = c.tripSec[:0]
	c.waitSec = c.waitSec[:0]
	c.reissued = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int64 {
	return c.windowDurationTicks
}
