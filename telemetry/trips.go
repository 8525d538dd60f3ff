package telemetry

// TripStats tracks one agent's trip from move command to arrival.
type TripStats struct {
	StartTick int64 // Tick the move command was issued
	PathTick  int64 // Tick the first path was merged, 0 while waiting
	Reissued  int   // Commands that replaced this trip's destination before arrival
	Waypoints int   // Waypoints in the merged path
}

// TripTracker manages per-agent trip statistics, keyed by agent handle.
type TripTracker struct {
	trips map[uint64]*TripStats
}

// NewTripTracker creates a new trip tracker.
func NewTripTracker() *TripTracker {
	return &TripTracker{
		trips: make(map[uint64]*TripStats),
	}
}

// Start begins a trip for an agent at tick. A trip already under way keeps
// its start tick and counts the new command as a reissue.
func (tt *TripTracker) Start(agent uint64, tick int64) {
	if s := tt.trips[agent]; s != nil {
		s.Reissued++
		s.PathTick = 0
		return
	}
	tt.trips[agent] = &TripStats{StartTick: tick}
}

// Get returns the trip of an agent, or nil if it has none.
func (tt *TripTracker) Get(agent uint64) *TripStats {
	return tt.trips[agent]
}

// RecordPath notes that the agent's path arrived at tick.
func (tt *TripTracker) RecordPath(agent uint64, tick int64, waypoints int) {
	if s := tt.trips[agent]; s != nil {
		s.PathTick = tick
		s.Waypoints = waypoints
	}
}

// Finish ends the agent's trip and returns it with its duration in ticks.
// It returns nil when the agent had no trip.
func (tt *TripTracker) Finish(agent uint64, tick int64) (*TripStats, int64) {
	s := tt.trips[agent]
	if s == nil {
		return nil, 0
	}
	delete(tt.trips, agent)
	return s, tick - s.StartTick
}

// Remove drops a trip without finishing it (failed path or despawn).
func (tt *TripTracker) Remove(agent uint64) *TripStats {
	s := tt.trips[agent]
	delete(tt.trips, agent)
	return s
}

// Count returns the number of trips under way.
func (tt *TripTracker) Count() int {
	return len(tt.trips)
}
