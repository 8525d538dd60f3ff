package game

import (
	"math"

	"github.com/pthm-cable/legion/systems"
	"github.com/pthm-cable/legion/telemetry"
)

// SetOutput enables CSV output. om may be nil to disable it.
func (s *Simulation) SetOutput(om *telemetry.OutputManager) { s.output = om }

// SetLogStats enables logging of each stats window.
func (s *Simulation) SetLogStats(on bool) { s.logStats = on }

// recordBatch is the pipeline's batch hook; it runs on the tick goroutine.
func (s *Simulation) recordBatch(b systems.BatchStats) {
	s.collector.RecordBatch(b)
	if err := s.output.WriteBatch(telemetry.NewBatchRecord(s.tick, b)); err != nil {
		s.logger.Error("failed to write batch", "error", err)
	}
}

// flushTelemetry checks if the stats window should be flushed.
func (s *Simulation) flushTelemetry() {
	if !s.collector.ShouldFlush(s.tick) {
		return
	}

	stats := s.collector.Flush(s.tick, s.agents.Count(), s.Moving())
	perfStats := s.perf.Stats()

	if s.logStats {
		stats.LogStats()
		s.logger.Info("perf", "stats", perfStats)
	}
	for _, bm := range s.bookmarks.Check(stats) {
		bm.LogBookmark()
	}

	if err := s.output.WriteWindow(stats); err != nil {
		s.logger.Error("failed to write movement stats", "error", err)
	}
	if err := s.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		s.logger.Error("failed to write perf", "error", err)
	}
}

// SaveSnapshot writes the live agents' poses to dir as JSON.
func (s *Simulation) SaveSnapshot(dir string) (string, error) {
	grid := s.Grid()
	snap := &telemetry.Snapshot{
		Version:    telemetry.SnapshotVersion,
		Seed:       s.cfg.Agents.Seed,
		Tick:       s.tick,
		GridWidth:  grid.Width(),
		GridHeight: grid.Height(),
		CellSize:   grid.CellSize(),
	}

	st := s.agents
	for i := 0; i < st.HighWater(); i++ {
		if !st.AliveAt(i) {
			continue
		}
		p := st.Position[i]
		fwd := systems.Forward(st.Rotation[i])
		snap.Agents = append(snap.Agents, telemetry.AgentState{
			Handle:    uint64(st.Handle(i)),
			X:         p.X,
			Y:         p.Y,
			Z:         p.Z,
			Yaw:       math.Atan2(fwd.X, fwd.Z),
			Animation: uint8(st.Anim[i]),
			Selected:  st.Selected[i],
		})
	}
	return telemetry.SaveSnapshot(snap, dir)
}
