package game

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
	"github.com/pthm-cable/legion/config"
	"github.com/pthm-cable/legion/systems"
	"github.com/pthm-cable/legion/telemetry"
)

const testDT = 1.0 / 60

// openGrid returns a w x h unit-cell grid whose cell (x, y) has centre (x+0.5, y+0.5).
func openGrid(w, h int) *systems.NavGrid {
	return systems.NewNavGrid(w, h, 1, r3.Vec{X: float64(w) / 2, Z: float64(h) / 2})
}

func cellPos(x, y int) r3.Vec {
	return r3.Vec{X: float64(x) + 0.5, Z: float64(y) + 0.5}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Agents.MaxAgents = 64
	cfg.Telemetry.StatsWindow = 1
	cfg.Sim.ValidateEvery = 1
	return cfg
}

func newTestSim(t *testing.T, cfg *config.Config, grid *systems.NavGrid) *Simulation {
	t.Helper()
	s := New(cfg, grid, nil)
	t.Cleanup(s.Close)
	return s
}

func flatDist(a, b r3.Vec) float64 {
	return math.Hypot(a.X-b.X, a.Z-b.Z)
}

func TestMoveCommandFormation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Formation.Spacing = 4 // Wider than the separation radius
	s := newTestSim(t, cfg, openGrid(40, 40))

	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			s.Spawn(cellPos(2+4*x, 2+4*y))
		}
	}
	if n := s.SelectInBounds(r3.Vec{X: 0, Z: 0}, r3.Vec{X: 12, Z: 12}); n != 9 {
		t.Fatalf("selected %d agents, want 9", n)
	}

	res := s.MoveSelected(cellPos(25, 25))
	if res.Requested != 9 || res.Skipped != 0 {
		t.Fatalf("move result = %+v, want 9 requested", res)
	}
	for _, v := range s.Snapshot(nil) {
		if v.Animation != components.AnimMove {
			t.Fatalf("agent %v animation %d right after the command, want move", v.Handle, v.Animation)
		}
	}

	if ticks := s.Settle(testDT, 3000); ticks == 3000 {
		t.Fatalf("agents did not settle; %d still moving", s.Moving())
	}
	if err := s.Agents().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	slots := systems.FormationSlots(nil, s.Grid(), cellPos(25, 25), 9, 4)
	for k, v := range s.Snapshot(nil) {
		if !v.Alive || v.Animation != components.AnimIdle {
			t.Errorf("agent %d not idle after settling: %+v", k, v)
			continue
		}
		if d := flatDist(v.Position, slots[k].Pos); d > 1.5 {
			t.Errorf("agent %d at %v, %.2f from its slot %v", k, v.Position, d, slots[k].Pos)
		}
	}
}

func TestMoveCommandSkips(t *testing.T) {
	cfg := testConfig(t)
	grid := openGrid(20, 20)
	grid.SetCell(15, 15, systems.Cell{Walkable: false})
	s := newTestSim(t, cfg, grid)

	h := s.Spawn(cellPos(5, 5))

	tests := []struct {
		name   string
		target r3.Vec
	}{
		{"unwalkable", cellPos(15, 15)},
		{"off grid", r3.Vec{X: 50, Z: 5}},
		{"own cell", cellPos(5, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.SubmitMoveCommand([]components.Handle{h}, tt.target)
			if res.Requested != 0 || res.Skipped != 1 {
				t.Errorf("result = %+v, want one skipped", res)
			}
		})
	}
	if s.Moving() != 0 {
		t.Error("skipped agent switched to move")
	}

	// A repeat command to the same slot is not re-requested.
	if res := s.SubmitMoveCommand([]components.Handle{h}, cellPos(10, 5)); res.Requested != 1 {
		t.Fatalf("first command = %+v", res)
	}
	if res := s.SubmitMoveCommand([]components.Handle{h}, cellPos(10, 5)); res.Requested != 0 {
		t.Errorf("repeat command = %+v, want skipped", res)
	}
}

func TestFailedPathGoesIdle(t *testing.T) {
	cfg := testConfig(t)
	grid := openGrid(20, 20)
	for y := 0; y < 20; y++ {
		grid.SetCell(10, y, systems.Cell{Walkable: false})
	}
	s := newTestSim(t, cfg, grid)

	start := cellPos(3, 3)
	h := s.Spawn(start)
	if res := s.SubmitMoveCommand([]components.Handle{h}, cellPos(15, 3)); res.Requested != 1 {
		t.Fatalf("move result = %+v", res)
	}

	s.Settle(testDT, 1000)

	i, ok := s.Agents().Resolve(h)
	if !ok {
		t.Fatal("agent lost")
	}
	a := s.Agents()
	if a.State[i] != components.UnitIdle || a.Anim[i] != components.AnimIdle {
		t.Errorf("state after failed path = %v/%d, want idle", a.State[i], a.Anim[i])
	}
	if a.Position[i] != start {
		t.Errorf("agent moved to %v without a path", a.Position[i])
	}
	if a.Target[i] != a.Position[i] {
		t.Errorf("target %v not reset to position %v", a.Target[i], a.Position[i])
	}
}

func TestSupersededRequestDropped(t *testing.T) {
	cfg := testConfig(t)
	s := newTestSim(t, cfg, openGrid(30, 30))
	h := s.Spawn(cellPos(15, 15))

	s.SubmitMoveCommand([]components.Handle{h}, cellPos(2, 2))
	s.SubmitMoveCommand([]components.Handle{h}, cellPos(27, 15))
	if got := s.tracker.outstanding(); got != 2 {
		t.Fatalf("outstanding tickets = %d, want 2", got)
	}

	s.Pipeline().Update()
	s.Pipeline().Wait()
	merged := s.tracker.merge(s.Agents(), s.Tick())
	if merged.Superseded != 1 || merged.Ready != 1 {
		t.Fatalf("merge = %+v, want one superseded and one ready", merged)
	}
	if s.tracker.outstanding() != 0 {
		t.Error("merged tickets not removed")
	}

	s.Settle(testDT, 2000)
	i, _ := s.Agents().Resolve(h)
	if d := flatDist(s.Agents().Position[i], cellPos(27, 15)); d > 1 {
		t.Errorf("agent ended %.2f from the latest target", d)
	}
}

func TestDespawnWithOutstandingRequest(t *testing.T) {
	cfg := testConfig(t)
	s := newTestSim(t, cfg, openGrid(20, 20))
	h := s.Spawn(cellPos(1, 1))
	s.SubmitMoveCommand([]components.Handle{h}, cellPos(18, 18))

	if !s.Despawn(h) {
		t.Fatal("despawn failed")
	}
	s.Pipeline().Update()
	s.Pipeline().Wait()
	merged := s.tracker.merge(s.Agents(), s.Tick())
	if merged.Stale != 1 {
		t.Errorf("merge = %+v, want one stale", merged)
	}
	if s.Agents().Count() != 0 {
		t.Errorf("count = %d, want 0", s.Agents().Count())
	}
	if n := s.SetSelection([]components.Handle{h}); n != 0 {
		t.Errorf("selected %d stale handles", n)
	}
}

func TestIdleAgentsHold(t *testing.T) {
	cfg := testConfig(t)
	s := newTestSim(t, cfg, openGrid(20, 20))

	// Packed well inside the separation radius.
	var want []r3.Vec
	for i := 0; i < 5; i++ {
		p := r3.Vec{X: 10 + 0.3*float64(i), Z: 10}
		s.Spawn(p)
		want = append(want, p)
	}
	for range 120 {
		s.Step(testDT)
	}
	for i, v := range s.Snapshot(nil) {
		if v.Position != want[i] {
			t.Errorf("idle agent %d moved from %v to %v", i, want[i], v.Position)
		}
	}
}

func TestSnapshotMarksFreeSlots(t *testing.T) {
	cfg := testConfig(t)
	s := newTestSim(t, cfg, openGrid(10, 10))
	a := s.Spawn(cellPos(1, 1))
	b := s.Spawn(cellPos(2, 2))
	s.Despawn(a)

	views := s.Snapshot(nil)
	if len(views) != 2 {
		t.Fatalf("snapshot has %d views, want 2", len(views))
	}
	if views[0].Alive || views[0].Handle.Valid() {
		t.Errorf("free slot view = %+v", views[0])
	}
	if !views[1].Alive || views[1].Handle != b {
		t.Errorf("live view = %+v, want handle %v", views[1], b)
	}
}

func TestParallelPassesMatchSerial(t *testing.T) {
	run := func(workers, threshold int) []AgentView {
		cfg := testConfig(t)
		cfg.Workers.Count = workers
		cfg.Workers.ParallelThreshold = threshold
		cfg.Derived.PassWorkers = workers
		s := newTestSim(t, cfg, openGrid(40, 40))

		for i := 0; i < 40; i++ {
			s.Spawn(r3.Vec{X: 5 + float64(i%8)*0.9, Z: 5 + float64(i/8)*0.9})
		}
		s.SelectInBounds(r3.Vec{}, r3.Vec{X: 40, Z: 40})
		s.MoveSelected(cellPos(30, 30))
		s.Pipeline().Update()
		s.Pipeline().Wait()

		for range 90 {
			s.Step(testDT)
		}
		return s.Snapshot(nil)
	}

	serial := run(1, 1000)
	parallel := run(4, 1)
	for i := range serial {
		if serial[i].Position != parallel[i].Position || serial[i].Rotation != parallel[i].Rotation {
			t.Fatalf("agent %d diverged: serial %v, parallel %v", i, serial[i].Position, parallel[i].Position)
		}
	}
}

func TestSaveSnapshot(t *testing.T) {
	cfg := testConfig(t)
	s := newTestSim(t, cfg, openGrid(10, 10))
	s.Spawn(cellPos(3, 4))
	s.Spawn(cellPos(5, 6))

	path, err := s.SaveSnapshot(t.TempDir())
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if path == "" {
		t.Error("empty snapshot path")
	}
}

// trackerEntities counts every entity alive in the tracker's world,
// whatever components it carries.
func trackerEntities(tr *requestTracker) int {
	n := 0
	query := ecs.NewFilter0(tr.world).Query()
	for query.Next() {
		n++
	}
	return n
}

func TestTicketEntitiesReleased(t *testing.T) {
	cfg := testConfig(t)
	s := newTestSim(t, cfg, openGrid(20, 20))
	h := s.Spawn(cellPos(5, 5))
	targets := []r3.Vec{cellPos(15, 15), cellPos(2, 15)}

	for round := 0; round < 50; round++ {
		res := s.SubmitMoveCommand([]components.Handle{h}, targets[round%2])
		if res.Requested != 1 {
			t.Fatalf("round %d: move result = %+v, want 1 requested", round, res)
		}
		s.Pipeline().Update()
		s.Pipeline().Wait()
		if merged := s.tracker.merge(s.Agents(), s.Tick()); merged.Ready != 1 {
			t.Fatalf("round %d: merge = %+v, want 1 ready", round, merged)
		}
	}

	if got := s.tracker.outstanding(); got != 0 {
		t.Errorf("outstanding tickets = %d, want 0", got)
	}
	if got := trackerEntities(s.tracker); got != 0 {
		t.Errorf("tracker world holds %d entities after merging, want 0", got)
	}
}

func TestTicketStatusCounts(t *testing.T) {
	cfg := testConfig(t)
	s := newTestSim(t, cfg, openGrid(20, 20))
	a := s.Spawn(cellPos(2, 2))
	b := s.Spawn(cellPos(2, 10))

	s.SubmitMoveCommand([]components.Handle{a}, cellPos(15, 15))
	if c := s.tracker.statusCounts(); c[components.PathRequested] != 1 || len(c) != 1 {
		t.Fatalf("after submit: counts = %v, want 1 requested", c)
	}

	s.Pipeline().Update()
	// Submitted while a batch runs, so it waits for the next one.
	s.SubmitMoveCommand([]components.Handle{b}, cellPos(15, 5))
	if merged := s.tracker.merge(s.Agents(), s.Tick()); merged != (mergeStats{}) {
		t.Fatalf("merge during the batch = %+v, want nothing merged", merged)
	}
	c := s.tracker.statusCounts()
	if c[components.PathInProgress] != 1 || c[components.PathRequested] != 1 {
		t.Fatalf("during the batch: counts = %v, want 1 in progress and 1 requested", c)
	}

	s.Pipeline().Wait()
	if merged := s.tracker.merge(s.Agents(), s.Tick()); merged.Ready != 1 {
		t.Fatalf("merge = %+v, want 1 ready", merged)
	}
	c = s.tracker.statusCounts()
	if c[components.PathRequested] != 1 || c[components.PathInProgress] != 0 {
		t.Errorf("after merge: counts = %v, want only b's request", c)
	}
}

func TestStepIndexesLiveAgents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.Count = 4
	cfg.Workers.ParallelThreshold = 1
	cfg.Derived.PassWorkers = 4
	s := newTestSim(t, cfg, openGrid(40, 40))

	var handles []components.Handle
	for i := 0; i < 40; i++ {
		handles = append(handles, s.Spawn(r3.Vec{X: 2 + float64(i%8)*4, Z: 2 + float64(i/8)*4}))
	}
	for i := 0; i < len(handles); i += 6 {
		s.Despawn(handles[i])
	}
	live := s.agents.Count()

	s.Step(testDT)

	if got := s.hash.Count(); got != live {
		t.Fatalf("hash holds %d agents, want %d live", got, live)
	}
	var found []systems.Neighbor
	for i := 0; i < s.agents.HighWater(); i++ {
		found = s.hash.QueryRadiusInto(found[:0], s.agents.Position[i], 0.01, -1)
		hit := false
		for _, nb := range found {
			hit = hit || nb.Index == i
		}
		if hit != s.agents.AliveAt(i) {
			t.Errorf("slot %d: indexed %v, alive %v", i, hit, s.agents.AliveAt(i))
		}
	}
}

func TestCloseFlushesInFlightBatch(t *testing.T) {
	dir := t.TempDir()
	output, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	s := New(testConfig(t), openGrid(20, 20), nil)
	s.SetOutput(output)

	s.Spawn(cellPos(2, 2))
	s.SelectInBounds(r3.Vec{}, r3.Vec{X: 20, Z: 20})
	s.MoveSelected(cellPos(15, 15))
	s.Pipeline().Update()
	if !s.Pipeline().Running() {
		t.Fatal("no batch in flight after Update")
	}

	s.Close()
	if err := output.Close(); err != nil {
		t.Fatalf("output.Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "batches.csv"))
	if err != nil {
		t.Fatalf("reading batches.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("batches.csv has %d lines, want header and one batch:\n%s", len(lines), data)
	}
}
