package systems

import (
	"errors"
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
)

func TestPipelineBatchesAllPending(t *testing.T) {
	g := newOpenGrid(16, 16)
	p := NewPathPipeline(g, PipelineOptions{Workers: 4})

	var batches []BatchStats
	p.OnBatch(func(s BatchStats) { batches = append(batches, s) })

	const n = 25
	reqs := make([]*PathRequest, n)
	for i := range reqs {
		reqs[i] = p.Submit(components.MakeHandle(i, 0), cellPos(0, i%16), cellPos(15, (i*7)%16))
	}
	for i, r := range reqs {
		if r.Status() != RequestPending {
			t.Fatalf("request %d status = %v before dispatch, want pending", i, r.Status())
		}
	}

	p.Update()
	if p.State() != StateRunning && p.State() != StateCollecting {
		t.Fatalf("state after dispatch = %v", p.State())
	}
	for i, r := range reqs {
		if r.IsDone() {
			t.Fatalf("request %d done before its batch was drained", i)
		}
		if _, err := r.Result(); !errors.Is(err, ErrPathNotReady) {
			t.Fatalf("request %d early Result err = %v, want ErrPathNotReady", i, err)
		}
	}

	p.Wait()

	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	if batches[0].Size != n {
		t.Errorf("batch size = %d, want %d", batches[0].Size, n)
	}
	for i, r := range reqs {
		if !r.IsDone() || r.Status() != RequestDone {
			t.Fatalf("request %d not done after Wait", i)
		}
		path, err := r.Result()
		if err != nil {
			t.Fatalf("request %d Result: %v", i, err)
		}
		if path.Failed {
			t.Errorf("request %d failed on an open grid", i)
		}
	}
	if p.State() != StateCollecting {
		t.Errorf("state after drain = %v, want collecting", p.State())
	}
}

func TestPipelineNoOverlappingBatches(t *testing.T) {
	g := newOpenGrid(64, 64)
	p := NewPathPipeline(g, PipelineOptions{Workers: 2})

	var sizes []int
	p.OnBatch(func(s BatchStats) { sizes = append(sizes, s.Size) })

	first := p.Submit(components.MakeHandle(0, 0), cellPos(0, 0), cellPos(63, 63))
	p.Update()

	// Submitted while the first batch may still be running.
	second := p.Submit(components.MakeHandle(1, 0), cellPos(0, 63), cellPos(63, 0))
	if second.batch == first.batch {
		t.Fatal("request submitted after dispatch joined the running batch")
	}

	p.Wait()
	if !first.IsDone() {
		t.Fatal("first request not done after Wait")
	}
	if second.IsDone() {
		t.Fatal("second request done without its own batch")
	}

	p.Update() // dispatch the second batch
	p.Wait()
	if !second.IsDone() {
		t.Fatal("second request not done after its batch")
	}
	if len(sizes) != 2 || sizes[0] != 1 || sizes[1] != 1 {
		t.Errorf("batch sizes = %v, want [1 1]", sizes)
	}
}

func TestPipelineFailedAndDroppedStart(t *testing.T) {
	g := newOpenGrid(10, 10)
	for y := 0; y < 10; y++ {
		g.SetCell(5, y, Cell{Walkable: false})
	}
	p := NewPathPipeline(g, PipelineOptions{Workers: 1})

	blocked := p.Submit(components.MakeHandle(0, 0), cellPos(1, 1), cellPos(8, 8))
	straight := p.Submit(components.MakeHandle(1, 0), cellPos(0, 0), cellPos(0, 4))
	same := p.Submit(components.MakeHandle(2, 0), cellPos(2, 2), cellPos(2, 2))
	p.Update()
	p.Wait()

	if path, _ := blocked.Result(); !path.Failed {
		t.Error("blocked request should fail")
	}

	path, _ := straight.Result()
	if path.Failed || path.Len() != 1 {
		t.Fatalf("straight path = %+v, want one waypoint", path)
	}
	if path.Waypoints[0] != g.CellToWorld(0, 4) {
		t.Errorf("straight waypoint = %v, want goal %v", path.Waypoints[0], g.CellToWorld(0, 4))
	}

	// A request on its own cell keeps that cell as the only waypoint.
	path, _ = same.Result()
	if path.Failed || path.Len() != 1 {
		t.Errorf("same-cell path = %+v, want one waypoint", path)
	}
}

func TestPipelineSwapGridBetweenBatches(t *testing.T) {
	old := newOpenGrid(8, 8)
	p := NewPathPipeline(old, PipelineOptions{Workers: 1})

	req := p.Submit(components.MakeHandle(0, 0), cellPos(0, 0), cellPos(7, 7))
	p.Update()

	replacement := newOpenGrid(8, 8)
	for y := 0; y < 8; y++ {
		replacement.SetCell(4, y, Cell{Walkable: false})
	}
	p.SwapGrid(replacement)

	// The running batch still searches the grid it started with.
	p.Wait()
	if path, _ := req.Result(); path.Failed {
		t.Fatal("in-flight request should use the original grid")
	}
	if p.Grid() != old {
		t.Fatal("grid swapped while a batch was draining")
	}

	p.Update()
	if p.Grid() != replacement {
		t.Fatal("staged grid not installed between batches")
	}
	if !old.Disposed() {
		t.Error("previous grid not disposed after swap")
	}

	blocked := p.Submit(components.MakeHandle(1, 0), cellPos(0, 0), cellPos(7, 7))
	p.Update()
	p.Wait()
	if path, _ := blocked.Result(); !path.Failed {
		t.Error("request after swap should see the new wall")
	}
}

func TestPipelineConcurrentSubmit(t *testing.T) {
	g := newOpenGrid(12, 12)
	p := NewPathPipeline(g, PipelineOptions{})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				p.Submit(components.MakeHandle(w*10+i, 0), r3.Vec{X: 0.5, Z: 0.5}, cellPos(11, i))
			}
		}(w)
	}
	wg.Wait()

	if p.Pending() != 80 {
		t.Fatalf("pending = %d, want 80", p.Pending())
	}

	var size int
	p.OnBatch(func(s BatchStats) { size = s.Size })
	p.Update()
	p.Wait()
	if size != 80 {
		t.Errorf("batch size = %d, want 80", size)
	}
	p.Close()
	if !g.Disposed() {
		t.Error("Close should dispose the grid")
	}
}
