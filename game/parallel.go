package game

import (
	"sync"

	"github.com/pthm-cable/legion/systems"
)

// defaultParallelThreshold is the minimum slot count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const defaultParallelThreshold = 256

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	Neighbors []systems.Neighbor
}

// chunkFunc processes slots [i0, i1) with the calling worker's scratch.
type chunkFunc func(scratch *workerScratch, i0, i1 int)

// workChunk represents a range of slots for a worker to process.
type workChunk struct {
	start, end int
	fn         chunkFunc
}

// workerPool runs data-parallel passes on persistent goroutines.
// run blocks until every chunk is done, so each call is a join point.
// It is driven from the tick goroutine only.
type workerPool struct {
	scratches  []workerScratch
	numWorkers int
	threshold  int

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newWorkerPool(numWorkers, threshold int) *workerPool {
	numWorkers = max(1, numWorkers)
	if threshold <= 0 {
		threshold = defaultParallelThreshold
	}
	scratches := make([]workerScratch, numWorkers)
	for i := range scratches {
		scratches[i].Neighbors = make([]systems.Neighbor, 0, systems.MaxQueryResults)
	}
	return &workerPool{
		numWorkers: numWorkers,
		threshold:  threshold,
		scratches:  scratches,
	}
}

// start launches persistent worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *workerPool) worker(workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(scratch, chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// run applies fn to [0, n), split into one chunk per worker. Small inputs
// run inline on the caller with the first worker's scratch.
func (p *workerPool) run(n int, fn chunkFunc) {
	if n == 0 {
		return
	}
	if n < p.threshold || p.numWorkers == 1 {
		fn(&p.scratches[0], 0, n)
		return
	}
	if !p.running {
		p.start()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end, fn: fn}
		chunksDispatched++
	}

	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}
