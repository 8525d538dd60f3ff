// Package systems provides the navigation grid, pathfinding, request
// pipeline and the per-tick steering kernels of the movement engine.
package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Neighbor holds a nearby agent with precomputed spatial data.
type Neighbor struct {
	Index  int
	Delta  r3.Vec  // XZ offset from the query origin to the neighbour
	DistSq float64 // Squared XZ distance (avoid sqrt in hot path)
}

// MaxQueryResults caps the number of neighbours returned by a query.
// This prevents density spikes from causing unbounded work.
const MaxQueryResults = 128

// HashCell mixes integer cell coordinates into a bucket hash.
func HashCell(x, z int) uint32 {
	return uint32(int32(x)*73856093 ^ int32(z)*19349663)
}

// SpatialHash buckets agent indices by hashed XZ cell. It is rebuilt from
// scratch every tick and is read-only between builds.
//
// Building is split so key computation can run across workers:
// Prepare, then ComputeKeys over disjoint ranges, then Place.
type SpatialHash struct {
	cellSize float64
	mask     uint32

	positions []r3.Vec
	skip      func(i int) bool

	keys   []uint32 // Bucket per agent, or noBucket
	cellX  []int32
	cellZ  []int32
	starts []int32 // Bucket offsets into entries, len buckets+1
	fill   []int32
	entry  []int32 // Agent indices grouped by bucket
}

const noBucket = math.MaxUint32

// NewSpatialHash creates a hash with the given cell edge length.
func NewSpatialHash(cellSize float64) *SpatialHash {
	return &SpatialHash{cellSize: cellSize}
}

// CellSize returns the hash cell edge length.
func (h *SpatialHash) CellSize() float64 { return h.cellSize }

// Prepare sizes internal buffers for n agents. skip reports agents to leave
// out (dead slots); it may be nil.
func (h *SpatialHash) Prepare(positions []r3.Vec, skip func(i int) bool) {
	n := len(positions)
	h.positions = positions
	h.skip = skip

	buckets := uint32(64)
	for buckets < uint32(2*n) {
		buckets <<= 1
	}
	h.mask = buckets - 1

	h.keys = resize(h.keys, n)
	h.cellX = resize(h.cellX, n)
	h.cellZ = resize(h.cellZ, n)
	h.starts = resize(h.starts, int(buckets)+1)
	h.fill = resize(h.fill, int(buckets))
}

// ComputeKeys hashes agents [i0, i1). Disjoint ranges may run concurrently.
func (h *SpatialHash) ComputeKeys(i0, i1 int) {
	for i := i0; i < i1; i++ {
		if h.skip != nil && h.skip(i) {
			h.keys[i] = noBucket
			continue
		}
		cx, cz := h.cellOf(h.positions[i])
		h.cellX[i] = int32(cx)
		h.cellZ[i] = int32(cz)
		h.keys[i] = HashCell(cx, cz) & h.mask
	}
}

// Place groups agents by bucket with a counting sort. Single-threaded.
func (h *SpatialHash) Place() {
	clear(h.starts)
	count := 0
	for _, k := range h.keys {
		if k == noBucket {
			continue
		}
		h.starts[k+1]++
		count++
	}
	for b := 1; b < len(h.starts); b++ {
		h.starts[b] += h.starts[b-1]
	}
	copy(h.fill, h.starts[:len(h.fill)])

	h.entry = resize(h.entry, count)
	for i, k := range h.keys {
		if k == noBucket {
			continue
		}
		h.entry[h.fill[k]] = int32(i)
		h.fill[k]++
	}
}

// Build runs Prepare, ComputeKeys and Place on the calling goroutine.
func (h *SpatialHash) Build(positions []r3.Vec, skip func(i int) bool) {
	h.Prepare(positions, skip)
	h.ComputeKeys(0, len(positions))
	h.Place()
}

// Count returns the number of indexed agents.
func (h *SpatialHash) Count() int { return len(h.entry) }

// QueryRadiusInto appends agents within radius of pos (XZ plane) to dst,
// up to MaxQueryResults. exclude is skipped; pass -1 to keep all.
// Reuse dst across calls to avoid allocations.
func (h *SpatialHash) QueryRadiusInto(dst []Neighbor, pos r3.Vec, radius float64, exclude int) []Neighbor {
	if len(h.entry) == 0 {
		return dst
	}
	cx, cz := h.cellOf(pos)
	reach := int(math.Ceil(radius / h.cellSize))
	radiusSq := radius * radius

	for dz := -reach; dz <= reach; dz++ {
		for dx := -reach; dx <= reach; dx++ {
			x, z := cx+dx, cz+dz
			b := HashCell(x, z) & h.mask
			for _, e := range h.entry[h.starts[b]:h.starts[b+1]] {
				i := int(e)
				if i == exclude {
					continue
				}
				// Distinct cells can share a bucket.
				if int(h.cellX[i]) != x || int(h.cellZ[i]) != z {
					continue
				}
				p := h.positions[i]
				d := r3.Vec{X: p.X - pos.X, Z: p.Z - pos.Z}
				distSq := d.X*d.X + d.Z*d.Z
				if distSq > radiusSq {
					continue
				}
				dst = append(dst, Neighbor{Index: i, Delta: d, DistSq: distSq})
				if len(dst) >= MaxQueryResults {
					return dst
				}
			}
		}
	}
	return dst
}

func (h *SpatialHash) cellOf(p r3.Vec) (int, int) {
	return int(math.Floor(p.X / h.cellSize)), int(math.Floor(p.Z / h.cellSize))
}

// resize returns s with length n, reallocating only when capacity is short.
func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}
