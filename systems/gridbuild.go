package systems

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidGridOptions is returned by BuildNavGrid for unusable options.
var ErrInvalidGridOptions = errors.New("invalid grid options")

// Sample is the result of probing the ground below a cell centre.
type Sample struct {
	Hit        bool    // Ground found below the sample point
	Height     float64 // World-space ground height
	Region     int     // Terrain region index in [0, 31]
	Obstructed bool    // An obstacle occupies the cell
}

// GroundSampler samples the world straight down at (x, z).
// Implementations must be safe for use from the building goroutine only.
type GroundSampler interface {
	SampleAt(x, z float64) Sample
}

// GroundSamplerFunc adapts a function to GroundSampler.
type GroundSamplerFunc func(x, z float64) Sample

// SampleAt calls f(x, z).
func (f GroundSamplerFunc) SampleAt(x, z float64) Sample { return f(x, z) }

// BuildOptions configures grid construction.
type BuildOptions struct {
	Origin                r3.Vec
	SizeX, SizeZ          float64
	CellRadius            float64
	WalkableRegions       uint32        // Bitmask of walkable region indices
	RegionCosts           map[int]int32 // Entry penalty per region
	ObstacleProximityCost int32         // Added to unwalkable cells before blurring
	BlurSize              int           // Box blur half-width; 0 disables blurring
}

// BuildNavGrid samples the world once per cell and produces an immutable grid.
func BuildNavGrid(opts BuildOptions, sampler GroundSampler) (*NavGrid, error) {
	if opts.CellRadius <= 0 || math.IsNaN(opts.CellRadius) {
		return nil, fmt.Errorf("%w: cell radius %v", ErrInvalidGridOptions, opts.CellRadius)
	}
	if opts.SizeX <= 0 || opts.SizeZ <= 0 {
		return nil, fmt.Errorf("%w: size %vx%v", ErrInvalidGridOptions, opts.SizeX, opts.SizeZ)
	}
	if opts.BlurSize < 0 {
		return nil, fmt.Errorf("%w: blur size %d", ErrInvalidGridOptions, opts.BlurSize)
	}
	if sampler == nil {
		return nil, fmt.Errorf("%w: nil sampler", ErrInvalidGridOptions)
	}

	cellSize := 2 * opts.CellRadius
	w := cellsFor(opts.SizeX, cellSize)
	h := cellsFor(opts.SizeZ, cellSize)

	g := &NavGrid{
		cells:    make([]Cell, w*h),
		cellSize: cellSize,
		width:    w,
		height:   h,
		origin:   opts.Origin,
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := g.cellCenterXZ(x, y)
			s := sampler.SampleAt(center.X, center.Z)

			var c Cell
			if s.Hit {
				c.Height = s.Height - opts.Origin.Y
				c.Cost = opts.RegionCosts[s.Region]
				c.Walkable = s.Region >= 0 && s.Region < 32 &&
					opts.WalkableRegions&(1<<uint(s.Region)) != 0
			}
			if s.Obstructed {
				c.Walkable = false
			}
			if !c.Walkable {
				c.Cost += opts.ObstacleProximityCost
			}
			if c.Cost < 0 {
				c.Cost = 0
			}
			g.cells[y*w+x] = c
		}
	}

	BlurCosts(g, opts.BlurSize)
	return g, nil
}

// BlurCosts applies a separable (2*size+1)^2 box blur to the cost channel.
// Samples past the edge clamp to the border cell. Results are rounded.
func BlurCosts(g *NavGrid, size int) {
	if size <= 0 || len(g.cells) == 0 {
		return
	}
	w, h := g.width, g.height
	kernel := 2*size + 1

	horizontal := make([]int64, w*h)
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			var sum int64
			for o := -size; o <= size; o++ {
				sx := clampInt(x+o, 0, w-1)
				sum += int64(g.cells[row+sx].Cost)
			}
			horizontal[row+x] = sum
		}
	}

	area := float64(kernel * kernel)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum int64
			for o := -size; o <= size; o++ {
				sy := clampInt(y+o, 0, h-1)
				sum += horizontal[sy*w+x]
			}
			g.cells[y*w+x].Cost = int32(math.Round(float64(sum) / area))
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
