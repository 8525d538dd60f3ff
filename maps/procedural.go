package maps

import (
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/legion/systems"
)

// NoiseOptions tunes procedural terrain.
type NoiseOptions struct {
	Seed           int64
	Scale          float64 // Base frequency in cycles per world unit
	Octaves        int
	WallThreshold  float64 // Values above this are obstacles
	RoughThreshold float64 // Values above this are rough terrain (region 1)
	HeightScale    float64 // Ground height at noise value 1
	BaseHeight     float64 // World-space height at noise value 0
}

// NoiseSampler generates terrain from fractal simplex noise.
type NoiseSampler struct {
	noise opensimplex.Noise
	opts  NoiseOptions
}

// NewNoiseSampler creates a sampler. Octaves below 1 are treated as 1.
func NewNoiseSampler(opts NoiseOptions) *NoiseSampler {
	if opts.Octaves < 1 {
		opts.Octaves = 1
	}
	return &NoiseSampler{
		noise: opensimplex.NewNormalized(opts.Seed),
		opts:  opts,
	}
}

// Value returns the fractal noise value at (x, z), in [0, 1).
func (s *NoiseSampler) Value(x, z float64) float64 {
	sum, norm := 0.0, 0.0
	amp, freq := 0.5, s.opts.Scale
	for o := 0; o < s.opts.Octaves; o++ {
		sum += amp * s.noise.Eval2(x*freq, z*freq)
		norm += amp
		freq *= 2
		amp *= 0.5
	}
	return sum / norm
}

// SampleAt implements systems.GroundSampler. Every point hits the ground.
func (s *NoiseSampler) SampleAt(x, z float64) systems.Sample {
	v := s.Value(x, z)
	sample := systems.Sample{
		Hit:    true,
		Height: s.opts.BaseHeight + v*s.opts.HeightScale,
	}
	switch {
	case v > s.opts.WallThreshold:
		sample.Obstructed = true
	case v > s.opts.RoughThreshold:
		sample.Region = 1
	}
	return sample
}

// Flat returns a sampler for level open ground at height.
func Flat(height float64) systems.GroundSampler {
	return systems.GroundSamplerFunc(func(x, z float64) systems.Sample {
		return systems.Sample{Hit: true, Height: height}
	})
}
