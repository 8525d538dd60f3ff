package maps

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/systems"
)

// ImageSampler samples a colour-keyed map image stretched over a world
// rectangle. Image column x runs along world X and row y along world Z.
type ImageSampler struct {
	img    image.Image
	legend *Legend
	origin r3.Vec
	sizeX  float64
	sizeZ  float64
}

// NewImageSampler checks every pixel of img against legend and returns a
// sampler covering sizeX by sizeZ world units centred on origin.
func NewImageSampler(img image.Image, legend *Legend, origin r3.Vec, sizeX, sizeZ float64) (*ImageSampler, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("map image is empty")
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, ok := legend.Lookup(img.At(x, y)); !ok {
				r, g, bl, _ := img.At(x, y).RGBA()
				return nil, fmt.Errorf("%w: pixel (%d,%d) is #%02x%02x%02x",
					ErrUnknownColor, x, y, r>>8, g>>8, bl>>8)
			}
		}
	}
	return &ImageSampler{img: img, legend: legend, origin: origin, sizeX: sizeX, sizeZ: sizeZ}, nil
}

// LoadPNG decodes the PNG at path and wraps it in an ImageSampler.
func LoadPNG(path string, legend *Legend, origin r3.Vec, sizeX, sizeZ float64) (*ImageSampler, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening map: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding map %s: %w", path, err)
	}
	s, err := NewImageSampler(img, legend, origin, sizeX, sizeZ)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	return s, nil
}

// Bounds returns the image size in pixels.
func (s *ImageSampler) Bounds() image.Rectangle { return s.img.Bounds() }

// SampleAt implements systems.GroundSampler. Points outside the map rectangle
// miss the ground.
func (s *ImageSampler) SampleAt(x, z float64) systems.Sample {
	u := (x - (s.origin.X - s.sizeX/2)) / s.sizeX
	v := (z - (s.origin.Z - s.sizeZ/2)) / s.sizeZ
	if u < 0 || u >= 1 || v < 0 || v >= 1 {
		return systems.Sample{}
	}

	b := s.img.Bounds()
	px := b.Min.X + int(u*float64(b.Dx()))
	py := b.Min.Y + int(v*float64(b.Dy()))
	t, ok := s.legend.Lookup(s.img.At(px, py))
	if !ok {
		return systems.Sample{}
	}
	return systems.Sample{
		Hit:        true,
		Height:     s.origin.Y + t.Height,
		Region:     t.Region,
		Obstructed: t.Obstructed,
	}
}
