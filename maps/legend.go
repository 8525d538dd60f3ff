// Package maps provides ground samplers for building navigation grids:
// colour-keyed PNG maps, procedural terrain, and a watcher for hot reloads.
package maps

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"sort"

	"golang.org/x/image/colornames"
	"gopkg.in/yaml.v3"
)

// ErrUnknownColor is returned for colour names or pixels the legend does not cover.
var ErrUnknownColor = errors.New("unknown map colour")

// Terrain is what one legend colour stands for.
type Terrain struct {
	Region     int     `yaml:"region"`
	Height     float64 `yaml:"height"` // Relative to the grid origin
	Obstructed bool    `yaml:"obstructed"`
}

// Legend maps pixel colours to terrain.
type Legend struct {
	byColor map[color.RGBA]Terrain
	names   map[color.RGBA]string
}

// DefaultLegend returns the built-in legend:
//
//	white      open ground (region 0)
//	peru       rough terrain (region 1)
//	steelblue  shallow water (region 2, lowered)
//	navy       deep water (region 3)
//	black      obstacle
func DefaultLegend() *Legend {
	l, err := NewLegend(map[string]Terrain{
		"white":     {Region: 0},
		"peru":      {Region: 1, Height: 0.5},
		"steelblue": {Region: 2, Height: -0.5},
		"navy":      {Region: 3, Height: -1},
		"black":     {Obstructed: true},
	})
	if err != nil {
		panic(fmt.Sprintf("maps: default legend: %v", err))
	}
	return l
}

// NewLegend builds a legend from SVG colour names.
func NewLegend(entries map[string]Terrain) (*Legend, error) {
	l := &Legend{
		byColor: make(map[color.RGBA]Terrain, len(entries)),
		names:   make(map[color.RGBA]string, len(entries)),
	}
	for name, t := range entries {
		c, ok := colornames.Map[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColor, name)
		}
		if t.Region < 0 || t.Region > 31 {
			return nil, fmt.Errorf("legend colour %q: region %d out of range [0,31]", name, t.Region)
		}
		if prev, dup := l.names[c]; dup {
			return nil, fmt.Errorf("legend colours %q and %q are the same RGB value", prev, name)
		}
		l.byColor[c] = t
		l.names[c] = name
	}
	return l, nil
}

// LoadLegend reads a YAML mapping of colour names to terrain.
func LoadLegend(path string) (*Legend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legend: %w", err)
	}
	var entries map[string]Terrain
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing legend: %w", err)
	}
	return NewLegend(entries)
}

// Lookup returns the terrain for c. Pixels are expected to be opaque.
func (l *Legend) Lookup(c color.Color) (Terrain, bool) {
	r, g, b, _ := c.RGBA()
	key := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff}
	t, ok := l.byColor[key]
	return t, ok
}

// ColorFor returns the colour whose terrain has region and obstruction as
// given, preferring colours in name order.
func (l *Legend) ColorFor(region int, obstructed bool) (color.RGBA, bool) {
	for _, c := range l.sortedColors() {
		t := l.byColor[c]
		if t.Obstructed == obstructed && (obstructed || t.Region == region) {
			return c, true
		}
	}
	return color.RGBA{}, false
}

// Names returns the legend's colour names, sorted.
func (l *Legend) Names() []string {
	out := make([]string, 0, len(l.names))
	for _, n := range l.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (l *Legend) sortedColors() []color.RGBA {
	cs := make([]color.RGBA, 0, len(l.byColor))
	for c := range l.byColor {
		cs = append(cs, c)
	}
	sort.Slice(cs, func(i, j int) bool { return l.names[cs[i]] < l.names[cs[j]] })
	return cs
}
