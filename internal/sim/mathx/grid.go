package mathx

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/paulmach/orb"
)

type Terrain string

const (
	TerrainOpen     Terrain = "OPEN"
	TerrainForest   Terrain = "FOREST"
	TerrainWater    Terrain = "WATER"
	TerrainUrban    Terrain = "URBAN"
	TerrainMountain Terrain = "MOUNTAIN"
)

func (t Terrain) Valid() bool {
	switch t {
	case TerrainOpen, TerrainForest, TerrainWater, TerrainUrban, TerrainMountain:
		return true
	}
	return false
}

// Zone is one square cell of the grid.
type Zone struct {
	Row     int
	Col     int
	Terrain Terrain
	Bound   orb.Bound
}

func (z Zone) Center() Vector {
	c := z.Bound.Center()
	return Vector{X: c[0], Y: c[1]}
}

// Grid is a width x height array of square zones starting at the origin.
// Terrain is stored row-major; rows run along Y.
type Grid struct {
	width    int
	height   int
	zoneSize float64
	terrain  []Terrain
}

func NewGrid(width, height int, zoneSize float64, terrain []Terrain) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid: bad dimensions %dx%d", width, height)
	}
	if zoneSize <= 0 || math.IsInf(zoneSize, 0) || math.IsNaN(zoneSize) {
		return nil, fmt.Errorf("grid: bad zone size %v", zoneSize)
	}
	if len(terrain) != 0 && len(terrain) != width*height {
		return nil, fmt.Errorf("grid: terrain has %d zones, want %d", len(terrain), width*height)
	}
	t := make([]Terrain, width*height)
	for i := range t {
		t[i] = TerrainOpen
		if len(terrain) != 0 {
			if !terrain[i].Valid() {
				return nil, fmt.Errorf("grid: zone %d: unknown terrain %q", i, terrain[i])
			}
			t[i] = terrain[i]
		}
	}
	return &Grid{width: width, height: height, zoneSize: zoneSize, terrain: t}, nil
}

func (g *Grid) Width() int        { return g.width }
func (g *Grid) Height() int       { return g.height }
func (g *Grid) ZoneSize() float64 { return g.zoneSize }

// Extent is the size of the grid in world units.
func (g *Grid) Extent() (w, h float64) {
	return float64(g.width) * g.zoneSize, float64(g.height) * g.zoneSize
}

func (g *Grid) Bound() orb.Bound {
	w, h := g.Extent()
	return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{w, h}}
}

func (g *Grid) Center() Vector {
	w, h := g.Extent()
	return Vector{X: w / 2, Y: h / 2}
}

// InBounds reports whether the horizontal projection of v lies on the grid,
// edges included.
func (g *Grid) InBounds(v Vector) bool {
	return g.Bound().Contains(orb.Point{v.X, v.Y})
}

// Clamp moves v onto the nearest point of the grid. Z is untouched.
func (g *Grid) Clamp(v Vector) Vector {
	w, h := g.Extent()
	v.X = math.Min(math.Max(v.X, 0), w)
	v.Y = math.Min(math.Max(v.Y, 0), h)
	return v
}

func (g *Grid) Zone(row, col int) (Zone, bool) {
	if row < 0 || row >= g.height || col < 0 || col >= g.width {
		return Zone{}, false
	}
	x0 := float64(col) * g.zoneSize
	y0 := float64(row) * g.zoneSize
	return Zone{
		Row:     row,
		Col:     col,
		Terrain: g.terrain[row*g.width+col],
		Bound:   orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x0 + g.zoneSize, y0 + g.zoneSize}},
	}, true
}

// ZoneAt returns the zone containing v. Points on the far edges belong to
// the last row/column.
func (g *Grid) ZoneAt(v Vector) (Zone, bool) {
	if !g.InBounds(v) {
		return Zone{}, false
	}
	col := int(math.Floor(v.X / g.zoneSize))
	row := int(math.Floor(v.Y / g.zoneSize))
	if col == g.width {
		col--
	}
	if row == g.height {
		row--
	}
	return g.Zone(row, col)
}

// Zones lists every zone row by row.
func (g *Grid) Zones() []Zone {
	out := make([]Zone, 0, g.width*g.height)
	for r := 0; r < g.height; r++ {
		for c := 0; c < g.width; c++ {
			z, _ := g.Zone(r, c)
			out = append(out, z)
		}
	}
	return out
}

// RandomLocation draws a uniform ground-level point on the grid.
func (g *Grid) RandomLocation(rng *rand.Rand) Vector {
	w, h := g.Extent()
	return Vector{X: rng.Float64() * w, Y: rng.Float64() * h}
}
