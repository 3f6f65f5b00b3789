package mathx

import (
	"math"
	"math/rand"
	"testing"
)

func TestVectorBasics(t *testing.T) {
	a := Vec(3, 4, 0)
	if a.Norm() != 5 {
		t.Fatalf("norm=%v want 5", a.Norm())
	}
	if d := Dist(Vec(1, 1, 1), Vec(1, 1, 4)); d != 3 {
		t.Fatalf("dist=%v want 3", d)
	}
	u := Direction(Vec(0, 0, 0), Vec(0, 10, 0))
	if u != Vec(0, 1, 0) {
		t.Fatalf("direction=%+v", u)
	}
	if !(Vector{}).Unit().IsZero() {
		t.Fatalf("unit of zero vector should be zero")
	}
	if got := Vec(6, 8, 0).ClampNorm(5); math.Abs(got.Norm()-5) > 1e-9 {
		t.Fatalf("clamped norm=%v", got.Norm())
	}
	if got := Vec(6, 8, 0).ClampNorm(0); got != Vec(6, 8, 0) {
		t.Fatalf("max<=0 should be unbounded, got %+v", got)
	}
	if Vec(math.NaN(), 0, 0).IsFinite() || Vec(0, math.Inf(1), 0).IsFinite() {
		t.Fatalf("expected non-finite")
	}
}

func TestGridZoneLookup(t *testing.T) {
	g, err := NewGrid(10, 5, 10, nil)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	w, h := g.Extent()
	if w != 100 || h != 50 {
		t.Fatalf("extent=%vx%v", w, h)
	}

	cases := []struct {
		v        Vector
		row, col int
		ok       bool
	}{
		{Vec(0, 0, 0), 0, 0, true},
		{Vec(15, 25, 7), 2, 1, true},
		{Vec(100, 50, 0), 4, 9, true},
		{Vec(100.01, 10, 0), 0, 0, false},
		{Vec(-1, 10, 0), 0, 0, false},
	}
	for _, tc := range cases {
		z, ok := g.ZoneAt(tc.v)
		if ok != tc.ok {
			t.Fatalf("ZoneAt(%+v) ok=%v want %v", tc.v, ok, tc.ok)
		}
		if ok && (z.Row != tc.row || z.Col != tc.col) {
			t.Fatalf("ZoneAt(%+v)=(%d,%d) want (%d,%d)", tc.v, z.Row, z.Col, tc.row, tc.col)
		}
	}

	z, _ := g.Zone(2, 1)
	if z.Center() != Vec(15, 25, 0) {
		t.Fatalf("center=%+v", z.Center())
	}
	if len(g.Zones()) != 50 {
		t.Fatalf("zones=%d", len(g.Zones()))
	}
	if c := g.Clamp(Vec(-5, 70, 3)); c != Vec(0, 50, 3) {
		t.Fatalf("clamp=%+v", c)
	}
}

func TestGridTerrain(t *testing.T) {
	terrain := []Terrain{TerrainOpen, TerrainWater, TerrainForest, TerrainUrban}
	g, err := NewGrid(2, 2, 1, terrain)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	z, _ := g.ZoneAt(Vec(1.5, 0.5, 0))
	if z.Terrain != TerrainWater {
		t.Fatalf("terrain=%s want WATER", z.Terrain)
	}
	if _, err := NewGrid(2, 2, 1, terrain[:3]); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	if _, err := NewGrid(1, 1, 1, []Terrain{"LAVA"}); err == nil {
		t.Fatalf("expected unknown terrain error")
	}
	if _, err := NewGrid(0, 1, 1, nil); err == nil {
		t.Fatalf("expected bad dimension error")
	}
}

func TestRandomLocationInBounds(t *testing.T) {
	g, _ := NewGrid(3, 7, 2.5, nil)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		v := g.RandomLocation(rng)
		if !g.InBounds(v) {
			t.Fatalf("out of bounds: %+v", v)
		}
	}
}
