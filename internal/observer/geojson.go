// Package observer renders snapshots for read-only viewers: a GeoJSON
// projection and a loopback websocket feed.
package observer

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
)

const (
	LayerGrid   = "grid"
	LayerZone   = "zone"
	LayerRemote = "remote"
)

func boundPolygon(b orb.Bound) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
		{b.Min[0], b.Min[1]},
	}}
}

// FeatureCollection projects snap onto the grid plane: the grid outline,
// every non-open zone, and one point per located remote. Remotes come out
// sorted by ID.
func FeatureCollection(snap protocol.Snapshot, grid *mathx.Grid) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if grid != nil {
		f := geojson.NewFeature(boundPolygon(grid.Bound()))
		f.Properties["layer"] = LayerGrid
		f.Properties["scenario_id"] = snap.ScenarioID
		f.Properties["status"] = string(snap.Status)
		f.Properties["tick"] = snap.Tick
		f.Properties["time"] = snap.Time
		f.Properties["width"] = grid.Width()
		f.Properties["height"] = grid.Height()
		f.Properties["zone_size"] = grid.ZoneSize()
		fc.Append(f)

		for _, z := range grid.Zones() {
			if z.Terrain == mathx.TerrainOpen {
				continue
			}
			zf := geojson.NewFeature(boundPolygon(z.Bound))
			zf.Properties["layer"] = LayerZone
			zf.Properties["row"] = z.Row
			zf.Properties["col"] = z.Col
			zf.Properties["terrain"] = string(z.Terrain)
			fc.Append(zf)
		}
	}

	ids := make([]string, 0, len(snap.Remotes))
	for id := range snap.Remotes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := snap.Remotes[id]
		if r.Location == nil {
			continue
		}
		f := geojson.NewFeature(orb.Point{r.Location.X, r.Location.Y})
		f.ID = r.RemoteID
		f.Properties["layer"] = LayerRemote
		f.Properties["remote_id"] = r.RemoteID
		f.Properties["kind"] = string(r.Kind)
		f.Properties["team"] = r.Team
		f.Properties["state"] = string(r.State)
		f.Properties["z"] = r.Location.Z
		if r.Battery != nil {
			f.Properties["battery"] = *r.Battery
		}
		var active []string
		for _, s := range r.Sensors {
			if s.Active {
				active = append(active, s.SensorID)
			}
		}
		if len(active) > 0 {
			f.Properties["active_sensors"] = active
		}
		fc.Append(f)
	}
	return fc
}
