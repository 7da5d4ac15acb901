package visualization

import (
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// Snapshot builds a GeoJSON feature collection of the attractor and every
// agent. Coordinates are world units, not longitude/latitude.
func Snapshot(at epidemic.Attractor, agents []epidemic.Agent) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	attractor := geojson.NewFeature(at.Position)
	attractor.ID = epidemic.AttractorID
	attractor.Properties["kind"] = "attractor"
	attractor.Properties["radius"] = at.Radius
	fc.Append(attractor)

	for _, a := range agents {
		f := geojson.NewFeature(a.Position)
		f.ID = a.ID
		f.Properties["kind"] = "agent"
		f.Properties["state"] = a.State.String()
		f.Properties["color"] = string(a.State.Color())
		f.Properties["radius"] = a.Radius
		f.Properties["at_attractor"] = a.IsAtAttractor(at)
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes the snapshot to w.
func WriteGeoJSON(w io.Writer, at epidemic.Attractor, agents []epidemic.Agent) error {
	data, err := Snapshot(at, agents).MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal geojson: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}

// WriteGeoJSONFile writes the snapshot to path.
func WriteGeoJSONFile(path string, at epidemic.Attractor, agents []epidemic.Agent) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteGeoJSON(w, at, agents)
	})
}
