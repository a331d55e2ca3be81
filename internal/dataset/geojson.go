package dataset

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mapforge/spatialkit/internal/geom"
)

type geojsonGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type geojsonFeature struct {
	ID         any              `json:"id"`
	Geometry   *geojsonGeometry `json:"geometry"`
	Properties map[string]any   `json:"properties"`
}

type geojsonCollection struct {
	Type     string           `json:"type"`
	Features []geojsonFeature `json:"features"`
}

// FromGeoJSON parses a FeatureCollection of Point, LineString and
// Polygon features into a dataset. Only the exterior ring of a polygon
// is kept. The attribute schema is inferred from properties; a field
// holding a number in any feature is typed numeric.
func FromGeoJSON(data []byte, crs geom.CRS) (*Dataset, error) {
	var fc geojsonCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected FeatureCollection, got %q", fc.Type)
	}

	features := make([]Feature, 0, len(fc.Features))
	fieldTypes := make(map[string]FieldType)

	for i, gf := range fc.Features {
		if gf.Geometry == nil {
			return nil, fmt.Errorf("feature %d has no geometry", i)
		}
		g, err := parseGeometry(gf.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		id := fmt.Sprintf("feature-%d", i)
		switch v := gf.ID.(type) {
		case string:
			id = v
		case float64:
			id = fmt.Sprintf("%g", v)
		}

		for name, value := range gf.Properties {
			switch value.(type) {
			case float64, json.Number:
				fieldTypes[name] = FieldNumber
			default:
				if _, seen := fieldTypes[name]; !seen {
					fieldTypes[name] = FieldString
				}
			}
		}

		features = append(features, Feature{ID: id, Geometry: g, Attributes: gf.Properties})
	}

	names := make([]string, 0, len(fieldTypes))
	for name := range fieldTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]Field, len(names))
	for i, name := range names {
		fields[i] = Field{Name: name, Type: fieldTypes[name]}
	}

	return New(crs, fields, features), nil
}

func parseGeometry(g *geojsonGeometry) (geom.Geometry, error) {
	switch g.Type {
	case "Point":
		var c [2]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return geom.Geometry{}, fmt.Errorf("point coordinates: %w", err)
		}
		return geom.NewPoint(c[0], c[1]), nil

	case "LineString":
		pts, err := parsePositions(g.Coordinates)
		if err != nil {
			return geom.Geometry{}, fmt.Errorf("linestring coordinates: %w", err)
		}
		if len(pts) < 2 {
			return geom.Geometry{}, fmt.Errorf("linestring needs at least 2 positions")
		}
		return geom.NewLineString(pts...), nil

	case "Polygon":
		var rings []json.RawMessage
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return geom.Geometry{}, fmt.Errorf("polygon coordinates: %w", err)
		}
		if len(rings) == 0 {
			return geom.Geometry{}, fmt.Errorf("polygon has no rings")
		}
		ring, err := parsePositions(rings[0])
		if err != nil {
			return geom.Geometry{}, fmt.Errorf("polygon exterior ring: %w", err)
		}
		// GeoJSON rings repeat the first vertex at the end; drop it.
		if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
		if len(ring) < 3 {
			return geom.Geometry{}, fmt.Errorf("polygon ring needs at least 3 distinct positions")
		}
		return geom.NewPolygon(ring...), nil

	default:
		return geom.Geometry{}, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

func parsePositions(raw json.RawMessage) ([]geom.Point, error) {
	var coords [][2]float64
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, err
	}
	pts := make([]geom.Point, len(coords))
	for i, c := range coords {
		pts[i] = geom.Point{X: c[0], Y: c[1]}
	}
	return pts, nil
}
