package geostat

import (
	"fmt"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
)

// contiguityWeights builds the binary spatial weights matrix over the
// features carrying valid field values. Queen contiguity links
// polygons sharing any vertex, rook requires a shared edge, and
// distance-band links features whose centroids fall within the band.
func contiguityWeights(d *dataset.Dataset, idx []int, p analysis.Params) ([][]float64, error) {
	contiguity := p.StringOr("contiguity", "queen")
	n := len(idx)
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}

	features := d.Features()

	switch contiguity {
	case "distance-band":
		band, ok := p.Float("band")
		if !ok || band <= 0 {
			return nil, analysis.ErrInvalidParameter("distance-band contiguity requires a positive band")
		}
		centroids := d.Centroids()
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if centroids[idx[i]].DistanceTo(centroids[idx[j]]) <= band {
					w[i][j] = 1
					w[j][i] = 1
				}
			}
		}
		return w, nil

	case "queen", "rook":
		if d.GeometryType() != geom.TypePolygon {
			return nil, analysis.ErrInvalidParameter(
				"%s contiguity requires polygon geometry, dataset is %s", contiguity, d.GeometryType())
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				gi := features[idx[i]].Geometry
				gj := features[idx[j]].Geometry
				var linked bool
				if contiguity == "queen" {
					linked = sharesVertex(gi, gj)
				} else {
					linked = sharesEdge(gi, gj)
				}
				if linked {
					w[i][j] = 1
					w[j][i] = 1
				}
			}
		}
		return w, nil

	default:
		return nil, analysis.ErrInvalidParameter("unknown contiguity definition %q", contiguity)
	}
}

func vertexKey(p geom.Point) string {
	return fmt.Sprintf("%.9f,%.9f", p.X, p.Y)
}

func sharesVertex(a, b geom.Geometry) bool {
	seen := make(map[string]struct{}, len(a.Points))
	for _, p := range a.Points {
		seen[vertexKey(p)] = struct{}{}
	}
	for _, p := range b.Points {
		if _, ok := seen[vertexKey(p)]; ok {
			return true
		}
	}
	return false
}

// edgeKey orders the endpoints so both traversal directions match.
func edgeKey(a, b geom.Point) string {
	ka, kb := vertexKey(a), vertexKey(b)
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

func ringEdges(g geom.Geometry) map[string]struct{} {
	edges := make(map[string]struct{}, len(g.Points))
	n := len(g.Points)
	for i := 0; i < n; i++ {
		edges[edgeKey(g.Points[i], g.Points[(i+1)%n])] = struct{}{}
	}
	return edges
}

func sharesEdge(a, b geom.Geometry) bool {
	edges := ringEdges(a)
	n := len(b.Points)
	for i := 0; i < n; i++ {
		if _, ok := edges[edgeKey(b.Points[i], b.Points[(i+1)%n])]; ok {
			return true
		}
	}
	return false
}
