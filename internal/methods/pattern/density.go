package pattern

import (
	"context"
	"math"
	"sort"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
)

// densityDescriptor restores the platform's bounding-box density
// endpoint: feature count per unit area, optionally within an explicit
// window. Counting is partition-parallel.
func densityDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryPattern,
		Name:        "density",
		Description: "feature density within a bounding box",
		MinFeatures: 1,
		Schema: analysis.ParamSchema{
			"min_x": {Type: "number"},
			"min_y": {Type: "number"},
			"max_x": {Type: "number"},
			"max_y": {Type: "number"},
		},
		Merge:            analysis.MergeReduce,
		Compute:          computeDensity,
		ComputePartition: computeDensityPartition,
		Reduce:           reduceDensity,
	}
}

func densityWindow(d *dataset.Dataset, p analysis.Params) geom.BBox {
	minX, okA := p.Float("min_x")
	minY, okB := p.Float("min_y")
	maxX, okC := p.Float("max_x")
	maxY, okD := p.Float("max_y")
	if okA && okB && okC && okD {
		return geom.BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
	}
	return d.Bounds()
}

func countInWindow(features []dataset.Feature, window geom.BBox) float64 {
	var count float64
	for _, f := range features {
		if window.Contains(f.Geometry.Centroid()) {
			count++
		}
	}
	return count
}

func computeDensity(_ context.Context, d *dataset.Dataset, p analysis.Params,
	_ analysis.Progress) (map[string]any, error) {

	window := densityWindow(d, p)
	return densityPayload(countInWindow(d.Features(), window), window)
}

func computeDensityPartition(_ context.Context, d *dataset.Dataset, part dataset.Partition,
	p analysis.Params) (map[string]any, error) {

	window := densityWindow(d, p)
	return map[string]any{"count": countInWindow(part.Features, window)}, nil
}

func reduceDensity(d *dataset.Dataset, p analysis.Params,
	partials []map[string]any) (map[string]any, error) {

	var count float64
	for _, partial := range partials {
		c, _ := analysis.Params(partial).Float("count")
		count += c
	}
	return densityPayload(count, densityWindow(d, p))
}

func densityPayload(count float64, window geom.BBox) (map[string]any, error) {
	area := window.Area()
	if area <= 0 {
		return nil, analysis.ErrInvalidParameter("density window has zero area")
	}
	return map[string]any{
		"count":   count,
		"area":    area,
		"density": count / area,
	}, nil
}

func kmeansDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryPattern,
		Name:        "kmeans",
		Description: "k-means clustering of feature centroids",
		MinFeatures: 2,
		Schema: analysis.ParamSchema{
			"clusters":       {Type: "integer", Required: true, Minimum: analysis.Float64Ptr(1)},
			"max_iterations": {Type: "integer", Default: 50, Minimum: analysis.Float64Ptr(1)},
			"seed":           {Type: "integer", Default: 42},
		},
		Merge:   analysis.MergeNone,
		Compute: computeKMeans,
	}
}

func computeKMeans(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	k := p.IntOr("clusters", 1)
	pts := d.Centroids()
	if k > len(pts) {
		return nil, analysis.ErrInvalidParameter(
			"cannot form %d clusters from %d features", k, len(pts))
	}

	// Deterministic init: spread seeds across the point set after a
	// seeded shuffle.
	rng := newLCG(uint64(p.IntOr("seed", 42)))
	order := make([]int, len(pts))
	for i := range order {
		order[i] = i
	}
	for i := len(order) - 1; i > 0; i-- {
		j := int(rng.next() % uint64(i+1))
		order[i], order[j] = order[j], order[i]
	}
	centers := make([]geom.Point, k)
	for i := 0; i < k; i++ {
		centers[i] = pts[order[i]]
	}

	assign := make([]int, len(pts))
	maxIter := p.IntOr("max_iterations", 50)
	var iterations int

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations = iter + 1

		changed := false
		for i, pt := range pts {
			best, bestDist := 0, math.Inf(1)
			for c, center := range centers {
				if dd := pt.DistanceTo(center); dd < bestDist {
					best, bestDist = c, dd
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := make([]geom.Point, k)
		counts := make([]int, k)
		for i, pt := range pts {
			sums[assign[i]].X += pt.X
			sums[assign[i]].Y += pt.Y
			counts[assign[i]]++
		}
		for c := range centers {
			if counts[c] > 0 {
				centers[c] = geom.Point{
					X: sums[c].X / float64(counts[c]),
					Y: sums[c].Y / float64(counts[c]),
				}
			}
		}

		progress(float64(iter+1)/float64(maxIter), "iterating")
		if !changed {
			break
		}
	}

	clusters := make([]any, k)
	for c := 0; c < k; c++ {
		var members []any
		for i, a := range assign {
			if a == c {
				members = append(members, d.Features()[i].ID)
			}
		}
		sort.Slice(members, func(i, j int) bool {
			return members[i].(string) < members[j].(string)
		})
		clusters[c] = map[string]any{
			"cluster_id":  c,
			"center_x":    centers[c].X,
			"center_y":    centers[c].Y,
			"point_count": len(members),
			"members":     members,
		}
	}

	return map[string]any{
		"clusters":   clusters,
		"k":          k,
		"iterations": iterations,
	}, nil
}
