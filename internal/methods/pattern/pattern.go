// Package pattern implements point-pattern analysis: quadrat counts,
// nearest-neighbor index, Ripley's K, plus the density and k-means
// methods carried over from the platform's clustering endpoints.
package pattern

import (
	"context"
	"math"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
	"github.com/mapforge/spatialkit/internal/numeric"
)

// Register adds the pattern methods to the catalog.
func Register(r *analysis.Registry) error {
	for _, d := range []*analysis.Descriptor{
		quadratDescriptor(),
		nearestNeighborDescriptor(),
		ripleyDescriptor(),
		densityDescriptor(),
		kmeansDescriptor(),
	} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

const (
	classClustered = "clustered"
	classDispersed = "dispersed"
	classRandom    = "random"
)

func quadratDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryPattern,
		Name:        "quadrat",
		Description: "variance-to-mean ratio over a regular quadrat grid with chi-square classification",
		Geometry:    []geom.Type{geom.TypePoint},
		MinFeatures: 10,
		Schema: analysis.ParamSchema{
			"cell_size": {Type: "number", Required: true, Minimum: analysis.Float64Ptr(0), ExclusiveMin: true},
			"significance": {Type: "number", Default: 0.05,
				Minimum: analysis.Float64Ptr(0), ExclusiveMin: true, Maximum: analysis.Float64Ptr(0.5)},
		},
		Merge:   analysis.MergeNone,
		Compute: computeQuadrat,
	}
}

func computeQuadrat(_ context.Context, d *dataset.Dataset, p analysis.Params,
	_ analysis.Progress) (map[string]any, error) {

	cellSize := p.FloatOr("cell_size", 1)
	alpha := p.FloatOr("significance", 0.05)

	bounds := d.Bounds()
	cols := int(math.Ceil(bounds.Width() / cellSize))
	rows := int(math.Ceil(bounds.Height() / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	counts := make([]float64, cols*rows)

	for _, pt := range d.Centroids() {
		col := int((pt.X - bounds.MinX) / cellSize)
		row := int((pt.Y - bounds.MinY) / cellSize)
		if col >= cols {
			col = cols - 1
		}
		if row >= rows {
			row = rows - 1
		}
		counts[row*cols+col]++
	}

	mean := numeric.Mean(counts)
	if mean == 0 {
		return nil, analysis.ErrInvalidParameter("quadrat grid has no occupied cells")
	}
	vmr := numeric.Variance(counts) * float64(len(counts)) / float64(len(counts)-1) / mean

	// Chi-square test on (m-1)*VMR against both tails at alpha.
	df := float64(len(counts) - 1)
	chi2 := df * vmr
	upper := numeric.ChiSquareQuantile(1-alpha/2, df)
	lower := numeric.ChiSquareQuantile(alpha/2, df)

	classification := classRandom
	switch {
	case chi2 > upper:
		classification = classClustered
	case chi2 < lower:
		classification = classDispersed
	}

	return map[string]any{
		"statistic":      vmr,
		"chi_square":     chi2,
		"classification": classification,
		"confidence":     1 - alpha,
		"cells":          len(counts),
		"cols":           cols,
		"rows":           rows,
		"mean_count":     mean,
	}, nil
}

func nearestNeighborDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryPattern,
		Name:        "nearest-neighbor",
		Description: "observed/expected mean nearest-neighbor distance ratio",
		Geometry:    []geom.Type{geom.TypePoint},
		MinFeatures: 3,
		Schema: analysis.ParamSchema{
			"edge_correction": {Type: "boolean", Default: false},
		},
		Merge:   analysis.MergeNone,
		Compute: computeNearestNeighbor,
	}
}

func computeNearestNeighbor(_ context.Context, d *dataset.Dataset, p analysis.Params,
	_ analysis.Progress) (map[string]any, error) {

	pts := d.Centroids()
	n := len(pts)
	bounds := d.Bounds()
	area := bounds.Area()
	if area <= 0 {
		return nil, analysis.ErrInvalidParameter("study area is degenerate (zero extent)")
	}

	var sum float64
	for i, a := range pts {
		nearest := math.Inf(1)
		for j, b := range pts {
			if i == j {
				continue
			}
			if dd := a.DistanceTo(b); dd < nearest {
				nearest = dd
			}
		}
		sum += nearest
	}
	observed := sum / float64(n)

	expected := 0.5 / math.Sqrt(float64(n)/area)
	if p.Bool("edge_correction") {
		// Donnelly's boundary adjustment.
		perimeter := 2 * (bounds.Width() + bounds.Height())
		expected += 0.0514*perimeter/float64(n) + 0.041*perimeter/math.Pow(float64(n), 1.5)
	}

	index := observed / expected
	se := 0.26136 / math.Sqrt(float64(n)*float64(n)/area)
	z := (observed - expected) / se

	classification := classRandom
	switch {
	case z < -1.96:
		classification = classClustered
	case z > 1.96:
		classification = classDispersed
	}

	return map[string]any{
		"statistic":         index,
		"observed_distance": observed,
		"expected_distance": expected,
		"z_score":           z,
		"classification":    classification,
		"confidence":        2*numeric.NormalCDF(math.Abs(z)) - 1,
	}, nil
}

func ripleyDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryPattern,
		Name:        "ripley-k",
		Description: "Ripley's K at requested distance bands with a Monte Carlo envelope",
		Geometry:    []geom.Type{geom.TypePoint},
		MinFeatures: 10,
		LongRunning: true,
		Schema: analysis.ParamSchema{
			"distances":    {Type: "array", Items: "number", Required: true},
			"permutations": {Type: "integer", Default: 99, Minimum: analysis.Float64Ptr(1)},
			"seed":         {Type: "integer", Default: 42},
		},
		Merge:   analysis.MergeNone,
		Compute: computeRipleyK,
	}
}

// kFunction computes K(d) for every band over one point set.
func kFunction(pts []geom.Point, area float64, bands []float64) []float64 {
	n := float64(len(pts))
	ks := make([]float64, len(bands))
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			d := pts[i].DistanceTo(pts[j])
			for b := len(bands) - 1; b >= 0; b-- {
				if d <= bands[b] {
					ks[b] += 2 // unordered pair counts for both points
				} else {
					break // bands ascend, smaller ones cannot contain d
				}
			}
		}
	}
	norm := area / (n * (n - 1))
	for b := range ks {
		ks[b] *= norm
	}
	return ks
}

func computeRipleyK(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	bands, ok := p.Floats("distances")
	if !ok || len(bands) == 0 {
		return nil, analysis.ErrInvalidParameter("distances must be a non-empty number array")
	}
	for i := 1; i < len(bands); i++ {
		if bands[i] <= bands[i-1] {
			return nil, analysis.ErrInvalidParameter("distance bands must be strictly ascending")
		}
	}

	pts := d.Centroids()
	bounds := d.Bounds()
	area := bounds.Area()
	if area <= 0 {
		return nil, analysis.ErrInvalidParameter("study area is degenerate (zero extent)")
	}

	observed := kFunction(pts, area, bands)
	progress(0.1, "observed K computed")

	// Envelope from complete-spatial-randomness simulations with a
	// fixed seed so identical requests reproduce identical envelopes.
	permutations := p.IntOr("permutations", 99)
	rng := newLCG(uint64(p.IntOr("seed", 42)))
	lower := make([]float64, len(bands))
	upper := make([]float64, len(bands))
	for b := range lower {
		lower[b] = math.Inf(1)
		upper[b] = math.Inf(-1)
	}

	sim := make([]geom.Point, len(pts))
	for perm := 0; perm < permutations; perm++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range sim {
			sim[i] = geom.Point{
				X: bounds.MinX + rng.float64()*bounds.Width(),
				Y: bounds.MinY + rng.float64()*bounds.Height(),
			}
		}
		ks := kFunction(sim, area, bands)
		for b, k := range ks {
			if k < lower[b] {
				lower[b] = k
			}
			if k > upper[b] {
				upper[b] = k
			}
		}
		progress(0.1+0.9*float64(perm+1)/float64(permutations), "simulating envelope")
	}

	expected := make([]float64, len(bands))
	classifications := make([]any, len(bands))
	for b, band := range bands {
		expected[b] = math.Pi * band * band
		switch {
		case observed[b] > upper[b]:
			classifications[b] = classClustered
		case observed[b] < lower[b]:
			classifications[b] = classDispersed
		default:
			classifications[b] = classRandom
		}
	}

	return map[string]any{
		"distances":      bands,
		"statistic":      observed,
		"expected":       expected,
		"envelope_low":   lower,
		"envelope_high":  upper,
		"classification": classifications,
		"permutations":   permutations,
	}, nil
}

// lcg is a small deterministic generator so envelope simulations do
// not depend on global rand state.
type lcg struct{ state uint64 }

func newLCG(seed uint64) *lcg {
	if seed == 0 {
		seed = 0x9E3779B97F4A7C15
	}
	return &lcg{state: seed}
}

func (r *lcg) next() uint64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return r.state
}

func (r *lcg) float64() float64 {
	return float64(r.next()>>11) / float64(1<<53)
}
