// Package interpolate implements surface estimation from point
// samples: inverse-distance weighting, ordinary kriging and thin-plate
// splines, all rasterized onto a regular grid over the dataset bounds.
package interpolate

import (
	"context"
	"errors"
	"math"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
	"github.com/mapforge/spatialkit/internal/numeric"
)

const coincidentEpsilon = 1e-9

// Register adds the interpolation methods to the catalog.
func Register(r *analysis.Registry) error {
	for _, d := range []*analysis.Descriptor{
		idwDescriptor(),
		krigingDescriptor(),
		splineDescriptor(),
	} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// grid is the regular output lattice. Cell centers are row-major from
// the minimum corner.
type grid struct {
	originX, originY float64
	cellSize         float64
	cols, rows       int
}

func newGrid(b geom.BBox, cellSize float64) grid {
	cols := int(math.Ceil(b.Width()/cellSize)) + 1
	rows := int(math.Ceil(b.Height()/cellSize)) + 1
	return grid{originX: b.MinX, originY: b.MinY, cellSize: cellSize, cols: cols, rows: rows}
}

func (g grid) center(col, row int) geom.Point {
	return geom.Point{
		X: g.originX + (float64(col)+0.5)*g.cellSize,
		Y: g.originY + (float64(row)+0.5)*g.cellSize,
	}
}

func (g grid) payload(values []any) map[string]any {
	return map[string]any{
		"origin_x":  g.originX,
		"origin_y":  g.originY,
		"cell_size": g.cellSize,
		"cols":      g.cols,
		"rows":      g.rows,
		"values":    values, // row-major from the min corner, null = no estimate
	}
}

// samples extracts the interpolation input: one point and one value
// per feature carrying the field.
func samples(d *dataset.Dataset, field string) ([]geom.Point, []float64) {
	values, idx := d.NumericField(field)
	centroids := d.Centroids()
	pts := make([]geom.Point, len(idx))
	for i, featureIdx := range idx {
		pts[i] = centroids[featureIdx]
	}
	return pts, values
}

func idwDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryInterpolation,
		Name:        "idw",
		Description: "inverse-distance weighted interpolation onto a regular grid",
		Geometry:    []geom.Type{geom.TypePoint},
		MinFeatures: 2,
		Schema: analysis.ParamSchema{
			"field":     {Type: "string", Required: true, FieldRef: true},
			"cell_size": {Type: "number", Required: true, Minimum: analysis.Float64Ptr(0), ExclusiveMin: true},
			"power":     {Type: "number", Default: 2.0, Minimum: analysis.Float64Ptr(0)},
			"radius":    {Type: "number", Required: true},
		},
		Merge:   analysis.MergeNone,
		Compute: computeIDW,
	}
}

func computeIDW(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	radius := p.FloatOr("radius", 0)
	if radius <= 0 {
		// Weight 1/d^power is undefined with an empty search disc.
		return nil, analysis.ErrInvalidParameter("idw search radius must be positive, got %v", radius)
	}
	power := p.FloatOr("power", 2)

	field, _ := p.String("field")
	pts, values := samples(d, field)
	if len(pts) == 0 {
		return nil, analysis.ErrInvalidParameter("field %q has no numeric values", field)
	}

	g := newGrid(d.Bounds(), p.FloatOr("cell_size", 1))
	out := make([]any, 0, g.cols*g.rows)

	for row := 0; row < g.rows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < g.cols; col++ {
			cell := g.center(col, row)
			out = append(out, idwCell(cell, pts, values, power, radius))
		}
		progress(float64(row+1)/float64(g.rows), "rasterizing")
	}

	return g.payload(out), nil
}

// idwCell estimates one cell. A sample coincident with the cell center
// short-circuits to that sample's exact value rather than dividing by
// zero.
func idwCell(cell geom.Point, pts []geom.Point, values []float64, power, radius float64) any {
	var num, den float64
	var found bool
	for i, pt := range pts {
		dist := cell.DistanceTo(pt)
		if dist < coincidentEpsilon {
			return values[i]
		}
		if dist > radius {
			continue
		}
		w := 1 / math.Pow(dist, power)
		num += w * values[i]
		den += w
		found = true
	}
	if !found {
		return nil
	}
	return num / den
}

func krigingDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryInterpolation,
		Name:        "kriging",
		Description: "ordinary kriging with a fitted variogram model",
		Geometry:    []geom.Type{geom.TypePoint},
		MinFeatures: 3,
		LongRunning: true,
		Schema: analysis.ParamSchema{
			"field":     {Type: "string", Required: true, FieldRef: true},
			"cell_size": {Type: "number", Required: true, Minimum: analysis.Float64Ptr(0), ExclusiveMin: true},
			"model": {Type: "string", Enum: []string{"spherical", "exponential", "gaussian"},
				Default: "spherical"},
			"lags": {Type: "integer", Default: 12, Minimum: analysis.Float64Ptr(1)},
		},
		Merge:   analysis.MergeNone,
		Compute: computeKriging,
	}
}

func computeKriging(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	field, _ := p.String("field")
	pts, values := samples(d, field)
	if len(pts) < 3 {
		return nil, analysis.ErrInvalidParameter("kriging needs at least 3 samples with field %q", field)
	}

	bounds := d.Bounds()
	maxLag := math.Hypot(bounds.Width(), bounds.Height())
	if maxLag <= 0 {
		return nil, analysis.ErrSingularMatrix("all samples are coincident")
	}

	bins := empiricalSemivariogram(pts, values, p.IntOr("lags", 12), maxLag)
	model := fitVariogram(p.StringOr("model", "spherical"), bins, values, maxLag)
	progress(0.2, "variogram fitted")

	// Ordinary kriging system: gamma matrix bordered with the
	// unbiasedness constraint. Built once; only the rhs varies per cell.
	n := len(pts)
	lhs := make([][]float64, n+1)
	for i := 0; i <= n; i++ {
		lhs[i] = make([]float64, n+1)
		for j := 0; j <= n; j++ {
			switch {
			case i == n && j == n:
				lhs[i][j] = 0
			case i == n || j == n:
				lhs[i][j] = 1
			default:
				lhs[i][j] = model.at(pts[i].DistanceTo(pts[j]))
			}
		}
	}

	g := newGrid(bounds, p.FloatOr("cell_size", 1))
	out := make([]any, 0, g.cols*g.rows)
	rhs := make([]float64, n+1)

	for row := 0; row < g.rows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < g.cols; col++ {
			cell := g.center(col, row)
			for i := 0; i < n; i++ {
				rhs[i] = model.at(cell.DistanceTo(pts[i]))
			}
			rhs[n] = 1

			weights, err := numeric.Solve(lhs, rhs)
			if err != nil {
				if errors.Is(err, numeric.ErrSingular) {
					return nil, analysis.ErrSingularMatrix(
						"kriging system is singular (degenerate sample configuration)")
				}
				return nil, err
			}

			var estimate float64
			for i := 0; i < n; i++ {
				estimate += weights[i] * values[i]
			}
			out = append(out, estimate)
		}
		progress(0.2+0.8*float64(row+1)/float64(g.rows), "solving cells")
	}

	return mergeMaps(g.payload(out), map[string]any{
		"model":  model.kind,
		"nugget": model.nugget,
		"sill":   model.sill,
		"range":  model.rang,
	}), nil
}

func splineDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryInterpolation,
		Name:        "spline",
		Description: "thin-plate smoothing spline surface",
		Geometry:    []geom.Type{geom.TypePoint},
		MinFeatures: 3,
		LongRunning: true,
		Schema: analysis.ParamSchema{
			"field":     {Type: "string", Required: true, FieldRef: true},
			"cell_size": {Type: "number", Required: true, Minimum: analysis.Float64Ptr(0), ExclusiveMin: true},
			"smoothing": {Type: "number", Default: 0.0, Minimum: analysis.Float64Ptr(0)},
		},
		Merge:   analysis.MergeNone,
		Compute: computeSpline,
	}
}

// thin-plate radial basis kernel
func tpsKernel(r float64) float64 {
	if r <= 0 {
		return 0
	}
	return r * r * math.Log(r)
}

func computeSpline(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	field, _ := p.String("field")
	pts, values := samples(d, field)
	n := len(pts)
	if n < 3 {
		return nil, analysis.ErrInvalidParameter("spline needs at least 3 samples with field %q", field)
	}
	smoothing := p.FloatOr("smoothing", 0)

	// [K + lambda*I, P; P^T, 0] with P = [1 x y].
	size := n + 3
	lhs := make([][]float64, size)
	rhs := make([]float64, size)
	for i := 0; i < size; i++ {
		lhs[i] = make([]float64, size)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			lhs[i][j] = tpsKernel(pts[i].DistanceTo(pts[j]))
			if i == j {
				lhs[i][j] += smoothing
			}
		}
		lhs[i][n] = 1
		lhs[i][n+1] = pts[i].X
		lhs[i][n+2] = pts[i].Y
		lhs[n][i] = 1
		lhs[n+1][i] = pts[i].X
		lhs[n+2][i] = pts[i].Y
		rhs[i] = values[i]
	}

	coeffs, err := numeric.Solve(lhs, rhs)
	if err != nil {
		if errors.Is(err, numeric.ErrSingular) {
			return nil, analysis.ErrSingularMatrix(
				"spline system is singular (collinear or duplicate samples)")
		}
		return nil, err
	}
	progress(0.3, "spline fitted")

	g := newGrid(d.Bounds(), p.FloatOr("cell_size", 1))
	out := make([]any, 0, g.cols*g.rows)
	for row := 0; row < g.rows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < g.cols; col++ {
			cell := g.center(col, row)
			v := coeffs[n] + coeffs[n+1]*cell.X + coeffs[n+2]*cell.Y
			for i := 0; i < n; i++ {
				v += coeffs[i] * tpsKernel(cell.DistanceTo(pts[i]))
			}
			out = append(out, v)
		}
		progress(0.3+0.7*float64(row+1)/float64(g.rows), "rasterizing")
	}

	return mergeMaps(g.payload(out), map[string]any{"smoothing": smoothing}), nil
}

func mergeMaps(base map[string]any, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
