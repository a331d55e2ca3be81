// Package regression implements ordinary least squares, geographically
// weighted regression and the spatial-lag model.
package regression

import (
	"context"
	"math"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
)

// Register adds the regression methods to the catalog.
func Register(r *analysis.Registry) error {
	for _, d := range []*analysis.Descriptor{
		olsDescriptor(),
		gwrDescriptor(),
		spatialLagDescriptor(),
	} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// designMatrix assembles rows from features carrying the response and
// every predictor. The first column is the intercept. Returned indices
// point back into the dataset's feature slice.
func designMatrix(d *dataset.Dataset, yField string, xFields []string) ([][]float64, []float64, []int, error) {
	var x [][]float64
	var y []float64
	var idx []int

	for i, f := range d.Features() {
		attrs := analysis.Params(f.Attributes)
		yv, ok := attrs.Float(yField)
		if !ok {
			continue
		}
		row := make([]float64, 1+len(xFields))
		row[0] = 1
		complete := true
		for j, field := range xFields {
			xv, ok := attrs.Float(field)
			if !ok {
				complete = false
				break
			}
			row[j+1] = xv
		}
		if !complete {
			continue
		}
		x = append(x, row)
		y = append(y, yv)
		idx = append(idx, i)
	}

	if len(x) == 0 {
		return nil, nil, nil, analysis.ErrInvalidParameter(
			"no feature carries %q and all predictors", yField)
	}
	return x, y, idx, nil
}

func coefficientPayload(xFields []string, coef, se []float64) []any {
	names := append([]string{"intercept"}, xFields...)
	out := make([]any, len(coef))
	for i := range coef {
		entry := map[string]any{
			"name":        names[i],
			"coefficient": coef[i],
		}
		if se != nil {
			entry["std_error"] = se[i]
			if se[i] > 0 {
				entry["t_value"] = coef[i] / se[i]
			}
		}
		out[i] = entry
	}
	return out
}

func olsDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryRegression,
		Name:        "ols",
		Description: "ordinary least squares via the normal equations",
		MinFeatures: 3,
		Schema: analysis.ParamSchema{
			"y": {Type: "string", Required: true, FieldRef: true},
			"x": {Type: "array", Items: "string", Required: true, FieldRef: true},
		},
		Merge:   analysis.MergeNone,
		Compute: computeOLS,
	}
}

func computeOLS(_ context.Context, d *dataset.Dataset, p analysis.Params,
	_ analysis.Progress) (map[string]any, error) {

	yField, _ := p.String("y")
	xFields, ok := p.Strings("x")
	if !ok || len(xFields) == 0 {
		return nil, analysis.ErrInvalidParameter("x must be a non-empty array of field names")
	}

	x, y, _, err := designMatrix(d, yField, xFields)
	if err != nil {
		return nil, err
	}
	fit, err := fitOLS(x, y)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"coefficients":  coefficientPayload(xFields, fit.coefficients, fit.stdErrors),
		"r_squared":     fit.r2,
		"adj_r_squared": fit.adjR2,
		"sigma_squared": fit.sigma2,
		"observations":  fit.n,
		"parameters":    fit.k,
	}, nil
}

func gwrDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryRegression,
		Name:        "gwr",
		Description: "geographically weighted regression with kernel-distance weighting",
		MinFeatures: 10,
		LongRunning: true,
		Schema: analysis.ParamSchema{
			"y":      {Type: "string", Required: true, FieldRef: true},
			"x":      {Type: "array", Items: "string", Required: true, FieldRef: true},
			"kernel": {Type: "string", Enum: []string{"gaussian", "bisquare"}, Default: "gaussian"},
			"bandwidth": {Type: "number", Minimum: analysis.Float64Ptr(0), ExclusiveMin: true,
				Description: "kernel bandwidth, chosen by cross-validation when absent"},
		},
		Merge:   analysis.MergeNone,
		Compute: computeGWR,
	}
}

func kernelWeight(kernel string, dist, bandwidth float64) float64 {
	u := dist / bandwidth
	switch kernel {
	case "bisquare":
		if u >= 1 {
			return 0
		}
		v := 1 - u*u
		return v * v
	default: // gaussian
		return math.Exp(-0.5 * u * u)
	}
}

func computeGWR(ctx context.Context, d *dataset.Dataset, p analysis.Params,
	progress analysis.Progress) (map[string]any, error) {

	yField, _ := p.String("y")
	xFields, ok := p.Strings("x")
	if !ok || len(xFields) == 0 {
		return nil, analysis.ErrInvalidParameter("x must be a non-empty array of field names")
	}
	kernel := p.StringOr("kernel", "gaussian")

	x, y, idx, err := designMatrix(d, yField, xFields)
	if err != nil {
		return nil, err
	}
	n := len(x)
	if n <= len(xFields)+1 {
		return nil, analysis.ErrInvalidParameter(
			"gwr needs more complete observations (%d) than parameters (%d)", n, len(xFields)+1)
	}

	allCentroids := d.Centroids()
	pts := make([]geom.Point, n)
	for i, di := range idx {
		pts[i] = allCentroids[di]
	}

	bandwidth, given := p.Float("bandwidth")
	criterion := "fixed"
	if !given {
		bandwidth, err = searchBandwidth(ctx, pts, x, y, kernel, progress)
		if err != nil {
			return nil, err
		}
		criterion = "cv"
	}

	local := make([]any, n)
	r2Sum := 0.0
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		weights := make([]float64, n)
		for j := 0; j < n; j++ {
			weights[j] = kernelWeight(kernel, pts[i].DistanceTo(pts[j]), bandwidth)
		}
		fit, err := fitWLS(x, y, weights)
		if err != nil {
			return nil, err
		}
		r2Sum += fit.r2
		local[i] = map[string]any{
			"feature_id":   d.Features()[idx[i]].ID,
			"x":            pts[i].X,
			"y":            pts[i].Y,
			"coefficients": coefficientPayload(xFields, fit.coefficients, nil),
			"local_r2":     fit.r2,
			"residual":     fit.residuals[i],
		}
		progress(0.5+0.5*float64(i+1)/float64(n), "fitting local models")
	}

	return map[string]any{
		"locations":           local,
		"bandwidth":           bandwidth,
		"bandwidth_criterion": criterion,
		"kernel":              kernel,
		"mean_local_r2":       r2Sum / float64(n),
		"observations":        n,
	}, nil
}

// searchBandwidth picks the bandwidth minimizing the leave-one-out
// cross-validation residual sum over a geometric candidate ladder
// spanning a tenth of the extent diagonal up to the full diagonal.
func searchBandwidth(ctx context.Context, pts []geom.Point, x [][]float64, y []float64,
	kernel string, progress analysis.Progress) (float64, error) {

	bounds := geom.EmptyBBox()
	for _, pt := range pts {
		bounds = bounds.Extend(pt)
	}
	diag := math.Hypot(bounds.Width(), bounds.Height())
	if diag == 0 {
		return 0, analysis.ErrInvalidParameter("all locations are coincident, bandwidth search undefined")
	}

	const candidates = 10
	best, bestScore := diag, math.Inf(1)
	for c := 0; c < candidates; c++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		bw := diag / 10 * math.Pow(10, float64(c)/float64(candidates-1))
		score, err := cvScore(pts, x, y, kernel, bw)
		if err != nil {
			continue // a too-narrow bandwidth can starve the local fit
		}
		if score < bestScore {
			best, bestScore = bw, score
		}
		progress(0.5*float64(c+1)/candidates, "searching bandwidth")
	}
	if math.IsInf(bestScore, 1) {
		return 0, analysis.ErrInvalidParameter("no candidate bandwidth produced a solvable local fit")
	}
	return best, nil
}

func cvScore(pts []geom.Point, x [][]float64, y []float64, kernel string, bandwidth float64) (float64, error) {
	n := len(pts)
	var score float64
	for i := 0; i < n; i++ {
		weights := make([]float64, n)
		for j := 0; j < n; j++ {
			if j == i {
				continue // leave the prediction point out
			}
			weights[j] = kernelWeight(kernel, pts[i].DistanceTo(pts[j]), bandwidth)
		}
		fit, err := fitWLS(x, y, weights)
		if err != nil {
			return 0, err
		}
		var pred float64
		for a := range fit.coefficients {
			pred += fit.coefficients[a] * x[i][a]
		}
		score += (y[i] - pred) * (y[i] - pred)
	}
	return score, nil
}

func spatialLagDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryRegression,
		Name:        "spatial-lag",
		Description: "regression with a spatially lagged dependent variable from distance-band weights",
		MinFeatures: 5,
		Schema: analysis.ParamSchema{
			"y": {Type: "string", Required: true, FieldRef: true},
			"x": {Type: "array", Items: "string", Required: true, FieldRef: true},
			"band": {Type: "number", Required: true,
				Minimum: analysis.Float64Ptr(0), ExclusiveMin: true,
				Description: "neighbor distance for the weights matrix"},
		},
		Merge:   analysis.MergeNone,
		Compute: computeSpatialLag,
	}
}

func computeSpatialLag(_ context.Context, d *dataset.Dataset, p analysis.Params,
	_ analysis.Progress) (map[string]any, error) {

	yField, _ := p.String("y")
	xFields, ok := p.Strings("x")
	if !ok || len(xFields) == 0 {
		return nil, analysis.ErrInvalidParameter("x must be a non-empty array of field names")
	}
	band, _ := p.Float("band")

	x, y, idx, err := designMatrix(d, yField, xFields)
	if err != nil {
		return nil, err
	}
	n := len(x)

	// Row-standardized distance-band weights over the complete rows.
	allCentroids := d.Centroids()
	lag := make([]float64, n)
	isolated := 0
	for i := 0; i < n; i++ {
		var sum float64
		var count int
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if allCentroids[idx[i]].DistanceTo(allCentroids[idx[j]]) <= band {
				sum += y[j]
				count++
			}
		}
		if count == 0 {
			isolated++
			continue // lag stays zero for features with no neighbors
		}
		lag[i] = sum / float64(count)
	}
	if isolated == n {
		return nil, analysis.ErrInvalidParameter("band %g links no features, weights matrix is empty", band)
	}

	// Design: intercept, Wy, then the predictors. Rho is the lag
	// coefficient.
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = append([]float64{x[i][0], lag[i]}, x[i][1:]...)
	}
	fit, err := fitOLS(aug, y)
	if err != nil {
		return nil, err
	}

	names := append([]string{"lag"}, xFields...)
	return map[string]any{
		"rho":           fit.coefficients[1],
		"rho_std_error": fit.stdErrors[1],
		"coefficients":  coefficientPayload(names, fit.coefficients, fit.stdErrors),
		"r_squared":     fit.r2,
		"adj_r_squared": fit.adjR2,
		"band":          band,
		"isolated":      isolated,
		"observations":  fit.n,
	}, nil
}
