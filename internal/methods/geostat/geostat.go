// Package geostat implements field statistics: descriptive summaries,
// Moran's I spatial autocorrelation and the empirical semivariogram.
package geostat

import (
	"context"
	"math"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/numeric"
)

// Register adds the geostatistics methods to the catalog.
func Register(r *analysis.Registry) error {
	for _, d := range []*analysis.Descriptor{
		descriptiveDescriptor(),
		moranDescriptor(),
		semivariogramDescriptor(),
	} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func descriptiveDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryGeostatistics,
		Name:        "descriptive",
		Description: "mean/std/skewness/kurtosis plus quantiles over a field, missing values skipped",
		MinFeatures: 1,
		Schema: analysis.ParamSchema{
			"field": {Type: "string", Required: true, FieldRef: true},
		},
		Merge:            analysis.MergeReduce,
		Compute:          computeDescriptive,
		ComputePartition: computeDescriptivePartition,
		Reduce:           reduceDescriptive,
	}
}

func computeDescriptive(_ context.Context, d *dataset.Dataset, p analysis.Params,
	_ analysis.Progress) (map[string]any, error) {

	field, _ := p.String("field")
	values, _ := d.NumericField(field)
	return describeValues(values, d.Len())
}

// computeDescriptivePartition collects the partition's non-missing
// values; the reduce step sees them concatenated in partition order,
// which keeps the result identical for any partition size.
func computeDescriptivePartition(_ context.Context, _ *dataset.Dataset, part dataset.Partition,
	p analysis.Params) (map[string]any, error) {

	field, _ := p.String("field")
	values := make([]float64, 0, len(part.Features))
	for _, f := range part.Features {
		if v, ok := analysis.Params(f.Attributes).Float(field); ok {
			values = append(values, v)
		}
	}
	return map[string]any{"values": values, "total": len(part.Features)}, nil
}

func reduceDescriptive(d *dataset.Dataset, _ analysis.Params,
	partials []map[string]any) (map[string]any, error) {

	var values []float64
	var total int
	for _, partial := range partials {
		vs, _ := partial["values"].([]float64)
		values = append(values, vs...)
		if t, ok := analysis.Params(partial).Int("total"); ok {
			total += t
		}
	}
	return describeValues(values, total)
}

// describeValues computes the full summary. Missing values were
// already skipped upstream; an all-missing field is still a result,
// not an error.
func describeValues(values []float64, total int) (map[string]any, error) {
	n := len(values)
	out := map[string]any{
		"count":         n,
		"count_missing": total - n,
	}
	if n == 0 {
		return out, nil
	}

	mean := numeric.Mean(values)
	variance := numeric.Variance(values)
	std := math.Sqrt(variance)

	var m3, m4 float64
	minV, maxV := values[0], values[0]
	for _, v := range values {
		d := v - mean
		m3 += d * d * d
		m4 += d * d * d * d
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	m3 /= float64(n)
	m4 /= float64(n)

	skewness, kurtosis := 0.0, 0.0
	if std > 0 {
		skewness = m3 / (std * std * std)
		kurtosis = m4/(variance*variance) - 3 // excess kurtosis
	}

	out["mean"] = mean
	out["std"] = std
	out["variance"] = variance
	out["skewness"] = skewness
	out["kurtosis"] = kurtosis
	out["min"] = minV
	out["max"] = maxV
	out["median"] = numeric.Quantile(values, 0.5)
	out["q1"] = numeric.Quantile(values, 0.25)
	out["q3"] = numeric.Quantile(values, 0.75)
	return out, nil
}

func moranDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryGeostatistics,
		Name:        "morans-i",
		Description: "global Moran's I with queen/rook/distance-band contiguity",
		MinFeatures: 3,
		Schema: analysis.ParamSchema{
			"field": {Type: "string", Required: true, FieldRef: true},
			"contiguity": {Type: "string", Enum: []string{"queen", "rook", "distance-band"},
				Default: "queen"},
			"band": {Type: "number", Minimum: analysis.Float64Ptr(0), ExclusiveMin: true,
				Description: "neighbor distance for distance-band contiguity"},
		},
		Merge:   analysis.MergeNone,
		Compute: computeMoran,
	}
}

func computeMoran(_ context.Context, d *dataset.Dataset, p analysis.Params,
	_ analysis.Progress) (map[string]any, error) {

	field, _ := p.String("field")
	values, idx := d.NumericField(field)
	n := len(values)
	if n < 3 {
		return nil, analysis.ErrInvalidParameter("morans-i needs at least 3 numeric values for %q", field)
	}

	w, err := contiguityWeights(d, idx, p)
	if err != nil {
		return nil, err
	}

	mean := numeric.Mean(values)
	z := make([]float64, n)
	var denom float64
	for i, v := range values {
		z[i] = v - mean
		denom += z[i] * z[i]
	}
	if denom == 0 {
		return nil, analysis.ErrInvalidParameter("field %q is constant, autocorrelation undefined", field)
	}

	var num, s0 float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if w[i][j] == 0 {
				continue
			}
			num += w[i][j] * z[i] * z[j]
			s0 += w[i][j]
		}
	}
	if s0 == 0 {
		return nil, analysis.ErrInvalidParameter("contiguity definition produced no neighbors")
	}

	moran := float64(n) / s0 * num / denom
	expected := -1 / float64(n-1)

	// Variance under the normality assumption.
	var s1, s2 float64
	for i := 0; i < n; i++ {
		var rowSum, colSum float64
		for j := 0; j < n; j++ {
			sym := w[i][j] + w[j][i]
			s1 += sym * sym
			rowSum += w[i][j]
			colSum += w[j][i]
		}
		s2 += (rowSum + colSum) * (rowSum + colSum)
	}
	s1 /= 2
	nf := float64(n)
	variance := (nf*nf*s1-nf*s2+3*s0*s0)/((nf*nf-1)*s0*s0) - expected*expected

	zScore := 0.0
	if variance > 0 {
		zScore = (moran - expected) / math.Sqrt(variance)
	}

	return map[string]any{
		"statistic":  moran,
		"expected":   expected,
		"variance":   variance,
		"z_score":    zScore,
		"p_value":    2 * (1 - numeric.NormalCDF(math.Abs(zScore))),
		"neighbors":  s0,
		"contiguity": p.StringOr("contiguity", "queen"),
	}, nil
}

func semivariogramDescriptor() *analysis.Descriptor {
	return &analysis.Descriptor{
		Category:    analysis.CategoryGeostatistics,
		Name:        "semivariogram",
		Description: "binned empirical semivariogram up to a maximum lag",
		Geometry:    nil,
		MinFeatures: 3,
		Schema: analysis.ParamSchema{
			"field":   {Type: "string", Required: true, FieldRef: true},
			"max_lag": {Type: "number", Required: true, Minimum: analysis.Float64Ptr(0), ExclusiveMin: true},
			"lags":    {Type: "integer", Default: 12, Minimum: analysis.Float64Ptr(1)},
		},
		Merge:            analysis.MergeReduce,
		Compute:          computeSemivariogram,
		ComputePartition: computeSemivariogramPartition,
		Reduce:           reduceSemivariogram,
	}
}

// semivariogramSums accumulates pair sums for features [from, to) of
// the globally indexed point list, pairing each with all later points
// so no pair is counted twice across partitions.
func semivariogramSums(d *dataset.Dataset, p analysis.Params, from, to int) ([]float64, []float64) {
	field, _ := p.String("field")
	values, idx := d.NumericField(field)
	centroids := d.Centroids()
	maxLag := p.FloatOr("max_lag", 1)
	lags := p.IntOr("lags", 12)
	width := maxLag / float64(lags)

	sums := make([]float64, lags)
	counts := make([]float64, lags)

	for a := 0; a < len(values); a++ {
		if idx[a] < from || idx[a] >= to {
			continue
		}
		for b := a + 1; b < len(values); b++ {
			dist := centroids[idx[a]].DistanceTo(centroids[idx[b]])
			if dist > maxLag || dist == 0 {
				continue
			}
			bin := int(dist / width)
			if bin >= lags {
				bin = lags - 1
			}
			diff := values[a] - values[b]
			sums[bin] += diff * diff / 2
			counts[bin]++
		}
	}
	return sums, counts
}

func computeSemivariogram(_ context.Context, d *dataset.Dataset, p analysis.Params,
	_ analysis.Progress) (map[string]any, error) {

	sums, counts := semivariogramSums(d, p, 0, d.Len())
	return semivariogramPayload(p, sums, counts), nil
}

func computeSemivariogramPartition(_ context.Context, d *dataset.Dataset, part dataset.Partition,
	p analysis.Params) (map[string]any, error) {

	sums, counts := semivariogramSums(d, p, part.Offset, part.Offset+len(part.Features))
	return map[string]any{"sums": sums, "counts": counts}, nil
}

func reduceSemivariogram(_ *dataset.Dataset, p analysis.Params,
	partials []map[string]any) (map[string]any, error) {

	lags := p.IntOr("lags", 12)
	sums := make([]float64, lags)
	counts := make([]float64, lags)
	for _, partial := range partials {
		ps, _ := partial["sums"].([]float64)
		pc, _ := partial["counts"].([]float64)
		for i := 0; i < lags && i < len(ps); i++ {
			sums[i] += ps[i]
			counts[i] += pc[i]
		}
	}
	return semivariogramPayload(p, sums, counts), nil
}

func semivariogramPayload(p analysis.Params, sums, counts []float64) map[string]any {
	maxLag := p.FloatOr("max_lag", 1)
	lags := p.IntOr("lags", 12)
	width := maxLag / float64(lags)

	lagCenters := make([]float64, lags)
	gamma := make([]float64, lags)
	pairs := make([]float64, lags)
	for i := 0; i < lags; i++ {
		lagCenters[i] = width * (float64(i) + 0.5)
		pairs[i] = counts[i]
		if counts[i] > 0 {
			gamma[i] = sums[i] / counts[i]
		}
	}
	return map[string]any{
		"lags":    lagCenters,
		"gamma":   gamma,
		"pairs":   pairs,
		"max_lag": maxLag,
	}
}
