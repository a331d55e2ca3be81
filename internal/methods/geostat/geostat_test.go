package geostat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
)

func valueField() []dataset.Field {
	return []dataset.Field{{Name: "value", Type: dataset.FieldNumber}}
}

// linePoints puts features at x = 0..n-1 on the x axis with the given
// values; a nil entry leaves the attribute missing.
func linePoints(values []any) *dataset.Dataset {
	features := make([]dataset.Feature, len(values))
	for i, v := range values {
		attrs := map[string]any{}
		if v != nil {
			attrs["value"] = v
		}
		features[i] = dataset.Feature{
			ID:         fmt.Sprintf("f-%d", i),
			Geometry:   geom.NewPoint(float64(i), 0),
			Attributes: attrs,
		}
	}
	return dataset.New(geom.WebMerc, valueField(), features)
}

// checkerboard builds a 3x3 grid of unit square polygons with value
// (col+row) mod 2, the classic alternating surface.
func checkerboard() *dataset.Dataset {
	var features []dataset.Feature
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			x, y := float64(col), float64(row)
			features = append(features, dataset.Feature{
				ID: fmt.Sprintf("cell-%d-%d", col, row),
				Geometry: geom.NewPolygon(
					geom.Point{X: x, Y: y},
					geom.Point{X: x + 1, Y: y},
					geom.Point{X: x + 1, Y: y + 1},
					geom.Point{X: x, Y: y + 1},
				),
				Attributes: map[string]any{"value": float64((col + row) % 2)},
			})
		}
	}
	return dataset.New(geom.WebMerc, valueField(), features)
}

func TestComputeDescriptive(t *testing.T) {
	ctx := context.Background()

	t.Run("summary over a known sample", func(t *testing.T) {
		// Arrange - {2,4,4,4,5,5,7,9} plus one missing value
		d := linePoints([]any{2.0, 4.0, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0, nil})
		params := analysis.Params{"field": "value"}

		// Act
		payload, err := computeDescriptive(ctx, d, params, analysis.NopProgress)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 8, payload["count"])
		assert.Equal(t, 1, payload["count_missing"])
		assert.InDelta(t, 5.0, payload["mean"].(float64), 1e-9)
		assert.InDelta(t, 2.0, payload["std"].(float64), 1e-9)
		assert.InDelta(t, 4.0, payload["variance"].(float64), 1e-9)
		assert.InDelta(t, 0.65625, payload["skewness"].(float64), 1e-9)
		assert.InDelta(t, -0.21875, payload["kurtosis"].(float64), 1e-9)
		assert.Equal(t, 2.0, payload["min"])
		assert.Equal(t, 9.0, payload["max"])
		assert.InDelta(t, 4.5, payload["median"].(float64), 1e-9)
		assert.InDelta(t, 4.0, payload["q1"].(float64), 1e-9)
		assert.InDelta(t, 5.5, payload["q3"].(float64), 1e-9)
	})

	t.Run("all-missing field is a result, not an error", func(t *testing.T) {
		d := linePoints([]any{nil, nil, nil})

		payload, err := computeDescriptive(ctx, d, analysis.Params{"field": "value"}, analysis.NopProgress)

		require.NoError(t, err)
		assert.Equal(t, 0, payload["count"])
		assert.Equal(t, 3, payload["count_missing"])
		assert.NotContains(t, payload, "mean")
	})

	t.Run("partitioned run reduces to the whole-dataset summary", func(t *testing.T) {
		// Arrange
		d := linePoints([]any{2.0, 4.0, nil, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0})
		params := analysis.Params{"field": "value"}
		whole, err := computeDescriptive(ctx, d, params, analysis.NopProgress)
		require.NoError(t, err)

		// Act
		var partials []map[string]any
		for _, part := range d.Partitions(4) {
			partial, err := computeDescriptivePartition(ctx, d, part, params)
			require.NoError(t, err)
			partials = append(partials, partial)
		}
		reduced, err := reduceDescriptive(d, params, partials)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, whole, reduced)
	})
}

func TestComputeMoran(t *testing.T) {
	ctx := context.Background()

	t.Run("checkerboard under rook contiguity is negatively autocorrelated", func(t *testing.T) {
		// Arrange
		d := checkerboard()
		params := analysis.Params{"field": "value", "contiguity": "rook"}

		// Act
		payload, err := computeMoran(ctx, d, params, analysis.NopProgress)

		// Assert - alternating values put I well below E[I]
		require.NoError(t, err)
		moran := payload["statistic"].(float64)
		expected := payload["expected"].(float64)
		assert.InDelta(t, -0.125, expected, 1e-9)
		assert.Less(t, moran, expected)
		assert.Negative(t, payload["z_score"].(float64))
		assert.Equal(t, "rook", payload["contiguity"])
	})

	t.Run("queen contiguity adds diagonal neighbors", func(t *testing.T) {
		d := checkerboard()

		rook, err := computeMoran(ctx, d,
			analysis.Params{"field": "value", "contiguity": "rook"}, analysis.NopProgress)
		require.NoError(t, err)
		queen, err := computeMoran(ctx, d,
			analysis.Params{"field": "value", "contiguity": "queen"}, analysis.NopProgress)
		require.NoError(t, err)

		assert.Greater(t,
			queen["neighbors"].(float64),
			rook["neighbors"].(float64))
	})

	t.Run("distance band links nearby points", func(t *testing.T) {
		// Arrange - alternating values along a line, neighbors one apart
		d := linePoints([]any{0.0, 1.0, 0.0, 1.0, 0.0, 1.0})
		params := analysis.Params{"field": "value", "contiguity": "distance-band", "band": 1.5}

		// Act
		payload, err := computeMoran(ctx, d, params, analysis.NopProgress)

		// Assert
		require.NoError(t, err)
		assert.Less(t, payload["statistic"].(float64), payload["expected"].(float64))
	})

	t.Run("distance band requires a positive band", func(t *testing.T) {
		d := linePoints([]any{0.0, 1.0, 0.0})
		_, err := computeMoran(ctx, d,
			analysis.Params{"field": "value", "contiguity": "distance-band"}, analysis.NopProgress)

		var comp *analysis.ComputationError
		require.ErrorAs(t, err, &comp)
		assert.Equal(t, analysis.CodeInvalidParameter, comp.Code())
	})

	t.Run("queen contiguity rejects non-polygon data", func(t *testing.T) {
		d := linePoints([]any{0.0, 1.0, 0.0})
		_, err := computeMoran(ctx, d,
			analysis.Params{"field": "value", "contiguity": "queen"}, analysis.NopProgress)
		assert.Error(t, err)
	})

	t.Run("constant field is rejected", func(t *testing.T) {
		d := linePoints([]any{5.0, 5.0, 5.0, 5.0})
		_, err := computeMoran(ctx, d,
			analysis.Params{"field": "value", "contiguity": "distance-band", "band": 1.5},
			analysis.NopProgress)
		assert.Error(t, err)
	})
}

func TestContiguityWeights(t *testing.T) {
	t.Run("diagonal squares share a vertex but not an edge", func(t *testing.T) {
		a := geom.NewPolygon(
			geom.Point{X: 0, Y: 0}, geom.Point{X: 1, Y: 0},
			geom.Point{X: 1, Y: 1}, geom.Point{X: 0, Y: 1})
		b := geom.NewPolygon(
			geom.Point{X: 1, Y: 1}, geom.Point{X: 2, Y: 1},
			geom.Point{X: 2, Y: 2}, geom.Point{X: 1, Y: 2})

		assert.True(t, sharesVertex(a, b))
		assert.False(t, sharesEdge(a, b))
	})

	t.Run("adjacent squares share an edge", func(t *testing.T) {
		a := geom.NewPolygon(
			geom.Point{X: 0, Y: 0}, geom.Point{X: 1, Y: 0},
			geom.Point{X: 1, Y: 1}, geom.Point{X: 0, Y: 1})
		b := geom.NewPolygon(
			geom.Point{X: 1, Y: 0}, geom.Point{X: 2, Y: 0},
			geom.Point{X: 2, Y: 1}, geom.Point{X: 1, Y: 1})

		assert.True(t, sharesEdge(a, b))
	})
}

func TestComputeSemivariogram(t *testing.T) {
	ctx := context.Background()

	t.Run("linear transect yields quadratic gamma per lag", func(t *testing.T) {
		// Arrange - values 0..4 at unit spacing
		d := linePoints([]any{0.0, 1.0, 2.0, 3.0, 4.0})
		params := analysis.Params{"field": "value", "max_lag": 5.0, "lags": 5}

		// Act
		payload, err := computeSemivariogram(ctx, d, params, analysis.NopProgress)

		// Assert - gamma(h) = h^2/2 for a linear surface
		require.NoError(t, err)
		gamma := payload["gamma"].([]float64)
		pairs := payload["pairs"].([]float64)
		require.Len(t, gamma, 5)
		assert.Equal(t, []float64{0, 4, 3, 2, 1}, pairs)
		assert.InDelta(t, 0.5, gamma[1], 1e-9)
		assert.InDelta(t, 2.0, gamma[2], 1e-9)
		assert.InDelta(t, 4.5, gamma[3], 1e-9)
		assert.InDelta(t, 8.0, gamma[4], 1e-9)
		centers := payload["lags"].([]float64)
		assert.InDelta(t, 0.5, centers[0], 1e-9)
		assert.InDelta(t, 4.5, centers[4], 1e-9)
	})

	t.Run("partitioned sums reduce to the whole-dataset variogram", func(t *testing.T) {
		// Arrange
		d := linePoints([]any{0.0, 3.0, 1.0, 4.0, 2.0, 5.0, 1.0})
		params := analysis.Params{"field": "value", "max_lag": 6.0, "lags": 4}
		whole, err := computeSemivariogram(ctx, d, params, analysis.NopProgress)
		require.NoError(t, err)

		// Act
		var partials []map[string]any
		for _, part := range d.Partitions(3) {
			partial, err := computeSemivariogramPartition(ctx, d, part, params)
			require.NoError(t, err)
			partials = append(partials, partial)
		}
		reduced, err := reduceSemivariogram(d, params, partials)

		// Assert - pair sums split by partition must recombine exactly
		require.NoError(t, err)
		assert.Equal(t, whole, reduced)
	})
}

func TestRegister(t *testing.T) {
	r := analysis.NewRegistry()
	require.NoError(t, Register(r))
	assert.Equal(t, 3, r.Len())

	desc, err := r.Resolve(analysis.CategoryGeostatistics, "descriptive")
	require.NoError(t, err)
	assert.NotNil(t, desc.Reduce)
}
