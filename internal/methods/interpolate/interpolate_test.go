package interpolate

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

func sampleDataset(samples [][3]float64) *dataset.Dataset {
	features := make([]dataset.Feature, len(samples))
	for i, s := range samples {
		features[i] = dataset.Feature{
			ID:         fmt.Sprintf("s-%d", i),
			Geometry:   geom.NewPoint(s[0], s[1]),
			Attributes: map[string]any{"z": s[2]},
		}
	}
	return dataset.New(geom.WebMerc,
		[]dataset.Field{{Name: "z", Type: dataset.FieldNumber}}, features)
}

func TestComputeIDW(t *testing.T) {
	ctx := context.Background()

	t.Run("coincident sample short-circuits to its exact value", func(t *testing.T) {
		// Arrange - sample at (1,1) sits exactly on a cell center
		d := sampleDataset([][3]float64{
			{0, 0, 10}, {2, 0, 20}, {0, 2, 30}, {2, 2, 40}, {1, 1, 42},
		})
		params := analysis.Params{"field": "z", "cell_size": 2.0, "power": 2.0, "radius": 10.0}

		// Act
		payload, err := computeIDW(ctx, d, params, analysis.NopProgress)

		// Assert - first cell center is (1,1)
		require.NoError(t, err)
		values := payload["values"].([]any)
		assert.Equal(t, 42.0, values[0])
	})

	t.Run("estimates stay within the sample range", func(t *testing.T) {
		d := sampleDataset([][3]float64{
			{0, 0, 10}, {4, 0, 20}, {0, 4, 30}, {4, 4, 40},
		})
		params := analysis.Params{"field": "z", "cell_size": 1.0, "power": 2.0, "radius": 100.0}

		payload, err := computeIDW(ctx, d, params, analysis.NopProgress)

		require.NoError(t, err)
		for _, v := range payload["values"].([]any) {
			require.NotNil(t, v)
			f := v.(float64)
			assert.GreaterOrEqual(t, f, 10.0)
			assert.LessOrEqual(t, f, 40.0)
		}
	})

	t.Run("cells outside the search radius carry no estimate", func(t *testing.T) {
		// Arrange - two distant samples, tiny radius
		d := sampleDataset([][3]float64{
			{0, 0, 1}, {10, 10, 2},
		})
		params := analysis.Params{"field": "z", "cell_size": 1.0, "power": 2.0, "radius": 0.25}

		// Act
		payload, err := computeIDW(ctx, d, params, analysis.NopProgress)

		// Assert - at least one interior cell is unreachable
		require.NoError(t, err)
		var nils int
		for _, v := range payload["values"].([]any) {
			if v == nil {
				nils++
			}
		}
		assert.Greater(t, nils, 0)
	})

	t.Run("non-positive radius is rejected at runtime", func(t *testing.T) {
		d := sampleDataset([][3]float64{{0, 0, 1}, {1, 1, 2}})
		params := analysis.Params{"field": "z", "cell_size": 1.0, "power": 2.0, "radius": 0.0}

		_, err := computeIDW(ctx, d, params, analysis.NopProgress)

		var comp *analysis.ComputationError
		require.ErrorAs(t, err, &comp)
		assert.Equal(t, analysis.CodeInvalidParameter, comp.Code())
	})

	t.Run("grid dimensions cover the bounds", func(t *testing.T) {
		d := sampleDataset([][3]float64{
			{0, 0, 1}, {5, 3, 2},
		})
		params := analysis.Params{"field": "z", "cell_size": 1.0, "power": 2.0, "radius": 100.0}

		payload, err := computeIDW(ctx, d, params, analysis.NopProgress)

		require.NoError(t, err)
		cols := payload["cols"].(int)
		rows := payload["rows"].(int)
		assert.Equal(t, 6, cols)
		assert.Equal(t, 4, rows)
		assert.Len(t, payload["values"], cols*rows)
	})
}

func TestComputeKriging(t *testing.T) {
	ctx := context.Background()

	t.Run("honors sample values at sample locations", func(t *testing.T) {
		// Arrange - samples on cell centers of a cell_size 2 grid
		d := sampleDataset([][3]float64{
			{1, 1, 5}, {3, 1, 7}, {1, 3, 9}, {3, 3, 11},
		})
		params := analysis.Params{"field": "z", "cell_size": 2.0, "model": "spherical", "lags": 6}

		// Act
		payload, err := computeKriging(ctx, d, params, analysis.NopProgress)

		// Assert - the first cell center (2,2) is equidistant from all
		// four samples, so the weights are equal and the estimate is
		// their mean
		require.NoError(t, err)
		values := payload["values"].([]any)
		assert.InDelta(t, 8.0, values[0].(float64), 1e-6)
		assert.Equal(t, "spherical", payload["model"])
		assert.Positive(t, payload["sill"].(float64))
	})

	t.Run("duplicate samples make the system singular", func(t *testing.T) {
		// Arrange - two coincident samples
		d := sampleDataset([][3]float64{
			{0, 0, 1}, {0, 0, 2}, {1, 1, 3},
		})
		params := analysis.Params{"field": "z", "cell_size": 1.0, "model": "spherical", "lags": 6}

		// Act
		_, err := computeKriging(ctx, d, params, analysis.NopProgress)

		// Assert
		var comp *analysis.ComputationError
		require.ErrorAs(t, err, &comp)
		assert.Equal(t, analysis.CodeSingularMatrix, comp.Code())
	})

	t.Run("coincident dataset fails", func(t *testing.T) {
		d := sampleDataset([][3]float64{
			{2, 2, 1}, {2, 2, 2}, {2, 2, 3},
		})
		params := analysis.Params{"field": "z", "cell_size": 1.0}
		_, err := computeKriging(ctx, d, params, analysis.NopProgress)
		assert.Error(t, err)
	})
}

func TestComputeSpline(t *testing.T) {
	ctx := context.Background()

	t.Run("interpolates samples exactly without smoothing", func(t *testing.T) {
		// Arrange - sample at (1,1) on a cell center of a cell_size 2 grid
		d := sampleDataset([][3]float64{
			{0, 0, 0}, {2, 0, 2}, {0, 2, 4}, {1, 1, 3},
		})
		params := analysis.Params{"field": "z", "cell_size": 2.0, "smoothing": 0.0}

		// Act
		payload, err := computeSpline(ctx, d, params, analysis.NopProgress)

		// Assert
		require.NoError(t, err)
		values := payload["values"].([]any)
		assert.InDelta(t, 3.0, values[0].(float64), 1e-6)
	})

	t.Run("smoothing parameter is echoed", func(t *testing.T) {
		d := sampleDataset([][3]float64{
			{0, 0, 0}, {3, 0, 2}, {0, 3, 4}, {3, 3, 1},
		})
		params := analysis.Params{"field": "z", "cell_size": 1.0, "smoothing": 0.5}

		payload, err := computeSpline(ctx, d, params, analysis.NopProgress)

		require.NoError(t, err)
		assert.Equal(t, 0.5, payload["smoothing"])
	})

	t.Run("too few samples fail", func(t *testing.T) {
		d := sampleDataset([][3]float64{{0, 0, 1}, {1, 1, 2}})
		params := analysis.Params{"field": "z", "cell_size": 1.0}
		_, err := computeSpline(ctx, d, params, analysis.NopProgress)
		assert.Error(t, err)
	})
}

func TestVariogram(t *testing.T) {
	t.Run("model is zero at lag zero and reaches the sill", func(t *testing.T) {
		m := variogramModel{kind: "spherical", nugget: 0.5, sill: 2.0, rang: 10}

		assert.Zero(t, m.at(0))
		assert.Equal(t, 2.0, m.at(10))
		assert.Equal(t, 2.0, m.at(50))
		between := m.at(5)
		assert.Greater(t, between, 0.5)
		assert.Less(t, between, 2.0)
	})

	t.Run("exponential and gaussian approach the sill asymptotically", func(t *testing.T) {
		for _, kind := range []string{"exponential", "gaussian"} {
			m := variogramModel{kind: kind, nugget: 0, sill: 1, rang: 5}
			assert.InDelta(t, 1.0, m.at(50), 0.01, kind)
			assert.Less(t, m.at(1), 1.0, kind)
		}
	})

	t.Run("empirical bins drop empty lags", func(t *testing.T) {
		pts := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
		values := []float64{1, 3, 2}

		bins := empiricalSemivariogram(pts, values, 4, 2)

		for _, b := range bins {
			assert.Positive(t, b.pairs)
		}
	})
}

func TestRegister(t *testing.T) {
	r := analysis.NewRegistry()
	require.NoError(t, Register(r))
	assert.Equal(t, 3, r.Len())

	desc, err := r.Resolve(analysis.CategoryInterpolation, "kriging")
	require.NoError(t, err)
	assert.True(t, desc.LongRunning)
}
