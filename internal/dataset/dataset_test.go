package dataset

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapforge/spatialkit/internal/geom"
)

func pointFeature(id string, x, y float64, attrs map[string]any) Feature {
	return Feature{ID: id, Geometry: geom.NewPoint(x, y), Attributes: attrs}
}

func testDataset(n int) *Dataset {
	features := make([]Feature, n)
	for i := 0; i < n; i++ {
		features[i] = pointFeature(
			fmt.Sprintf("f-%03d", i),
			float64(i), float64(i%10),
			map[string]any{"value": float64(i)},
		)
	}
	return New(geom.WebMerc, []Field{{Name: "value", Type: FieldNumber}}, features)
}

func TestDataset_Fingerprint(t *testing.T) {
	t.Run("identical content hashes identically", func(t *testing.T) {
		// Arrange
		features := []Feature{pointFeature("a", 1, 2, map[string]any{"v": 1.0})}
		fields := []Field{{Name: "v", Type: FieldNumber}}

		// Act
		d1 := New(geom.WGS84, fields, features)
		d2 := New(geom.WGS84, fields, features)

		// Assert - ids differ, fingerprints match
		assert.NotEqual(t, d1.ID(), d2.ID())
		assert.Equal(t, d1.Fingerprint(), d2.Fingerprint())
	})

	t.Run("geometry change changes the fingerprint", func(t *testing.T) {
		fields := []Field{{Name: "v", Type: FieldNumber}}
		d1 := New(geom.WGS84, fields, []Feature{pointFeature("a", 1, 2, nil)})
		d2 := New(geom.WGS84, fields, []Feature{pointFeature("a", 1, 2.000001, nil)})

		assert.NotEqual(t, d1.Fingerprint(), d2.Fingerprint())
	})

	t.Run("attribute change changes the fingerprint", func(t *testing.T) {
		d1 := New(geom.WGS84, nil, []Feature{pointFeature("a", 1, 2, map[string]any{"v": 1.0})})
		d2 := New(geom.WGS84, nil, []Feature{pointFeature("a", 1, 2, map[string]any{"v": 2.0})})

		assert.NotEqual(t, d1.Fingerprint(), d2.Fingerprint())
	})

	t.Run("crs change changes the fingerprint", func(t *testing.T) {
		features := []Feature{pointFeature("a", 1, 2, nil)}
		d1 := New(geom.WGS84, nil, features)
		d2 := New(geom.WebMerc, nil, features)

		assert.NotEqual(t, d1.Fingerprint(), d2.Fingerprint())
	})

	t.Run("WithID keeps the fingerprint", func(t *testing.T) {
		d := testDataset(3)
		renamed := d.WithID("stable-id")

		assert.Equal(t, "stable-id", renamed.ID())
		assert.Equal(t, d.Fingerprint(), renamed.Fingerprint())
	})
}

func TestDataset_Partitions(t *testing.T) {
	t.Run("splits into ordered non-overlapping slices", func(t *testing.T) {
		// Arrange
		d := testDataset(10)

		// Act
		parts := d.Partitions(3)

		// Assert
		require.Len(t, parts, 4)
		total := 0
		for i, p := range parts {
			assert.Equal(t, i, p.Index)
			assert.Equal(t, total, p.Offset)
			total += len(p.Features)
		}
		assert.Equal(t, 10, total)
		assert.Len(t, parts[3].Features, 1, "last partition holds the remainder")
	})

	t.Run("non-positive size yields one partition", func(t *testing.T) {
		d := testDataset(5)
		parts := d.Partitions(0)
		require.Len(t, parts, 1)
		assert.Len(t, parts[0].Features, 5)
	})

	t.Run("size beyond length yields one partition", func(t *testing.T) {
		d := testDataset(5)
		assert.Len(t, d.Partitions(100), 1)
	})
}

func TestDataset_NumericField(t *testing.T) {
	t.Run("missing and non-numeric values are skipped", func(t *testing.T) {
		// Arrange
		features := []Feature{
			pointFeature("a", 0, 0, map[string]any{"v": 1.0}),
			pointFeature("b", 1, 0, nil),
			pointFeature("c", 2, 0, map[string]any{"v": "text"}),
			pointFeature("d", 3, 0, map[string]any{"v": 4}),
		}
		d := New(geom.WebMerc, []Field{{Name: "v", Type: FieldNumber}}, features)

		// Act
		values, idx := d.NumericField("v")

		// Assert
		assert.Equal(t, []float64{1, 4}, values)
		assert.Equal(t, []int{0, 3}, idx)
	})

	t.Run("unknown field yields nothing", func(t *testing.T) {
		d := testDataset(3)
		values, idx := d.NumericField("absent")
		assert.Empty(t, values)
		assert.Empty(t, idx)
	})
}

func TestDataset_Nearest(t *testing.T) {
	t.Run("returns k neighbors nearest first", func(t *testing.T) {
		// Arrange - points on a line at x = 0, 1, 2, 5
		features := []Feature{
			pointFeature("a", 0, 0, nil),
			pointFeature("b", 1, 0, nil),
			pointFeature("c", 2, 0, nil),
			pointFeature("d", 5, 0, nil),
		}
		d := New(geom.WebMerc, nil, features)

		// Act
		ids, dists, err := d.Nearest("a", 2)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids)
		assert.Equal(t, []float64{1, 2}, dists)
	})

	t.Run("unknown feature fails", func(t *testing.T) {
		d := testDataset(3)
		_, _, err := d.Nearest("nope", 1)
		assert.Error(t, err)
	})

	t.Run("k is clamped to the dataset size", func(t *testing.T) {
		d := testDataset(3)
		ids, _, err := d.Nearest("f-000", 10)
		require.NoError(t, err)
		assert.Len(t, ids, 2)
	})
}

func TestMemStore(t *testing.T) {
	t.Run("put then resolve", func(t *testing.T) {
		store := NewMemStore()
		d := testDataset(2)
		store.Put(d)

		got, err := store.Dataset(context.Background(), d.ID())
		require.NoError(t, err)
		assert.Same(t, d, got)
	})

	t.Run("unknown id fails", func(t *testing.T) {
		store := NewMemStore()
		_, err := store.Dataset(context.Background(), "missing")
		assert.Error(t, err)
	})
}

func TestFromGeoJSON(t *testing.T) {
	t.Run("parses a mixed-attribute point collection", func(t *testing.T) {
		// Arrange
		raw := []byte(`{
			"type": "FeatureCollection",
			"features": [
				{"type": "Feature", "id": "p1",
				 "geometry": {"type": "Point", "coordinates": [1, 2]},
				 "properties": {"pop": 100, "name": "alpha"}},
				{"type": "Feature",
				 "geometry": {"type": "Point", "coordinates": [3, 4]},
				 "properties": {"pop": 250, "name": "beta"}}
			]
		}`)

		// Act
		d, err := FromGeoJSON(raw, geom.WGS84)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 2, d.Len())
		assert.Equal(t, geom.TypePoint, d.GeometryType())
		assert.Equal(t, "p1", d.Features()[0].ID)
		assert.Equal(t, "feature-1", d.Features()[1].ID)

		pop, ok := d.Field("pop")
		require.True(t, ok)
		assert.Equal(t, FieldNumber, pop.Type)
		name, ok := d.Field("name")
		require.True(t, ok)
		assert.Equal(t, FieldString, name.Type)
	})

	t.Run("polygon closing vertex is dropped", func(t *testing.T) {
		raw := []byte(`{
			"type": "FeatureCollection",
			"features": [
				{"type": "Feature",
				 "geometry": {"type": "Polygon",
				  "coordinates": [[[0,0],[4,0],[4,4],[0,4],[0,0]]]},
				 "properties": {}}
			]
		}`)

		d, err := FromGeoJSON(raw, geom.WGS84)

		require.NoError(t, err)
		require.Equal(t, 1, d.Len())
		assert.Len(t, d.Features()[0].Geometry.Points, 4)
	})

	t.Run("rejects non-collections", func(t *testing.T) {
		_, err := FromGeoJSON([]byte(`{"type": "Feature"}`), geom.WGS84)
		assert.Error(t, err)
	})

	t.Run("rejects unsupported geometry", func(t *testing.T) {
		raw := []byte(`{
			"type": "FeatureCollection",
			"features": [
				{"type": "Feature",
				 "geometry": {"type": "MultiPoint", "coordinates": [[0,0]]},
				 "properties": {}}
			]
		}`)
		_, err := FromGeoJSON(raw, geom.WGS84)
		assert.Error(t, err)
	})
}
