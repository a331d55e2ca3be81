package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint_DistanceTo(t *testing.T) {
	t.Run("classic 3-4-5 triangle", func(t *testing.T) {
		// Arrange
		a := Point{X: 0, Y: 0}
		b := Point{X: 3, Y: 4}

		// Act & Assert
		assert.InDelta(t, 5.0, a.DistanceTo(b), 1e-12)
		assert.InDelta(t, 5.0, b.DistanceTo(a), 1e-12)
	})

	t.Run("distance to self is zero", func(t *testing.T) {
		p := Point{X: 2.5, Y: -1.5}
		assert.Zero(t, p.DistanceTo(p))
	})
}

func TestBBox(t *testing.T) {
	t.Run("extend grows from empty", func(t *testing.T) {
		// Arrange
		b := EmptyBBox()

		// Act
		b = b.Extend(Point{X: 1, Y: 2})
		b = b.Extend(Point{X: -3, Y: 5})

		// Assert
		assert.Equal(t, -3.0, b.MinX)
		assert.Equal(t, 2.0, b.MinY)
		assert.Equal(t, 1.0, b.MaxX)
		assert.Equal(t, 5.0, b.MaxY)
	})

	t.Run("contains is inclusive on the boundary", func(t *testing.T) {
		b := BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

		assert.True(t, b.Contains(Point{X: 0, Y: 0}))
		assert.True(t, b.Contains(Point{X: 10, Y: 10}))
		assert.True(t, b.Contains(Point{X: 5, Y: 5}))
		assert.False(t, b.Contains(Point{X: 10.001, Y: 5}))
	})

	t.Run("area of empty box is zero", func(t *testing.T) {
		assert.Zero(t, EmptyBBox().Area())
	})

	t.Run("area of a regular box", func(t *testing.T) {
		b := BBox{MinX: 1, MinY: 1, MaxX: 4, MaxY: 3}
		assert.InDelta(t, 6.0, b.Area(), 1e-12)
	})
}

func TestGeometry_Centroid(t *testing.T) {
	t.Run("point is its own centroid", func(t *testing.T) {
		g := NewPoint(7, 8)
		assert.Equal(t, Point{X: 7, Y: 8}, g.Centroid())
	})

	t.Run("line centroid is the vertex mean", func(t *testing.T) {
		g := NewLineString(Point{X: 0, Y: 0}, Point{X: 4, Y: 0})
		assert.Equal(t, Point{X: 2, Y: 0}, g.Centroid())
	})

	t.Run("square centroid is its center", func(t *testing.T) {
		g := NewPolygon(
			Point{X: 0, Y: 0}, Point{X: 4, Y: 0},
			Point{X: 4, Y: 4}, Point{X: 0, Y: 4})

		c := g.Centroid()
		assert.InDelta(t, 2.0, c.X, 1e-12)
		assert.InDelta(t, 2.0, c.Y, 1e-12)
	})
}

func TestGeometry_Measures(t *testing.T) {
	t.Run("line length sums segments", func(t *testing.T) {
		g := NewLineString(Point{X: 0, Y: 0}, Point{X: 3, Y: 0}, Point{X: 3, Y: 4})
		assert.InDelta(t, 7.0, g.Length(), 1e-12)
	})

	t.Run("polygon perimeter closes the ring", func(t *testing.T) {
		g := NewPolygon(
			Point{X: 0, Y: 0}, Point{X: 2, Y: 0},
			Point{X: 2, Y: 2}, Point{X: 0, Y: 2})
		assert.InDelta(t, 8.0, g.Length(), 1e-12)
	})

	t.Run("shoelace area of a square", func(t *testing.T) {
		g := NewPolygon(
			Point{X: 0, Y: 0}, Point{X: 4, Y: 0},
			Point{X: 4, Y: 4}, Point{X: 0, Y: 4})
		assert.InDelta(t, 16.0, g.Area(), 1e-12)
	})

	t.Run("area is zero for non-polygons", func(t *testing.T) {
		assert.Zero(t, NewPoint(1, 1).Area())
		assert.Zero(t, NewLineString(Point{X: 0, Y: 0}, Point{X: 1, Y: 1}).Area())
	})
}

func TestConvexHull(t *testing.T) {
	t.Run("interior points are dropped", func(t *testing.T) {
		// Arrange - a square plus its center
		pts := []Point{
			{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4},
			{X: 2, Y: 2},
		}

		// Act
		hull := ConvexHull(pts)

		// Assert
		require.Len(t, hull, 4)
		assert.NotContains(t, hull, Point{X: 2, Y: 2})
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		pts := []Point{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}
		hull := ConvexHull(pts)
		assert.Len(t, hull, 1)
	})

	t.Run("two distinct points stay as-is", func(t *testing.T) {
		pts := []Point{{X: 0, Y: 0}, {X: 5, Y: 5}}
		assert.Len(t, ConvexHull(pts), 2)
	})
}

func TestHaversine(t *testing.T) {
	t.Run("one degree of longitude at the equator", func(t *testing.T) {
		d := Haversine(Point{X: 0, Y: 0}, Point{X: 1, Y: 0})
		// ~111.19 km per degree at the equator
		assert.InDelta(t, 111195, d, 100)
	})

	t.Run("zero distance to self", func(t *testing.T) {
		p := Point{X: 13.4, Y: 52.5}
		assert.Zero(t, Haversine(p, p))
	})
}
