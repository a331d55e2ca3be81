package geom

import (
	"math"
	"sort"
)

// CRS identifies the coordinate reference system of a geometry collection.
type CRS string

const (
	WGS84     CRS = "EPSG:4326"
	WebMerc   CRS = "EPSG:3857"
	Undefined CRS = ""
)

// Type enumerates the geometry kinds the engine operates on.
type Type string

const (
	TypePoint      Type = "Point"
	TypeLineString Type = "LineString"
	TypePolygon    Type = "Polygon"
)

// Point is a position in the dataset's coordinate space.
type Point struct {
	X float64
	Y float64
}

// DistanceTo returns the planar (euclidean) distance to q.
func (p Point) DistanceTo(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// lon/lat points. Only meaningful for EPSG:4326 coordinates.
func Haversine(a, b Point) float64 {
	lat1 := a.Y * math.Pi / 180
	lat2 := b.Y * math.Pi / 180
	dLat := (b.Y - a.Y) * math.Pi / 180
	dLon := (b.X - a.X) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// BBox is an axis-aligned bounding box.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// EmptyBBox returns a box that Extend can grow from.
func EmptyBBox() BBox {
	return BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// Extend grows the box to include p.
func (b BBox) Extend(p Point) BBox {
	if p.X < b.MinX {
		b.MinX = p.X
	}
	if p.Y < b.MinY {
		b.MinY = p.Y
	}
	if p.X > b.MaxX {
		b.MaxX = p.X
	}
	if p.Y > b.MaxY {
		b.MaxY = p.Y
	}
	return b
}

// Contains reports whether p lies inside the box (inclusive).
func (b BBox) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Width returns the x extent of the box.
func (b BBox) Width() float64 { return b.MaxX - b.MinX }

// Height returns the y extent of the box.
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Area returns the planar area of the box.
func (b BBox) Area() float64 {
	if b.MaxX < b.MinX || b.MaxY < b.MinY {
		return 0
	}
	return b.Width() * b.Height()
}

// Geometry is a point, line string, or polygon ring. Polygons store a
// single exterior ring; the first and last vertex need not repeat.
type Geometry struct {
	Type   Type
	Points []Point
}

// NewPoint wraps a single coordinate as a point geometry.
func NewPoint(x, y float64) Geometry {
	return Geometry{Type: TypePoint, Points: []Point{{X: x, Y: y}}}
}

// NewLineString builds a line geometry from an ordered vertex list.
func NewLineString(pts ...Point) Geometry {
	return Geometry{Type: TypeLineString, Points: pts}
}

// NewPolygon builds a polygon geometry from an exterior ring.
func NewPolygon(ring ...Point) Geometry {
	return Geometry{Type: TypePolygon, Points: ring}
}

// Centroid returns the representative point of the geometry: the point
// itself, the vertex mean for lines, the area-weighted centroid for
// polygons.
func (g Geometry) Centroid() Point {
	switch g.Type {
	case TypePoint:
		if len(g.Points) == 0 {
			return Point{}
		}
		return g.Points[0]
	case TypePolygon:
		if c, ok := ringCentroid(g.Points); ok {
			return c
		}
		fallthrough
	default:
		var sx, sy float64
		for _, p := range g.Points {
			sx += p.X
			sy += p.Y
		}
		n := float64(len(g.Points))
		if n == 0 {
			return Point{}
		}
		return Point{X: sx / n, Y: sy / n}
	}
}

// Length returns the total vertex-to-vertex length of a line, or the
// ring perimeter for polygons. Zero for points.
func (g Geometry) Length() float64 {
	if g.Type == TypePoint || len(g.Points) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(g.Points); i++ {
		total += g.Points[i-1].DistanceTo(g.Points[i])
	}
	if g.Type == TypePolygon {
		total += g.Points[len(g.Points)-1].DistanceTo(g.Points[0])
	}
	return total
}

// Area returns the shoelace area of a polygon ring, zero otherwise.
func (g Geometry) Area() float64 {
	if g.Type != TypePolygon || len(g.Points) < 3 {
		return 0
	}
	var sum float64
	n := len(g.Points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += g.Points[i].X*g.Points[j].Y - g.Points[j].X*g.Points[i].Y
	}
	return math.Abs(sum) / 2
}

// Bounds returns the bounding box of the geometry's vertices.
func (g Geometry) Bounds() BBox {
	b := EmptyBBox()
	for _, p := range g.Points {
		b = b.Extend(p)
	}
	return b
}

func ringCentroid(ring []Point) (Point, bool) {
	if len(ring) < 3 {
		return Point{}, false
	}
	var cx, cy, area float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
		cx += (ring[i].X + ring[j].X) * cross
		cy += (ring[i].Y + ring[j].Y) * cross
		area += cross
	}
	if area == 0 {
		return Point{}, false
	}
	area /= 2
	return Point{X: cx / (6 * area), Y: cy / (6 * area)}, true
}

// ConvexHull returns the convex hull of pts using the monotone chain
// algorithm. The result ring is counter-clockwise without a closing
// vertex. Degenerate inputs (fewer than 3 distinct points) return the
// distinct points as-is.
func ConvexHull(pts []Point) []Point {
	uniq := dedupe(pts)
	if len(uniq) < 3 {
		return uniq
	}

	sortPoints(uniq)

	cross := func(o, a, b Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var lower []Point
	for _, p := range uniq {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	var upper []Point
	for i := len(uniq) - 1; i >= 0; i-- {
		p := uniq[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

func dedupe(pts []Point) []Point {
	seen := make(map[Point]struct{}, len(pts))
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func sortPoints(pts []Point) {
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
}
