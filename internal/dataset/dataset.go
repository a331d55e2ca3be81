package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/mapforge/spatialkit/internal/geom"
)

// FieldType enumerates attribute column types.
type FieldType string

const (
	FieldNumber FieldType = "number"
	FieldString FieldType = "string"
)

// Field describes one attribute column.
type Field struct {
	Name string
	Type FieldType
}

// Feature is one geometry plus its attribute row.
type Feature struct {
	ID         string
	Geometry   geom.Geometry
	Attributes map[string]any
}

// Dataset is an immutable spatial dataset: a stable id, a content
// fingerprint, a geometry collection with its CRS, and an attribute
// table keyed by feature. Transformations produce a new Dataset with a
// new fingerprint; nothing mutates in place.
type Dataset struct {
	id          string
	crs         geom.CRS
	fields      []Field
	features    []Feature
	fingerprint string
}

// New builds a dataset and computes its content fingerprint. A fresh
// uuid is assigned as the stable id.
func New(crs geom.CRS, fields []Field, features []Feature) *Dataset {
	d := &Dataset{
		id:       uuid.NewString(),
		crs:      crs,
		fields:   append([]Field(nil), fields...),
		features: append([]Feature(nil), features...),
	}
	d.fingerprint = d.computeFingerprint()
	return d
}

// WithID returns a copy bound to an externally assigned stable id. The
// fingerprint is unchanged: identity and content hash are independent.
func (d *Dataset) WithID(id string) *Dataset {
	c := *d
	c.id = id
	return &c
}

// ID returns the stable dataset id.
func (d *Dataset) ID() string { return d.id }

// CRS returns the coordinate reference system tag.
func (d *Dataset) CRS() geom.CRS { return d.crs }

// Len returns the feature count.
func (d *Dataset) Len() int { return len(d.features) }

// Features returns the feature slice. Callers must not modify it.
func (d *Dataset) Features() []Feature { return d.features }

// Fields returns the attribute schema.
func (d *Dataset) Fields() []Field { return append([]Field(nil), d.fields...) }

// Field looks up an attribute column by name.
func (d *Dataset) Field(name string) (Field, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Fingerprint returns the deterministic content hash of geometry,
// attributes and CRS. Identical content always hashes identically.
func (d *Dataset) Fingerprint() string { return d.fingerprint }

// GeometryType returns the geometry type of the collection, assuming a
// homogeneous dataset (the first feature decides).
func (d *Dataset) GeometryType() geom.Type {
	if len(d.features) == 0 {
		return ""
	}
	return d.features[0].Geometry.Type
}

// Bounds returns the bounding box over all feature vertices.
func (d *Dataset) Bounds() geom.BBox {
	b := geom.EmptyBBox()
	for _, f := range d.features {
		for _, p := range f.Geometry.Points {
			b = b.Extend(p)
		}
	}
	return b
}

// Centroids returns one representative point per feature, in feature
// order.
func (d *Dataset) Centroids() []geom.Point {
	pts := make([]geom.Point, len(d.features))
	for i, f := range d.features {
		pts[i] = f.Geometry.Centroid()
	}
	return pts
}

// NumericField extracts a numeric column in feature order. Missing or
// non-numeric values are skipped, not treated as errors; the returned
// index slice maps each value back to its feature position.
func (d *Dataset) NumericField(name string) (values []float64, idx []int) {
	for i, f := range d.features {
		v, ok := numericValue(f.Attributes[name])
		if !ok {
			continue
		}
		values = append(values, v)
		idx = append(idx, i)
	}
	return values, idx
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Partition is a bounded, ordered, non-overlapping slice of features:
// the unit of parallel work.
type Partition struct {
	Index    int
	Offset   int
	Features []Feature
}

// Partitions splits the feature collection into ordered partitions of
// at most size features. size <= 0 yields a single partition.
func (d *Dataset) Partitions(size int) []Partition {
	if size <= 0 || size >= len(d.features) {
		return []Partition{{Index: 0, Offset: 0, Features: d.features}}
	}
	var parts []Partition
	for off := 0; off < len(d.features); off += size {
		end := off + size
		if end > len(d.features) {
			end = len(d.features)
		}
		parts = append(parts, Partition{
			Index:    len(parts),
			Offset:   off,
			Features: d.features[off:end],
		})
	}
	return parts
}

// Nearest returns the ids and distances of the k features closest to
// the feature with the given id, by centroid distance, nearest first.
func (d *Dataset) Nearest(id string, k int) ([]string, []float64, error) {
	target := -1
	for i, f := range d.features {
		if f.ID == id {
			target = i
			break
		}
	}
	if target < 0 {
		return nil, nil, fmt.Errorf("dataset: feature %q not found", id)
	}

	origin := d.features[target].Geometry.Centroid()
	type cand struct {
		id   string
		dist float64
	}
	cands := make([]cand, 0, len(d.features)-1)
	for i, f := range d.features {
		if i == target {
			continue
		}
		cands = append(cands, cand{id: f.ID, dist: origin.DistanceTo(f.Geometry.Centroid())})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	if k > len(cands) {
		k = len(cands)
	}
	ids := make([]string, k)
	dists := make([]float64, k)
	for i := 0; i < k; i++ {
		ids[i] = cands[i].id
		dists[i] = cands[i].dist
	}
	return ids, dists, nil
}

// computeFingerprint hashes CRS, schema, geometry and attributes in a
// canonical order. Floats are formatted with 'g'/-1 so the shortest
// round-trippable representation is hashed.
func (d *Dataset) computeFingerprint() string {
	h := sha256.New()
	write := func(s string) { _, _ = h.Write([]byte(s)) }

	write(string(d.crs))
	write("|")
	for _, f := range d.fields {
		write(f.Name)
		write(":")
		write(string(f.Type))
		write(";")
	}
	for _, f := range d.features {
		write(f.ID)
		write("|")
		write(string(f.Geometry.Type))
		for _, p := range f.Geometry.Points {
			write(formatFloat(p.X))
			write(",")
			write(formatFloat(p.Y))
			write(";")
		}
		keys := make([]string, 0, len(f.Attributes))
		for k := range f.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write(k)
			write("=")
			write(fmt.Sprintf("%v", f.Attributes[k]))
			write(";")
		}
		write("\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
