package analysis

import (
	"context"
	"fmt"

	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/geom"
)

// Analysis categories. The registry is a flat catalog keyed by
// (category, name); categories exist for grouping, not dispatch.
const (
	CategoryNetwork       = "network"
	CategoryInterpolation = "interpolation"
	CategoryPattern       = "pattern"
	CategoryGeostatistics = "geostatistics"
	CategoryRegression    = "regression"
)

// Progress receives incremental updates during long-running
// computation: fraction complete in [0,1] plus a free-text status.
type Progress func(fraction float64, status string)

// NopProgress discards updates.
func NopProgress(float64, string) {}

// MergePolicy declares how per-partition partial results combine into
// one result.
type MergePolicy string

const (
	// MergeNone marks a method that always runs on the whole dataset.
	MergeNone MergePolicy = "none"
	// MergeConcatenate appends slice-valued payload keys in partition
	// order and sums numeric count keys.
	MergeConcatenate MergePolicy = "concatenate"
	// MergeWeightedAverage averages numeric payload keys weighted by
	// each partial's "count" entry.
	MergeWeightedAverage MergePolicy = "weighted-average"
	// MergeReduce hands the ordered partials to the descriptor's
	// Reduce function.
	MergeReduce MergePolicy = "reduce"
)

// ComputeFunc runs a method on the whole dataset. Implementations must
// be pure: identical dataset and parameters yield identical payloads.
type ComputeFunc func(ctx context.Context, d *dataset.Dataset, p Params, progress Progress) (map[string]any, error)

// PartitionFunc runs a method's per-partition computation. The full
// dataset is available for cross-partition context (neighbor lookups);
// only the partition's features are owned by the call.
type PartitionFunc func(ctx context.Context, d *dataset.Dataset, part dataset.Partition, p Params) (map[string]any, error)

// ReduceFunc combines ordered partials under MergeReduce.
type ReduceFunc func(d *dataset.Dataset, p Params, partials []map[string]any) (map[string]any, error)

// Descriptor is the executable unit plus its declared contract: the
// registry stores these, the validator reads the schema, the executor
// reads the merge policy. New methods provide a descriptor; there is no
// type hierarchy to inherit from.
type Descriptor struct {
	Category    string
	Name        string
	Description string

	Schema      ParamSchema
	Geometry    []geom.Type // accepted geometry types, empty = any
	MinFeatures int

	LongRunning bool // submit returns an async handle instead of blocking

	Merge            MergePolicy
	Compute          ComputeFunc
	ComputePartition PartitionFunc // nil disables chunked execution
	Reduce           ReduceFunc    // required when Merge == MergeReduce
}

// Check verifies the descriptor is internally consistent before
// registration.
func (d *Descriptor) Check() error {
	if d.Category == "" || d.Name == "" {
		return fmt.Errorf("descriptor needs category and name")
	}
	if d.Compute == nil {
		return fmt.Errorf("descriptor %s/%s has no compute function", d.Category, d.Name)
	}
	if d.Merge == "" {
		d.Merge = MergeNone
	}
	if d.Merge != MergeNone && d.ComputePartition == nil {
		return fmt.Errorf("descriptor %s/%s declares merge policy %q without a partition function",
			d.Category, d.Name, d.Merge)
	}
	if d.Merge == MergeReduce && d.Reduce == nil {
		return fmt.Errorf("descriptor %s/%s declares reduce merge without a reduce function",
			d.Category, d.Name)
	}
	return nil
}

// Chunkable reports whether the method supports partitioned execution.
func (d *Descriptor) Chunkable() bool {
	return d.Merge != MergeNone && d.ComputePartition != nil
}

// AcceptsGeometry reports whether the method handles the given
// geometry type.
func (d *Descriptor) AcceptsGeometry(t geom.Type) bool {
	if len(d.Geometry) == 0 {
		return true
	}
	for _, g := range d.Geometry {
		if g == t {
			return true
		}
	}
	return false
}
