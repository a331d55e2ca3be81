package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Request describes one analysis invocation: which method, which
// dataset, which parameters, plus optional execution hints.
type Request struct {
	Category  string         `json:"category"`
	Method    string         `json:"method"`
	DatasetID string         `json:"dataset_id"`
	Params    map[string]any `json:"params"`

	// PartitionSize overrides the engine's default chunk size; 0 keeps
	// the default, negative disables chunking.
	PartitionSize int `json:"partition_size,omitempty"`

	// TTL overrides the cache default for this request's entry.
	TTL time.Duration `json:"ttl,omitempty"`
}

// Fingerprint derives the deterministic cache key for this request
// against a dataset's content hash. Parameters are canonicalized by
// json marshalling, which orders map keys lexicographically, so
// semantically identical requests hash identically regardless of
// construction order.
func (r Request) Fingerprint(datasetFingerprint string) (string, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return "", fmt.Errorf("canonicalize params: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", r.Category, r.Method, datasetFingerprint, params)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Result is the structured outcome of one analysis.
type Result struct {
	Category    string         `json:"category"`
	Method      string         `json:"method"`
	Fingerprint string         `json:"fingerprint"`
	Payload     map[string]any `json:"payload"`

	FeatureCount int           `json:"feature_count"`
	Partitions   int           `json:"partitions"`
	Elapsed      time.Duration `json:"elapsed"`
	ComputedAt   time.Time     `json:"computed_at"`
	Valid        bool          `json:"valid"`
}
