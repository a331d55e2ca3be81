package analysis

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/mapforge/spatialkit/internal/dataset"
)

// Validator checks a request's parameters and dataset against a
// method's declared contract before any computation starts. Issues are
// accumulated, never short-circuited: one call reports every violated
// constraint. The dataset is read, never mutated.
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a validator.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger}
}

// Validate returns nil when the request satisfies the descriptor, or a
// *ValidationError listing every violation.
func (v *Validator) Validate(req Request, desc *Descriptor, d *dataset.Dataset) error {
	var issues []Issue

	issues = append(issues, v.schemaIssues(req.Params, desc)...)
	issues = append(issues, v.datasetIssues(req.Params, desc, d)...)

	if len(issues) == 0 {
		return nil
	}
	v.logger.Debug("request rejected by validator",
		zap.String("category", desc.Category),
		zap.String("method", desc.Name),
		zap.Int("issues", len(issues)))
	return &ValidationError{Category: desc.Category, Method: desc.Name, Issues: issues}
}

func (v *Validator) schemaIssues(params map[string]any, desc *Descriptor) []Issue {
	schemaDoc, err := desc.Schema.JSONSchema()
	if err != nil {
		return []Issue{{Constraint: "schema", Message: err.Error()}}
	}

	if params == nil {
		params = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaDoc),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return []Issue{{Constraint: "schema", Message: fmt.Sprintf("schema evaluation: %v", err)}}
	}

	issues := make([]Issue, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		issues = append(issues, Issue{
			Field:      re.Field(),
			Constraint: re.Type(),
			Message:    re.String(),
		})
	}
	return issues
}

func (v *Validator) datasetIssues(params map[string]any, desc *Descriptor, d *dataset.Dataset) []Issue {
	var issues []Issue

	if d.Len() < desc.MinFeatures {
		issues = append(issues, Issue{
			Constraint: "min_features",
			Message: fmt.Sprintf("method requires at least %d features, dataset has %d",
				desc.MinFeatures, d.Len()),
		})
	}

	if gt := d.GeometryType(); gt != "" && !desc.AcceptsGeometry(gt) {
		issues = append(issues, Issue{
			Constraint: "geometry_type",
			Message: fmt.Sprintf("method accepts %v geometry, dataset is %s",
				desc.Geometry, gt),
		})
	}

	// Parameters flagged as field references must name existing
	// attribute columns.
	p := Params(params)
	for name, spec := range desc.Schema {
		if !spec.FieldRef {
			continue
		}
		var fields []string
		if spec.Type == "array" {
			fields, _ = p.Strings(name)
		} else if f, ok := p.String(name); ok {
			fields = []string{f}
		}
		for _, field := range fields {
			if _, ok := d.Field(field); !ok {
				issues = append(issues, Issue{
					Field:      name,
					Constraint: "field_exists",
					Message:    fmt.Sprintf("parameter %q references unknown field %q", name, field),
				})
			}
		}
	}

	return issues
}
