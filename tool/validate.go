package tool

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// validator checks call arguments against a tool's parameter schema.
type validator struct {
	schema *gojsonschema.Schema
}

func newValidator(params json.RawMessage) (*validator, error) {
	if len(params) == 0 {
		return &validator{}, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &validator{schema: s}, nil
}

// validate returns the list of violations, or nil when the document is valid.
func (v *validator) validate(doc json.RawMessage) ([]string, error) {
	if v.schema == nil {
		return nil, nil
	}
	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, err
	}
	if res.Valid() {
		return nil, nil
	}
	reasons := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		reasons = append(reasons, e.String())
	}
	return reasons, nil
}
