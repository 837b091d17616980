package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

// descriptorSchema is the JSON Schema a descriptor file must satisfy before it
// is decoded.
func descriptorSchema() map[string]any {
	fields := []any{string(FieldDate), string(FieldTerritory), string(FieldProduct), string(FieldID), string(FieldMeasure)}
	binding := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"min_tokens": map[string]any{"type": "integer", "minimum": 0},
			"positions": map[string]any{
				"type":                 "object",
				"propertyNames":        map[string]any{"enum": fields},
				"additionalProperties": map[string]any{"type": "integer"},
			},
			"columns": map[string]any{
				"type":                 "object",
				"propertyNames":        map[string]any{"enum": fields},
				"additionalProperties": map[string]any{"type": "string", "minLength": 1},
			},
			"header_keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"delimiter":       map[string]any{"type": "string"},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"dataset":       map[string]any{"enum": []any{string(constants.DatasetReturns), string(constants.DatasetPurchases)}},
			"date_layouts":  map[string]any{"type": "array", "items": map[string]any{"type": "string", "minLength": 1}},
			"date_required": map[string]any{"type": "boolean"},
			"id_prefix":     map[string]any{"type": "string"},
			"measure":       map[string]any{"enum": []any{string(MeasureInteger), string(MeasureDecimal)}},
			"rule":          map[string]any{"enum": []any{string(RuleNonNegative), string(RulePositive)}},
			"table":         binding,
			"document":      binding,
			"text":          binding,
		},
		"required": []any{"dataset", "measure", "rule", "table", "document", "text"},
	}
}

var (
	compiledDescriptor *jsonschema.Schema
	compileOnce        sync.Once
	compileErr         error
)

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(descriptorSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal descriptor schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("descriptor.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add descriptor schema: %w", err)
			return
		}
		compiledDescriptor, compileErr = c.Compile("descriptor.json")
	})
	return compiledDescriptor, compileErr
}

// LoadSchema reads a descriptor file (yaml, json or toml, by extension),
// checks it against the descriptor JSON Schema and decodes it.
func LoadSchema(path string) (*Schema, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "failed to read descriptor", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}

	raw, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	js, err := compiled()
	if err != nil {
		return nil, err
	}
	if err := js.Validate(doc); err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "descriptor does not match schema", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}

	var s Schema
	if err := v.Unmarshal(&s); err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "failed to decode descriptor", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if err := s.Validate(); err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "invalid descriptor", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	return &s, nil
}

// Resolve returns the schema for a dataset, read from path when one is
// configured and the built-in descriptor otherwise.
func Resolve(d constants.Dataset, path string) (*Schema, error) {
	if path == "" {
		return Builtin(d)
	}
	s, err := LoadSchema(path)
	if err != nil {
		return nil, err
	}
	if s.Dataset != d {
		return nil, fmt.Errorf("%w: descriptor %s describes %s, not %s", common.ErrInvalidInput, path, s.Dataset, d)
	}
	return s, nil
}
