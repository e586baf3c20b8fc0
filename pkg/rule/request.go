// yarex/pkg/rule/request.go

package rule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"rgehrsitz/yarex/pkg/ident"
	"rgehrsitz/yarex/pkg/logging"
)

// Request is the structured payload a rule is built from.
type Request struct {
	Name      string           `json:"name" yaml:"name"`
	Tags      []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
	Meta      []MetaRequest    `json:"meta,omitempty" yaml:"meta,omitempty"`
	Strings   []PatternRequest `json:"strings,omitempty" yaml:"strings,omitempty"`
	Patterns  []PatternRequest `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Condition string           `json:"condition" yaml:"condition"`
}

type MetaRequest struct {
	Identifier string      `json:"identifier" yaml:"identifier"`
	Value      interface{} `json:"value" yaml:"value"`
	ValueType  string      `json:"value_type,omitempty" yaml:"value_type,omitempty"`
}

type PatternRequest struct {
	Identifier string     `json:"identifier" yaml:"identifier"`
	Value      string     `json:"value" yaml:"value"`
	ValueType  string     `json:"value_type,omitempty" yaml:"value_type,omitempty"`
	StringType string     `json:"string_type,omitempty" yaml:"string_type,omitempty"`
	Modifiers  []Modifier `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

// Parse decodes a JSON rule request.
func Parse(jsonData []byte) (*Request, error) {
	logging.Logger.Debug().Str("jsonData", string(jsonData)).Msg("Parsing rule request")
	var req Request
	if err := json.Unmarshal(jsonData, &req); err != nil {
		logging.Logger.Error().Err(err).Msg("Failed to unmarshal rule request")
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	return &req, nil
}

// ParseYAML decodes a YAML rule request.
func ParseYAML(yamlData []byte) (*Request, error) {
	var req Request
	if err := yaml.Unmarshal(yamlData, &req); err != nil {
		logging.Logger.Error().Err(err).Msg("Failed to unmarshal rule request")
		return nil, fmt.Errorf("invalid YAML format: %w", err)
	}
	return &req, nil
}

// FromRequest validates req and builds the rule it describes.
func FromRequest(req *Request) (*Rule, error) {
	if req == nil {
		return nil, validationErrorf("request", "is required")
	}
	logging.Logger.Debug().Str("rule", req.Name).Msg("Building rule from request")

	if strings.TrimSpace(req.Name) == "" {
		return nil, validationErrorf("name", "is required")
	}
	if ident.SanitizeIdentifier(req.Name) == "" {
		return nil, validationErrorf("name", "'%s' has no valid identifier characters", req.Name)
	}
	if strings.TrimSpace(req.Condition) == "" {
		return nil, validationErrorf("condition", "is required")
	}

	meta := make([]MetaEntry, 0, len(req.Meta))
	for i, mr := range req.Meta {
		entry, err := mr.build()
		if err != nil {
			return nil, asValidation(fmt.Sprintf("meta[%d]", i), err)
		}
		meta = append(meta, entry)
	}

	patternReqs := req.Strings
	if len(patternReqs) == 0 {
		patternReqs = req.Patterns
	} else if len(req.Patterns) > 0 {
		return nil, validationErrorf("patterns", "set either 'strings' or 'patterns', not both")
	}

	patterns := make([]PatternEntry, 0, len(patternReqs))
	for i, pr := range patternReqs {
		entry, err := pr.build()
		if err != nil {
			return nil, asValidation(fmt.Sprintf("strings[%d]", i), err)
		}
		patterns = append(patterns, entry)
	}

	r := New(req.Name, req.Tags, meta, patterns, req.Condition)
	logging.Logger.Debug().Str("rule", r.Name()).Int("meta", len(meta)).Int("patterns", len(patterns)).Msg("Built rule")
	return r, nil
}

func (mr MetaRequest) build() (MetaEntry, error) {
	if mr.ValueType == "" {
		return InferMeta(mr.Identifier, mr.Value)
	}
	typ, err := ParseMetaType(mr.ValueType)
	if err != nil {
		return MetaEntry{}, &ValidationError{Field: "value_type", Message: err.Error()}
	}
	return NewMeta(mr.Identifier, mr.Value, typ)
}

func (pr PatternRequest) build() (PatternEntry, error) {
	valueType, stringType := pr.ValueType, pr.StringType
	switch {
	case valueType == "" && stringType == "":
		valueType, stringType = "text", "text"
	case valueType == "":
		valueType = stringType
	case stringType == "":
		stringType = valueType
	}
	vt, err := ParsePatternType(valueType)
	if err != nil {
		return PatternEntry{}, &ValidationError{Field: "value_type", Message: err.Error()}
	}
	st, err := ParsePatternType(stringType)
	if err != nil {
		return PatternEntry{}, &ValidationError{Field: "string_type", Message: err.Error()}
	}
	return NewPattern(pr.Identifier, pr.Value, vt, st, pr.Modifiers...)
}

// asValidation prefixes field onto a nested validation error, or wraps a
// plain error as one.
func asValidation(field string, err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &ValidationError{Field: field + "." + ve.Field, Message: ve.Message}
	}
	return &ValidationError{Field: field, Message: err.Error()}
}
