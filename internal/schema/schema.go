// Package schema models the declarative form schemas that drive field
// population: per-field mappings with transformations and validation, an
// optional section layout, and simple/complex conditional rules.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FormSchema is the top-level schema document.
type FormSchema struct {
	SchemaName       string                  `json:"schema_name"`
	SchemaVersion    string                  `json:"schema_version"`
	FieldMappings    map[string]FieldMapping `json:"field_mappings"`
	FormStructure    *FormStructure          `json:"form_structure,omitempty"`
	ConditionalRules *ConditionalRules       `json:"conditional_rules,omitempty"`
}

// FieldMapping describes how one target form field is derived from the
// extracted entities.
type FieldMapping struct {
	SourceField     string           `json:"source_field"`
	Required        bool             `json:"required"`
	DataType        string           `json:"data_type,omitempty"`
	Transformations []Transformation `json:"transformations,omitempty"`
	Validation      *Validation      `json:"validation,omitempty"`
	DefaultValue    any              `json:"default_value,omitempty"`
}

// Transformation is one step in a field's transformation chain.
type Transformation struct {
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// Validation constrains an incoming field value. A value failing validation
// is discarded, not fatal.
type Validation struct {
	Type      string `json:"type,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	MinLength int    `json:"min_length,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
}

// FormStructure groups target fields into named sections for presentation.
type FormStructure struct {
	Sections map[string]Section `json:"sections"`
}

// Section is one named group of target fields.
type Section struct {
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
}

// ConditionalRules holds the post-population rule sets.
type ConditionalRules struct {
	SimpleRules  []SimpleRule  `json:"simple_rules,omitempty"`
	ComplexRules []ComplexRule `json:"complex_inference_rules,omitempty"`
}

// SimpleRule is a predicate over already-populated form fields plus the
// actions to apply when it fires.
type SimpleRule struct {
	Description string    `json:"description,omitempty"`
	Condition   Condition `json:"condition"`
	Actions     []Action  `json:"actions"`
}

// Condition is a simple-rule predicate.
type Condition struct {
	Type  string `json:"type"`
	Field string `json:"field"`
	Value string `json:"value,omitempty"`
}

// ComplexRule gates its actions on an external reasoning call.
type ComplexRule struct {
	Description string    `json:"description,omitempty"`
	Inference   Inference `json:"llm_inference"`
	Actions     []Action  `json:"actions"`
}

// Inference configures the reasoning call for a complex rule.
type Inference struct {
	Prompt         string   `json:"prompt"`
	ContextFields  []string `json:"context_fields,omitempty"`
	ResultField    string   `json:"result_field,omitempty"`
	ExpectedResult string   `json:"expected_result,omitempty"`
}

// Action is one effect of a triggered rule. The meaning of the optional
// fields depends on Type: make_required and set_value target Field, set_value
// carries Value and Confidence, add_note carries Note.
type Action struct {
	Type       string  `json:"type"`
	Field      string  `json:"field,omitempty"`
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// ConfigurationError reports a structural problem with a schema. It is raised
// before any population happens.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid form schema: %s", e.Reason)
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the schema's structure: required top-level keys, mappings
// with a source field, and conditional rules that reference known fields.
func Validate(s *FormSchema) error {
	if s == nil {
		return configErrorf("schema is nil")
	}
	if s.SchemaName == "" {
		return configErrorf("missing required key: schema_name")
	}
	if len(s.FieldMappings) == 0 {
		return configErrorf("missing required key: field_mappings")
	}
	for name, mapping := range s.FieldMappings {
		if mapping.SourceField == "" {
			return configErrorf("mapping for field %s missing source_field", name)
		}
	}
	if s.ConditionalRules == nil {
		return nil
	}
	for i, rule := range s.ConditionalRules.SimpleRules {
		if rule.Condition.Type == "" {
			return configErrorf("simple rule %d missing condition", i)
		}
		if len(rule.Actions) == 0 {
			return configErrorf("simple rule %d missing actions", i)
		}
		if rule.Condition.Field != "" {
			if _, ok := s.FieldMappings[rule.Condition.Field]; !ok {
				return configErrorf("simple rule %d references unknown field: %s", i, rule.Condition.Field)
			}
		}
	}
	for i, rule := range s.ConditionalRules.ComplexRules {
		if rule.Inference.Prompt == "" {
			return configErrorf("complex rule %d missing prompt in llm_inference", i)
		}
		if len(rule.Actions) == 0 {
			return configErrorf("complex rule %d missing actions", i)
		}
	}
	return nil
}

// Loader reads schemas by name from a directory of <name>.json files and
// caches parsed results.
type Loader struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*FormSchema
}

// NewLoader creates a schema loader rooted at dir.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		dir:    dir,
		logger: logger,
		cache:  map[string]*FormSchema{},
	}
}

// Load reads, validates, and caches the schema called name.
func (l *Loader) Load(name string) (*FormSchema, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[name]; ok {
		return cached, nil
	}

	path := filepath.Join(l.dir, name+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, configErrorf("schema file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
	}

	var s FormSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, configErrorf("invalid JSON in schema file %s: %v", name, err)
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}

	l.cache[name] = &s
	l.logger.Debug("loaded form schema",
		zap.String("schema", s.SchemaName),
		zap.String("version", s.SchemaVersion))
	return &s, nil
}
