// Package form populates target form fields from extracted entities using a
// declarative schema, then refines the result with conditional rules.
package form

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/formworks/priorauth/internal/schema"
	"github.com/formworks/priorauth/internal/services"
)

const baseConfidence = 0.8

// Engine runs schema-driven field population. The reasoner is only consulted
// for complex conditional rules and may be nil when a schema has none.
type Engine struct {
	reasoner services.ReasonerClient
	caller   *services.Caller
	logger   *zap.Logger
}

// NewEngine creates a population engine.
func NewEngine(reasoner services.ReasonerClient, caller *services.Caller, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if caller == nil {
		caller = services.NewCaller(0, 0, logger)
	}
	return &Engine{reasoner: reasoner, caller: caller, logger: logger}
}

// Populate maps extracted entities onto the schema's target fields, applies
// conditional rules, and reports per-field confidence and completion metrics.
func (e *Engine) Populate(ctx context.Context, s *schema.FormSchema, entities map[string]Value) (*PopulatedForm, error) {
	if err := schema.Validate(s); err != nil {
		return nil, err
	}

	pf := &PopulatedForm{
		Fields: make(map[string]*FieldEntry, len(s.FieldMappings)),
		Metadata: FormMetadata{
			SchemaName:       s.SchemaName,
			SchemaVersion:    s.SchemaVersion,
			TotalFields:      len(s.FieldMappings),
			MissingFields:    []string{},
			ConfidenceScores: map[string]float64{},
		},
	}

	// Deterministic population order so logs and note ordering are stable.
	names := make([]string, 0, len(s.FieldMappings))
	for name := range s.FieldMappings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mapping := s.FieldMappings[name]
		value, confidence := e.populateField(name, mapping, entities)

		pf.Fields[name] = &FieldEntry{
			Value:      value,
			Source:     mapping.SourceField,
			Confidence: confidence,
			Required:   mapping.Required,
			DataType:   mapping.DataType,
		}

		if !value.IsEmpty() {
			pf.Metadata.PopulatedFields++
			pf.Metadata.ConfidenceScores[name] = confidence
		} else if mapping.Required {
			pf.Metadata.MissingFields = append(pf.Metadata.MissingFields, name)
		}
	}

	if s.ConditionalRules != nil {
		e.applyConditionalRules(ctx, pf, s.ConditionalRules, entities)
	}

	if s.FormStructure != nil {
		pf.Sections = buildSections(pf.Fields, s.FormStructure)
	}

	if pf.Metadata.TotalFields > 0 {
		rate := float64(pf.Metadata.PopulatedFields) / float64(pf.Metadata.TotalFields)
		pf.Metadata.CompletionRate = round2(rate)
	}

	e.logger.Info("form population completed",
		zap.String("schema", s.SchemaName),
		zap.Int("populated", pf.Metadata.PopulatedFields),
		zap.Int("total", pf.Metadata.TotalFields),
		zap.Float64("completion_rate", pf.Metadata.CompletionRate))

	return pf, nil
}

// populateField derives one target field value. A value that fails validation
// is discarded rather than failing the run.
func (e *Engine) populateField(name string, mapping schema.FieldMapping, entities map[string]Value) (Value, float64) {
	value, ok := entities[mapping.SourceField]
	if ok {
		value = applyTransformations(value, mapping.Transformations)
		if !value.IsEmpty() && mapping.Validation != nil && !validateValue(value, mapping.Validation) {
			e.logger.Warn("field failed validation, discarding value",
				zap.String("field", name),
				zap.String("value", value.Text()))
			value = Value{}
		}
	}

	if value.IsEmpty() && mapping.DefaultValue != nil {
		if dv, ok := FromAny(mapping.DefaultValue); ok {
			value = dv
		}
	}

	return value, fieldConfidence(value, mapping)
}

// fieldConfidence starts from a fixed base, penalizes very short strings, and
// rewards values that pass the mapping's validation.
func fieldConfidence(value Value, mapping schema.FieldMapping) float64 {
	if value.IsEmpty() {
		return 0.0
	}
	confidence := baseConfidence
	if value.Kind() == KindString && len(strings.TrimSpace(value.Text())) < 3 {
		confidence *= 0.7
	}
	if mapping.Validation != nil && validateValue(value, mapping.Validation) {
		confidence = math.Min(1.0, confidence*1.1)
	}
	return round2(confidence)
}

func applyTransformations(value Value, transformations []schema.Transformation) Value {
	for _, t := range transformations {
		switch t.Type {
		case "uppercase":
			if value.Kind() == KindString {
				value = String(strings.ToUpper(value.Text()))
			}
		case "lowercase":
			if value.Kind() == KindString {
				value = String(strings.ToLower(value.Text()))
			}
		case "trim":
			if value.Kind() == KindString {
				value = String(strings.TrimSpace(value.Text()))
			}
		case "extract_first":
			if value.Kind() == KindList {
				value = value.First()
			}
		case "format_date":
			value = reformatDate(value, t.Format)
		default:
			// Unknown transformations are no-ops, not errors.
		}
	}
	return value
}

// dateLayouts are the input shapes accepted by format_date, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	time.RFC3339,
}

// reformatDate normalizes a recognizable date string into the target layout
// (MM/DD/YYYY when the mapping gives none). Unparseable values pass through
// unchanged.
func reformatDate(value Value, format string) Value {
	if value.Kind() != KindString {
		return value
	}
	if format == "" {
		format = "01/02/2006"
	}
	text := strings.TrimSpace(value.Text())
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return String(parsed.Format(format))
		}
	}
	return value
}

// validateValue applies the mapping's validation rules. Length and pattern
// checks only apply to string values.
func validateValue(value Value, v *schema.Validation) bool {
	switch v.Type {
	case "string":
		if value.Kind() != KindString {
			return false
		}
	case "number":
		if value.Kind() != KindNumber {
			return false
		}
	}

	if value.Kind() == KindString {
		text := value.Text()
		if v.MinLength > 0 && len(text) < v.MinLength {
			return false
		}
		if v.MaxLength > 0 && len(text) > v.MaxLength {
			return false
		}
		if v.Pattern != "" {
			re, err := regexp.Compile(v.Pattern)
			if err != nil {
				return false
			}
			if !re.MatchString(text) {
				return false
			}
		}
	}
	return true
}

// buildSections resolves the schema's section layout against the populated
// fields, keeping only fields that exist in the form. Each section carries
// its own completion counts alongside the form-level ones.
func buildSections(fields map[string]*FieldEntry, structure *schema.FormStructure) map[string]FormSection {
	sections := make(map[string]FormSection, len(structure.Sections))
	for name, sec := range structure.Sections {
		title := sec.Title
		if title == "" {
			title = name
		}
		resolved := FormSection{Title: title, TotalFields: len(sec.Fields)}
		for _, field := range sec.Fields {
			entry, ok := fields[field]
			if !ok {
				continue
			}
			resolved.Fields = append(resolved.Fields, field)
			if !entry.Value.IsEmpty() {
				resolved.PopulatedFields++
			}
		}
		sections[name] = resolved
	}
	return sections
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
