package form

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formworks/priorauth/internal/schema"
	"github.com/formworks/priorauth/internal/services"
)

func newTestEngine(reasoner *fakeReasoner) *Engine {
	caller := services.NewCaller(1, time.Millisecond, nil)
	if reasoner == nil {
		return NewEngine(nil, caller, nil)
	}
	return NewEngine(reasoner, caller, nil)
}

func TestPopulateCompletionAndMissingFields(t *testing.T) {
	s := &schema.FormSchema{
		SchemaName: "InsureCo_Ozempic",
		FieldMappings: map[string]schema.FieldMapping{
			"patient_name":  {SourceField: "patient_name", Required: true},
			"member_id":     {SourceField: "member_id", Required: true},
			"diagnosis":     {SourceField: "primary_diagnosis", Required: true},
			"provider_name": {SourceField: "provider_name", Required: true},
			"provider_npi":  {SourceField: "provider_npi", Required: true},
		},
	}
	entities := map[string]Value{
		"patient_name": String("Jane Doe"),
		"member_id":    String("ABC1234567"),
	}

	pf, err := newTestEngine(nil).Populate(context.Background(), s, entities)
	require.NoError(t, err)

	assert.Equal(t, 5, pf.Metadata.TotalFields)
	assert.Equal(t, 2, pf.Metadata.PopulatedFields)
	assert.InDelta(t, 0.4, pf.Metadata.CompletionRate, 1e-9)
	assert.ElementsMatch(t, []string{"diagnosis", "provider_name", "provider_npi"}, pf.Metadata.MissingFields)
}

func TestPopulateRejectsInvalidSchema(t *testing.T) {
	s := &schema.FormSchema{SchemaName: "x"}

	_, err := newTestEngine(nil).Populate(context.Background(), s, nil)
	var cfgErr *schema.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestPopulateDefaultValueIsNotMissing(t *testing.T) {
	s := &schema.FormSchema{
		SchemaName: "x",
		FieldMappings: map[string]schema.FieldMapping{
			"urgency": {SourceField: "urgency", Required: true, DefaultValue: "standard"},
		},
	}

	pf, err := newTestEngine(nil).Populate(context.Background(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, "standard", pf.Fields["urgency"].Value.Text())
	assert.Empty(t, pf.Metadata.MissingFields)
	assert.Equal(t, 1, pf.Metadata.PopulatedFields)
	assert.InDelta(t, 1.0, pf.Metadata.CompletionRate, 1e-9)
}

func TestPopulateTransformations(t *testing.T) {
	s := &schema.FormSchema{
		SchemaName: "x",
		FieldMappings: map[string]schema.FieldMapping{
			"patient_name": {
				SourceField: "patient_name",
				Transformations: []schema.Transformation{
					{Type: "trim"},
					{Type: "uppercase"},
					{Type: "mystery_step"}, // unknown transforms are no-ops
				},
			},
			"first_medication": {
				SourceField:     "medications",
				Transformations: []schema.Transformation{{Type: "extract_first"}},
			},
			"birth_date": {
				SourceField:     "birth_date",
				Transformations: []schema.Transformation{{Type: "format_date"}},
			},
		},
	}
	entities := map[string]Value{
		"patient_name": String("  jane doe  "),
		"medications":  List([]Value{String("metformin"), String("glipizide")}),
		"birth_date":   String("1985-03-07"),
	}

	pf, err := newTestEngine(nil).Populate(context.Background(), s, entities)
	require.NoError(t, err)

	assert.Equal(t, "JANE DOE", pf.Fields["patient_name"].Value.Text())
	assert.Equal(t, "metformin", pf.Fields["first_medication"].Value.Text())
	assert.Equal(t, "03/07/1985", pf.Fields["birth_date"].Value.Text())
}

func TestPopulateValidationDiscardsBadValue(t *testing.T) {
	s := &schema.FormSchema{
		SchemaName: "x",
		FieldMappings: map[string]schema.FieldMapping{
			"member_id": {
				SourceField: "member_id",
				Required:    true,
				Validation:  &schema.Validation{Type: "string", Pattern: `^[A-Z]{2,3}\d{6,9}$`},
			},
		},
	}
	entities := map[string]Value{"member_id": String("not-a-member-id")}

	pf, err := newTestEngine(nil).Populate(context.Background(), s, entities)
	require.NoError(t, err)

	assert.True(t, pf.Fields["member_id"].Value.IsEmpty())
	assert.Zero(t, pf.Fields["member_id"].Confidence)
	assert.Contains(t, pf.Metadata.MissingFields, "member_id")
}

func TestFieldConfidence(t *testing.T) {
	withValidation := schema.FieldMapping{
		SourceField: "f",
		Validation:  &schema.Validation{Type: "string"},
	}

	tests := []struct {
		name    string
		value   Value
		mapping schema.FieldMapping
		want    float64
	}{
		{name: "plain value", value: String("Jane Doe"), mapping: schema.FieldMapping{SourceField: "f"}, want: 0.8},
		{name: "short value penalized", value: String("AB"), mapping: schema.FieldMapping{SourceField: "f"}, want: 0.56},
		{name: "validated value boosted", value: String("Jane Doe"), mapping: withValidation, want: 0.88},
		{name: "short validated value", value: String("AB"), mapping: withValidation, want: 0.62},
		{name: "empty value", value: Value{}, mapping: schema.FieldMapping{SourceField: "f"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, fieldConfidence(tt.value, tt.mapping), 1e-9)
		})
	}
}

func TestPopulateSections(t *testing.T) {
	s := &schema.FormSchema{
		SchemaName: "x",
		FieldMappings: map[string]schema.FieldMapping{
			"patient_name": {SourceField: "patient_name"},
			"member_id":    {SourceField: "member_id"},
		},
		FormStructure: &schema.FormStructure{
			Sections: map[string]schema.Section{
				"patient": {Title: "Patient Information", Fields: []string{"patient_name", "member_id", "not_in_schema"}},
			},
		},
	}

	pf, err := newTestEngine(nil).Populate(context.Background(), s, map[string]Value{
		"patient_name": String("Jane Doe"),
	})
	require.NoError(t, err)

	require.Contains(t, pf.Sections, "patient")
	section := pf.Sections["patient"]
	assert.Equal(t, "Patient Information", section.Title)
	assert.ElementsMatch(t, []string{"patient_name", "member_id"}, section.Fields)
	// Counts are per section: all declared fields against the populated ones.
	assert.Equal(t, 3, section.TotalFields)
	assert.Equal(t, 1, section.PopulatedFields)
}

func TestPopulateIsIdempotent(t *testing.T) {
	s := &schema.FormSchema{
		SchemaName: "x",
		FieldMappings: map[string]schema.FieldMapping{
			"patient_name": {SourceField: "patient_name", Required: true},
			"member_id": {
				SourceField: "member_id",
				Required:    true,
				Validation:  &schema.Validation{Type: "string", Pattern: `^[A-Z]{2,3}\d{6,9}$`},
			},
			"a1c_value":     {SourceField: "a1c_value"},
			"step_therapy":  {SourceField: "step_therapy"},
			"urgency_level": {SourceField: "urgency_level"},
		},
		ConditionalRules: &schema.ConditionalRules{
			SimpleRules: []schema.SimpleRule{
				{
					Description: "high A1C requires step therapy documentation",
					Condition:   schema.Condition{Type: "greater_than", Field: "a1c_value", Value: "9.0"},
					Actions:     []schema.Action{{Type: "make_required", Field: "step_therapy"}},
				},
				{
					Description: "default urgency",
					Condition:   schema.Condition{Type: "empty", Field: "urgency_level"},
					Actions:     []schema.Action{{Type: "set_value", Field: "urgency_level", Value: "standard"}},
				},
			},
		},
	}
	entities := map[string]Value{
		"patient_name": String("Jane Doe"),
		"member_id":    String("ABC1234567"),
		"a1c_value":    String("10.2%"),
	}

	engine := newTestEngine(nil)
	first, err := engine.Populate(context.Background(), s, entities)
	require.NoError(t, err)
	second, err := engine.Populate(context.Background(), s, entities)
	require.NoError(t, err)

	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, first.Metadata.ConfidenceScores, second.Metadata.ConfidenceScores)
	assert.Equal(t, first.Metadata.PopulatedFields, second.Metadata.PopulatedFields)
	assert.Equal(t, first.Metadata.MissingFields, second.Metadata.MissingFields)
	assert.Equal(t, first.Metadata.ConditionalLogic, second.Metadata.ConditionalLogic)
}

func TestReformatDate(t *testing.T) {
	assert.Equal(t, "03/07/1985", reformatDate(String("1985-03-07"), "").Text())
	assert.Equal(t, "1985-03-07", reformatDate(String("March 7, 1985"), "2006-01-02").Text())
	// Unparseable dates pass through unchanged.
	assert.Equal(t, "sometime last year", reformatDate(String("sometime last year"), "").Text())
}
