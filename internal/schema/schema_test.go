package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSchema() *FormSchema {
	return &FormSchema{
		SchemaName:    "InsureCo_Ozempic",
		SchemaVersion: "1.0",
		FieldMappings: map[string]FieldMapping{
			"patient_name": {SourceField: "patient_first_name", Required: true},
			"a1c_value":    {SourceField: "a1c_value"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FormSchema)
		wantErr string
	}{
		{
			name:   "valid schema",
			mutate: func(*FormSchema) {},
		},
		{
			name:    "missing schema name",
			mutate:  func(s *FormSchema) { s.SchemaName = "" },
			wantErr: "schema_name",
		},
		{
			name:    "missing field mappings",
			mutate:  func(s *FormSchema) { s.FieldMappings = nil },
			wantErr: "field_mappings",
		},
		{
			name: "mapping without source field",
			mutate: func(s *FormSchema) {
				s.FieldMappings["orphan"] = FieldMapping{Required: true}
			},
			wantErr: "missing source_field",
		},
		{
			name: "simple rule references unknown field",
			mutate: func(s *FormSchema) {
				s.ConditionalRules = &ConditionalRules{
					SimpleRules: []SimpleRule{{
						Condition: Condition{Type: "equals", Field: "no_such_field", Value: "x"},
						Actions:   []Action{{Type: "add_note", Note: "n"}},
					}},
				}
			},
			wantErr: "unknown field",
		},
		{
			name: "simple rule without actions",
			mutate: func(s *FormSchema) {
				s.ConditionalRules = &ConditionalRules{
					SimpleRules: []SimpleRule{{
						Condition: Condition{Type: "not_empty", Field: "a1c_value"},
					}},
				}
			},
			wantErr: "missing actions",
		},
		{
			name: "complex rule without prompt",
			mutate: func(s *FormSchema) {
				s.ConditionalRules = &ConditionalRules{
					ComplexRules: []ComplexRule{{
						Actions: []Action{{Type: "add_note", Note: "n"}},
					}},
				}
			},
			wantErr: "missing prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSchema()
			tt.mutate(s)
			err := Validate(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"schema_name": "InsureCo_Ozempic",
		"schema_version": "1.2",
		"field_mappings": {
			"patient_name": {"source_field": "patient_first_name", "required": true},
			"member_id": {
				"source_field": "member_id",
				"validation": {"type": "string", "pattern": "^[A-Z]{2,3}\\d{6,9}$"}
			}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "InsureCo_Ozempic.json"), []byte(content), 0o644))

	loader := NewLoader(dir, nil)
	s, err := loader.Load("InsureCo_Ozempic")
	require.NoError(t, err)
	assert.Equal(t, "InsureCo_Ozempic", s.SchemaName)
	assert.Equal(t, "1.2", s.SchemaVersion)
	assert.Len(t, s.FieldMappings, 2)
	assert.True(t, s.FieldMappings["patient_name"].Required)
	require.NotNil(t, s.FieldMappings["member_id"].Validation)
	assert.Equal(t, "^[A-Z]{2,3}\\d{6,9}$", s.FieldMappings["member_id"].Validation.Pattern)

	// Second load comes from cache and returns the same parsed schema.
	again, err := loader.Load("InsureCo_Ozempic")
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader(t.TempDir(), nil)
	_, err := loader.Load("does_not_exist")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoaderInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	loader := NewLoader(dir, nil)
	_, err := loader.Load("broken")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoaderRejectsStructurallyInvalidSchema(t *testing.T) {
	dir := t.TempDir()
	content := `{"schema_name": "x", "field_mappings": {"f": {}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.json"), []byte(content), 0o644))

	loader := NewLoader(dir, nil)
	_, err := loader.Load("x")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "source_field")
}
