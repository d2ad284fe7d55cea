package pdfgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formworks/priorauth/internal/form"
)

func samplePopulatedForm() *form.PopulatedForm {
	return &form.PopulatedForm{
		Fields: map[string]*form.FieldEntry{
			"patient_name":    {Value: form.String("Jane Doe"), Confidence: 0.88},
			"member_id":       {Value: form.String("ABC1234567"), Confidence: 0.88},
			"provider_npi":    {Value: form.String("1234567890"), Confidence: 0.8},
			"primary_diagnosis": {Value: form.String("type 2 diabetes"), Confidence: 0.8},
			"medication_name": {Value: form.String("Ozempic"), Confidence: 0.8},
			"a1c_value":       {Value: form.String("10.2%"), Confidence: 0.8},
			"fax_number":      {Value: form.Value{}, Required: true},
		},
		Metadata: form.FormMetadata{
			SchemaName:       "InsureCo_Ozempic",
			PopulatedFields:  6,
			TotalFields:      7,
			CompletionRate:   0.86,
			MissingFields:    []string{"fax_number"},
			ConfidenceScores: map[string]float64{},
			ConditionalNotes: []string{"step therapy documented"},
		},
	}
}

func writePlainPDF(t *testing.T, path string) {
	t.Helper()
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.CellFormat(0, 10, "Prior Authorization Request Form", "", 1, "L", false, 0, "")
	require.NoError(t, doc.OutputFileAndClose(path))
}

func TestGenerateWithoutTemplateProducesDataDocument(t *testing.T) {
	outputDir := t.TempDir()
	pf := samplePopulatedForm()

	result, err := NewGenerator("", outputDir, nil).Generate(pf, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, MethodSimpleDocument, result.Method)
	assert.Equal(t, filepath.Join(outputDir, "doc-1_filled_form.pdf"), result.OutputPath)
	assert.Positive(t, result.FileSize)
	assert.Equal(t, 6, result.FieldsIncluded)

	info, err := os.Stat(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), result.FileSize)

	require.NotNil(t, pf.Metadata.PDFGeneration)
	assert.Equal(t, MethodSimpleDocument, pf.Metadata.PDFGeneration.GenerationMethod)
	assert.Equal(t, result.OutputPath, pf.Metadata.PDFGeneration.OutputPath)
}

func TestGenerateMissingTemplateFallsBackToDataDocument(t *testing.T) {
	outputDir := t.TempDir()

	result, err := NewGenerator(filepath.Join(outputDir, "nope.pdf"), outputDir, nil).
		Generate(samplePopulatedForm(), "doc-2")
	require.NoError(t, err)
	assert.Equal(t, MethodSimpleDocument, result.Method)
}

func TestGenerateTemplateWithoutFormFieldsUsesHybridOverlay(t *testing.T) {
	outputDir := t.TempDir()
	templatePath := filepath.Join(outputDir, "template.pdf")
	writePlainPDF(t, templatePath)

	pf := samplePopulatedForm()
	result, err := NewGenerator(templatePath, outputDir, nil).Generate(pf, "doc-3")
	require.NoError(t, err)

	// A template with no AcroForm cannot be filled directly, so the chain
	// degrades to the overlay strategy which keeps the template's pages.
	assert.Equal(t, MethodHybridOverlay, result.Method)
	assert.Positive(t, result.FileSize)
	assert.Equal(t, 6, result.FieldsIncluded)

	// The merged document must not leave the overlay temp file behind.
	leftovers, err := filepath.Glob(filepath.Join(outputDir, "overlay-*.pdf"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestGenerateZeroMatchedFieldsDegradesToHybridOverlay(t *testing.T) {
	outputDir := t.TempDir()
	templatePath := filepath.Join(outputDir, "template.pdf")
	writePlainPDF(t, templatePath)

	// A template whose field names all diverge from the schema fills nothing;
	// an untouched form is worse than the overlay, so the chain must degrade.
	g := NewGenerator(templatePath, outputDir, nil)
	g.fill = func(string, map[string]string, string) (*FillStats, error) {
		return &FillStats{FieldsFound: 4, FieldsFilled: 0, FieldsMissing: []string{"a", "b", "c", "d"}}, nil
	}

	pf := samplePopulatedForm()
	result, err := g.Generate(pf, "doc-4")
	require.NoError(t, err)
	assert.Equal(t, MethodHybridOverlay, result.Method)
	assert.Positive(t, result.FileSize)
}

func TestTryTemplateFillRejectsZeroMatchedFields(t *testing.T) {
	g := NewGenerator("template.pdf", t.TempDir(), nil)
	g.fill = func(string, map[string]string, string) (*FillStats, error) {
		return &FillStats{FieldsFound: 3, FieldsFilled: 0, FieldsMissing: []string{"a", "b", "c"}}, nil
	}

	_, err := g.tryTemplateFill(samplePopulatedForm(), filepath.Join(t.TempDir(), "out.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none matched")
}

func TestWriteOverlayDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.pdf")

	included, err := writeOverlayDocument(samplePopulatedForm(), path)
	require.NoError(t, err)
	assert.Equal(t, 6, included)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestGroupFor(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"patient_name", "Patient Information"},
		{"member_id", "Patient Information"},
		{"date_of_birth", "Patient Information"},
		{"provider_npi", "Prescriber Information"},
		{"prescriber_phone", "Prescriber Information"},
		{"primary_diagnosis", "Diagnosis"},
		{"icd10_code", "Diagnosis"},
		{"medication_name", "Medication"},
		{"dosage_strength", "Medication"},
		{"a1c_value", "Clinical Details"},
		{"clinical_justification", "Clinical Details"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, groupFor(tt.field), tt.field)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Patient Name", displayName("patient_name"))
	assert.Equal(t, "A1c Value", displayName("a1c_value"))
	assert.Equal(t, "Npi", displayName("npi"))
}

func TestCheckedValues(t *testing.T) {
	for _, v := range []string{"yes", "true", "1", "checked", "on"} {
		assert.True(t, checkedValues[v], v)
	}
	assert.False(t, checkedValues["no"])
	assert.False(t, checkedValues["off"])
}
