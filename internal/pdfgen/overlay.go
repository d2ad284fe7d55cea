package pdfgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/formworks/priorauth/internal/form"
)

// fieldGroups partitions target fields by name keywords for the overlay
// layout. Order matters: a field lands in the first group that matches, and
// anything unmatched falls through to the clinical group.
var fieldGroups = []struct {
	title    string
	keywords []string
}{
	{"Patient Information", []string{"patient", "member", "subscriber", "dob", "birth"}},
	{"Prescriber Information", []string{"prescriber", "provider", "physician", "npi", "clinic", "office"}},
	{"Diagnosis", []string{"diagnosis", "icd", "condition"}},
	{"Medication", []string{"medication", "drug", "dose", "dosage", "quantity", "frequency", "pharmacy", "ndc"}},
	{"Clinical Details", nil},
}

// groupFields buckets field names into the overlay's named groups, sorted
// within each group for stable output.
func groupFields(fields map[string]*form.FieldEntry) map[string][]string {
	grouped := make(map[string][]string, len(fieldGroups))
	for name := range fields {
		grouped[groupFor(name)] = append(grouped[groupFor(name)], name)
	}
	for _, names := range grouped {
		sort.Strings(names)
	}
	return grouped
}

func groupFor(fieldName string) string {
	lower := strings.ToLower(fieldName)
	for _, group := range fieldGroups {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.title
			}
		}
	}
	return fieldGroups[len(fieldGroups)-1].title
}

// displayName renders a snake_case field name as a label.
func displayName(fieldName string) string {
	words := strings.Split(strings.ReplaceAll(fieldName, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// writeOverlayDocument renders grouped field/value pages for the hybrid
// strategy. Empty groups get an explicit placeholder instead of being
// omitted, so reviewers can tell absence of data from a rendering gap.
func writeOverlayDocument(pf *form.PopulatedForm, outputPath string) (int, error) {
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 10, "Prior Authorization - Extracted Data", "", 1, "C", false, 0, "")
	doc.Ln(4)

	grouped := groupFields(pf.Fields)
	included := 0
	for _, group := range fieldGroups {
		doc.SetFont("Helvetica", "B", 12)
		doc.CellFormat(0, 8, group.title, "B", 1, "L", false, 0, "")
		doc.Ln(1)

		doc.SetFont("Helvetica", "", 10)
		wrote := false
		for _, name := range grouped[group.title] {
			entry := pf.Fields[name]
			if entry.Value.IsEmpty() {
				continue
			}
			doc.SetFont("Helvetica", "B", 10)
			doc.CellFormat(60, 6, displayName(name)+":", "", 0, "L", false, 0, "")
			doc.SetFont("Helvetica", "", 10)
			doc.MultiCell(0, 6, entry.Value.Text(), "", "L", false)
			wrote = true
			included++
		}
		if !wrote {
			doc.SetFont("Helvetica", "I", 10)
			doc.CellFormat(0, 6, "no data available", "", 1, "L", false, 0, "")
		}
		doc.Ln(3)
	}

	writeNotes(doc, pf)

	if err := doc.OutputFileAndClose(outputPath); err != nil {
		return 0, fmt.Errorf("failed to write overlay document: %w", err)
	}
	return included, nil
}

// writeSimpleDocument renders the guaranteed-success floor: a fresh document
// listing every populated field with its value and confidence.
func writeSimpleDocument(pf *form.PopulatedForm, outputPath string) (int, error) {
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 10, "Prior Authorization Data Summary", "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 9)
	doc.CellFormat(0, 6,
		fmt.Sprintf("Schema: %s    Completion: %.0f%%",
			pf.Metadata.SchemaName, pf.Metadata.CompletionRate*100),
		"", 1, "C", false, 0, "")
	doc.Ln(4)

	names := make([]string, 0, len(pf.Fields))
	for name := range pf.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	included := 0
	for _, name := range names {
		entry := pf.Fields[name]
		if entry.Value.IsEmpty() {
			continue
		}
		doc.SetFont("Helvetica", "B", 10)
		doc.CellFormat(70, 6, displayName(name), "", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		doc.MultiCell(0, 6, fmt.Sprintf("%s  (confidence %.2f)", entry.Value.Text(), entry.Confidence), "", "L", false)
		included++
	}

	if len(pf.Metadata.MissingFields) > 0 {
		doc.Ln(4)
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(0, 8, "Missing Required Fields", "B", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		for _, name := range pf.Metadata.MissingFields {
			doc.CellFormat(0, 6, "- "+displayName(name), "", 1, "L", false, 0, "")
		}
	}

	writeNotes(doc, pf)

	if err := doc.OutputFileAndClose(outputPath); err != nil {
		return 0, fmt.Errorf("failed to write data document: %w", err)
	}
	return included, nil
}

func writeNotes(doc *fpdf.Fpdf, pf *form.PopulatedForm) {
	if len(pf.Metadata.ConditionalNotes) == 0 {
		return
	}
	doc.Ln(4)
	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(0, 8, "Notes", "B", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	for _, note := range pf.Metadata.ConditionalNotes {
		doc.MultiCell(0, 6, "- "+note, "", "L", false)
	}
}
