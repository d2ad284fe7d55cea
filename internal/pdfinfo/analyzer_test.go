package pdfinfo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTextPDF(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 11)
	for _, line := range lines {
		doc.MultiCell(0, 6, line, "", "L", false)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, doc.OutputFileAndClose(path))
	return path
}

func TestAnalyzeNativeTextDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeTextPDF(t, dir, "referral.pdf", []string{
		"Prior authorization request for patient Jane Doe, member ABC1234567.",
		"Primary diagnosis: type 2 diabetes mellitus, A1C 10.2 percent.",
	})

	analysis, err := NewAnalyzer(0, nil).Analyze(path)
	require.NoError(t, err)

	assert.Equal(t, path, analysis.Path)
	assert.Equal(t, 1, analysis.PageCount)
	assert.Positive(t, analysis.FileSizeBytes)
	assert.True(t, analysis.HasNativeText)
	assert.False(t, analysis.NeedsOCR)
}

func TestAnalyzeBlankDocumentNeedsOCR(t *testing.T) {
	dir := t.TempDir()
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.AddPage()
	path := filepath.Join(dir, "scan.pdf")
	require.NoError(t, doc.OutputFileAndClose(path))

	analysis, err := NewAnalyzer(0, nil).Analyze(path)
	require.NoError(t, err)

	assert.False(t, analysis.HasNativeText)
	assert.True(t, analysis.NeedsOCR)
}

func TestAnalyzeValidation(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := NewAnalyzer(0, nil).Analyze(filepath.Join(dir, "nope.pdf"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("directory", func(t *testing.T) {
		sub := filepath.Join(dir, "sub.pdf")
		require.NoError(t, os.Mkdir(sub, 0o755))
		_, err := NewAnalyzer(0, nil).Analyze(sub)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "directory")
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))
		_, err := NewAnalyzer(0, nil).Analyze(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a PDF")
	})

	t.Run("too large", func(t *testing.T) {
		path := writeTextPDF(t, dir, "big.pdf", []string{"content"})
		_, err := NewAnalyzer(16, nil).Analyze(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("corrupt content", func(t *testing.T) {
		path := filepath.Join(dir, "broken.pdf")
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 not really"), 0o644))
		_, err := NewAnalyzer(0, nil).Analyze(path)
		require.Error(t, err)
	})
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	path := writeTextPDF(t, dir, "referral.pdf", []string{
		"Patient Jane Doe was previously treated with metformin and glipizide.",
	})

	text, err := NewAnalyzer(0, nil).ExtractText(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, "metformin"))
}
