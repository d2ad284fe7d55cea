// Package pdfinfo inspects submitted PDF documents: structural validation,
// page counting, and deciding whether a document carries enough native text
// to skip OCR.
package pdfinfo

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

const (
	// nativeTextThreshold is the minimum number of extractable characters,
	// sampled over the leading pages, for a document to count as native text.
	nativeTextThreshold = 50
	// nativeTextSamplePages bounds how many leading pages are sampled.
	nativeTextSamplePages = 3

	maxTextSize = 10 * 1024 * 1024
)

// Analysis is the structural summary of a submitted document.
type Analysis struct {
	Path          string            `json:"path"`
	PageCount     int               `json:"page_count"`
	FileSizeBytes int64             `json:"file_size_bytes"`
	HasNativeText bool              `json:"has_native_text"`
	NeedsOCR      bool              `json:"needs_ocr"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Analyzer validates and inspects PDF files.
type Analyzer struct {
	maxFileSize int64
	logger      *zap.Logger
}

// NewAnalyzer creates an analyzer that rejects files larger than maxFileSize
// bytes.
func NewAnalyzer(maxFileSize int64, logger *zap.Logger) *Analyzer {
	if maxFileSize <= 0 {
		maxFileSize = 100 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{maxFileSize: maxFileSize, logger: logger}
}

// Analyze validates the file and reports its structure. The native-text
// decision samples the leading pages; a scanned document whose sample yields
// almost no text is flagged for OCR.
func (a *Analyzer) Analyze(path string) (*Analysis, error) {
	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if err := a.validatePDFFile(path, fileInfo); err != nil {
		return nil, err
	}

	pageCount, version, err := readStructure(path)
	if err != nil {
		return nil, err
	}

	sampled, err := sampleNativeText(path, nativeTextSamplePages)
	if err != nil {
		// A parse failure at the text layer usually means a scanned or
		// image-only document, not a fatal input.
		a.logger.Warn("text sampling failed, assuming scanned document",
			zap.String("path", path),
			zap.Error(err))
		sampled = ""
	}
	hasNativeText := len(strings.TrimSpace(sampled)) > nativeTextThreshold

	analysis := &Analysis{
		Path:          path,
		PageCount:     pageCount,
		FileSizeBytes: fileInfo.Size(),
		HasNativeText: hasNativeText,
		NeedsOCR:      !hasNativeText,
		Metadata:      map[string]string{},
	}
	if version != "" {
		analysis.Metadata["pdf_version"] = version
	}

	a.logger.Debug("analyzed document",
		zap.String("path", path),
		zap.Int("pages", pageCount),
		zap.Bool("native_text", hasNativeText))
	return analysis, nil
}

// ExtractText returns the full native text of the document, page by page.
// Pages that fail to parse are skipped rather than failing the extraction.
func (a *Analyzer) ExtractText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var builder strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if builder.Len()+len(content) > maxTextSize {
			remaining := maxTextSize - builder.Len()
			if remaining > 0 {
				builder.WriteString(content[:remaining])
			}
			break
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

func (a *Analyzer) validatePDFFile(path string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", path)
	}
	if fileInfo.Size() > a.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), a.maxFileSize)
	}
	return nil
}

// readStructure parses the document with relaxed validation and reports its
// page count and header version.
func readStructure(path string) (int, string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	file, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	ctx, err := api.ReadContext(file, conf)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse PDF structure: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, "", fmt.Errorf("failed to determine page count: %w", err)
	}

	version := ""
	if ctx.HeaderVersion != nil {
		version = ctx.HeaderVersion.String()
	}
	return ctx.PageCount, version, nil
}

// sampleNativeText extracts text from up to maxPages leading pages.
func sampleNativeText(path string, maxPages int) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pages := reader.NumPage()
	if pages > maxPages {
		pages = maxPages
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(content)
	}
	return builder.String(), nil
}
