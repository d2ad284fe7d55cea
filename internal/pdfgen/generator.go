package pdfgen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/formworks/priorauth/internal/form"
)

// Generation methods, from most to least faithful to the original template.
const (
	MethodTemplateFill   = "template_fill"
	MethodHybridOverlay  = "hybrid_overlay"
	MethodSimpleDocument = "simple_document"
)

// Result describes the document one Generate call produced.
type Result struct {
	OutputPath     string     `json:"output_path"`
	Method         string     `json:"generation_method"`
	FileSize       int64      `json:"file_size"`
	FieldsIncluded int        `json:"fields_included"`
	FieldsFilled   int        `json:"fields_filled"`
	Stats          *FillStats `json:"fill_statistics,omitempty"`
}

// Generator produces the output PDF for a populated form. Strategies degrade
// in order: template fill, hybrid overlay appended to the template, and a
// fresh data document as the guaranteed floor. Only failure of all three is
// returned to the caller.
type Generator struct {
	templatePath string
	outputDir    string
	fill         func(templatePath string, values map[string]string, outputPath string) (*FillStats, error)
	logger       *zap.Logger
}

// NewGenerator creates a generator. An empty templatePath skips straight to
// the data-document strategy.
func NewGenerator(templatePath, outputDir string, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		templatePath: templatePath,
		outputDir:    outputDir,
		fill:         fillTemplate,
		logger:       logger,
	}
}

// Generate writes the output document for the populated form and records the
// outcome in the form's metadata.
func (g *Generator) Generate(pf *form.PopulatedForm, documentID string) (*Result, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(g.outputDir, documentID+"_filled_form.pdf")

	result, err := g.generate(pf, outputPath)
	if err != nil {
		return nil, err
	}

	if info, statErr := os.Stat(outputPath); statErr == nil {
		result.FileSize = info.Size()
	}
	pf.Metadata.PDFGeneration = &form.GenerationRecord{
		OutputPath:       result.OutputPath,
		GenerationMethod: result.Method,
		FileSize:         result.FileSize,
		FieldsIncluded:   result.FieldsIncluded,
		FieldsFilled:     result.FieldsFilled,
	}

	g.logger.Info("generated output document",
		zap.String("method", result.Method),
		zap.String("path", result.OutputPath),
		zap.Int("fields_filled", result.FieldsFilled))
	return result, nil
}

func (g *Generator) generate(pf *form.PopulatedForm, outputPath string) (*Result, error) {
	if g.templateAvailable() {
		if result, err := g.tryTemplateFill(pf, outputPath); err == nil {
			return result, nil
		} else {
			g.logger.Warn("template fill unusable, degrading to hybrid overlay",
				zap.Error(err))
		}

		if result, err := g.tryHybridOverlay(pf, outputPath); err == nil {
			return result, nil
		} else {
			g.logger.Warn("hybrid overlay failed, degrading to data document",
				zap.Error(err))
		}
	} else {
		g.logger.Info("no template configured, producing data document")
	}

	return g.writeDataDocument(pf, outputPath)
}

func (g *Generator) templateAvailable() bool {
	if g.templatePath == "" {
		return false
	}
	info, err := os.Stat(g.templatePath)
	return err == nil && !info.IsDir()
}

// tryTemplateFill fills the template's AcroForm directly. Finding fields but
// matching none of them means the template's field names diverge from the
// schema, which the hybrid strategy handles better than an empty form.
func (g *Generator) tryTemplateFill(pf *form.PopulatedForm, outputPath string) (*Result, error) {
	values := make(map[string]string, len(pf.Fields))
	for name, entry := range pf.Fields {
		if !entry.Value.IsEmpty() {
			values[name] = entry.Value.Text()
		}
	}

	stats, err := g.fill(g.templatePath, values, outputPath)
	if err != nil {
		return nil, err
	}
	if stats.FieldsFound > 0 && stats.FieldsFilled == 0 {
		return nil, fmt.Errorf("template has %d fields but none matched the schema's field names", stats.FieldsFound)
	}

	return &Result{
		OutputPath:     outputPath,
		Method:         MethodTemplateFill,
		FieldsIncluded: len(values),
		FieldsFilled:   stats.FieldsFilled,
		Stats:          stats,
	}, nil
}

// tryHybridOverlay keeps the template's pages and appends rendered data
// pages behind them.
func (g *Generator) tryHybridOverlay(pf *form.PopulatedForm, outputPath string) (*Result, error) {
	overlayFile, err := os.CreateTemp(g.outputDir, "overlay-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay temp file: %w", err)
	}
	overlayPath := overlayFile.Name()
	overlayFile.Close()
	defer os.Remove(overlayPath)

	included, err := writeOverlayDocument(pf, overlayPath)
	if err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.MergeCreateFile([]string{g.templatePath, overlayPath}, outputPath, false, conf); err != nil {
		return nil, fmt.Errorf("failed to merge overlay with template: %w", err)
	}

	return &Result{
		OutputPath:     outputPath,
		Method:         MethodHybridOverlay,
		FieldsIncluded: included,
	}, nil
}

func (g *Generator) writeDataDocument(pf *form.PopulatedForm, outputPath string) (*Result, error) {
	included, err := writeSimpleDocument(pf, outputPath)
	if err != nil {
		return nil, fmt.Errorf("all generation strategies failed: %w", err)
	}
	return &Result{
		OutputPath:     outputPath,
		Method:         MethodSimpleDocument,
		FieldsIncluded: included,
	}, nil
}
