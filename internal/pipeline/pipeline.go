// Package pipeline drives a prior-authorization document through the fixed
// stage sequence, persisting every stage outcome so a run's status can be
// inspected without re-running it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/formworks/priorauth/internal/form"
	"github.com/formworks/priorauth/internal/pdfgen"
	"github.com/formworks/priorauth/internal/pdfinfo"
	"github.com/formworks/priorauth/internal/schema"
	"github.com/formworks/priorauth/internal/services"
	"github.com/formworks/priorauth/internal/store"
)

// Analyzer inspects a submitted document and extracts its native text.
type Analyzer interface {
	Analyze(path string) (*pdfinfo.Analysis, error)
	ExtractText(path string) (string, error)
}

// Generator produces the final output document for a populated form.
type Generator interface {
	Generate(pf *form.PopulatedForm, documentID string) (*pdfgen.Result, error)
}

// Collaborators are the optional external capabilities. A nil client means
// the capability is not configured; the stages that need it skip or degrade.
type Collaborators struct {
	OCR      services.OCRClient
	Parser   services.ParserClient
	Reasoner services.ReasonerClient
}

// Deps wires an Orchestrator.
type Deps struct {
	Store        *store.Store
	Schemas      *schema.Loader
	Engine       *form.Engine
	Analyzer     Analyzer
	Generator    Generator
	Caller       *services.Caller
	Clients      Collaborators
	CleanupInput bool
	Logger       *zap.Logger
}

// Orchestrator executes the stage sequence for one document at a time.
type Orchestrator struct {
	store        *store.Store
	schemas      *schema.Loader
	engine       *form.Engine
	analyzer     Analyzer
	generator    Generator
	caller       *services.Caller
	clients      Collaborators
	cleanupInput bool
	logger       *zap.Logger
}

// New creates an orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	caller := deps.Caller
	if caller == nil {
		caller = services.NewCaller(0, 0, logger)
	}
	return &Orchestrator{
		store:        deps.Store,
		schemas:      deps.Schemas,
		engine:       deps.Engine,
		analyzer:     deps.Analyzer,
		generator:    deps.Generator,
		caller:       caller,
		clients:      deps.Clients,
		cleanupInput: deps.CleanupInput,
		logger:       logger,
	}
}

// OutputFile describes one artifact a run produced.
type OutputFile struct {
	Type   string  `json:"type"`
	Path   string  `json:"path"`
	SizeKB float64 `json:"size_kb"`
}

// Summary aggregates a run's stage outcomes.
type Summary struct {
	TotalStages     int          `json:"total_stages"`
	CompletedStages int          `json:"completed_stages"`
	SkippedStages   int          `json:"skipped_stages"`
	FailedStages    int          `json:"failed_stages"`
	SuccessRate     float64      `json:"success_rate"`
	OutputFiles     []OutputFile `json:"output_files"`
}

// Result is the surface a successful run returns.
type Result struct {
	PipelineMetadata map[string]any `json:"pipeline_metadata"`
	StageResults     []StageResult  `json:"stage_results"`
	DocumentID       string         `json:"document_id"`
	Summary          Summary        `json:"summary"`
}

// runState is the per-run scratchpad passed between stages. It belongs to a
// single Run call; the Orchestrator itself holds no run state.
type runState struct {
	documentID   string
	documentPath string
	schemaName   string

	analysis       *pdfinfo.Analysis
	ocrText        string
	primaryContent string
	entities       map[string]form.Value
	populated      *form.PopulatedForm
	generated      *pdfgen.Result

	metadata  map[string]any
	completed []string
	skipped   []string
	failed    []string
}

type stageFunc func(ctx context.Context, rs *runState) (any, error)

// Run executes the full stage sequence for one document. A non-conditional
// stage failure halts the run with a typed error; everything persisted up to
// that point stays persisted.
func (o *Orchestrator) Run(ctx context.Context, documentPath, schemaName string) (*Result, error) {
	start := time.Now()
	rs := &runState{
		documentID:   store.NewDocumentID(),
		documentPath: documentPath,
		schemaName:   schemaName,
	}
	rs.metadata = map[string]any{
		"document_id":          rs.documentID,
		"document_path":        documentPath,
		"schema_name":          schemaName,
		"pipeline_start_time":  start.UTC().Format(time.RFC3339),
		"service_availability": o.serviceAvailability(),
	}

	o.logger.Info("starting pipeline",
		zap.String("document_id", rs.documentID),
		zap.String("document", documentPath),
		zap.String("schema", schemaName))
	o.saveRunMetadata(rs, "pipeline_started")

	stageFuncs := map[Stage]stageFunc{
		StageInitialization:   o.stageInitialization,
		StagePDFAnalysis:      o.stagePDFAnalysis,
		StageOCRProcessing:    o.stageOCRProcessing,
		StageDocumentParsing:  o.stageDocumentParsing,
		StageEntityExtraction: o.stageEntityExtraction,
		StageFormFilling:      o.stageFormFilling,
		StagePDFGeneration:    o.stagePDFGeneration,
		StageCompletion:       o.stageCompletion,
	}

	results := make([]StageResult, 0, len(stageOrder))
	for _, stage := range stageOrder {
		conditional := stage == StageOCRProcessing
		result := o.executeStage(ctx, rs, stage, stageFuncs[stage], conditional)
		results = append(results, result)

		if result.Status == StatusFailed {
			o.handleFailure(rs, stage, result.Reason)
			return nil, &Error{Stage: stage, Message: result.Reason, Cause: result.Err}
		}
	}

	duration := time.Since(start)
	rs.metadata["pipeline_end_time"] = time.Now().UTC().Format(time.RFC3339)
	rs.metadata["total_duration_seconds"] = duration.Seconds()
	o.saveRunMetadata(rs, "pipeline_completed")

	o.logger.Info("pipeline completed",
		zap.String("document_id", rs.documentID),
		zap.Duration("duration", duration))

	return &Result{
		PipelineMetadata: rs.metadata,
		StageResults:     results,
		DocumentID:       rs.documentID,
		Summary:          o.buildSummary(rs),
	}, nil
}

// executeStage runs one stage through the shared driver: time it, persist
// its payload, and translate errors into skip or failure records.
func (o *Orchestrator) executeStage(ctx context.Context, rs *runState, stage Stage, fn stageFunc, conditional bool) StageResult {
	start := time.Now()
	o.logger.Info("starting stage", zap.Stringer("stage", stage))

	payload, err := fn(ctx, rs)
	duration := time.Since(start).Seconds()

	if err == nil {
		result := StageResult{
			Stage:           stage.String(),
			Status:          StatusCompleted,
			StartTime:       start,
			DurationSeconds: duration,
			Result:          payload,
		}
		rs.completed = append(rs.completed, stage.String())
		if payload != nil {
			o.persistStage(rs, stage.String(), payload)
		}
		o.logger.Info("stage completed",
			zap.Stringer("stage", stage),
			zap.Float64("duration_seconds", duration))
		return result
	}

	if conditional {
		reason := err.Error()
		var skip *SkipError
		if errors.As(err, &skip) {
			o.logger.Info("stage skipped", zap.Stringer("stage", stage), zap.String("reason", reason))
		} else {
			// A real failure on a conditional stage also skips, but it is a
			// degradation worth flagging, not a planned outcome.
			reason = fmt.Sprintf("%s failed: %s", stage, reason)
			o.logger.Warn("conditional stage failed, continuing without it",
				zap.Stringer("stage", stage), zap.Error(err))
		}
		rs.skipped = append(rs.skipped, stage.String())
		return StageResult{
			Stage:           stage.String(),
			Status:          StatusSkipped,
			StartTime:       start,
			DurationSeconds: duration,
			Reason:          reason,
		}
	}

	o.logger.Error("stage failed", zap.Stringer("stage", stage), zap.Error(err))
	rs.failed = append(rs.failed, stage.String())
	return StageResult{
		Stage:           stage.String(),
		Status:          StatusFailed,
		StartTime:       start,
		DurationSeconds: duration,
		Reason:          err.Error(),
		Err:             err,
	}
}

func (o *Orchestrator) stageInitialization(_ context.Context, rs *runState) (any, error) {
	info, err := os.Stat(rs.documentPath)
	if err != nil {
		return nil, fmt.Errorf("document not found: %s", rs.documentPath)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("document path is a directory: %s", rs.documentPath)
	}
	// Fail fast on a bad schema before any expensive work happens.
	if _, err := o.schemas.Load(rs.schemaName); err != nil {
		return nil, err
	}
	return map[string]any{
		"document_id":          rs.documentID,
		"document_path":        rs.documentPath,
		"schema_name":          rs.schemaName,
		"file_size_bytes":      info.Size(),
		"service_availability": o.serviceAvailability(),
	}, nil
}

func (o *Orchestrator) stagePDFAnalysis(_ context.Context, rs *runState) (any, error) {
	analysis, err := o.analyzer.Analyze(rs.documentPath)
	if err != nil {
		return nil, fmt.Errorf("pdf analysis failed: %w", err)
	}
	rs.analysis = analysis
	o.logger.Info("analyzed document",
		zap.Int("pages", analysis.PageCount),
		zap.Bool("native_text", analysis.HasNativeText))
	return analysis, nil
}

func (o *Orchestrator) stageOCRProcessing(ctx context.Context, rs *runState) (any, error) {
	if rs.analysis == nil || !rs.analysis.NeedsOCR {
		return nil, skipf("document has native text, OCR not needed")
	}
	if o.clients.OCR == nil || !o.clients.OCR.ProbeAvailable() {
		return nil, &services.UnavailableError{Service: "ocr"}
	}

	var ocrResult *services.OCRResult
	err := o.caller.Do(ctx, "ocr", func(ctx context.Context) error {
		var callErr error
		ocrResult, callErr = o.clients.OCR.ExtractText(ctx, rs.documentPath)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	rs.ocrText = ocrResult.Text
	o.logger.Info("ocr completed",
		zap.Int("characters", len(ocrResult.Text)),
		zap.Float64("confidence", ocrResult.Confidence))
	return map[string]any{
		"extracted_text":   ocrResult.Text,
		"confidence_score": ocrResult.Confidence,
		"page_count":       ocrResult.PageCount,
		"processing_time":  ocrResult.ProcessingTime.Seconds(),
	}, nil
}

// stageDocumentParsing tries the structured parser first and falls back to
// native text extraction with pattern scanning. The stage fails only when
// both strategies fail.
func (o *Orchestrator) stageDocumentParsing(ctx context.Context, rs *runState) (any, error) {
	methods := map[string]any{}
	contentAvailable := false

	if o.clients.Parser != nil && o.clients.Parser.ProbeAvailable() {
		var parsed *services.ParseResult
		err := o.caller.Do(ctx, "parser", func(ctx context.Context) error {
			var callErr error
			parsed, callErr = o.clients.Parser.ParseStructured(ctx, rs.documentPath)
			return callErr
		})
		if err == nil {
			methods["structured_parser"] = map[string]any{
				"success":  true,
				"metadata": parsed.Metadata,
			}
			rs.primaryContent = parsed.Markdown
			contentAvailable = true
		} else {
			methods["structured_parser"] = map[string]any{"success": false, "error": err.Error()}
			o.logger.Warn("structured parsing failed", zap.Error(err))
		}
	} else {
		methods["structured_parser"] = map[string]any{"success": false, "error": "parsing service not available"}
	}

	text, err := o.analyzer.ExtractText(rs.documentPath)
	if err == nil {
		patterns := scanPatterns(text)
		methods["text_extraction"] = map[string]any{
			"success":         true,
			"characters":      len(text),
			"pattern_matches": patterns,
		}
		if rs.primaryContent == "" {
			rs.primaryContent = text
		}
		contentAvailable = true
	} else {
		methods["text_extraction"] = map[string]any{"success": false, "error": err.Error()}
		o.logger.Warn("text extraction failed", zap.Error(err))
	}

	if !contentAvailable {
		return nil, fmt.Errorf("all parsing methods failed")
	}
	return map[string]any{
		"parsing_methods":   methods,
		"content_available": contentAvailable,
		"primary_content":   rs.primaryContent,
	}, nil
}

func (o *Orchestrator) stageEntityExtraction(ctx context.Context, rs *runState) (any, error) {
	content := strings.TrimSpace(rs.primaryContent)
	if content == "" {
		content = strings.TrimSpace(rs.ocrText)
	}
	if content == "" {
		return nil, fmt.Errorf("no document content available for entity extraction")
	}
	if o.clients.Reasoner == nil || !o.clients.Reasoner.ProbeAvailable() {
		return nil, &services.UnavailableError{Service: "reasoner"}
	}

	var raw map[string]any
	err := o.caller.Do(ctx, "reasoner", func(ctx context.Context) error {
		var callErr error
		raw, callErr = o.clients.Reasoner.ExtractEntities(ctx, content)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	rs.entities = form.IngestEntities(raw)
	report := validateEntities(raw, rs.entities)
	o.logger.Info("entities extracted",
		zap.Int("populated", report["populated_fields"].(int)),
		zap.Int("total", report["total_fields"].(int)))
	return map[string]any{
		"extracted_entities": raw,
		"validation_report":  report,
	}, nil
}

// validateEntities reports how much of the raw extraction survived ingestion
// as usable values.
func validateEntities(raw map[string]any, entities map[string]form.Value) map[string]any {
	populated := 0
	for _, v := range entities {
		if !v.IsEmpty() {
			populated++
		}
	}
	confidence := 0.0
	if len(raw) > 0 {
		confidence = float64(populated) / float64(len(raw))
	}
	return map[string]any{
		"total_fields":     len(raw),
		"populated_fields": populated,
		"empty_fields":     len(raw) - populated,
		"confidence_score": confidence,
	}
}

func (o *Orchestrator) stageFormFilling(ctx context.Context, rs *runState) (any, error) {
	if len(rs.entities) == 0 {
		return nil, fmt.Errorf("no extracted entities available for form filling")
	}
	s, err := o.schemas.Load(rs.schemaName)
	if err != nil {
		return nil, err
	}
	populated, err := o.engine.Populate(ctx, s, rs.entities)
	if err != nil {
		return nil, fmt.Errorf("form population failed: %w", err)
	}
	rs.populated = populated
	return map[string]any{
		"populated_form":   populated,
		"schema_name":      rs.schemaName,
		"completion_rate":  populated.Metadata.CompletionRate,
		"populated_fields": populated.Metadata.PopulatedFields,
		"total_fields":     populated.Metadata.TotalFields,
	}, nil
}

func (o *Orchestrator) stagePDFGeneration(_ context.Context, rs *runState) (any, error) {
	if rs.populated == nil {
		return nil, fmt.Errorf("no populated form available for pdf generation")
	}
	generated, err := o.generator.Generate(rs.populated, rs.documentID)
	if err != nil {
		return nil, fmt.Errorf("pdf generation failed: %w", err)
	}
	rs.generated = generated
	return generated, nil
}

func (o *Orchestrator) stageCompletion(_ context.Context, rs *runState) (any, error) {
	if o.cleanupInput {
		if err := os.Remove(rs.documentPath); err != nil {
			o.logger.Warn("could not remove input document", zap.Error(err))
		}
	}
	payload := map[string]any{
		"status":           "completed",
		"stages_completed": len(rs.completed) + 1, // this stage included
		"stages_skipped":   len(rs.skipped),
	}
	if rs.generated != nil {
		payload["output_path"] = rs.generated.OutputPath
		payload["generation_method"] = rs.generated.Method
	}
	return payload, nil
}

func (o *Orchestrator) serviceAvailability() map[string]bool {
	return map[string]bool{
		"ocr":      o.clients.OCR != nil && o.clients.OCR.ProbeAvailable(),
		"parser":   o.clients.Parser != nil && o.clients.Parser.ProbeAvailable(),
		"reasoner": o.clients.Reasoner != nil && o.clients.Reasoner.ProbeAvailable(),
	}
}

func (o *Orchestrator) buildSummary(rs *runState) Summary {
	summary := Summary{
		TotalStages:     TotalStages,
		CompletedStages: len(rs.completed),
		SkippedStages:   len(rs.skipped),
		FailedStages:    len(rs.failed),
		SuccessRate:     float64(len(rs.completed)) / float64(TotalStages),
		OutputFiles:     []OutputFile{},
	}
	if rs.generated != nil {
		summary.OutputFiles = append(summary.OutputFiles, OutputFile{
			Type:   "filled_pdf",
			Path:   rs.generated.OutputPath,
			SizeKB: float64(rs.generated.FileSize) / 1024,
		})
	}
	return summary
}

// handleFailure persists the failure before the run's error surfaces.
func (o *Orchestrator) handleFailure(rs *runState, stage Stage, reason string) {
	rs.metadata["failed_stage"] = stage.String()
	rs.metadata["error_message"] = reason
	rs.metadata["failure_time"] = time.Now().UTC().Format(time.RFC3339)

	o.persistStage(rs, stage.String()+"_error", map[string]any{
		"error_message": reason,
	})
	o.saveRunMetadata(rs, "pipeline_failed")
}

func (o *Orchestrator) persistStage(rs *runState, stage string, payload any) {
	if err := o.store.SaveStageData(rs.documentID, stage, payload); err != nil {
		o.logger.Error("failed to persist stage data",
			zap.String("stage", stage), zap.Error(err))
	}
}

func (o *Orchestrator) saveRunMetadata(rs *runState, status string) {
	rs.metadata["stages_completed"] = append([]string{}, rs.completed...)
	rs.metadata["stages_skipped"] = append([]string{}, rs.skipped...)
	rs.metadata["stages_failed"] = append([]string{}, rs.failed...)

	if err := o.store.SaveMetadata(rs.documentID, map[string]any{
		"status":            status,
		"pipeline_metadata": rs.metadata,
	}); err != nil {
		o.logger.Error("failed to save pipeline metadata", zap.Error(err))
	}
}
