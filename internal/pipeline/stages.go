package pipeline

import "time"

// Stage identifies one unit of pipeline work. The set is closed; Run walks
// stageOrder and nothing else.
type Stage int

const (
	StageInitialization Stage = iota
	StagePDFAnalysis
	StageOCRProcessing
	StageDocumentParsing
	StageEntityExtraction
	StageFormFilling
	StagePDFGeneration
	StageCompletion
)

var stageNames = map[Stage]string{
	StageInitialization:   "initialization",
	StagePDFAnalysis:      "pdf_analysis",
	StageOCRProcessing:    "ocr_processing",
	StageDocumentParsing:  "document_parsing",
	StageEntityExtraction: "entity_extraction",
	StageFormFilling:      "form_filling",
	StagePDFGeneration:    "pdf_generation",
	StageCompletion:       "completion",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// stageOrder is the fixed execution sequence.
var stageOrder = []Stage{
	StageInitialization,
	StagePDFAnalysis,
	StageOCRProcessing,
	StageDocumentParsing,
	StageEntityExtraction,
	StageFormFilling,
	StagePDFGeneration,
	StageCompletion,
}

// TotalStages is the run-level denominator for the success rate.
const TotalStages = 8

// Status is a stage's terminal state.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// StageResult records one stage's outcome. It is written once per stage per
// run and never mutated afterwards. Err holds the failing stage's error for
// the run's typed error to wrap; persisted records carry Reason instead.
type StageResult struct {
	Stage           string    `json:"stage"`
	Status          Status    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	Result          any       `json:"result,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Err             error     `json:"-"`
}
