// Package services defines the contracts for the external capabilities the
// pipeline depends on (OCR, structured parsing, entity extraction and
// reasoning) together with the resilient call wrapper every invocation goes
// through. The engines behind these interfaces live outside this module.
package services

import (
	"context"
	"time"
)

// OCRResult carries the output of a full-document OCR pass.
type OCRResult struct {
	Text           string        `json:"extracted_text"`
	Confidence     float64       `json:"confidence_score"`
	PageCount      int           `json:"page_count"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// ParseResult carries the output of a structured/markdown document parse.
type ParseResult struct {
	Markdown string            `json:"markdown_content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OCRClient extracts text from scanned documents.
type OCRClient interface {
	// ProbeAvailable is a cheap configuration/reachability check that makes
	// no real call.
	ProbeAvailable() bool
	ExtractText(ctx context.Context, path string) (*OCRResult, error)
}

// ParserClient produces structured markdown content from a document.
type ParserClient interface {
	ProbeAvailable() bool
	ParseStructured(ctx context.Context, path string) (*ParseResult, error)
}

// ReasonerClient performs entity extraction over free text and answers
// targeted inference prompts.
type ReasonerClient interface {
	ProbeAvailable() bool
	ExtractEntities(ctx context.Context, text string) (map[string]any, error)
	Infer(ctx context.Context, prompt string) (map[string]any, error)
}
