// Package store provides durable JSON-backed storage for per-document
// metadata and per-stage processing results. Every write goes through a
// temp-file-then-rename cycle so concurrent readers never observe a partial
// record.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	metadataSuffix  = "_metadata.json"
	processedSuffix = "_processed.json"

	dirPerm  = 0o750
	filePerm = 0o644
)

var (
	// ErrNotFound indicates no record exists for the document id.
	ErrNotFound = errors.New("document record not found")
	// ErrStageNotFound indicates the processed-data record exists but holds
	// no entry for the requested stage.
	ErrStageNotFound = errors.New("stage not found in document record")
)

// StageRecord is the stored envelope for one stage's output.
type StageRecord struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store persists document records under a single data directory.
type Store struct {
	dataDir string
	logger  *zap.Logger
}

// New creates a store rooted at dataDir, creating the directory if needed.
func New(dataDir string, logger *zap.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dataDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dataDir: dataDir, logger: logger}, nil
}

// NewDocumentID returns a fresh opaque document identifier.
func NewDocumentID() string {
	return uuid.NewString()
}

// DataDir returns the directory the store writes into.
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) metadataPath(documentID string) string {
	return filepath.Join(s.dataDir, documentID+metadataSuffix)
}

func (s *Store) processedPath(documentID string) string {
	return filepath.Join(s.dataDir, documentID+processedSuffix)
}

// SaveMetadata merges metadata into the document's metadata record. The merge
// is shallow: incoming keys overwrite existing ones, but created_at from the
// first write is always preserved.
func (s *Store) SaveMetadata(documentID string, metadata map[string]any) error {
	if documentID == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	record := map[string]any{
		"document_id": documentID,
		"created_at":  now,
		"updated_at":  now,
	}

	existing, err := s.readRecord(s.metadataPath(documentID))
	if err == nil {
		for k, v := range existing {
			record[k] = v
		}
		record["updated_at"] = now
		if created, ok := existing["created_at"]; ok {
			record["created_at"] = created
		}
	} else if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("could not read existing metadata, rewriting record",
			zap.String("document_id", documentID), zap.Error(err))
	}

	for k, v := range metadata {
		if k == "created_at" || k == "document_id" {
			continue
		}
		record[k] = v
	}

	if err := s.writeRecord(s.metadataPath(documentID), record); err != nil {
		return fmt.Errorf("failed to save metadata for document %s: %w", documentID, err)
	}
	s.logger.Debug("saved document metadata", zap.String("document_id", documentID))
	return nil
}

// Metadata returns the full metadata record for a document.
func (s *Store) Metadata(documentID string) (map[string]any, error) {
	record, err := s.readRecord(s.metadataPath(documentID))
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SaveStageData records one stage's output in the document's processed-data
// record. Each write touches only its own stage key; results from other
// stages are left intact.
func (s *Store) SaveStageData(documentID, stage string, data any) error {
	if documentID == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	if stage == "" {
		return fmt.Errorf("stage name cannot be empty")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode stage data for %s: %w", stage, err)
	}

	now := time.Now().UTC()
	record := map[string]json.RawMessage{}
	if existing, err := s.readRawRecord(s.processedPath(documentID)); err == nil {
		record = existing
	} else if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("could not read existing processed data, rewriting record",
			zap.String("document_id", documentID), zap.Error(err))
	}

	if _, ok := record["document_id"]; !ok {
		record["document_id"] = mustMarshal(documentID)
		record["created_at"] = mustMarshal(now.Format(time.RFC3339Nano))
	}
	record["updated_at"] = mustMarshal(now.Format(time.RFC3339Nano))
	record[stage] = mustMarshal(StageRecord{Data: payload, Timestamp: now})

	if err := s.writeRecord(s.processedPath(documentID), record); err != nil {
		return fmt.Errorf("failed to save stage data for document %s stage %s: %w", documentID, stage, err)
	}
	s.logger.Debug("saved stage data",
		zap.String("document_id", documentID), zap.String("stage", stage))
	return nil
}

// StageData returns the raw payload stored for one stage. It reports
// ErrNotFound when no processed-data record exists and ErrStageNotFound when
// the record exists but the stage key does not.
func (s *Store) StageData(documentID, stage string) (json.RawMessage, error) {
	record, err := s.readRawRecord(s.processedPath(documentID))
	if err != nil {
		return nil, err
	}
	raw, ok := record[stage]
	if !ok {
		return nil, fmt.Errorf("document %s stage %s: %w", documentID, stage, ErrStageNotFound)
	}
	var sr StageRecord
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("failed to decode stage record for %s: %w", stage, err)
	}
	return sr.Data, nil
}

// AllStageData returns every stored stage record for a document.
func (s *Store) AllStageData(documentID string) (map[string]StageRecord, error) {
	record, err := s.readRawRecord(s.processedPath(documentID))
	if err != nil {
		return nil, err
	}
	out := make(map[string]StageRecord, len(record))
	for key, raw := range record {
		if isRecordField(key) {
			continue
		}
		var sr StageRecord
		if err := json.Unmarshal(raw, &sr); err != nil {
			return nil, fmt.Errorf("failed to decode stage record for %s: %w", key, err)
		}
		out[key] = sr
	}
	return out, nil
}

// Stages lists the stage names recorded for a document, sorted.
func (s *Store) Stages(documentID string) ([]string, error) {
	record, err := s.readRawRecord(s.processedPath(documentID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stages := make([]string, 0, len(record))
	for key := range record {
		if isRecordField(key) {
			continue
		}
		stages = append(stages, key)
	}
	sort.Strings(stages)
	return stages, nil
}

// ListDocuments enumerates all document ids that have a metadata record.
func (s *Store) ListDocuments() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan data directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metadataSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, metadataSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes both records for a document. Missing records are not an
// error.
func (s *Store) Delete(documentID string) error {
	for _, path := range []string{s.metadataPath(documentID), s.processedPath(documentID)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}
	return nil
}

// writeRecord serializes v to a sibling temp file and renames it over path,
// so readers only ever see complete records.
func (s *Store) writeRecord(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

func (s *Store) readRecord(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", path, err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", path, err)
	}
	return record, nil
}

func (s *Store) readRawRecord(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", path, err)
	}
	var record map[string]json.RawMessage
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", path, err)
	}
	return record, nil
}

func isRecordField(key string) bool {
	switch key {
	case "document_id", "created_at", "updated_at":
		return true
	}
	return false
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable for types that cannot occur here.
		panic(err)
	}
	return data
}
