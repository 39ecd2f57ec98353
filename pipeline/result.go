package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pevans/iqnews"
)

// Stage result statuses, as consumed by the external scheduler.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// ExtractResult is the extraction stage's hand-off document. Field names are
// part of the orchestrator contract and must not change.
type ExtractResult struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	ArticlesScraped int    `json:"articles_scraped"`
	InsertedCount   int    `json:"inserted_count"`
	TargetDate      string `json:"target_date"`
	OutputFile      string `json:"output_file"`
}

// TransformResult is the transform stage's hand-off document.
type TransformResult struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	ArticlesProcessed int    `json:"articles_processed"`
	InsertedCount     int    `json:"inserted_count"`
	TargetDate        string `json:"target_date"`
	OutputFile        string `json:"output_file"`
}

// LoadStageResult is the load stage's hand-off document.
type LoadStageResult struct {
	Status          string                 `json:"status"`
	Message         string                 `json:"message"`
	LoadResult      iqnews.LoadResult      `json:"load_result"`
	AnalyticsResult *iqnews.DailyAnalytics `json:"analytics_result"`
	TargetDate      string                 `json:"target_date"`
	CompletedAt     time.Time              `json:"completed_at"`
}

// Hand-off file locations. Result files are named from the stage and the
// target date; article payload files compact the date to YYYYMMDD.

func (p *Pipeline) extractionResultPath(date string) string {
	return filepath.Join(p.config.DataDir, fmt.Sprintf("extraction_result_%s.json", date))
}

func (p *Pipeline) transformResultPath(date string) string {
	return filepath.Join(p.config.DataDir, fmt.Sprintf("transform_result_%s.json", date))
}

func (p *Pipeline) loadResultPath(date string) string {
	return filepath.Join(p.config.DataDir, fmt.Sprintf("load_result_%s.json", date))
}

func (p *Pipeline) extractedNewsPath(date string) string {
	return filepath.Join(p.config.DataDir, fmt.Sprintf("extracted_news_%s.json", compactDate(date)))
}

func (p *Pipeline) processedNewsPath(date string) string {
	return filepath.Join(p.config.DataDir, fmt.Sprintf("processed_news_%s.json", compactDate(date)))
}

func compactDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("20060102")
}

// writeJSON writes a hand-off document, creating the data directory first.
// Re-running a stage overwrites its previous files in place.
func writeJSON(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, doc any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
