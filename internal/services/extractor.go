package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/deficiencyreportflow/internal/common"
	"github.com/Lllllllleong/deficiencyreportflow/internal/models"
)

// ReportGenerator is a model backend that answers with report JSON for normalized document text.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, text string) ([]byte, error)
}

type ExtractorConfig struct {
	MaxAttempts  int
	ModelTimeout time.Duration
	// Backoff is the wait before the second attempt; it doubles afterwards. Zero disables waiting.
	Backoff time.Duration
}

// ReportExtractor turns a local PDF into a validated InspectionReport.
type ReportExtractor struct {
	pages PageTextReader
	model ReportGenerator
	cfg   ExtractorConfig
}

func NewReportExtractor(pages PageTextReader, model ReportGenerator, cfg ExtractorConfig) *ReportExtractor {
	if pages == nil {
		pages = PDFTextReader{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 2 * time.Minute
	}
	return &ReportExtractor{pages: pages, model: model, cfg: cfg}
}

// DocumentText reads every page of path and collapses whitespace runs to single spaces.
func (e *ReportExtractor) DocumentText(path string) (string, error) {
	pages, err := e.pages.ReadPages(path)
	if err != nil {
		return "", &common.ExtractionError{Path: path, Err: err}
	}
	text := models.CollapseWhitespace(strings.Join(pages, "\n"))
	if text == "" {
		return "", &common.ExtractionError{Path: path, Err: common.ErrNoText}
	}
	return text, nil
}

func (e *ReportExtractor) Extract(ctx context.Context, path string) (*models.InspectionReport, error) {
	text, err := e.DocumentText(path)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("path", path)

	backoff := e.cfg.Backoff
	var lastErr error
	attempts := 0
	for attempts < e.cfg.MaxAttempts {
		if attempts > 0 && backoff > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return nil, &common.ExtractionError{Path: path, Attempts: attempts, Err: errors.Join(lastErr, ctx.Err())}
			}
		}
		attempts++

		report, err := e.attempt(ctx, text)
		if err == nil {
			logCtx.Info("Extracted inspection report.", "attempt", attempts, "deficiencies", len(report.DeficiencySummary))
			return report, nil
		}
		lastErr = err
		logCtx.Warn("Extraction attempt failed.", "attempt", attempts, "maxAttempts", e.cfg.MaxAttempts, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &common.ExtractionError{Path: path, Attempts: attempts, Err: lastErr}
}

func (e *ReportExtractor) attempt(ctx context.Context, text string) (*models.InspectionReport, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()

	raw, err := e.model.GenerateReport(callCtx, text)
	if err != nil {
		return nil, err
	}
	report, changed, err := models.ParseReport(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid model response: %w", err)
	}
	if len(changed) > 0 {
		slog.Debug("Normalized model response.", "fields", changed)
	}
	return report, nil
}
