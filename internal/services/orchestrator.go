package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/deficiencyreportflow/internal/models"
)

// ObjectStore moves source PDFs to local scratch files and uploads generated reports.
type ObjectStore interface {
	Fetch(ctx context.Context, key string) (string, error)
	Store(ctx context.Context, content []byte, key string) (string, error)
}

// StatusStore tracks the processing state of each document.
type StatusStore interface {
	ListByStatus(ctx context.Context, st models.Status) ([]models.DocumentRef, error)
	SetStatus(ctx context.Context, id string, st models.Status) error
	SetResult(ctx context.Context, id string, artifact *string, st models.Status) error
}

type Extractor interface {
	Extract(ctx context.Context, path string) (*models.InspectionReport, error)
}

// Orchestrator processes every NotProcessed document once, one at a time.
type Orchestrator struct {
	Store     StatusStore
	Objects   ObjectStore
	Extractor Extractor

	// StatusWriteAttempts bounds the retries of the terminal status write.
	StatusWriteAttempts int
	// WriteBackoff is the wait between terminal write attempts; it doubles each time.
	WriteBackoff time.Duration
	RunID        string
	Log          *slog.Logger
}

// Run lists pending documents and drives each through Processing into a terminal state.
// It only returns an error when the pending documents cannot be listed.
func (o *Orchestrator) Run(ctx context.Context) (*models.BatchResult, error) {
	runID := o.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logCtx := o.logger().With("runId", runID)

	refs, err := o.Store.ListByStatus(ctx, models.StatusNotProcessed)
	if err != nil {
		logCtx.Error("Failed to list unprocessed documents.", "error", err)
		return nil, fmt.Errorf("failed to list unprocessed documents: %w", err)
	}

	result := &models.BatchResult{RunID: runID}
	if len(refs) == 0 {
		logCtx.Info(models.NothingToProcessMessage)
		return result, nil
	}
	logCtx.Info("Starting batch.", "documentCount", len(refs))

	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			logCtx.Warn("Run cancelled. Remaining documents left unprocessed.", "remaining", len(refs)-i, "error", err)
			for _, rest := range refs[i:] {
				result.Processed = append(result.Processed, models.FailedOutcome(rest.ID, fmt.Errorf("run cancelled before processing: %w", err)))
			}
			break
		}
		result.Processed = append(result.Processed, o.processDocument(ctx, logCtx.With("documentId", ref.ID), ref))
	}

	logCtx.Info("Batch complete.", "documentCount", len(result.Processed), "succeeded", len(result.Succeeded()))
	return result, nil
}

func (o *Orchestrator) processDocument(ctx context.Context, logCtx *slog.Logger, ref models.DocumentRef) (out models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = o.fail(ctx, logCtx, ref.ID, "Panic while processing document.", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := o.Store.SetStatus(ctx, ref.ID, models.StatusProcessing); err != nil {
		logCtx.Warn("Failed to mark document as Processing. Continuing.", "error", err)
	}

	localPath, err := o.Objects.Fetch(ctx, ref.SourceRef)
	if err != nil {
		return o.fail(ctx, logCtx, ref.ID, "Failed to download source PDF.", err)
	}
	defer func() {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			logCtx.Warn("Failed to remove scratch file.", "path", localPath, "error", err)
		}
	}()

	report, err := o.Extractor.Extract(ctx, localPath)
	if err != nil {
		return o.fail(ctx, logCtx, ref.ID, "Failed to extract inspection report.", err)
	}

	content, err := report.MarshalArtifact()
	if err != nil {
		return o.fail(ctx, logCtx, ref.ID, "Failed to serialize inspection report.", err)
	}

	key := models.ArtifactKey(ref.ID)
	locator, err := o.Objects.Store(ctx, content, key)
	if err != nil {
		return o.fail(ctx, logCtx, ref.ID, "Failed to upload inspection report.", err)
	}
	logCtx.Info("Uploaded inspection report.", "locator", locator)

	if err := o.writeTerminal(ctx, logCtx, ref.ID, &key, models.StatusSuccess); err != nil {
		return o.fail(ctx, logCtx, ref.ID, "Failed to mark document as successful.", fmt.Errorf("report stored at %s but status write failed: %w", key, err))
	}

	logCtx.Info("Document processed successfully.", "reportPath", key)
	return models.SuccessOutcome(ref.ID, key)
}

// fail records the Failed terminal state with no artifact and builds the outcome.
func (o *Orchestrator) fail(ctx context.Context, logCtx *slog.Logger, id, message string, cause error) models.Outcome {
	logCtx.Error(message, "error", cause)
	out := models.FailedOutcome(id, cause)
	if err := o.writeTerminal(ctx, logCtx, id, nil, models.StatusFailed); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to Failed after a processing error.", "updateError", err)
		out.PersistError = err.Error()
	}
	return out
}

// writeTerminal retries SetResult. It ignores cancellation of ctx so that a cancelled run
// still leaves its in-flight document in a terminal state.
func (o *Orchestrator) writeTerminal(ctx context.Context, logCtx *slog.Logger, id string, artifact *string, st models.Status) error {
	ctx = context.WithoutCancel(ctx)
	attempts := o.StatusWriteAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := o.WriteBackoff

	var err error
	for i := 1; i <= attempts; i++ {
		if err = o.Store.SetResult(ctx, id, artifact, st); err == nil {
			return nil
		}
		logCtx.Warn("Status write failed.", "status", st.String(), "attempt", i, "maxAttempts", attempts, "error", err)
		if i < attempts && backoff > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}
