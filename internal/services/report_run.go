package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/deficiencyreportflow/internal/gcp"
	"github.com/Lllllllleong/deficiencyreportflow/internal/models"
	"github.com/Lllllllleong/deficiencyreportflow/internal/openai"
	"github.com/Lllllllleong/deficiencyreportflow/internal/postgres"
)

// ReportBackend is a model backend holding resources that must be released.
type ReportBackend interface {
	ReportGenerator
	Close() error
}

// Handoff starts downstream processing for the reports of a run.
type Handoff interface {
	Trigger(ctx context.Context, payload any) (string, error)
}

// Run owns the clients and scratch directory of one batch.
type Run struct {
	ID           string
	orchestrator *Orchestrator
	handoff      Handoff
	scratchDir   string

	mu      sync.Mutex
	closers []func() error
}

// NewRun constructs every client a batch needs. Construction happens concurrently;
// anything already built is released if one of them fails.
func NewRun(ctx context.Context, cfg *Config) (*Run, error) {
	run := &Run{ID: uuid.New().String()}
	logCtx := slog.With("runId", run.ID)

	scratchDir, err := os.MkdirTemp("", "deficiency-report-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	run.scratchDir = scratchDir

	var (
		objects *gcp.ObjectStore
		store   StatusStore
		backend ReportBackend
		handoff *gcp.WorkflowTrigger
	)

	// Clients outlive construction, so they get ctx rather than a group context.
	var eg errgroup.Group
	eg.Go(func() error {
		client, err := gcp.NewStorageClient(ctx, cfg.StorageEmulatorHost)
		if err != nil {
			return err
		}
		run.addCloser(client.Close)
		objects = gcp.NewObjectStore(client, cfg.ReportsBucket, scratchDir, cfg.StorageTimeout)
		return nil
	})
	eg.Go(func() error {
		s, closeFn, err := NewStatusStore(ctx, cfg)
		if err != nil {
			return err
		}
		run.addCloser(closeFn)
		store = s
		return nil
	})
	eg.Go(func() error {
		b, err := NewReportBackend(ctx, cfg)
		if err != nil {
			return err
		}
		run.addCloser(b.Close)
		backend = b
		return nil
	})
	if cfg.HandoffWorkflowID != "" {
		eg.Go(func() error {
			t, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.HandoffWorkflowID)
			if err != nil {
				return err
			}
			run.addCloser(t.Close)
			handoff = t
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		run.Close()
		return nil, fmt.Errorf("failed to initialize run: %w", err)
	}

	run.orchestrator = &Orchestrator{
		Store:               store,
		Objects:             objects,
		Extractor:           NewReportExtractor(PDFTextReader{}, backend, cfg.ExtractorConfig()),
		StatusWriteAttempts: cfg.StatusWriteAttempts,
		WriteBackoff:        500 * time.Millisecond,
		RunID:               run.ID,
	}
	if handoff != nil {
		run.handoff = handoff
	}
	logCtx.Info("Run initialized.", "statusStore", cfg.StatusStore, "backend", cfg.ExtractionBackend, "model", cfg.Model)
	return run, nil
}

// ExtractorConfig derives the extractor settings.
func (c *Config) ExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MaxAttempts:  c.ExtractionMaxAttempts,
		ModelTimeout: c.ModelTimeout,
		Backoff:      time.Second,
	}
}

// NewStatusStore opens the configured status store and returns its release function.
func NewStatusStore(ctx context.Context, cfg *Config) (StatusStore, func() error, error) {
	switch cfg.StatusStore {
	case StatusStoreFirestore:
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		return gcp.NewFirestoreStatusStore(client, cfg.FirestoreCollection, cfg.DBStatementTimeout), client.Close, nil
	case StatusStorePostgres:
		pool, err := postgres.Open(ctx, postgres.Config{
			DSN:              cfg.DatabaseURL,
			StatementTimeout: cfg.DBStatementTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error {
			pool.Close()
			return nil
		}
		return postgres.NewStatusStore(pool, cfg.StatusTable, cfg.DBStatementTimeout), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown status store %q", cfg.StatusStore)
	}
}

// NewReportBackend creates the configured model backend.
func NewReportBackend(ctx context.Context, cfg *Config) (ReportBackend, error) {
	switch cfg.ExtractionBackend {
	case BackendVertex:
		return gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.Model, gcp.DeficiencySystemPrompt, models.InspectionReportSchema())
	case BackendOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
			Timeout: cfg.ModelTimeout,
		}, gcp.DeficiencySystemPrompt, models.InspectionReportSchema(), nil), nil
	default:
		return nil, fmt.Errorf("unknown extraction backend %q", cfg.ExtractionBackend)
	}
}

// Process runs the batch and, if any document succeeded, hands the reports to the
// downstream workflow. Hand-off failure is logged only.
func (r *Run) Process(ctx context.Context) (*models.BatchResult, error) {
	result, err := r.orchestrator.Run(ctx)
	if err != nil {
		return nil, err
	}
	r.triggerHandoff(ctx, result)
	return result, nil
}

func (r *Run) triggerHandoff(ctx context.Context, result *models.BatchResult) {
	if r.handoff == nil {
		return
	}
	succeeded := result.Succeeded()
	if len(succeeded) == 0 {
		return
	}
	logCtx := slog.With("runId", result.RunID)
	req := models.HandoffRequest{RunID: result.RunID}
	for _, o := range succeeded {
		req.Reports = append(req.Reports, models.HandoffReport{DocumentID: o.ID, ReportPath: o.ReportPath})
	}
	name, err := r.handoff.Trigger(ctx, req)
	if err != nil {
		logCtx.Error("Failed to trigger downstream workflow.", "error", err)
		return
	}
	logCtx.Info("Hand-off to workflow complete.", "execution", name, "reportCount", len(req.Reports))
}

func (r *Run) addCloser(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, fn)
}

// Close releases every client and removes the scratch directory.
func (r *Run) Close() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	for _, c := range closers {
		if err := c(); err != nil {
			slog.Warn("Failed to close client.", "runId", r.ID, "error", err)
		}
	}
	if r.scratchDir != "" {
		if err := os.RemoveAll(r.scratchDir); err != nil {
			slog.Warn("Failed to remove scratch dir.", "runId", r.ID, "path", r.scratchDir, "error", err)
		}
	}
}

// Handle executes one batch end to end and renders the entry point response.
func Handle(ctx context.Context, cfg *Config) models.HandlerResponse {
	run, err := NewRun(ctx, cfg)
	if err != nil {
		slog.Error("Failed to start run.", "error", err)
		return models.NewHandlerResponse(nil, err)
	}
	defer run.Close()

	result, err := run.Process(ctx)
	return models.NewHandlerResponse(result, err)
}
