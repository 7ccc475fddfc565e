package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/deficiencyreportflow/internal/models"
	"github.com/Lllllllleong/deficiencyreportflow/internal/services"
)

var (
	config  *services.Config
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// HTTP for schedulers and manual runs, CloudEvent for Pub/Sub or Eventarc triggers.
	// Neither payload is read.
	functions.HTTP("ProcessDeficiencyReports", processDeficiencyReports)
	functions.CloudEvent("ProcessDeficiencyReportsEvent", processDeficiencyReportsEvent)
}

// main is required by the Go Functions Framework.
func main() {}

func loadConfig() (*services.Config, error) {
	once.Do(func() {
		config, initErr = services.LoadConfig()
	})
	return config, initErr
}

func processDeficiencyReports(w http.ResponseWriter, r *http.Request) {
	resp := run(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

func processDeficiencyReportsEvent(ctx context.Context, e cloudevents.Event) error {
	slog.Info("Received trigger event.", "eventId", e.ID(), "eventType", e.Type())
	resp := run(ctx)
	if resp.StatusCode != http.StatusOK {
		// Returning an error marks the invocation as failed.
		return fmt.Errorf("deficiency report run failed: %s", resp.Body.Error)
	}
	return nil
}

func run(ctx context.Context) models.HandlerResponse {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return models.NewHandlerResponse(nil, err)
	}
	return services.Handle(ctx, cfg)
}
