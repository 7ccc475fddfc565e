package services

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/Lllllllleong/deficiencyreportflow/internal/gcp"
)

const (
	StatusStorePostgres  = "postgres"
	StatusStoreFirestore = "firestore"

	BackendVertex = "vertex"
	BackendOpenAI = "openai"
)

// Config holds all configuration for a deficiency report run.
type Config struct {
	ProjectID           string
	ReportsBucket       string
	StorageEmulatorHost string

	StatusStore         string
	DatabaseURL         string
	StatusTable         string
	FirestoreCollection string

	ExtractionBackend string
	Model             string
	VertexAIRegion    string
	OpenAIAPIKey      string
	OpenAIBaseURL     string

	ExtractionMaxAttempts int
	StatusWriteAttempts   int

	StorageTimeout     time.Duration
	DBStatementTimeout time.Duration
	ModelTimeout       time.Duration

	HandoffWorkflowID string
	WorkflowLocation  string
}

// LoadConfig reads configuration from the environment and validates it.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile reads configuration from an optional flat YAML file keyed by the
// environment variable names. Environment variables override file values.
func LoadConfigFile(path string) (*Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig is LoadConfigFile without validation.
func ReadConfig(path string) (*Config, error) {
	src := settings{file: map[string]string{}}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		for k, v := range raw {
			if v != nil {
				src.file[k] = fmt.Sprint(v)
			}
		}
	}

	cfg := &Config{
		ProjectID:           src.str("PROJECT_ID", ""),
		ReportsBucket:       src.str("REPORTS_BUCKET", ""),
		StorageEmulatorHost: src.str("STORAGE_EMULATOR_HOST", ""),

		StatusStore:         strings.ToLower(src.str("STATUS_STORE", StatusStorePostgres)),
		DatabaseURL:         src.databaseURL(),
		StatusTable:         src.str("STATUS_TABLE", "pdf_documents"),
		FirestoreCollection: src.str("FIRESTORE_COLLECTION", "pdf_documents"),

		ExtractionBackend: strings.ToLower(src.str("EXTRACTION_BACKEND", BackendVertex)),
		Model:             src.str("MODEL", ""),
		VertexAIRegion:    src.str("VERTEX_AI_REGION", "us-central1"),
		OpenAIAPIKey:      src.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     src.str("OPENAI_BASE_URL", ""),

		ExtractionMaxAttempts: src.integer("EXTRACTION_MAX_ATTEMPTS", 3),
		StatusWriteAttempts:   src.integer("STATUS_WRITE_ATTEMPTS", 3),

		StorageTimeout:     src.duration("STORAGE_TIMEOUT", 2*time.Minute),
		DBStatementTimeout: src.duration("DB_STATEMENT_TIMEOUT", 10*time.Second),
		ModelTimeout:       src.duration("MODEL_TIMEOUT", 2*time.Minute),

		HandoffWorkflowID: src.str("HANDOFF_WORKFLOW_ID", ""),
		WorkflowLocation:  src.str("WORKFLOW_LOCATION", "us-central1"),
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel(cfg.ExtractionBackend)
	}
	if len(src.errs) > 0 {
		return nil, errors.Join(src.errs...)
	}
	return cfg, nil
}

// Validate checks everything a batch run needs.
func (c *Config) Validate() error {
	var errs []error
	if c.ReportsBucket == "" {
		errs = append(errs, fmt.Errorf("REPORTS_BUCKET environment variable must be set"))
	}
	switch c.StatusStore {
	case StatusStorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL or POSTGRES_HOST must be set for the postgres status store"))
		}
	case StatusStoreFirestore:
		if c.ProjectID == "" {
			errs = append(errs, fmt.Errorf("PROJECT_ID environment variable must be set for the firestore status store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STATUS_STORE %q", c.StatusStore))
	}
	if c.StatusWriteAttempts < 1 {
		errs = append(errs, fmt.Errorf("STATUS_WRITE_ATTEMPTS must be at least 1"))
	}
	if c.HandoffWorkflowID != "" && c.ProjectID == "" {
		errs = append(errs, fmt.Errorf("PROJECT_ID environment variable must be set when HANDOFF_WORKFLOW_ID is set"))
	}
	if err := c.ValidateExtraction(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateExtraction checks only the model backend settings.
func (c *Config) ValidateExtraction() error {
	var errs []error
	switch c.ExtractionBackend {
	case BackendVertex:
		if c.ProjectID == "" {
			errs = append(errs, fmt.Errorf("PROJECT_ID environment variable must be set for the vertex backend"))
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY environment variable must be set for the openai backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EXTRACTION_BACKEND %q", c.ExtractionBackend))
	}
	if c.ExtractionMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("EXTRACTION_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func defaultModel(backend string) string {
	if backend == BackendOpenAI {
		return "gpt-4o"
	}
	return "gemini-1.5-pro"
}

// settings resolves keys from the environment first, then the config file.
type settings struct {
	file map[string]string
	errs []error
}

func (s *settings) str(key, fallback string) string {
	if v := strings.TrimSpace(gcp.GetEnv(key, "")); v != "" {
		return v
	}
	if v := strings.TrimSpace(s.file[key]); v != "" {
		return v
	}
	return fallback
}

func (s *settings) integer(key string, fallback int) int {
	v := s.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (s *settings) duration(key string, fallback time.Duration) time.Duration {
	v := s.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

// databaseURL prefers DATABASE_URL and otherwise assembles a DSN from POSTGRES_* parts.
func (s *settings) databaseURL() string {
	if dsn := s.str("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	host := s.str("POSTGRES_HOST", "")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, s.str("POSTGRES_PORT", "5432")),
		Path:   "/" + s.str("POSTGRES_DATABASE", "postgres"),
	}
	if user := s.str("POSTGRES_USER", ""); user != "" {
		if pw := s.str("POSTGRES_PASSWORD", ""); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}
