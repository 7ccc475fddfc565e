package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/deficiencyreportflow/internal/common"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// NewStorageClient creates a GCS client, talking to an emulator when emulatorHost is set.
func NewStorageClient(ctx context.Context, emulatorHost string) (*storage.Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(emulatorHost), "/")
	if endpoint == "" {
		client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
		if err != nil {
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		return client, nil
	}
	_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
	client, err := storage.NewClient(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage emulator client: %w", err)
	}
	return client, nil
}

// ObjectStore moves PDFs and generated reports between one bucket and a local
// scratch directory. Every call is a single attempt bounded by timeout.
type ObjectStore struct {
	client     *storage.Client
	bucket     string
	scratchDir string
	timeout    time.Duration
}

func NewObjectStore(client *storage.Client, bucket, scratchDir string, timeout time.Duration) *ObjectStore {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ObjectStore{
		client:     client,
		bucket:     bucket,
		scratchDir: scratchDir,
		timeout:    timeout,
	}
}

// Fetch downloads key into the scratch directory and returns the local path.
// A partially written file is removed on failure.
func (s *ObjectStore) Fetch(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", &common.TransferError{Op: "fetch", Bucket: s.bucket, Key: key, Kind: common.TransferOther, Err: errors.New("empty object key")}
	}
	logCtx := slog.With("gcsBucket", s.bucket, "gcsObject", key)
	localPath := ScratchPath(s.scratchDir, key)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return "", s.transferError(logCtx, "fetch", key, err)
	}
	defer reader.Close()

	localFile, err := os.Create(localPath)
	if err != nil {
		return "", &common.TransferError{Op: "fetch", Bucket: s.bucket, Key: key, Kind: common.TransferOther, Err: fmt.Errorf("failed to create scratch file at %s: %w", localPath, err)}
	}
	if _, err := io.Copy(localFile, reader); err != nil {
		_ = localFile.Close()
		_ = os.Remove(localPath)
		return "", s.transferError(logCtx, "fetch", key, fmt.Errorf("failed to copy GCS object to local file: %w", err))
	}
	if err := localFile.Close(); err != nil {
		_ = os.Remove(localPath)
		return "", &common.TransferError{Op: "fetch", Bucket: s.bucket, Key: key, Kind: common.TransferOther, Err: fmt.Errorf("failed to finalize scratch file: %w", err)}
	}
	logCtx.Info("Downloaded source PDF.", "localPath", localPath, "bytes", reader.Attrs.Size)
	return localPath, nil
}

// Store uploads content under key, overwriting any previous object, and returns
// the canonical gs:// locator.
func (s *ObjectStore) Store(ctx context.Context, content []byte, key string) (string, error) {
	logCtx := slog.With("gcsBucket", s.bucket, "gcsObject", key)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if strings.EqualFold(path.Ext(key), ".json") {
		writer.ContentType = "application/json"
	}
	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		return "", s.transferError(logCtx, "store", key, fmt.Errorf("failed to write to GCS: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", s.transferError(logCtx, "store", key, fmt.Errorf("failed to finalize GCS write: %w", err))
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

func (s *ObjectStore) transferError(logCtx *slog.Logger, op, key string, err error) error {
	kind := ClassifyTransferError(err)
	if kind == common.TransferAccessDenied {
		logCtx.Error("Permission error during object transfer.", "op", op, "error", err)
	} else {
		logCtx.Error("Object transfer failed.", "op", op, "kind", string(kind), "error", err)
	}
	return &common.TransferError{Op: op, Bucket: s.bucket, Key: key, Kind: kind, Err: err}
}

// ClassifyTransferError separates permission and missing-object failures from the rest.
func ClassifyTransferError(err error) common.TransferKind {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return common.TransferNotFound
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return common.TransferAccessDenied
		case http.StatusNotFound:
			return common.TransferNotFound
		}
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return common.TransferAccessDenied
	case codes.NotFound:
		return common.TransferNotFound
	}
	return common.TransferOther
}

// ScratchPath is the local path a fetched object is written to.
func ScratchPath(scratchDir, key string) string {
	return filepath.Join(scratchDir, filepath.Base(filepath.FromSlash(key)))
}
