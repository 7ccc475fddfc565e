package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/Lllllllleong/deficiencyreportflow/internal/common"
)

// fakeGCS serves object reads and multipart uploads for a single bucket.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
	denied  map[string]bool
	uploads map[string]fakeUpload
}

type fakeUpload struct {
	contentType string
	body        []byte
}

func newFakeGCS() *fakeGCS {
	return &fakeGCS{
		objects: map[string][]byte{},
		denied:  map[string]bool{},
		uploads: map[string]fakeUpload{},
	}
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/") {
		f.upload(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for key, denied := range f.denied {
		if denied && strings.HasSuffix(r.URL.Path, "/"+key) {
			writeGCSError(w, http.StatusForbidden, "caller does not have storage.objects.get access")
			return
		}
	}
	for key, body := range f.objects {
		if strings.HasSuffix(r.URL.Path, "/"+key) {
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Length", fmt.Sprint(len(body)))
			w.Header().Set("X-Goog-Generation", "1")
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = w.Write(body)
			}
			return
		}
	}
	writeGCSError(w, http.StatusNotFound, "no such object")
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		http.Error(w, "expected multipart upload", http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(mediaPart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.uploads[meta.Name] = fakeUpload{contentType: meta.ContentType, body: body}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"bucket":      "reports",
		"name":        meta.Name,
		"contentType": meta.ContentType,
		"size":        fmt.Sprint(len(body)),
		"generation":  "1",
	})
}

func writeGCSError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

func newTestObjectStore(t *testing.T, fake *fakeGCS) (*ObjectStore, string) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client, err := storage.NewClient(ctx, option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	scratch := t.TempDir()
	return NewObjectStore(client, "reports", scratch, 5*time.Second), scratch
}

func TestObjectStoreFetchDownloadsToScratch(t *testing.T) {
	fake := newFakeGCS()
	fake.objects["42.pdf"] = []byte("%PDF-1.4 fire pump inspection")
	store, scratch := newTestObjectStore(t, fake)

	localPath, err := store.Fetch(context.Background(), "42.pdf")
	require.NoError(t, err)
	assert.Equal(t, ScratchPath(scratch, "42.pdf"), localPath)

	got, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fire pump inspection", string(got))
}

func TestObjectStoreFetchAccessDeniedLeavesNoScratchFile(t *testing.T) {
	fake := newFakeGCS()
	fake.objects["7.pdf"] = []byte("%PDF-1.4")
	fake.denied["7.pdf"] = true
	store, scratch := newTestObjectStore(t, fake)

	_, err := store.Fetch(context.Background(), "7.pdf")
	require.Error(t, err)

	var terr *common.TransferError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "fetch", terr.Op)
	assert.Equal(t, "reports", terr.Bucket)
	assert.Equal(t, "7.pdf", terr.Key)
	assert.Equal(t, common.TransferAccessDenied, terr.Kind)

	_, statErr := os.Stat(ScratchPath(scratch, "7.pdf"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestObjectStoreFetchMissingObject(t *testing.T) {
	store, _ := newTestObjectStore(t, newFakeGCS())

	_, err := store.Fetch(context.Background(), "missing.pdf")
	var terr *common.TransferError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, common.TransferNotFound, terr.Kind)
}

func TestObjectStoreStoreUploadsJSONArtifact(t *testing.T) {
	fake := newFakeGCS()
	store, _ := newTestObjectStore(t, fake)
	content := []byte(`{"deficiency_summary":[]}`)

	locator, err := store.Store(context.Background(), content, "42/42_report.json")
	require.NoError(t, err)
	assert.Equal(t, "gs://reports/42/42_report.json", locator)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	upload, ok := fake.uploads["42/42_report.json"]
	require.True(t, ok)
	assert.Equal(t, "application/json", upload.contentType)
	assert.JSONEq(t, string(content), string(upload.body))
}
