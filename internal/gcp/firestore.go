package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/deficiencyreportflow/internal/common"
	"github.com/Lllllllleong/deficiencyreportflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreStatusStore keeps one document per PDF in a collection, keyed by the
// document ID. Field names follow models.PDFDocument.
type FirestoreStatusStore struct {
	client     *firestore.Client
	collection string
	timeout    time.Duration
}

func NewFirestoreStatusStore(client *firestore.Client, collection string, timeout time.Duration) *FirestoreStatusStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FirestoreStatusStore{client: client, collection: collection, timeout: timeout}
}

func (s *FirestoreStatusStore) ListByStatus(ctx context.Context, st models.Status) ([]models.DocumentRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	it := s.client.Collection(s.collection).Where("status", "==", st.StoredValue()).Documents(ctx)
	defer it.Stop()

	var refs []models.DocumentRef
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &common.PersistenceError{Op: "list " + st.String(), Err: err}
		}
		var doc models.PDFDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, &common.PersistenceError{Op: "decode", ID: snap.Ref.ID, Err: err}
		}
		refs = append(refs, models.DocumentRef{ID: snap.Ref.ID, SourceRef: doc.PDFFile})
	}
	return refs, nil
}

func (s *FirestoreStatusStore) SetStatus(ctx context.Context, id string, st models.Status) error {
	return s.update(ctx, "set status", id, []firestore.Update{
		{Path: "status", Value: st.StoredValue()},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
}

func (s *FirestoreStatusStore) SetResult(ctx context.Context, id string, artifact *string, st models.Status) error {
	var report any
	if artifact != nil {
		report = *artifact
	}
	return s.update(ctx, "set result", id, []firestore.Update{
		{Path: "status", Value: st.StoredValue()},
		{Path: "deficiencyReport", Value: report},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
}

func (s *FirestoreStatusStore) update(ctx context.Context, op, id string, updates []firestore.Update) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			err = fmt.Errorf("%w: %v", common.ErrRecordNotFound, err)
		}
		slog.Error("Firestore update failed.", "documentId", id, "op", op, "error", err)
		return &common.PersistenceError{Op: op, ID: id, Err: err}
	}
	return nil
}
