package gallery

import (
	"context"
	"fmt"
	"testing"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type stubBatchRepo struct {
	published   map[uuid.UUID]bool
	failPublish map[uuid.UUID]error
	rows        map[uuid.UUID]*models.Media
	deleteErr   error
	deleted     []uuid.UUID
}

func newStubBatchRepo() *stubBatchRepo {
	return &stubBatchRepo{
		published:   map[uuid.UUID]bool{},
		failPublish: map[uuid.UUID]error{},
		rows:        map[uuid.UUID]*models.Media{},
	}
}

func (r *stubBatchRepo) SetPublished(_ context.Context, id uuid.UUID, published bool) error {
	if err, ok := r.failPublish[id]; ok {
		return err
	}
	r.published[id] = published
	return nil
}

func (r *stubBatchRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Media, error) {
	var out []models.Media
	for _, id := range ids {
		if row, ok := r.rows[id]; ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *stubBatchRepo) DeleteMany(_ context.Context, ids []uuid.UUID) (int64, error) {
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	r.deleted = append(r.deleted, ids...)
	for _, id := range ids {
		delete(r.rows, id)
	}
	return int64(len(ids)), nil
}

type stubBlobs struct {
	deleted []string
	err     error
}

func (b *stubBlobs) DeleteObject(_ context.Context, _, object string) error {
	if b.err != nil {
		return b.err
	}
	b.deleted = append(b.deleted, object)
	return nil
}

func TestPublishPartialFailure(t *testing.T) {
	repo := newStubBatchRepo()
	blobs := &stubBlobs{}
	m, err := NewBatchMutator(repo, blobs, testLogger(), nil)
	if err != nil {
		t.Fatalf("building mutator: %v", err)
	}

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	repo.failPublish[ids[1]] = fmt.Errorf("row locked")

	err = m.Publish(context.Background(), ids, true)
	if err == nil {
		t.Fatal("expected aggregated failure")
	}

	// Items 1 and 3 are flipped, item 2 is not.
	if !repo.published[ids[0]] || !repo.published[ids[2]] {
		t.Fatal("independent items must still be published")
	}
	if _, ok := repo.published[ids[1]]; ok {
		t.Fatal("failed item must not be published")
	}

	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodePartialBatch {
		t.Fatalf("expected partial batch code, got %v", err)
	}
	if n := len(multierr.Errors(coded.Unwrap())); n != 1 {
		t.Fatalf("expected 1 aggregated failure, got %d", n)
	}
}

func TestPublishAllSucceed(t *testing.T) {
	repo := newStubBatchRepo()
	m, _ := NewBatchMutator(repo, &stubBlobs{}, testLogger(), nil)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	if err := m.Publish(context.Background(), ids, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range ids {
		if !repo.published[id] {
			t.Fatalf("item %s not published", id)
		}
	}
}

func TestDeleteRemovesRowsAndBlobs(t *testing.T) {
	repo := newStubBatchRepo()
	blobs := &stubBlobs{}
	m, _ := NewBatchMutator(repo, blobs, testLogger(), nil)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	for i, id := range ids {
		repo.rows[id] = &models.Media{ID: id, StorageKey: fmt.Sprintf("uploads/%d.png", i)}
	}

	if err := m.Delete(context.Background(), ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.deleted) != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", len(repo.deleted))
	}
	if len(blobs.deleted) != 2 {
		t.Fatalf("expected 2 blob deletes, got %d", len(blobs.deleted))
	}
}

func TestDeleteBlobFailureDoesNotFailBatch(t *testing.T) {
	repo := newStubBatchRepo()
	blobs := &stubBlobs{err: fmt.Errorf("object store down")}
	m, _ := NewBatchMutator(repo, blobs, testLogger(), nil)

	id := uuid.New()
	repo.rows[id] = &models.Media{ID: id, StorageKey: "uploads/a.png"}

	if err := m.Delete(context.Background(), []uuid.UUID{id}); err != nil {
		t.Fatalf("blob failure must not fail the batch: %v", err)
	}
	if len(repo.deleted) != 1 {
		t.Fatal("row not deleted")
	}
}

func TestDeleteRowFailure(t *testing.T) {
	repo := newStubBatchRepo()
	repo.deleteErr = fmt.Errorf("deadlock")
	blobs := &stubBlobs{}
	m, _ := NewBatchMutator(repo, blobs, testLogger(), nil)

	if err := m.Delete(context.Background(), []uuid.UUID{uuid.New()}); err == nil {
		t.Fatal("expected error")
	}
	if len(blobs.deleted) != 0 {
		t.Fatal("blobs must not be deleted when the row delete fails")
	}
}
