package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// memoryStore is an in-memory blob backend implementing both sides of the
// archiver.
type memoryStore struct {
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memoryStore) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memoryStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("memory: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, b := range m.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(b))})
		}
	}
	return infos, nil
}

func testArchiver(store *memoryStore, at time.Time) *SnapshotArchiver {
	a := NewSnapshotArchiver(store, store)
	a.now = func() time.Time { return at }
	return a
}

func TestArchiveListingsRoundTrip(t *testing.T) {
	store := newMemoryStore()
	day := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	archiver := testArchiver(store, day)
	ctx := context.Background()

	listings := []domain.SourceListing{
		{ID: "1", Raw: json.RawMessage(`{"id":"1","question":"a"}`)},
		{ID: "2"}, // no raw payload, skipped
		{ID: "3", Raw: json.RawMessage(`{"id":"3","question":"b"}`)},
	}

	path, err := archiver.ArchiveListings(ctx, "abc123", listings)
	if err != nil {
		t.Fatalf("ArchiveListings: %v", err)
	}
	if want := "raw/polymarket/2026/08/30/run-abc123.jsonl"; path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	got, err := archiver.ReadSnapshot(ctx, day, "abc123")
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2 (empty raw skipped)", len(got))
	}
	var first struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(got[0], &first); err != nil || first.ID != "1" {
		t.Errorf("first listing = %s (err %v)", got[0], err)
	}

	infos, err := archiver.ListSnapshots(ctx, day)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(infos) != 1 || infos[0].Path != path {
		t.Errorf("infos = %+v", infos)
	}
	if other, _ := archiver.ListSnapshots(ctx, day.AddDate(0, 0, 1)); len(other) != 0 {
		t.Errorf("next day should be empty, got %+v", other)
	}
}

func TestArchiveListingsNothingToArchive(t *testing.T) {
	store := newMemoryStore()
	archiver := testArchiver(store, time.Now())

	path, err := archiver.ArchiveListings(context.Background(), "r", []domain.SourceListing{{ID: "1"}})
	if err != nil {
		t.Fatalf("ArchiveListings: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if len(store.objects) != 0 {
		t.Errorf("objects written: %v", store.objects)
	}
}

func TestReadSnapshotMissing(t *testing.T) {
	store := newMemoryStore()
	archiver := testArchiver(store, time.Now())
	ctx := context.Background()

	if _, err := archiver.ReadSnapshot(ctx, time.Now(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing snapshot: err = %v, want ErrNotFound", err)
	}
	if _, err := archiver.ReadSnapshot(ctx, time.Now(), "../escape"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("traversal run id: err = %v, want ErrNotFound", err)
	}
}
