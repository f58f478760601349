package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// multipartThreshold is the payload size above which snapshots switch from a
// single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// SnapshotArchiver stores raw listing payloads fetched from the upstream API
// so any pipeline decision can later be replayed against the exact input, and
// reads them back for the snapshot API.
type SnapshotArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	now    func() time.Time
}

// NewSnapshotArchiver creates a SnapshotArchiver on top of a blob writer and
// reader for the same bucket.
func NewSnapshotArchiver(writer domain.BlobWriter, reader domain.BlobReader) *SnapshotArchiver {
	return &SnapshotArchiver{writer: writer, reader: reader, now: time.Now}
}

// snapshotPrefix is the partition holding every snapshot archived on one UTC
// day.
func snapshotPrefix(day time.Time) string {
	return "raw/polymarket/" + day.UTC().Format("2006/01/02") + "/"
}

// ArchiveListings uploads the raw payloads of one fetch as JSONL, partitioned
// by fetch date and keyed by run id:
//
//	raw/polymarket/2026/08/30/run-<id>.jsonl
//
// Listings without a preserved raw payload are skipped. Returns the object
// path, or "" when there was nothing to archive.
func (a *SnapshotArchiver) ArchiveListings(ctx context.Context, runID string, listings []domain.SourceListing) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	n := 0
	for _, l := range listings {
		if len(l.Raw) == 0 {
			continue
		}
		if err := enc.Encode(l.Raw); err != nil {
			return "", fmt.Errorf("s3blob: encode listing %s: %w", l.Key(), err)
		}
		n++
	}
	if n == 0 {
		return "", nil
	}

	path := fmt.Sprintf("%srun-%s.jsonl", snapshotPrefix(a.now()), runID)

	if buf.Len() > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, path, &buf, 0); err != nil {
			return "", fmt.Errorf("s3blob: archive listings: %w", err)
		}
		return path, nil
	}
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive listings: %w", err)
	}
	return path, nil
}

// ListSnapshots returns the snapshots archived on the given UTC day.
func (a *SnapshotArchiver) ListSnapshots(ctx context.Context, day time.Time) ([]domain.BlobInfo, error) {
	infos, err := a.reader.List(ctx, snapshotPrefix(day))
	if err != nil {
		return nil, fmt.Errorf("s3blob: list snapshots: %w", err)
	}
	return infos, nil
}

// ReadSnapshot streams back the raw payloads archived for one run on the
// given UTC day, one JSON document per listing. Returns domain.ErrNotFound
// when no snapshot exists for that run.
func (a *SnapshotArchiver) ReadSnapshot(ctx context.Context, day time.Time, runID string) ([]json.RawMessage, error) {
	if strings.ContainsAny(runID, "/\\") {
		return nil, fmt.Errorf("s3blob: read snapshot: %w: run id %q", domain.ErrNotFound, runID)
	}

	path := fmt.Sprintf("%srun-%s.jsonl", snapshotPrefix(day), runID)
	rc, err := a.reader.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read snapshot %s: %w", runID, err)
	}
	defer rc.Close()

	var listings []json.RawMessage
	dec := json.NewDecoder(rc)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("s3blob: decode snapshot %s: %w", runID, err)
		}
		listings = append(listings, raw)
	}
	return listings, nil
}
