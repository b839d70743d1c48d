package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// QuoteArchiveStore provides the quote queries the archiver needs: a read of
// everything past retention and the matching delete once the upload is
// confirmed.
type QuoteArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Quote, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CandidateArchiveStore is the candidate counterpart of QuoteArchiveStore.
type CandidateArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Candidate, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver. Aged quote and candidate history
// is serialized to JSONL, uploaded to S3, and only then deleted from the
// primary store. A failed upload leaves the rows in place for the next run.
type ArchiveImpl struct {
	writer     domain.BlobWriter
	quotes     QuoteArchiveStore
	candidates CandidateArchiveStore
	audit      domain.AuditStore
	now        func() time.Time
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	quotes QuoteArchiveStore,
	candidates CandidateArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:     writer,
		quotes:     quotes,
		candidates: candidates,
		audit:      audit,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveQuotes uploads all quotes observed before the cutoff, deletes them
// from the primary store, and records the run in the audit log. It returns
// the number of archived rows.
func (a *ArchiveImpl) ArchiveQuotes(ctx context.Context, before time.Time) (int64, error) {
	quotes, err := a.quotes.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive quotes query: %w", err)
	}
	if len(quotes) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(quotes)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive quotes marshal: %w", err)
	}

	path := archivePath("quotes", before, a.now())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive quotes upload: %w", err)
	}

	deleted, err := a.quotes.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive quotes delete: %w", err)
	}

	count := int64(len(quotes))
	if err := a.audit.Log(ctx, "archive.quotes", map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive quotes audit log: %w", err)
	}
	return count, nil
}

// ArchiveCandidates is ArchiveQuotes for the candidates table.
func (a *ArchiveImpl) ArchiveCandidates(ctx context.Context, before time.Time) (int64, error) {
	cands, err := a.candidates.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive candidates query: %w", err)
	}
	if len(cands) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(cands)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive candidates marshal: %w", err)
	}

	path := archivePath("candidates", before, a.now())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive candidates upload: %w", err)
	}

	deleted, err := a.candidates.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive candidates delete: %w", err)
	}

	count := int64(len(cands))
	if err := a.audit.Log(ctx, "archive.candidates", map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive candidates audit log: %w", err)
	}
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time. The run timestamp makes every key unique:
// rows are deleted from the primary store after each upload, so a later run
// in the same month must never replace an earlier run's object.
//
//	archive/quotes/2026-01/20260115T040000Z.jsonl
//	archive/candidates/2026-01/20260115T040000Z.jsonl
func archivePath(kind string, before, runAt time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl",
		kind, before.Format("2006-01"), runAt.UTC().Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
