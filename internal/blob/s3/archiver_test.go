package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

type fakeWriter struct {
	puts    map[string][]byte
	failPut bool
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.failPut {
		return errors.New("upload failed")
	}
	if w.puts == nil {
		w.puts = map[string][]byte{}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts[path] = b
	return nil
}

func (w *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type fakeQuoteArchive struct {
	quotes  []domain.Quote
	deleted bool
}

func (s *fakeQuoteArchive) ListBefore(_ context.Context, before time.Time) ([]domain.Quote, error) {
	var out []domain.Quote
	for _, q := range s.quotes {
		if q.ObservedAt.Before(before) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuoteArchive) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deleted = true
	var kept []domain.Quote
	var n int64
	for _, q := range s.quotes {
		if q.ObservedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, q)
	}
	s.quotes = kept
	return n, nil
}

type fakeCandArchive struct{}

func (fakeCandArchive) ListBefore(context.Context, time.Time) ([]domain.Candidate, error) {
	return nil, nil
}

func (fakeCandArchive) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeAudit struct {
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func quoteAt(t time.Time) domain.Quote {
	return domain.Quote{
		EventID: "ev-1", Market: "match_odds", Selection: "home",
		Bookmaker: "alphabook", Price: 2.1, ObservedAt: t,
	}
}

func TestArchiveQuotesUploadsThenDeletes(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeQuoteArchive{quotes: []domain.Quote{
		quoteAt(cutoff.Add(-time.Hour)),
		quoteAt(cutoff.Add(-2 * time.Hour)),
		quoteAt(cutoff.Add(time.Hour)), // inside retention, stays
	}}
	writer := &fakeWriter{}
	audit := &fakeAudit{}

	arch := NewArchiver(writer, store, fakeCandArchive{}, audit)
	arch.now = func() time.Time { return time.Date(2026, 2, 3, 4, 0, 0, 0, time.UTC) }
	count, err := arch.ArchiveQuotes(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveQuotes: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	body, ok := writer.puts["archive/quotes/2026-02/20260203T040000Z.jsonl"]
	if !ok {
		t.Fatalf("expected upload at archive/quotes/2026-02/20260203T040000Z.jsonl, got %v", writer.puts)
	}
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("jsonl lines = %d, want 2", lines)
	}

	if len(store.quotes) != 1 {
		t.Fatalf("store retains %d quotes, want 1", len(store.quotes))
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.quotes" {
		t.Fatalf("audit events = %v", audit.events)
	}
}

func TestArchiveQuotesFailedUploadKeepsRows(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeQuoteArchive{quotes: []domain.Quote{quoteAt(cutoff.Add(-time.Hour))}}
	writer := &fakeWriter{failPut: true}

	arch := NewArchiver(writer, store, fakeCandArchive{}, &fakeAudit{})
	if _, err := arch.ArchiveQuotes(context.Background(), cutoff); err == nil {
		t.Fatal("expected upload error")
	}
	if store.deleted {
		t.Fatal("rows deleted despite failed upload")
	}
}

func TestArchiveQuotesNothingToDo(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	writer := &fakeWriter{}
	arch := NewArchiver(writer, &fakeQuoteArchive{}, fakeCandArchive{}, &fakeAudit{})

	count, err := arch.ArchiveQuotes(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveQuotes: %v", err)
	}
	if count != 0 || len(writer.puts) != 0 {
		t.Fatalf("expected no-op, got count=%d puts=%v", count, writer.puts)
	}
}

func TestArchiveRunsNeverReuseKeys(t *testing.T) {
	writer := &fakeWriter{}
	audit := &fakeAudit{}
	store := &fakeQuoteArchive{quotes: []domain.Quote{
		quoteAt(time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC)),
		quoteAt(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)),
	}}

	arch := NewArchiver(writer, store, fakeCandArchive{}, audit)

	// Two runs with same-month cutoffs, a day apart. The first deletes its
	// rows from the store, so the second overwriting its object would lose
	// them for good.
	arch.now = func() time.Time { return time.Date(2026, 1, 10, 4, 0, 0, 0, time.UTC) }
	if _, err := arch.ArchiveQuotes(context.Background(), time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	arch.now = func() time.Time { return time.Date(2026, 1, 11, 4, 0, 0, 0, time.UTC) }
	if _, err := arch.ArchiveQuotes(context.Background(), time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(writer.puts) != 2 {
		t.Fatalf("objects written = %d, want 2 distinct keys: %v", len(writer.puts), writer.puts)
	}
	total := 0
	for _, body := range writer.puts {
		sc := bufio.NewScanner(bytes.NewReader(body))
		for sc.Scan() {
			total++
		}
	}
	if total != 2 {
		t.Fatalf("archived rows across objects = %d, want 2", total)
	}
}
