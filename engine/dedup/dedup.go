// Package dedup suppresses near-duplicate listings that reappear across
// repeated crawls of the same keyword and site.
//
// The scheme is deliberately asymmetric: an incoming item is always
// inserted, and any existing neighbor that is too similar is retired. A
// crawl failure therefore never blocks catalog growth, and the catalog
// self-heals toward one live copy per distinct product per (site, keyword)
// pair.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/shopscout-tw/shopscout/engine/catalog"
	"github.com/shopscout-tw/shopscout/engine/domain"
)

// neighborhood is how many nearest neighbors are inspected per item.
const neighborhood = 3

// Index is the slice of the catalog store the deduplicator needs.
type Index interface {
	SearchNearest(ctx context.Context, vector []float32, k int, pred catalog.Predicate) ([]catalog.Hit, error)
	Insert(ctx context.Context, doc domain.ProductDocument) (string, error)
	Delete(ctx context.Context, id string) error
}

// Stats counts the deduplicator's work. Observability only; nothing reads
// these to make decisions.
type Stats struct {
	Inserted int64
	Deleted  int64
	Failed   int64
}

// Deduplicator decides, per incoming item, which stale near-duplicates to
// retire before insertion.
type Deduplicator struct {
	index     Index
	threshold float64
	log       *slog.Logger

	inserted atomic.Int64
	deleted  atomic.Int64
	failed   atomic.Int64
}

// New creates a Deduplicator using the standard similarity threshold.
func New(index Index, log *slog.Logger) *Deduplicator {
	if log == nil {
		log = slog.Default()
	}
	return &Deduplicator{index: index, threshold: domain.DedupThreshold, log: log}
}

// ProcessItem retires near-duplicates of doc within its (site, keyword)
// neighborhood and then inserts doc unconditionally. The new document id is
// returned.
func (d *Deduplicator) ProcessItem(ctx context.Context, doc domain.ProductDocument) (string, error) {
	pred := catalog.Predicate{Site: doc.Site, Keyword: doc.Keyword}
	hits, err := d.index.SearchNearest(ctx, doc.Embedding, neighborhood, pred)
	if err != nil {
		d.failed.Add(1)
		return "", fmt.Errorf("dedup: neighbor search: %w", err)
	}

	for _, hit := range hits {
		sim := Cosine(doc.Embedding, hit.Doc.Embedding)
		if sim <= d.threshold {
			continue
		}
		// A crash between this delete and the insert below loses at most
		// one stale duplicate until the next crawl cycle re-inserts it.
		if err := d.index.Delete(ctx, hit.Doc.ID); err != nil {
			d.failed.Add(1)
			return "", fmt.Errorf("dedup: retire %s: %w", hit.Doc.ID, err)
		}
		d.deleted.Add(1)
		d.log.Info("dedup: retired near-duplicate",
			"old", hit.Doc.Name, "new", doc.Name, "similarity", sim,
			"site", doc.Site, "keyword", doc.Keyword)
	}

	id, err := d.index.Insert(ctx, doc)
	if err != nil {
		d.failed.Add(1)
		return "", fmt.Errorf("dedup: insert: %w", err)
	}
	d.inserted.Add(1)
	return id, nil
}

// ProcessBatch runs ProcessItem over a batch. Each item is independently
// fault-isolated: a failure is logged and the loop continues, so one bad
// item never aborts its siblings. Cancellation stops between items.
func (d *Deduplicator) ProcessBatch(ctx context.Context, docs []domain.ProductDocument) Stats {
	before := d.Stats()
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		if _, err := d.ProcessItem(ctx, doc); err != nil {
			d.log.Error("dedup: item failed", "name", doc.Name, "site", doc.Site, "error", err)
		}
	}
	after := d.Stats()
	return Stats{
		Inserted: after.Inserted - before.Inserted,
		Deleted:  after.Deleted - before.Deleted,
		Failed:   after.Failed - before.Failed,
	}
}

// Stats returns a snapshot of the lifetime counters.
func (d *Deduplicator) Stats() Stats {
	return Stats{
		Inserted: d.inserted.Load(),
		Deleted:  d.deleted.Load(),
		Failed:   d.failed.Load(),
	}
}

// Cosine returns the cosine similarity of two vectors. Zero-length or
// mismatched vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
