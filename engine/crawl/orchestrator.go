// Package crawl sequences a full catalog refresh: ensure the index exists,
// scrape every configured keyword from every site, stamp and embed each
// item, run similarity dedup per item, then sweep expired documents. A run
// is retried as a whole a bounded number of times; there is no queue or
// persistent retry state across restarts.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/shopscout-tw/shopscout/engine/domain"
	"github.com/shopscout-tw/shopscout/pkg/fn"
)

// Scraper fetches listings for one marketplace.
type Scraper interface {
	Site() domain.Site
	Scrape(ctx context.Context, keyword string) ([]domain.ScrapedItem, error)
}

// Embedder maps a product name into the shared vector space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Ingestor runs similarity dedup and insertion for one document.
type Ingestor interface {
	ProcessItem(ctx context.Context, doc domain.ProductDocument) (string, error)
}

// Indexer owns collection lifecycle.
type Indexer interface {
	EnsureIndex(ctx context.Context) error
}

// Sweeper evicts documents past the retention window.
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Report summarises one crawl run.
type Report struct {
	Scraped  int
	Ingested int
	Failed   int
	Swept    int64
	Took     time.Duration
}

// Options configures the orchestrator.
type Options struct {
	Keywords  []string
	Retention time.Duration
	// ItemRate throttles per-item embedding+index work to stay under the
	// embedding provider's and the index's rate limits. Backpressure, not
	// correctness.
	ItemRate rate.Limit
	Retry    fn.RetryOpts
}

// DefaultOptions returns the standard crawl policy: three attempts with a
// fixed backoff, two items per second, two-week retention.
func DefaultOptions() Options {
	return Options{
		Retention: 14 * 24 * time.Hour,
		ItemRate:  rate.Limit(2),
		Retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 30 * time.Second,
			MaxWait:     30 * time.Second,
		},
	}
}

// Orchestrator drives one crawl cycle end to end. Exactly one instance may
// be active against a given collection; concurrent instances would
// double-insert and double-delete. That is a deployment concern, not
// enforced here.
type Orchestrator struct {
	index    Indexer
	scrapers []Scraper
	embed    Embedder
	ingest   Ingestor
	sweeper  Sweeper
	opts     Options
	limiter  *rate.Limiter
	now      func() time.Time
	log      *slog.Logger

	// DeadLetter, when set, receives items that failed ingestion along with
	// the error. The run itself continues.
	DeadLetter func(ctx context.Context, item domain.ScrapedItem, err error)
}

// New creates an Orchestrator.
func New(index Indexer, scrapers []Scraper, embed Embedder, ingest Ingestor, sweeper Sweeper, opts Options, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.ItemRate <= 0 {
		opts.ItemRate = DefaultOptions().ItemRate
	}
	return &Orchestrator{
		index:    index,
		scrapers: scrapers,
		embed:    embed,
		ingest:   ingest,
		sweeper:  sweeper,
		opts:     opts,
		limiter:  rate.NewLimiter(opts.ItemRate, 1),
		now:      time.Now,
		log:      log,
	}
}

// embeddedItem is a stamped, embedded listing ready for dedup.
type embeddedItem struct {
	doc domain.ProductDocument
}

// itemPipeline builds the per-item stage chain: validate, embed, dedup.
func (o *Orchestrator) itemPipeline(ingestedAt time.Time) fn.Stage[domain.ScrapedItem, string] {
	validate := fn.TracedStage("crawl.validate", func(_ context.Context, item domain.ScrapedItem) fn.Result[domain.ScrapedItem] {
		if err := domain.ValidateScrapedItem(item); err != nil {
			return fn.Err[domain.ScrapedItem](err)
		}
		return fn.Ok(item)
	})

	embed := fn.TracedStage("crawl.embed", func(ctx context.Context, item domain.ScrapedItem) fn.Result[embeddedItem] {
		vec, err := o.embed.Embed(ctx, item.Name)
		if err != nil {
			return fn.Errf[embeddedItem]("embed %q: %w", item.Name, err)
		}
		return fn.Ok(embeddedItem{doc: domain.NewProductDocument(item, vec, ingestedAt)})
	})

	store := fn.TracedStage("crawl.dedup", func(ctx context.Context, e embeddedItem) fn.Result[string] {
		return fn.FromPair(o.ingest.ProcessItem(ctx, e.doc))
	})

	return fn.Then(validate, fn.Then(embed, store))
}

// Run executes a single crawl attempt.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	start := o.now()
	var report Report

	if err := o.index.EnsureIndex(ctx); err != nil {
		return report, fmt.Errorf("crawl: ensure index: %w", err)
	}

	items, scrapeErrs := o.scrapeAll(ctx)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	report.Scraped = len(items)
	if len(items) == 0 && scrapeErrs == len(o.scrapers)*len(o.opts.Keywords) {
		return report, fmt.Errorf("crawl: all %d scrape calls failed", scrapeErrs)
	}
	o.log.Info("crawl: scraping done", "items", len(items), "failed_calls", scrapeErrs)

	// All items in one run share a single ingestion timestamp.
	pipeline := o.itemPipeline(start.UTC())

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return report, err
		}

		if _, err := pipeline(ctx, item).Unwrap(); err != nil {
			report.Failed++
			o.log.Error("crawl: item failed", "name", item.Name, "site", item.Site, "error", err)
			if o.DeadLetter != nil {
				o.DeadLetter(ctx, item, err)
			}
			continue
		}
		report.Ingested++
	}

	// The sweep runs after the full ingestion pass, never interleaved.
	swept, err := o.sweeper.Sweep(ctx, o.opts.Retention)
	if err != nil {
		return report, err
	}
	report.Swept = swept
	report.Took = o.now().Sub(start)

	o.log.Info("crawl: run complete",
		"scraped", report.Scraped, "ingested", report.Ingested,
		"failed", report.Failed, "swept", report.Swept, "took", report.Took)
	return report, nil
}

// RunWithRetry retries the whole run under the configured bounded policy.
// Exhaustion abandons the cycle; catalog state stays as of the last
// successful operations.
func (o *Orchestrator) RunWithRetry(ctx context.Context) (Report, error) {
	result := fn.Retry(ctx, o.opts.Retry, func(ctx context.Context) fn.Result[Report] {
		return fn.FromPair(o.Run(ctx))
	})
	report, err := result.Unwrap()
	if err != nil {
		o.log.Error("crawl: run abandoned", "attempts", o.opts.Retry.MaxAttempts, "error", err)
	}
	return report, err
}

// scrapeAll collects listings from every scraper for every keyword. Each
// scrape call is fault-isolated; the count of failed calls is returned.
func (o *Orchestrator) scrapeAll(ctx context.Context) ([]domain.ScrapedItem, int) {
	var all []domain.ScrapedItem
	failed := 0
	for _, s := range o.scrapers {
		for _, kw := range o.opts.Keywords {
			if ctx.Err() != nil {
				return all, failed
			}
			items, err := s.Scrape(ctx, kw)
			if err != nil {
				failed++
				o.log.Error("crawl: scrape failed", "site", s.Site(), "keyword", kw, "error", err)
				continue
			}
			all = append(all, items...)
		}
	}
	return all, failed
}
