package crawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/shopscout-tw/shopscout/engine/domain"
	"github.com/shopscout-tw/shopscout/pkg/fn"
)

type fakeScraper struct {
	site  domain.Site
	items []domain.ScrapedItem
	err   error
	calls int
}

func (f *fakeScraper) Site() domain.Site { return f.site }
func (f *fakeScraper) Scrape(_ context.Context, keyword string) ([]domain.ScrapedItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.ScrapedItem, len(f.items))
	copy(out, f.items)
	for i := range out {
		out[i].Keyword = keyword
	}
	return out, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, domain.EmbeddingDims), nil
}

type fakeIngestor struct {
	docs    []domain.ProductDocument
	failFor string
}

func (f *fakeIngestor) ProcessItem(_ context.Context, doc domain.ProductDocument) (string, error) {
	if f.failFor != "" && doc.Name == f.failFor {
		return "", errors.New("ingest refused")
	}
	f.docs = append(f.docs, doc)
	return "id", nil
}

type fakeIndexer struct {
	err   error
	calls int
}

func (f *fakeIndexer) EnsureIndex(context.Context) error {
	f.calls++
	return f.err
}

type fakeSweeper struct {
	swept int64
	err   error
	calls int
}

func (f *fakeSweeper) Sweep(context.Context, time.Duration) (int64, error) {
	f.calls++
	return f.swept, f.err
}

func fastOpts(keywords ...string) Options {
	return Options{
		Keywords:  keywords,
		Retention: time.Hour,
		ItemRate:  rate.Inf,
		Retry:     fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	}
}

func item(site domain.Site, name string) domain.ScrapedItem {
	return domain.ScrapedItem{Site: site, Name: name, PriceTWD: 100, Href: "https://x/" + name}
}

func TestRunFullCycle(t *testing.T) {
	scrapers := []Scraper{
		&fakeScraper{site: domain.SiteMomo, items: []domain.ScrapedItem{item(domain.SiteMomo, "a"), item(domain.SiteMomo, "b")}},
		&fakeScraper{site: domain.SitePchome, items: []domain.ScrapedItem{item(domain.SitePchome, "c")}},
	}
	idx := &fakeIndexer{}
	ing := &fakeIngestor{}
	sw := &fakeSweeper{swept: 4}

	o := New(idx, scrapers, &fakeEmbedder{}, ing, sw, fastOpts("滑鼠"), nil)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if idx.calls != 1 {
		t.Errorf("EnsureIndex calls = %d", idx.calls)
	}
	if report.Scraped != 3 || report.Ingested != 3 || report.Failed != 0 || report.Swept != 4 {
		t.Errorf("report = %+v", report)
	}
	if sw.calls != 1 {
		t.Errorf("Sweep calls = %d", sw.calls)
	}

	// Every document in one run carries the same timestamp and its keyword.
	ts := ing.docs[0].Timestamp
	for _, d := range ing.docs {
		if !d.Timestamp.Equal(ts) {
			t.Error("documents in one run must share a timestamp")
		}
		if d.Keyword != "滑鼠" {
			t.Errorf("keyword = %q", d.Keyword)
		}
	}
}

func TestRunEnsureIndexFailureAborts(t *testing.T) {
	idx := &fakeIndexer{err: errors.New("collection create failed")}
	sc := &fakeScraper{site: domain.SiteMomo}
	sw := &fakeSweeper{}

	o := New(idx, []Scraper{sc}, &fakeEmbedder{}, &fakeIngestor{}, sw, fastOpts("k"), nil)
	if _, err := o.Run(context.Background()); err == nil {
		t.Fatal("want error")
	}
	if sc.calls != 0 {
		t.Error("scraping must not start when the index is unavailable")
	}
	if sw.calls != 0 {
		t.Error("sweep must not run after an aborted cycle")
	}
}

func TestRunItemFailureIsIsolated(t *testing.T) {
	sc := &fakeScraper{site: domain.SiteMomo, items: []domain.ScrapedItem{
		item(domain.SiteMomo, "good"), item(domain.SiteMomo, "bad"), item(domain.SiteMomo, "also good"),
	}}
	ing := &fakeIngestor{failFor: "bad"}

	var dead []domain.ScrapedItem
	o := New(&fakeIndexer{}, []Scraper{sc}, &fakeEmbedder{}, ing, &fakeSweeper{}, fastOpts("k"), nil)
	o.DeadLetter = func(_ context.Context, it domain.ScrapedItem, _ error) {
		dead = append(dead, it)
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Ingested != 2 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(dead) != 1 || dead[0].Name != "bad" {
		t.Errorf("dead letters = %+v", dead)
	}
}

func TestRunInvalidItemRejected(t *testing.T) {
	bad := item(domain.SiteMomo, "no href")
	bad.Href = ""
	sc := &fakeScraper{site: domain.SiteMomo, items: []domain.ScrapedItem{bad}}
	emb := &fakeEmbedder{}

	o := New(&fakeIndexer{}, []Scraper{sc}, emb, &fakeIngestor{}, &fakeSweeper{}, fastOpts("k"), nil)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 || report.Ingested != 0 {
		t.Errorf("report = %+v", report)
	}
	if emb.calls != 0 {
		t.Error("invalid items must not reach the embedder")
	}
}

func TestRunAllScrapesFailed(t *testing.T) {
	scrapers := []Scraper{
		&fakeScraper{site: domain.SiteMomo, err: errors.New("blocked")},
		&fakeScraper{site: domain.SiteEbay, err: errors.New("blocked")},
	}
	o := New(&fakeIndexer{}, scrapers, &fakeEmbedder{}, &fakeIngestor{}, &fakeSweeper{}, fastOpts("k"), nil)
	if _, err := o.Run(context.Background()); err == nil {
		t.Fatal("want error when every scrape call failed")
	}
}

func TestRunPartialScrapeFailureContinues(t *testing.T) {
	scrapers := []Scraper{
		&fakeScraper{site: domain.SiteMomo, err: errors.New("blocked")},
		&fakeScraper{site: domain.SitePchome, items: []domain.ScrapedItem{item(domain.SitePchome, "a")}},
	}
	o := New(&fakeIndexer{}, scrapers, &fakeEmbedder{}, &fakeIngestor{}, &fakeSweeper{}, fastOpts("k"), nil)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Ingested != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunWithRetryBounded(t *testing.T) {
	idx := &fakeIndexer{err: errors.New("still down")}
	o := New(idx, nil, &fakeEmbedder{}, &fakeIngestor{}, &fakeSweeper{}, fastOpts("k"), nil)

	if _, err := o.RunWithRetry(context.Background()); err == nil {
		t.Fatal("want error after exhausted retries")
	}
	if idx.calls != 3 {
		t.Errorf("attempts = %d, want 3", idx.calls)
	}
}

func TestRunWithRetryRecovers(t *testing.T) {
	idx := &fakeIndexer{}
	failures := 2
	sc := &fakeScraper{site: domain.SiteMomo, items: []domain.ScrapedItem{item(domain.SiteMomo, "a")}}
	origErr := errors.New("transient")
	sw := &fakeSweeper{}

	// Fail the sweep twice, then succeed.
	swWrap := sweepFunc(func(ctx context.Context, maxAge time.Duration) (int64, error) {
		if failures > 0 {
			failures--
			return 0, origErr
		}
		return sw.Sweep(ctx, maxAge)
	})

	o := New(idx, []Scraper{sc}, &fakeEmbedder{}, &fakeIngestor{}, swWrap, fastOpts("k"), nil)
	if _, err := o.RunWithRetry(context.Background()); err != nil {
		t.Fatalf("RunWithRetry: %v", err)
	}
	if sw.calls != 1 {
		t.Errorf("successful sweeps = %d, want 1", sw.calls)
	}
}

type sweepFunc func(context.Context, time.Duration) (int64, error)

func (f sweepFunc) Sweep(ctx context.Context, maxAge time.Duration) (int64, error) {
	return f(ctx, maxAge)
}

func TestRunCancellation(t *testing.T) {
	sc := &fakeScraper{site: domain.SiteMomo, items: []domain.ScrapedItem{item(domain.SiteMomo, "a")}}
	o := New(&fakeIndexer{}, []Scraper{sc}, &fakeEmbedder{}, &fakeIngestor{}, &fakeSweeper{}, fastOpts("k"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
