// Command crawler runs the scrape, embed, dedup, and retention cycle that
// keeps the product catalog fresh. It runs one cycle at startup and then on
// an interval, and can also be triggered over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/shopscout-tw/shopscout/engine/catalog"
	"github.com/shopscout-tw/shopscout/engine/crawl"
	"github.com/shopscout-tw/shopscout/engine/dedup"
	"github.com/shopscout-tw/shopscout/engine/domain"
	"github.com/shopscout-tw/shopscout/engine/retention"
	"github.com/shopscout-tw/shopscout/engine/scrape"
	"github.com/shopscout-tw/shopscout/pkg/metrics"
	"github.com/shopscout-tw/shopscout/pkg/natsutil"
	"github.com/shopscout-tw/shopscout/pkg/openai"
)

var met = metrics.New()

var (
	mRunsTotal     = func(outcome string) *metrics.Counter { return met.Counter(metrics.WithLabels("shopscout_crawl_runs_total", "outcome", outcome), "Crawl cycles by outcome") }
	mScrapedTotal  = met.Counter("shopscout_crawl_scraped_total", "Items scraped across all sites")
	mIngestedTotal = met.Counter("shopscout_crawl_ingested_total", "Items that reached the catalog")
	mFailedTotal   = met.Counter("shopscout_crawl_failed_total", "Items that failed the pipeline")
	mSweptTotal    = met.Counter("shopscout_crawl_swept_total", "Stale points removed by retention")
	mDedupDeleted  = met.Counter("shopscout_dedup_deleted_total", "Near-duplicate points retired")
	mRunDur        = met.Histogram("shopscout_crawl_run_duration_seconds", "Full cycle duration", []float64{10, 30, 60, 120, 300, 600, 1200, 1800})
	mLastRun       = met.Gauge("shopscout_crawl_last_run_timestamp", "Epoch of last completed cycle")
)

// crawlTrigger is the payload of an on-demand crawl request.
type crawlTrigger struct {
	Reason string `json:"reason"`
}

// fileConfig is the operator-editable part of the crawler setup.
type fileConfig struct {
	Keywords      []string `yaml:"keywords"`
	RetentionDays int      `yaml:"retention_days"`
	ItemsPerSec   float64  `yaml:"items_per_sec"`
}

func loadFileConfig(path string) (fileConfig, error) {
	cfg := fileConfig{RetentionDays: 14, ItemsPerSec: 2}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Keywords) == 0 {
		return cfg, fmt.Errorf("config %s lists no keywords", path)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	var (
		configPath  = flag.String("config", "crawler.yaml", "crawler config file")
		qdrantAddr  = flag.String("qdrant", envOr("QDRANT_ADDR", "localhost:6334"), "Qdrant gRPC address")
		collection  = flag.String("collection", envOr("QDRANT_COLLECTION", "products"), "Qdrant collection name")
		openaiURL   = flag.String("openai", os.Getenv("OPENAI_BASE_URL"), "OpenAI-compatible base URL (empty for hosted)")
		embedModel  = flag.String("embed-model", envOr("EMBED_MODEL", "text-embedding-3-small"), "embedding model")
		natsURL     = flag.String("nats", os.Getenv("NATS_URL"), "NATS URL for triggers and dead letters (empty disables)")
		interval    = flag.Duration("interval", 6*time.Hour, "time between crawl cycles")
		metricsPort = flag.Int("metrics-port", 9092, "Prometheus metrics port")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadFileConfig(*configPath)
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	met.ServeAsync(*metricsPort)

	store, err := catalog.New(*qdrantAddr, *collection, log)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("connected to Qdrant", "collection", *collection, "dims", domain.EmbeddingDims)

	embedder := openai.New(*openaiURL, os.Getenv("OPENAI_API_KEY"), *embedModel, "")

	dd := dedup.New(store, log)
	sweeper := retention.New(store, log)

	opts := crawl.DefaultOptions()
	opts.Keywords = cfg.Keywords
	opts.Retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	opts.ItemRate = rate.Limit(cfg.ItemsPerSec)

	scrapers := []crawl.Scraper{scrape.NewEbay(log), scrape.NewMomo(log), scrape.NewPchome(log)}
	orch := crawl.New(store, scrapers, embedder, dd, sweeper, opts, log)

	var nc *nats.Conn
	if *natsURL != "" {
		nc, err = nats.Connect(*natsURL)
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()

		orch.DeadLetter = func(ctx context.Context, item domain.ScrapedItem, ierr error) {
			type deadItem struct {
				Item  domain.ScrapedItem `json:"item"`
				Error string             `json:"error"`
			}
			if perr := natsutil.Publish(ctx, nc, "catalog.crawl.dead", deadItem{Item: item, Error: ierr.Error()}); perr != nil {
				log.Error("dead letter publish failed", "error", perr)
			}
		}
	}

	runs := make(chan string, 1)
	requestRun := func(reason string) {
		select {
		case runs <- reason:
		default:
		}
	}

	if nc != nil {
		sub, err := natsutil.Subscribe(nc, "catalog.crawl.trigger", func(_ context.Context, t crawlTrigger) {
			log.Info("crawl trigger received", "reason", t.Reason)
			requestRun("nats:" + t.Reason)
		})
		if err != nil {
			log.Error("nats subscribe failed", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()
	}

	runCycle := func(reason string) {
		start := time.Now()
		log.Info("crawl cycle starting", "reason", reason, "keywords", len(cfg.Keywords))

		dedupBefore := dd.Stats()
		report, err := orch.RunWithRetry(ctx)
		mRunDur.Since(start)
		if err != nil {
			mRunsTotal("error").Inc()
			log.Error("crawl cycle failed", "error", err)
			return
		}

		mRunsTotal("ok").Inc()
		mScrapedTotal.Add(int64(report.Scraped))
		mIngestedTotal.Add(int64(report.Ingested))
		mFailedTotal.Add(int64(report.Failed))
		mSweptTotal.Add(report.Swept)
		mDedupDeleted.Add(dd.Stats().Deleted - dedupBefore.Deleted)
		mLastRun.Set(time.Now().Unix())

		log.Info("crawl cycle done",
			"scraped", report.Scraped,
			"ingested", report.Ingested,
			"failed", report.Failed,
			"swept", report.Swept,
			"took", report.Took,
		)
	}

	// Qdrant API keys rotate; refresh the session well inside their lifetime.
	go func() {
		t := time.NewTicker(30 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := store.RefreshCredentials(ctx); err != nil {
					log.Warn("credential refresh failed", "error", err)
				}
			}
		}
	}()

	requestRun("startup")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			requestRun("interval")
		case reason := <-runs:
			runCycle(reason)
		}
	}
}
