// Package retrieval answers natural-language product queries. A planner
// turns the query's intent into one filtered nearest-neighbor query per
// requested source, using the English query embedding for English-language
// catalogs and the Chinese one otherwise, and concatenates the per-source
// results.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopscout-tw/shopscout/engine/catalog"
	"github.com/shopscout-tw/shopscout/engine/domain"
	"github.com/shopscout-tw/shopscout/pkg/fn"
)

// Embedder maps text into the shared vector space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IntentParser derives a QueryIntent from free-form query text.
type IntentParser interface {
	Parse(ctx context.Context, query string) (QueryIntent, error)
}

// Searcher is the slice of the catalog store the planner needs.
type Searcher interface {
	SearchNearest(ctx context.Context, vector []float32, k int, pred catalog.Predicate) ([]catalog.Hit, error)
}

// Options configures planner behaviour.
type Options struct {
	// SearchTimeout bounds each per-source index query. The planner sits on
	// a user-facing request path, so this stays seconds-scale.
	SearchTimeout time.Duration
}

// DefaultOptions returns the standard planner options.
func DefaultOptions() Options {
	return Options{SearchTimeout: 5 * time.Second}
}

// Planner allocates retrieval budget across sources and merges results.
type Planner struct {
	embed   Embedder
	intents IntentParser
	index   Searcher
	opts    Options
	log     *slog.Logger
}

// New creates a Planner.
func New(embed Embedder, intents IntentParser, index Searcher, opts Options, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{embed: embed, intents: intents, index: index, opts: opts, log: log}
}

// Query holds the two language variants of one user query. English-language
// sources are searched with the English variant, Chinese-language sources
// with the Chinese one. Intent is always derived from the query as typed.
type Query struct {
	Chinese string
	English string
}

// variant returns the text matching a catalog language.
func (q Query) variant(lang domain.Language) string {
	if lang == domain.LangEnglish {
		return q.English
	}
	return q.Chinese
}

// Search resolves a user query into a merged product list, grouped by source
// in canonical site order. On any external failure it returns a nil list and
// the error; it never returns partial results.
func (p *Planner) Search(ctx context.Context, query Query) ([]domain.Product, error) {
	ctx, span := otel.Tracer("engine/retrieval").Start(ctx, "planner.search")
	defer span.End()

	intent, err := p.intents.Parse(ctx, query.Chinese)
	if err != nil {
		p.log.Error("retrieval: intent parse failed", "error", err)
		return nil, fmt.Errorf("retrieval: parse intent: %w", err)
	}
	span.SetAttributes(
		attribute.Int("intent.ebay", intent.EbayCount),
		attribute.Int("intent.momo", intent.MomoCount),
		attribute.Int("intent.pchome", intent.PchomeCount),
	)

	vectors, err := p.embedVariants(ctx, query)
	if err != nil {
		p.log.Error("retrieval: embedding failed", "error", err)
		return nil, err
	}

	var products []domain.Product
	for _, site := range domain.Sites {
		k := intent.CountFor(site)
		if k == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hits, err := p.searchSite(ctx, site, vectors[site.CatalogLanguage()], k, intent)
		if err != nil {
			p.log.Error("retrieval: source query failed", "site", site, "error", err)
			return nil, err
		}
		products = append(products, fn.Map(hits, func(h catalog.Hit) domain.Product {
			return h.Doc.Project()
		})...)
	}

	p.log.Info("retrieval: query answered",
		"requested", intent.Total(), "returned", len(products), "keyword", intent.Keyword)
	return products, nil
}

// embedVariants obtains one embedding per language variant.
func (p *Planner) embedVariants(ctx context.Context, query Query) (map[domain.Language][]float32, error) {
	vectors := make(map[domain.Language][]float32, 2)
	for lang, text := range map[domain.Language]string{
		domain.LangChinese: query.Chinese,
		domain.LangEnglish: query.English,
	} {
		vec, err := p.embed.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("retrieval: embed %s variant: %w", lang, err)
		}
		vectors[lang] = vec
	}
	return vectors, nil
}

func (p *Planner) searchSite(ctx context.Context, site domain.Site, vector []float32, k int, intent QueryIntent) ([]catalog.Hit, error) {
	pred := catalog.Predicate{
		Site:         site,
		Keyword:      intent.Keyword,
		PriceFloor:   intent.PriceFloor,
		PriceCeiling: intent.PriceCeiling,
	}

	searchCtx := ctx
	if p.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, p.opts.SearchTimeout)
		defer cancel()
	}
	return p.index.SearchNearest(searchCtx, vector, k, pred)
}
