// Package scrape fetches product listings from the three supported
// marketplaces. Pchome exposes a public JSON search API; ebay and momo are
// scraped from search-result HTML with tolerant regex extraction. Every
// scraper throttles its requests and retries transient failures.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/shopscout-tw/shopscout/pkg/fn"
)

const userAgent = "shopscout-crawler/1.0 (price comparison data collection)"

// DefaultMaxItems caps listings collected per (site, keyword) pair.
const DefaultMaxItems = 100

var fetchRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 5 * time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// fetcher is the shared throttled HTTP GET with retry used by all scrapers.
type fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

func newFetcher() *fetcher {
	return &fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
}

// get fetches a URL, retrying 429s and 5xx responses.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	result := fn.Retry(ctx, fetchRetry, func(ctx context.Context) fn.Result[[]byte] {
		if err := f.limiter.Wait(ctx); err != nil {
			return fn.Err[[]byte](err)
		}
		return f.doGet(ctx, url)
	})
	return result.Unwrap()
}

func (f *fetcher) doGet(ctx context.Context, url string) fn.Result[[]byte] {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fn.Err[[]byte](err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return fn.Err[[]byte](err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fn.Errf[[]byte]("http %d from %s", resp.StatusCode, url)
	}
	if resp.StatusCode != http.StatusOK {
		return fn.Errf[[]byte]("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fn.Errf[[]byte]("read body: %w", err)
	}
	return fn.Ok(body)
}

// parsePrice strips currency noise from a scraped price string.
func parsePrice(s string) (float64, error) {
	cleaned := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) == 0 {
		return 0, fmt.Errorf("no digits in price %q", s)
	}
	var price float64
	if _, err := fmt.Sscanf(string(cleaned), "%f", &price); err != nil {
		return 0, fmt.Errorf("bad price %q: %w", s, err)
	}
	return price, nil
}
