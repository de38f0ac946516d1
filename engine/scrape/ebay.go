package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

const ebaySearchURL = "https://www.ebay.com/sch/i.html"

// Result-card extraction patterns for ebay search HTML. The markup shifts
// between experiments, so each field is matched independently within an
// item block and partial cards are skipped.
var (
	ebayItemRe  = regexp.MustCompile(`(?s)<(?:li|div)[^>]+class="[^"]*s-item[^"]*"[^>]*>(.*?)</(?:li|div)>`)
	ebayLinkRe  = regexp.MustCompile(`<a[^>]+class="[^"]*s-item__link[^"]*"[^>]+href="([^"]+)"`)
	ebayTitleRe = regexp.MustCompile(`(?s)class="[^"]*s-item__title[^"]*"[^>]*>(?:<[^>]+>)*([^<]+)`)
	ebayPriceRe = regexp.MustCompile(`(?s)class="[^"]*s-item__price[^"]*"[^>]*>(?:<[^>]+>)*\s*(?:NT\s*)?\$?([\d,]+(?:\.\d+)?)`)
	ebayImageRe = regexp.MustCompile(`<img[^>]+src="(https://i\.ebayimg\.com/[^"]+)"`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
)

// EbayScraper extracts listings from ebay search-result pages.
type EbayScraper struct {
	searchURL string
	maxItems  int
	fetch     *fetcher
	log       *slog.Logger
}

// NewEbay creates an ebay scraper.
func NewEbay(log *slog.Logger) *EbayScraper {
	if log == nil {
		log = slog.Default()
	}
	return &EbayScraper{
		searchURL: ebaySearchURL,
		maxItems:  DefaultMaxItems,
		fetch:     newFetcher(),
		log:       log,
	}
}

// Site implements crawl.Scraper.
func (s *EbayScraper) Site() domain.Site { return domain.SiteEbay }

// Scrape fetches the first results page for the keyword.
func (s *EbayScraper) Scrape(ctx context.Context, keyword string) ([]domain.ScrapedItem, error) {
	u := fmt.Sprintf("%s?_nkw=%s", s.searchURL, url.QueryEscape(keyword))
	body, err := s.fetch.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("scrape: ebay %q: %w", keyword, err)
	}

	items := s.parse(string(body), keyword)
	if len(items) > s.maxItems {
		items = items[:s.maxItems]
	}
	return items, nil
}

func (s *EbayScraper) parse(html, keyword string) []domain.ScrapedItem {
	var items []domain.ScrapedItem
	for _, block := range ebayItemRe.FindAllStringSubmatch(html, -1) {
		card := block[1]

		title := matchText(ebayTitleRe, card)
		link := matchFirst(ebayLinkRe, card)
		priceText := matchFirst(ebayPriceRe, card)
		if title == "" || link == "" || priceText == "" {
			continue
		}
		// ebay pads result pages with a "Shop on eBay" pseudo-card.
		if strings.EqualFold(title, "shop on ebay") {
			continue
		}
		price, err := parsePrice(priceText)
		if err != nil {
			s.log.Warn("scrape: ebay bad price, skipping", "title", title, "error", err)
			continue
		}

		items = append(items, domain.ScrapedItem{
			Site:     domain.SiteEbay,
			Name:     title,
			PriceTWD: price,
			Href:     link,
			ImageURL: matchFirst(ebayImageRe, card),
			Keyword:  keyword,
		})
	}
	return items
}

func matchFirst(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func matchText(re *regexp.Regexp, s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(matchFirst(re, s), ""))
}
