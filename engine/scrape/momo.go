package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

const (
	momoSearchURL = "https://www.momoshop.com.tw/search/searchShop.jsp"
	momoBaseURL   = "https://www.momoshop.com.tw"
)

var (
	momoItemRe  = regexp.MustCompile(`(?s)<li[^>]+class="[^"]*listAreaLi[^"]*"[^>]*>(.*?)</li>`)
	momoNameRe  = regexp.MustCompile(`(?s)class="[^"]*prdNameTitle[^"]*"[^>]*>(?:<[^>]+>)*([^<]+)`)
	momoPriceRe = regexp.MustCompile(`(?s)class="[^"]*price[^"]*"[^>]*>(?:<[^>]+>)*\s*([\d,]+)`)
	momoLinkRe  = regexp.MustCompile(`<a[^>]+class="[^"]*goods-img-url[^"]*"[^>]+href="([^"]+)"`)
	momoImageRe = regexp.MustCompile(`<img[^>]+class="[^"]*prdImg[^"]*"[^>]+src="([^"]+)"`)
)

// MomoScraper extracts listings from momo search-result pages.
type MomoScraper struct {
	searchURL string
	maxItems  int
	fetch     *fetcher
	log       *slog.Logger
}

// NewMomo creates a momo scraper.
func NewMomo(log *slog.Logger) *MomoScraper {
	if log == nil {
		log = slog.Default()
	}
	return &MomoScraper{
		searchURL: momoSearchURL,
		maxItems:  DefaultMaxItems,
		fetch:     newFetcher(),
		log:       log,
	}
}

// Site implements crawl.Scraper.
func (s *MomoScraper) Site() domain.Site { return domain.SiteMomo }

// Scrape fetches the first results page for the keyword.
func (s *MomoScraper) Scrape(ctx context.Context, keyword string) ([]domain.ScrapedItem, error) {
	u := fmt.Sprintf("%s?keyword=%s", s.searchURL, url.QueryEscape(keyword))
	body, err := s.fetch.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("scrape: momo %q: %w", keyword, err)
	}

	items := s.parse(string(body), keyword)
	if len(items) > s.maxItems {
		items = items[:s.maxItems]
	}
	return items, nil
}

func (s *MomoScraper) parse(html, keyword string) []domain.ScrapedItem {
	var items []domain.ScrapedItem
	for _, block := range momoItemRe.FindAllStringSubmatch(html, -1) {
		card := block[1]

		name := matchText(momoNameRe, card)
		priceText := matchFirst(momoPriceRe, card)
		link := matchFirst(momoLinkRe, card)
		if name == "" || priceText == "" || link == "" {
			continue
		}
		price, err := parsePrice(priceText)
		if err != nil {
			s.log.Warn("scrape: momo bad price, skipping", "name", name, "error", err)
			continue
		}
		if len(link) > 0 && link[0] == '/' {
			link = momoBaseURL + link
		}

		items = append(items, domain.ScrapedItem{
			Site:     domain.SiteMomo,
			Name:     name,
			PriceTWD: price,
			Href:     link,
			ImageURL: matchFirst(momoImageRe, card),
			Keyword:  keyword,
		})
	}
	return items
}
