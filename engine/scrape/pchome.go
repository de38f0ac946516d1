package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

const (
	pchomeSearchURL  = "https://ecshweb.pchome.com.tw/search/v3.3/all/results"
	pchomeProductURL = "https://24h.pchome.com.tw/prod/"
	pchomeImageURL   = "https://cs-a.ecimg.tw/"
)

// PchomeScraper reads pchome's public search API.
type PchomeScraper struct {
	searchURL string
	maxItems  int
	fetch     *fetcher
	log       *slog.Logger
}

// NewPchome creates a pchome scraper.
func NewPchome(log *slog.Logger) *PchomeScraper {
	if log == nil {
		log = slog.Default()
	}
	return &PchomeScraper{
		searchURL: pchomeSearchURL,
		maxItems:  DefaultMaxItems,
		fetch:     newFetcher(),
		log:       log,
	}
}

// Site implements crawl.Scraper.
func (s *PchomeScraper) Site() domain.Site { return domain.SitePchome }

// pchomePage is one page of the search API response.
type pchomePage struct {
	TotalPage int `json:"totalPage"`
	Prods     []struct {
		ID    string  `json:"Id"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		PicB  string  `json:"picB"`
	} `json:"prods"`
}

// Scrape pages through search results sorted by sales until maxItems or the
// last page.
func (s *PchomeScraper) Scrape(ctx context.Context, keyword string) ([]domain.ScrapedItem, error) {
	var items []domain.ScrapedItem
	totalPages := 1

	for page := 1; page <= totalPages; page++ {
		u := fmt.Sprintf("%s?q=%s&page=%d&sort=sale/dc", s.searchURL, url.QueryEscape(keyword), page)
		body, err := s.fetch.get(ctx, u)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("scrape: pchome %q: %w", keyword, err)
			}
			s.log.Warn("scrape: pchome page failed, stopping", "page", page, "error", err)
			break
		}

		var result pchomePage
		if err := json.Unmarshal(body, &result); err != nil {
			if page == 1 {
				return nil, fmt.Errorf("scrape: pchome %q: decode: %w", keyword, err)
			}
			break
		}
		if page == 1 && result.TotalPage > 0 {
			totalPages = result.TotalPage
		}
		if len(result.Prods) == 0 {
			break
		}

		for _, prod := range result.Prods {
			img := ""
			if prod.PicB != "" {
				img = pchomeImageURL + prod.PicB
			}
			items = append(items, domain.ScrapedItem{
				Site:     domain.SitePchome,
				Name:     prod.Name,
				PriceTWD: prod.Price,
				Href:     pchomeProductURL + prod.ID,
				ImageURL: img,
				Keyword:  keyword,
			})
			if len(items) >= s.maxItems {
				return items, nil
			}
		}
	}
	return items, nil
}
