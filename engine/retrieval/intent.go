package retrieval

import (
	"encoding/json"
	"fmt"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

// QueryIntent is the structured form of a free-text product query: how many
// results to fetch per source and which scalar filters to apply. It lives
// for one retrieval request and is never persisted.
type QueryIntent struct {
	EbayCount    int      `json:"ebay_count"`
	MomoCount    int      `json:"momo_count"`
	PchomeCount  int      `json:"pchome_count"`
	Keyword      string   `json:"keyword"`
	PriceFloor   *float64 `json:"price_floor"`
	PriceCeiling *float64 `json:"price_ceiling"`
}

// CountFor returns the requested result count for a site.
func (q QueryIntent) CountFor(site domain.Site) int {
	switch site {
	case domain.SiteEbay:
		return q.EbayCount
	case domain.SiteMomo:
		return q.MomoCount
	case domain.SitePchome:
		return q.PchomeCount
	}
	return 0
}

// Total returns the combined requested count across all sites.
func (q QueryIntent) Total() int {
	return q.EbayCount + q.MomoCount + q.PchomeCount
}

// ParseIntent decodes and validates the Intent Parser's JSON output. Absent
// numeric fields default to 0 and absent strings to empty; a price bound of
// zero or less means unfiltered. Anything undecodable or negative-counted is
// a hard failure for the request.
func ParseIntent(raw []byte) (QueryIntent, error) {
	var intent QueryIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return QueryIntent{}, fmt.Errorf("retrieval: %w: %v", domain.ErrMalformedIntent, err)
	}
	if intent.EbayCount < 0 || intent.MomoCount < 0 || intent.PchomeCount < 0 {
		return QueryIntent{}, fmt.Errorf("retrieval: %w: negative count", domain.ErrMalformedIntent)
	}
	if intent.PriceFloor != nil && *intent.PriceFloor <= 0 {
		intent.PriceFloor = nil
	}
	if intent.PriceCeiling != nil && *intent.PriceCeiling <= 0 {
		intent.PriceCeiling = nil
	}
	return intent, nil
}
