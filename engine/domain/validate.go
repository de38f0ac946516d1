package domain

import "fmt"

// ValidateScrapedItem checks a scraped listing before it enters ingestion.
// Image URL is allowed to be empty; the placeholder is applied at projection.
func ValidateScrapedItem(item ScrapedItem) error {
	if !ValidSites[item.Site] {
		return NewValidationError("site", string(item.Site), ErrUnknownSite)
	}
	if item.Name == "" {
		return NewValidationError("name", "", ErrEmptyName)
	}
	if item.Href == "" {
		return NewValidationError("href", "", ErrEmptyHref)
	}
	if item.Keyword == "" {
		return NewValidationError("keyword", "", ErrEmptyKeyword)
	}
	if item.PriceTWD < 0 {
		return NewValidationError("price_twd", fmt.Sprintf("%v", item.PriceTWD), ErrNegativePrice)
	}
	return nil
}

// ValidateEmbedding checks that a vector matches the provider dimension.
func ValidateEmbedding(vec []float32) error {
	if len(vec) != EmbeddingDims {
		return NewValidationError("embedding", fmt.Sprintf("len=%d", len(vec)), ErrBadEmbedding)
	}
	return nil
}
