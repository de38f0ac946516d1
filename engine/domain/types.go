// Package domain defines the core catalog types, constants, and validation
// for the shopscout engine. It acts as the validation gate at pipeline entry
// points.
package domain

import "time"

// EmbeddingDims is the output dimension of the reference embedding provider.
const EmbeddingDims = 1536

// DedupThreshold is the cosine similarity above which two listings are
// treated as the same underlying product.
const DedupThreshold = 0.95

// PlaceholderImageURL is substituted when a listing carries no image.
const PlaceholderImageURL = "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcQsI1LNctDqWA1iEu24tUcfbiWZKqabrF7moQ&s"

// Site identifies a source marketplace.
type Site string

const (
	SiteEbay   Site = "ebay"
	SiteMomo   Site = "momo"
	SitePchome Site = "pchome"
)

// Sites lists all marketplaces in their canonical retrieval order.
var Sites = []Site{SiteEbay, SiteMomo, SitePchome}

// ValidSites is the set of recognised marketplaces.
var ValidSites = map[Site]bool{
	SiteEbay: true, SiteMomo: true, SitePchome: true,
}

// Language is the indexing language of a site's catalog.
type Language string

const (
	LangEnglish Language = "en"
	LangChinese Language = "zh"
)

// CatalogLanguage returns the language product names are indexed in for a
// site. Ebay listings are English; momo and pchome are Traditional Chinese.
func (s Site) CatalogLanguage() Language {
	if s == SiteEbay {
		return LangEnglish
	}
	return LangChinese
}

// ScrapedItem is one product listing as it comes off a site scraper, before
// embedding and ingestion.
type ScrapedItem struct {
	Site     Site    `json:"site"`
	Name     string  `json:"name"`
	PriceTWD float64 `json:"price_twd"`
	Href     string  `json:"href"`
	ImageURL string  `json:"image_url,omitempty"`
	Keyword  string  `json:"keyword"`
}

// ProductDocument is a catalog entry: a scraped item plus its name embedding
// and ingestion metadata. ID is assigned by the store on insert and is not
// derived from Href; identity across re-crawls is managed by similarity
// dedup, not by content key.
type ProductDocument struct {
	ID        string    `json:"id"`
	Site      Site      `json:"site"`
	Name      string    `json:"name"`
	PriceTWD  float64   `json:"price_twd"`
	Href      string    `json:"href"`
	ImageURL  string    `json:"image_url,omitempty"`
	Keyword   string    `json:"keyword"`
	Embedding []float32 `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// NewProductDocument builds a document from a scraped item. Timestamp is set
// once here and immutable afterwards.
func NewProductDocument(item ScrapedItem, embedding []float32, ingestedAt time.Time) ProductDocument {
	return ProductDocument{
		Site:      item.Site,
		Name:      item.Name,
		PriceTWD:  item.PriceTWD,
		Href:      item.Href,
		ImageURL:  item.ImageURL,
		Keyword:   item.Keyword,
		Embedding: embedding,
		Timestamp: ingestedAt,
	}
}

// Product is the outward projection of a document handed to the chat
// front-end: everything except the embedding and internal timestamp.
type Product struct {
	Site     Site    `json:"site"`
	Name     string  `json:"name"`
	PriceTWD float64 `json:"price_twd"`
	Href     string  `json:"href"`
	ImageURL string  `json:"image_url"`
	Keyword  string  `json:"keyword"`
}

// Project converts a document to its outward form, applying the image
// placeholder fallback.
func (d ProductDocument) Project() Product {
	img := d.ImageURL
	if img == "" {
		img = PlaceholderImageURL
	}
	return Product{
		Site:     d.Site,
		Name:     d.Name,
		PriceTWD: d.PriceTWD,
		Href:     d.Href,
		ImageURL: img,
		Keyword:  d.Keyword,
	}
}
