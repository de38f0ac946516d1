package scrape

import (
	"testing"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

const ebayFixture = `
<ul>
<li class="s-item s-item__pl-on-bottom">
  <a class="s-item__link" href="https://www.ebay.com/itm/123456789">
    <span class="s-item__title">Logitech MX Master 3S Wireless Mouse</span>
  </a>
  <img src="https://i.ebayimg.com/images/g/abc/s-l225.jpg">
  <span class="s-item__price">$99.99</span>
</li>
<li class="s-item">
  <a class="s-item__link" href="https://www.ebay.com/itm/000">
    <span class="s-item__title">Shop on eBay</span>
  </a>
  <span class="s-item__price">$20.00</span>
</li>
<li class="s-item">
  <span class="s-item__title">No link card</span>
  <span class="s-item__price">$5.00</span>
</li>
</ul>`

func TestEbayParse(t *testing.T) {
	s := NewEbay(nil)
	items := s.parse(ebayFixture, "mouse")

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (pseudo-card and partial card skipped)", len(items))
	}
	it := items[0]
	if it.Site != domain.SiteEbay {
		t.Errorf("site = %s", it.Site)
	}
	if it.Name != "Logitech MX Master 3S Wireless Mouse" {
		t.Errorf("name = %q", it.Name)
	}
	if it.PriceTWD != 99.99 {
		t.Errorf("price = %v", it.PriceTWD)
	}
	if it.Href != "https://www.ebay.com/itm/123456789" {
		t.Errorf("href = %q", it.Href)
	}
	if it.ImageURL != "https://i.ebayimg.com/images/g/abc/s-l225.jpg" {
		t.Errorf("image = %q", it.ImageURL)
	}
	if it.Keyword != "mouse" {
		t.Errorf("keyword = %q", it.Keyword)
	}
}

func TestEbayParseEmptyPage(t *testing.T) {
	s := NewEbay(nil)
	if items := s.parse("<html><body>no results</body></html>", "x"); len(items) != 0 {
		t.Errorf("got %d items from empty page", len(items))
	}
}
