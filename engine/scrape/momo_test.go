package scrape

import (
	"testing"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

const momoFixture = `
<ul>
<li class="listAreaLi">
  <a class="goods-img-url" href="/goods/GoodsDetail.jsp?i_code=10203040">
    <img class="prdImg" src="https://i1.momoshop.com.tw/1700000000/goodsimg/0010/203/040/10203040_R.webp">
  </a>
  <h3 class="prdNameTitle"><span>羅技 無線滑鼠 M720</span></h3>
  <span class="price"><b>1,299</b></span>
</li>
<li class="listAreaLi">
  <h3 class="prdNameTitle">缺連結商品</h3>
  <span class="price">999</span>
</li>
</ul>`

func TestMomoParse(t *testing.T) {
	s := NewMomo(nil)
	items := s.parse(momoFixture, "滑鼠")

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (partial card skipped)", len(items))
	}
	it := items[0]
	if it.Site != domain.SiteMomo {
		t.Errorf("site = %s", it.Site)
	}
	if it.Name != "羅技 無線滑鼠 M720" {
		t.Errorf("name = %q", it.Name)
	}
	if it.PriceTWD != 1299 {
		t.Errorf("price = %v", it.PriceTWD)
	}
	if it.Href != momoBaseURL+"/goods/GoodsDetail.jsp?i_code=10203040" {
		t.Errorf("relative link not resolved: %q", it.Href)
	}
	if it.ImageURL == "" {
		t.Error("image lost")
	}
}
