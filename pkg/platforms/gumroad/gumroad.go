package gumroad

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

const (
	GUMROAD_ENDPOINT = "https://gumroad.com"
	SESSION_COOKIE   = "_gumroad_app_session"

	// Discovery reports the whole catalog instead of the purchases when the
	// session is not valid.
	INVALID_SESSION_TOTAL = 100000
)

var ErrInvalidSession = errors.New("can't log in; is your session key correct?")

// Creator is one entry of the creator_counts facet.
type Creator struct {
	Username    string
	DisplayName string
	ID          string
}

// ParseCreators reads the creator_counts keys, JSON arrays of
// [username, display name, id]. Username may be null.
func ParseCreators(body string) []Creator {
	var creators []Creator
	gjson.Get(body, "creator_counts").ForEach(func(key, _ gjson.Result) bool {
		info := gjson.Parse(key.String()).Array()
		if len(info) < 3 {
			return true
		}
		creators = append(creators, Creator{
			Username:    info[0].String(),
			DisplayName: info[1].String(),
			ID:          info[2].String(),
		})
		return true
	})
	return creators
}

// Product is one library card from products_html.
type Product struct {
	Permalink string
	Props     gjson.Result
}

func (p Product) HasPurchase() bool { return p.Props.Get("purchase").Exists() }

func (p Product) Archived() bool { return p.Props.Get("purchase.is_archived").Bool() }

func (p Product) DownloadURL() string { return p.Props.Get("purchase.download_url").String() }

func (p Product) Title() string { return p.Props.Get("product.name").String() }

// CreatorName is empty when the creator closed their store.
func (p Product) CreatorName() string { return p.Props.Get("product.creator.name").String() }

// CoverURL returns the main cover, preferring its original size.
func (p Product) CoverURL() string {
	main := p.Props.Get("product.main_cover_id")
	if !main.Exists() {
		return ""
	}
	for _, cover := range p.Props.Get("product.covers").Array() {
		if cover.Get("id").String() != main.String() {
			continue
		}
		if u := cover.Get("original_url").String(); u != "" {
			return u
		}
		return cover.Get("url").String()
	}
	return ""
}

// ParseProducts extracts the product cards of a discover_search page.
func ParseProducts(productsHTML string) ([]Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(productsHTML))
	if err != nil {
		return nil, err
	}

	var products []Product
	doc.Find(".product-card").Each(func(_ int, card *goquery.Selection) {
		props, _ := card.Find(`div[data-react-class="Product/LibraryCard"]`).Attr("data-react-props")
		products = append(products, Product{
			Permalink: card.AttrOr("data-permalink", ""),
			Props:     gjson.Parse(props),
		})
	})
	return products, nil
}

// ContentItem is one entry of a purchase's download page.
type ContentItem struct {
	Type        string
	FileName    string
	Extension   string
	DownloadURL string
	Raw         string
}

// StoredName is the name the file is archived under.
func (c ContentItem) StoredName() string {
	return c.FileName + "." + strings.ToLower(c.Extension)
}

// ParseContentItems reads the file list of a download page. A page without
// the file list has no items.
func ParseContentItems(page string) ([]ContentItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	props, ok := doc.Find(`div[data-react-class="DownloadPage/FileList"]`).First().Attr("data-react-props")
	if !ok || !gjson.Valid(props) {
		return nil, nil
	}

	var items []ContentItem
	for _, item := range gjson.Get(props, "content_items").Array() {
		items = append(items, ContentItem{
			Type:        item.Get("type").String(),
			FileName:    item.Get("file_name").String(),
			Extension:   item.Get("extension").String(),
			DownloadURL: item.Get("download_url").String(),
			Raw:         item.Raw,
		})
	}
	return items, nil
}
