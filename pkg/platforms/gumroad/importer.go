package gumroad

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/importer"
	"github.com/sw33tLie/fanmirror/pkg/platforms"
	"github.com/sw33tLie/fanmirror/pkg/whttp"
	"github.com/tidwall/gjson"
)

// Importer mirrors the purchased library of a Gumroad session, one creator
// at a time.
type Importer struct {
	BaseURL  string
	client   *whttp.Client
	pipeline *importer.Importer
}

var _ platforms.PlatformImporter = (*Importer)(nil)

func NewImporter(client *whttp.Client, pipeline *importer.Importer) *Importer {
	return &Importer{BaseURL: GUMROAD_ENDPOINT, client: client, pipeline: pipeline}
}

func (g *Importer) Name() string { return "gumroad" }

func (g *Importer) Import(ctx context.Context, job importer.Job, session string) (platforms.Result, error) {
	var res platforms.Result
	job.Cookies = []*http.Cookie{{Name: SESSION_COOKIE, Value: session}}

	body, err := g.search(ctx, job, url.Values{"user_purchases_only": {"true"}})
	if err != nil {
		job.Log.WithError(err).Error("Error contacting Gumroad API")
		return res, err
	}

	creators := ParseCreators(body)
	fallbackNames := make(map[string]string, len(creators))
	defer func() {
		job.Log.Info("Finished scanning for posts.")
		g.pipeline.Reindex(ctx, job, fallbackNames)
	}()

	for _, creator := range creators {
		fallbackNames[creator.ID] = creator.DisplayName
		job.Log.Infof("Importing posts from user %s", creator.ID)

		pages, err := g.importCreator(ctx, job, creator, &res.Summary)
		res.Pages += pages
		if err != nil {
			job.Log.WithError(err).Errorf("Error contacting Gumroad API for user %s", creator.ID)
			if errors.Is(err, ErrInvalidSession) || ctx.Err() != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (g *Importer) importCreator(ctx context.Context, job importer.Job, creator Creator, summary *importer.Summary) (int, error) {
	return importer.Crawl(ctx, "1", g.fetchProducts(job, creator), func(ctx context.Context, cursor string, page importer.Page[Product]) {
		for _, product := range page.Items {
			summary.Add(g.pipeline.ImportPost(ctx, job, g.toPost(job, creator, product), nil))
		}
		if page.Next != "" {
			job.Log.Infof("Finished processing offset %s. Processing offset %s", cursor, page.Next)
		}
	})
}

func (g *Importer) fetchProducts(job importer.Job, creator Creator) importer.PageFetcher[Product] {
	return func(ctx context.Context, cursor string) (importer.Page[Product], error) {
		body, err := g.search(ctx, job, url.Values{
			"from":                   {cursor},
			"user_purchases_only":    {"true"},
			"creator_external_ids[]": {creator.ID},
		})
		if err != nil {
			return importer.Page[Product]{}, err
		}

		products, err := ParseProducts(gjson.Get(body, "products_html").String())
		if err != nil {
			return importer.Page[Product]{}, err
		}

		page := importer.Page[Product]{Items: products}
		offset, _ := strconv.Atoi(cursor)
		if count := int(gjson.Get(body, "result_count").Int()); count > 0 {
			page.Next = strconv.Itoa(offset + count)
		}
		return page, nil
	}
}

// toPost maps a library card to a RemotePost. Cards without a usable
// purchase, or sold by someone else than the creator being crawled, are
// marked restricted so they are skipped before any side effect.
func (g *Importer) toPost(job importer.Job, creator Creator, product Product) importer.RemotePost {
	post := importer.RemotePost{
		ID:         product.Permalink,
		AuthorID:   creator.ID,
		AuthorName: creator.DisplayName,
		Title:      product.Title(),
	}

	switch {
	case !product.HasPurchase():
		post.Restricted, post.RestrictReason = true, "no purchase data"
		return post
	case product.Archived():
		post.Restricted, post.RestrictReason = true, "purchase is archived"
		return post
	}
	if name := product.CreatorName(); name != "" && strings.TrimSpace(name) != strings.TrimSpace(creator.DisplayName) {
		post.Restricted, post.RestrictReason = true, "inconsistent creator data"
		return post
	}

	if cover := product.CoverURL(); cover != "" {
		post.Embeds = append(post.Embeds, importer.Embed{Kind: importer.EmbedFile, URL: cover, Anonymous: true})
	}

	downloadURL := product.DownloadURL()
	post.Resolve = func(ctx context.Context) ([]importer.Embed, error) {
		if downloadURL == "" {
			return nil, nil
		}
		page, err := g.get(ctx, job, downloadURL)
		if err != nil {
			return nil, err
		}
		items, err := ParseContentItems(page)
		if err != nil {
			return nil, err
		}

		var embeds []importer.Embed
		for _, item := range items {
			if item.Type != "file" {
				job.Log.Warnf("Unsupported content found in product %s", product.Permalink)
				utils.Internal(job.Log).Debug(item.Raw)
				continue
			}
			embeds = append(embeds, importer.Embed{
				Kind:           importer.EmbedFile,
				URL:            g.BaseURL + item.DownloadURL,
				Name:           item.StoredName(),
				AttachmentOnly: true,
			})
		}
		return embeds, nil
	}
	return post
}

func (g *Importer) search(ctx context.Context, job importer.Job, query url.Values) (string, error) {
	body, err := g.get(ctx, job, g.BaseURL+"/discover_search?"+query.Encode())
	if err != nil {
		return "", err
	}
	if gjson.Get(body, "total").Int() > INVALID_SESSION_TOTAL {
		job.Log.Error("Can't log in; is your session key correct?")
		return "", ErrInvalidSession
	}
	return body, nil
}

func (g *Importer) get(ctx context.Context, job importer.Job, rawURL string) (string, error) {
	res, err := g.client.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  http.MethodGet,
		URL:     rawURL,
		Cookies: job.Cookies,
	})
	if err != nil {
		if res != nil {
			job.Log.Errorf("Status code %d when contacting Gumroad API.", res.StatusCode)
		}
		return "", err
	}
	return res.BodyString, nil
}
