package fanbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/importer"
	"github.com/sw33tLie/fanmirror/pkg/platforms"
	"github.com/sw33tLie/fanmirror/pkg/whttp"
	"github.com/tidwall/gjson"
)

// Importer mirrors every post the session supports, plus their comments.
type Importer struct {
	BaseURL  string
	client   *whttp.Client
	pipeline *importer.Importer
}

var _ platforms.PlatformImporter = (*Importer)(nil)

func NewImporter(client *whttp.Client, pipeline *importer.Importer) *Importer {
	return &Importer{BaseURL: FANBOX_API_ENDPOINT, client: client, pipeline: pipeline}
}

func (f *Importer) Name() string { return "fanbox" }

func (f *Importer) Import(ctx context.Context, job importer.Job, session string) (platforms.Result, error) {
	var res platforms.Result
	job.Cookies = []*http.Cookie{{Name: SESSION_COOKIE, Value: session}}
	job.Headers = []whttp.WHTTPHeader{{Name: "Origin", Value: FANBOX_ORIGIN}}

	names := make(map[string]string)
	fetch := f.fetchPosts(job)
	current := f.BaseURL + "/post.listSupporting?limit=50"
	pages, err := importer.Crawl(ctx, current, func(ctx context.Context, cursor string) (importer.Page[gjson.Result], error) {
		current = cursor
		return fetch(ctx, cursor)
	}, func(ctx context.Context, cursor string, page importer.Page[gjson.Result]) {
		for _, item := range page.Items {
			post := ParsePost(item)
			if post.AuthorName != "" {
				names[post.AuthorID] = post.AuthorName
			}
			out := f.pipeline.ImportPost(ctx, job, post, func(ctx context.Context) {
				n, _ := f.importComments(ctx, job, post)
				res.Summary.Comments += n
			})
			res.Summary.Add(out)
		}
		if page.Next != "" {
			job.Log.Infof("Finished processing page (%s). Processing %s", cursor, page.Next)
		}
	})
	res.Pages = pages

	if err != nil {
		job.Log.WithError(err).Errorf("HTTP error when contacting Fanbox API (%s). Stopping import.", current)
		return res, err
	}
	if pages == 0 {
		job.Log.Info("No posts detected.")
		return res, nil
	}

	job.Log.Info("Finished scanning for posts")
	f.pipeline.Reindex(ctx, job, names)
	return res, nil
}

func (f *Importer) importComments(ctx context.Context, job importer.Job, post importer.RemotePost) (int, error) {
	start := fmt.Sprintf("%s/post.listComments?postId=%s&limit=10", f.BaseURL, url.QueryEscape(post.ID))
	ref := importer.PostRef{AuthorID: post.AuthorID, PostID: post.ID}

	fetch := f.fetchComments(job)
	return f.pipeline.ImportComments(ctx, job, ref, start, fetch)
}

func (f *Importer) fetchPosts(job importer.Job) importer.PageFetcher[gjson.Result] {
	return func(ctx context.Context, cursor string) (importer.Page[gjson.Result], error) {
		body, err := f.get(ctx, job, cursor)
		if err != nil {
			return importer.Page[gjson.Result]{}, err
		}
		return importer.Page[gjson.Result]{
			Items: gjson.Get(body, "body.items").Array(),
			Next:  gjson.Get(body, "body.nextUrl").String(),
		}, nil
	}
}

func (f *Importer) fetchComments(job importer.Job) importer.PageFetcher[importer.RemoteComment] {
	return func(ctx context.Context, cursor string) (importer.Page[importer.RemoteComment], error) {
		body, err := f.get(ctx, job, cursor)
		if err != nil {
			return importer.Page[importer.RemoteComment]{}, err
		}

		var page importer.Page[importer.RemoteComment]
		for _, item := range gjson.Get(body, "body.items").Array() {
			page.Items = append(page.Items, ParseComment(item))
		}
		page.Next = gjson.Get(body, "body.nextUrl").String()
		if page.Next != "" {
			utils.Internal(job.Log).Debugf("Processing next page of comments (%s)", page.Next)
		}
		return page, nil
	}
}

func (f *Importer) get(ctx context.Context, job importer.Job, rawURL string) (string, error) {
	res, err := f.client.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  http.MethodGet,
		URL:     rawURL,
		Headers: job.Headers,
		Cookies: job.Cookies,
	})
	if err != nil {
		return "", err
	}
	return res.BodyString, nil
}
