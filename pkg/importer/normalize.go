package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"path"
	"strings"
	"time"

	"github.com/sw33tLie/fanmirror/pkg/download"
	"github.com/sw33tLie/fanmirror/pkg/storage"
)

type EmbedKind int

const (
	EmbedLink EmbedKind = iota
	EmbedFile
)

// Embed is one item embedded in a remote post, either a link to a third
// party provider or a file to download.
type Embed struct {
	Kind EmbedKind

	// Link fields.
	Provider  string
	ContentID string

	// File fields.
	URL  string
	Name string
	// AttachmentOnly files never become the primary file.
	AttachmentOnly bool
	// Anonymous files are downloaded without the session credentials.
	Anonymous bool
}

func Link(provider, contentID string) Embed {
	return Embed{Kind: EmbedLink, Provider: provider, ContentID: contentID}
}

func File(url string) Embed {
	return Embed{Kind: EmbedFile, URL: url}
}

// RemotePost is the platform-neutral view of a post before normalization.
type RemotePost struct {
	ID       string
	AuthorID string
	// AuthorName is the display name, empty when unknown.
	AuthorName string
	Title      string
	Body       string
	Published  *time.Time
	Edited     *time.Time
	Embeds     []Embed
	// Resolve, when set, is called once the post is admitted for import and
	// returns further embeds appended after Embeds. Platforms use it for
	// payload parts that cost an extra request.
	Resolve func(ctx context.Context) ([]Embed, error)

	Restricted     bool
	RestrictReason string
}

type linkProvider struct {
	label  string
	format string
}

var linkProviders = map[string]linkProvider{
	"twitter":      {label: "Twitter", format: "https://twitter.com/_/status/%s"},
	"youtube":      {label: "YouTube", format: "https://www.youtube.com/watch?v=%s"},
	"fanbox":       {label: "Fanbox", format: "https://www.pixiv.net/fanbox/%s"},
	"vimeo":        {label: "Vimeo", format: "https://vimeo.com/%s"},
	"google_forms": {label: "Google Forms", format: "https://docs.google.com/forms/d/e/%s"},
	"soundcloud":   {label: "Soundcloud", format: "https://soundcloud.com/%s"},
}

// LinkSnippet renders the markup appended to the content for a provider
// embed. ok is false for providers outside the known set.
func LinkSnippet(provider, contentID string) (snippet string, ok bool) {
	p, ok := linkProviders[provider]
	if !ok {
		return "", false
	}
	href := fmt.Sprintf(p.format, contentID)
	return fmt.Sprintf(`
<a href="%s" target="_blank">
  <div class="embed-view">
    <h3 class="subtitle">(%s)</h3>
  </div>
</a>
<br>
`, html.EscapeString(href), p.label), true
}

// Plan is the shape of a post once its embeds are sorted out, before any
// file is downloaded.
type Plan struct {
	Content     string
	Primary     *Embed
	Attachments []Embed
}

// PlanEmbeds appends link snippets to body in encounter order and splits
// file embeds: the first eligible file is the primary file, all others are
// attachments in encounter order.
func PlanEmbeds(body string, embeds []Embed) Plan {
	var sb strings.Builder
	sb.WriteString(body)

	plan := Plan{}
	for i := range embeds {
		e := embeds[i]
		switch e.Kind {
		case EmbedLink:
			if snippet, ok := LinkSnippet(e.Provider, e.ContentID); ok {
				sb.WriteString(snippet)
			}
		case EmbedFile:
			if plan.Primary == nil && !e.AttachmentOnly {
				plan.Primary = &e
				continue
			}
			plan.Attachments = append(plan.Attachments, e)
		}
	}
	plan.Content = sb.String()
	return plan
}

// FileDir is where the primary file of a post is stored.
func FileDir(service, authorID, postID string) string {
	return path.Join("files", service, authorID, postID)
}

// AttachmentDir is where the attachments of a post are stored.
func AttachmentDir(service, authorID, postID string) string {
	return path.Join("attachments", service, authorID, postID)
}

// materialize downloads the files of a plan, primary first, and builds the
// normalized record.
func (imp *Importer) materialize(ctx context.Context, job Job, post RemotePost) (*storage.Post, error) {
	embeds := post.Embeds
	if post.Resolve != nil {
		more, err := post.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		embeds = append(append([]Embed{}, embeds...), more...)
	}
	plan := PlanEmbeds(post.Body, embeds)

	record := &storage.Post{
		ID:         post.ID,
		User:       post.AuthorID,
		Service:    job.Service,
		Title:      post.Title,
		Content:    plan.Content,
		Embed:      json.RawMessage("{}"),
		SharedFile: false,
		Added:      imp.now(),
		Published:  post.Published,
		Edited:     post.Edited,
	}

	if plan.Primary != nil {
		ref, err := imp.fetchFile(ctx, job, FileDir(job.Service, post.AuthorID, post.ID), *plan.Primary)
		if err != nil {
			return nil, err
		}
		record.File = &ref
	}

	attachmentDir := AttachmentDir(job.Service, post.AuthorID, post.ID)
	for _, a := range plan.Attachments {
		ref, err := imp.fetchFile(ctx, job, attachmentDir, a)
		if err != nil {
			return nil, err
		}
		record.Attachments = append(record.Attachments, ref)
	}
	return record, nil
}

func (imp *Importer) fetchFile(ctx context.Context, job Job, dir string, e Embed) (storage.FileRef, error) {
	req := download.Request{Dir: dir, URL: e.URL, Name: e.Name}
	if !e.Anonymous {
		req.Headers = job.Headers
		req.Cookies = job.Cookies
	}
	name, err := imp.Downloader.Download(ctx, req)
	if err != nil {
		return storage.FileRef{}, err
	}
	return storage.FileRef{Name: name, Path: "/" + dir + "/" + name}, nil
}
