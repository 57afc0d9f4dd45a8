package fanbox

import (
	"html"
	"strings"
	"time"

	"github.com/sw33tLie/fanmirror/pkg/importer"
	"github.com/tidwall/gjson"
)

const (
	FANBOX_API_ENDPOINT = "https://api.fanbox.cc"
	FANBOX_ORIGIN       = "https://fanbox.cc"
	SESSION_COOKIE      = "FANBOXSESSID"
)

// ParsePost turns one post.listSupporting item into a RemotePost. Embeds are
// collected in payload order, the cover image first.
func ParsePost(item gjson.Result) importer.RemotePost {
	post := importer.RemotePost{
		ID:        item.Get("id").String(),
		AuthorID:   item.Get("user.userId").String(),
		AuthorName: item.Get("user.name").String(),
		Title:      item.Get("title").String(),
		Published:  parseTime(item.Get("publishedDatetime")),
		Edited:     parseTime(item.Get("updatedDatetime")),
	}

	body := item.Get("body")
	if item.Get("isRestricted").Bool() || !body.Exists() || body.Type == gjson.Null {
		post.Restricted = true
		post.RestrictReason = "post is from higher subscription tier"
		return post
	}

	if cover := item.Get("coverImageUrl").String(); cover != "" {
		post.Embeds = append(post.Embeds, importer.File(cover))
	}

	switch item.Get("type").String() {
	case "text":
		post.Body = textToHTML(body.Get("text").String())
	case "image":
		post.Body = textToHTML(body.Get("text").String())
		for _, img := range body.Get("images").Array() {
			post.Embeds = append(post.Embeds, importer.File(img.Get("originalUrl").String()))
		}
	case "file":
		post.Body = textToHTML(body.Get("text").String())
		for _, f := range body.Get("files").Array() {
			post.Embeds = append(post.Embeds, importer.File(f.Get("url").String()))
		}
	case "video":
		post.Body = textToHTML(body.Get("text").String())
		video := body.Get("video")
		post.Embeds = append(post.Embeds, importer.Link(video.Get("serviceProvider").String(), video.Get("videoId").String()))
	case "article":
		text, embeds := parseArticle(body)
		post.Body = text
		post.Embeds = append(post.Embeds, embeds...)
	}
	return post
}

func parseArticle(body gjson.Result) (string, []importer.Embed) {
	var sb strings.Builder
	var embeds []importer.Embed

	for _, block := range body.Get("blocks").Array() {
		switch block.Get("type").String() {
		case "p":
			sb.WriteString("<p>" + html.EscapeString(block.Get("text").String()) + "</p>")
		case "header":
			sb.WriteString("<h2>" + html.EscapeString(block.Get("text").String()) + "</h2>")
		case "image":
			img := body.Get("imageMap").Map()[block.Get("imageId").String()]
			if url := img.Get("originalUrl").String(); url != "" {
				embeds = append(embeds, importer.File(url))
			}
		case "file":
			f := body.Get("fileMap").Map()[block.Get("fileId").String()]
			if url := f.Get("url").String(); url != "" {
				embeds = append(embeds, importer.File(url))
			}
		case "embed":
			e := body.Get("embedMap").Map()[block.Get("embedId").String()]
			if e.Exists() {
				embeds = append(embeds, importer.Link(e.Get("serviceProvider").String(), e.Get("contentId").String()))
			}
		case "url_embed":
			e := body.Get("urlEmbedMap").Map()[block.Get("urlEmbedId").String()]
			if url := e.Get("url").String(); url != "" {
				escaped := html.EscapeString(url)
				sb.WriteString(`<p><a href="` + escaped + `" target="_blank">` + escaped + `</a></p>`)
			}
		}
	}
	return sb.String(), embeds
}

// ParseComment converts one comment and its replies. The platform marks root
// comments with the parent id "0".
func ParseComment(item gjson.Result) importer.RemoteComment {
	c := importer.RemoteComment{
		ID:          item.Get("id").String(),
		ParentID:    item.Get("parentCommentId").String(),
		CommenterID: item.Get("user.userId").String(),
		Body:        item.Get("body").String(),
		Published:   parseTime(item.Get("createdDatetime")),
	}
	if c.ParentID == "0" {
		c.ParentID = ""
	}
	for _, reply := range item.Get("replies").Array() {
		c.Replies = append(c.Replies, ParseComment(reply))
	}
	return c
}

func textToHTML(text string) string {
	return strings.ReplaceAll(html.EscapeString(text), "\n", "<br />")
}

func parseTime(r gjson.Result) *time.Time {
	if r.String() == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, r.String())
	if err != nil {
		return nil
	}
	return &t
}
