package download

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sw33tLie/fanmirror/pkg/whttp"
)

// Request describes one file to materialize below the download root.
type Request struct {
	// Dir is relative to the download root, e.g. "files/fanbox/123/456".
	Dir     string
	URL     string
	Name    string
	Headers []whttp.WHTTPHeader
	Cookies []*http.Cookie
}

// Error wraps any failure that prevented a file from being stored.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Downloader struct {
	Root   string
	client *whttp.Client
}

func New(root string, client *whttp.Client) *Downloader {
	return &Downloader{Root: root, client: client}
}

// Download fetches req.URL into Root/req.Dir and returns the stored filename.
// An existing file with the same name is replaced.
func (d *Downloader) Download(ctx context.Context, req Request) (string, error) {
	resp, err := d.client.Stream(ctx, &whttp.WHTTPReq{
		Method:  http.MethodGet,
		URL:     req.URL,
		Headers: req.Headers,
		Cookies: req.Cookies,
	})
	if err != nil {
		return "", &Error{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	name := req.Name
	if name == "" {
		name = filenameFromResponse(resp, req.URL)
	}
	name = SanitizeFilename(name)

	dir := filepath.Join(d.Root, filepath.FromSlash(req.Dir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{URL: req.URL, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", &Error{URL: req.URL, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &Error{URL: req.URL, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &Error{URL: req.URL, Err: err}
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return "", &Error{URL: req.URL, Err: err}
	}
	return name, nil
}

func filenameFromResponse(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." {
			if unescaped, err := url.PathUnescape(base); err == nil {
				return unescaped
			}
			return base
		}
	}
	return "file"
}

// SanitizeFilename strips path separators and characters that are not safe
// on common filesystems.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return "file"
	}
	return name
}
