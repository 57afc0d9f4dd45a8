package whttp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/publicsuffix"
)

const USER_AGENT = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Cookies []*http.Cookie
	Body    string
}

type WHTTPRes struct {
	StatusCode int
	BodyString string
	Header     http.Header
}

// HTTPError is returned when the remote answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Options configures a Client.
type Options struct {
	Proxy    string
	RetryMax int
	Timeout  time.Duration
}

// Client issues requests on behalf of one import job. It keeps a cookie jar so
// session cookies set by the platform survive across pages.
type Client struct {
	retry *retryablehttp.Client
}

func NewClient(opts Options) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = opts.RetryMax
	// Hand the last response back once retries are exhausted so the status
	// code surfaces as an HTTPError.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Jar = jar
	if opts.Timeout > 0 {
		retryClient.HTTPClient.Timeout = opts.Timeout
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		retryClient.HTTPClient.Transport = &http.Transport{
			Proxy:           http.ProxyURL(proxyURL),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{retry: retryClient}, nil
}

func (c *Client) newRequest(ctx context.Context, wReq *WHTTPReq) (*retryablehttp.Request, error) {
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}

	var body interface{}
	if wReq.Body != "" {
		body = strings.NewReader(wReq.Body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept-Language", "en")
	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}
	for _, ck := range wReq.Cookies {
		req.AddCookie(ck)
	}
	return req, nil
}

// SendHTTPRequest reads the whole response body. Non-2xx responses are
// returned together with an *HTTPError so callers can still inspect the body.
func (c *Client) SendHTTPRequest(ctx context.Context, wReq *WHTTPReq) (*WHTTPRes, error) {
	req, err := c.newRequest(ctx, wReq)
	if err != nil {
		return nil, err
	}

	resp, err := c.retry.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	wRes := &WHTTPRes{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
		Header:     resp.Header,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return wRes, &HTTPError{StatusCode: resp.StatusCode, URL: wReq.URL}
	}
	return wRes, nil
}

// Stream returns the open response for large bodies. The caller closes it.
func (c *Client) Stream(ctx context.Context, wReq *WHTTPReq) (*http.Response, error) {
	req, err := c.newRequest(ctx, wReq)
	if err != nil {
		return nil, err
	}

	resp, err := c.retry.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: wReq.URL}
	}
	return resp, nil
}
