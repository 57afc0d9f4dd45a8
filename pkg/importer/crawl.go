package importer

import "context"

// Page is one batch of items plus the cursor of the page after it. An empty
// Next ends the crawl.
type Page[T any] struct {
	Items []T
	Next  string
}

// PageFetcher loads the page identified by cursor (a URL or an offset).
type PageFetcher[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Crawl follows continuation cursors starting at cursor, handing every page to
// handle. It stops after a page without items or without a next cursor, and
// on the first fetch error, which is returned. Pages are walked in a loop so
// catalogs of any length run in constant stack.
func Crawl[T any](ctx context.Context, cursor string, fetch PageFetcher[T], handle func(ctx context.Context, cursor string, page Page[T])) (pages int, err error) {
	for cursor != "" {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		page, err := fetch(ctx, cursor)
		if err != nil {
			return pages, err
		}
		if len(page.Items) == 0 {
			return pages, nil
		}
		handle(ctx, cursor, page)
		pages++
		cursor = page.Next
	}
	return pages, nil
}
