package importer

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw33tLie/fanmirror/pkg/cache"
)

func commentPages(pages map[string]Page[RemoteComment]) PageFetcher[RemoteComment] {
	return func(ctx context.Context, cursor string) (Page[RemoteComment], error) {
		page, ok := pages[cursor]
		if !ok {
			return Page[RemoteComment]{}, errors.New("unexpected cursor " + cursor)
		}
		return page, nil
	}
}

func sampleThread() map[string]Page[RemoteComment] {
	return map[string]Page[RemoteComment]{
		"page1": {
			Items: []RemoteComment{
				{ID: "c1", CommenterID: "x", Body: "root", Replies: []RemoteComment{
					{ID: "c2", ParentID: "c1", CommenterID: "y", Body: "reply", Replies: []RemoteComment{
						{ID: "c3", ParentID: "c2", CommenterID: "x", Body: "nested"},
					}},
				}},
			},
			Next: "page2",
		},
		"page2": {
			Items: []RemoteComment{{ID: "c4", CommenterID: "z", Body: "late"}},
		},
	}
}

func TestImportCommentsDepthFirstAndDeduplicated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := PostRef{AuthorID: "u1", PostID: "p1"}

	n, err := h.imp.ImportComments(ctx, h.job, ref, "page1", commentPages(sampleThread()))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	comments, err := h.db.ListComments(ctx, "fanbox", "p1")
	require.NoError(t, err)
	require.Len(t, comments, 4)
	assert.Equal(t, "c1", comments[0].ID)
	assert.Nil(t, comments[0].ParentID)
	require.NotNil(t, comments[2].ParentID)
	assert.Equal(t, "c2", *comments[2].ParentID)

	n, err = h.imp.ImportComments(ctx, h.job, ref, "page1", commentPages(sampleThread()))
	require.NoError(t, err)
	assert.Zero(t, n, "no new comments means no new rows")

	comments, err = h.db.ListComments(ctx, "fanbox", "p1")
	require.NoError(t, err)
	assert.Len(t, comments, 4)
}

func TestImportCommentsVisitsRepliesOfKnownComments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := PostRef{AuthorID: "u1", PostID: "p1"}

	first := map[string]Page[RemoteComment]{
		"page1": {Items: []RemoteComment{{ID: "c1", CommenterID: "x", Body: "root"}}},
	}
	_, err := h.imp.ImportComments(ctx, h.job, ref, "page1", commentPages(first))
	require.NoError(t, err)

	n, err := h.imp.ImportComments(ctx, h.job, ref, "page1", commentPages(sampleThread()))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBadCommentDoesNotAbortPage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := PostRef{AuthorID: "u1", PostID: "p1"}
	h.store.badComment = "c2"

	require.NoError(t, h.cache.Put(cache.CommentsKey("fanbox", "u1", "p1"), []byte("[]")))
	require.NoError(t, h.cache.Put(cache.PostKey("fanbox", "u1", "p1"), []byte("{}")))

	n, err := h.imp.ImportComments(ctx, h.job, ref, "page1", commentPages(sampleThread()))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	comments, err := h.db.ListComments(ctx, "fanbox", "p1")
	require.NoError(t, err)
	var ids []string
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"c1", "c3", "c4"}, ids)

	v, err := h.cache.Get(cache.CommentsKey("fanbox", "u1", "p1"))
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = h.cache.Get(cache.PostKey("fanbox", "u1", "p1"))
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Equal(t, []string{"fanbox/u1/p1", "fanbox/u1/p1"}, h.notifier.posts, "one signal per page")
}

func TestCommentFetchErrorEndsWalk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := PostRef{AuthorID: "u1", PostID: "p1"}

	pages := sampleThread()
	delete(pages, "page2")

	n, err := h.imp.ImportComments(ctx, h.job, ref, "page1", commentPages(pages))
	assert.Error(t, err)
	assert.Equal(t, 3, n)
}

func TestCrawlStopsAtLastPage(t *testing.T) {
	var seen []string
	fetch := func(ctx context.Context, cursor string) (Page[int], error) {
		switch cursor {
		case "1":
			return Page[int]{Items: []int{1, 2}, Next: "2"}, nil
		case "2":
			return Page[int]{Items: []int{3}, Next: "3"}, nil
		case "3":
			return Page[int]{Next: "4"}, nil
		}
		t.Fatalf("fetched past the end: %s", cursor)
		return Page[int]{}, nil
	}

	pages, err := Crawl(context.Background(), "1", fetch, func(ctx context.Context, cursor string, page Page[int]) {
		seen = append(seen, cursor)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Equal(t, []string{"1", "2"}, seen)
}

func TestCrawlHandlesLongCatalogs(t *testing.T) {
	const total = 5000
	fetch := func(ctx context.Context, cursor string) (Page[int], error) {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return Page[int]{}, err
		}
		next := ""
		if n < total {
			next = strconv.Itoa(n + 1)
		}
		return Page[int]{Items: []int{n}, Next: next}, nil
	}

	sum := 0
	pages, err := Crawl(context.Background(), "1", fetch, func(ctx context.Context, cursor string, page Page[int]) {
		sum += page.Items[0]
	})
	require.NoError(t, err)
	assert.Equal(t, total, pages)
	assert.Equal(t, total*(total+1)/2, sum)
}

func TestCrawlReturnsFetchError(t *testing.T) {
	boom := errors.New("status 503")
	pages, err := Crawl(context.Background(), "1", func(ctx context.Context, cursor string) (Page[int], error) {
		if cursor == "1" {
			return Page[int]{Items: []int{1}, Next: "2"}, nil
		}
		return Page[int]{}, boom
	}, func(context.Context, string, Page[int]) {})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, pages)
}

func TestCrawlHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pages, err := Crawl(ctx, "1", func(ctx context.Context, cursor string) (Page[int], error) {
		t.Fatal("must not fetch")
		return Page[int]{}, nil
	}, func(context.Context, string, Page[int]) {})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pages)
}
