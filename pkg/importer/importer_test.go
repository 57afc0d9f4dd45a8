package importer

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/artists"
	"github.com/sw33tLie/fanmirror/pkg/cache"
	"github.com/sw33tLie/fanmirror/pkg/download"
	"github.com/sw33tLie/fanmirror/pkg/storage"
	"github.com/sw33tLie/fanmirror/pkg/whttp"
)

type fakeDownloader struct {
	requests []download.Request
	fail     map[string]error
	panicOn  string
}

func (f *fakeDownloader) Download(ctx context.Context, req download.Request) (string, error) {
	if req.URL == f.panicOn {
		panic("boom")
	}
	f.requests = append(f.requests, req)
	if err := f.fail[req.URL]; err != nil {
		return "", err
	}
	if req.Name != "" {
		return req.Name, nil
	}
	return path.Base(req.URL), nil
}

type fakeNotifier struct {
	artists []string
	posts   []string
}

func (f *fakeNotifier) BanArtist(ctx context.Context, service, artistID string) error {
	f.artists = append(f.artists, service+"/"+artistID)
	return errors.New("ban endpoint down")
}

func (f *fakeNotifier) BanPost(ctx context.Context, service, artistID, postID string) error {
	f.posts = append(f.posts, service+"/"+artistID+"/"+postID)
	return nil
}

// failingStore breaks selected writes of the real store.
type failingStore struct {
	*storage.DB
	upsertErr  error
	badComment string
}

func (s *failingStore) UpsertPost(ctx context.Context, p *storage.Post) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.DB.UpsertPost(ctx, p)
}

func (s *failingStore) InsertComment(ctx context.Context, c *storage.Comment) error {
	if c.ID == s.badComment {
		return errors.New("disk full")
	}
	return s.DB.InsertComment(ctx, c)
}

type harness struct {
	imp      *Importer
	db       *storage.DB
	store    *failingStore
	cache    *cache.Store
	dl       *fakeDownloader
	notifier *fakeNotifier
	job      Job
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(filepath.Join(dir, "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := cache.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		db:       db,
		store:    &failingStore{DB: db},
		cache:    c,
		dl:       &fakeDownloader{fail: map[string]error{}},
		notifier: &fakeNotifier{},
		job:      NewJob("job-1", "fanbox", logger),
	}
	h.imp = New(h.store, artists.New(db, c, nil), h.dl, h.notifier)
	h.imp.Now = func() time.Time { return time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC) }
	return h
}

func simplePost(id string) RemotePost {
	return RemotePost{
		ID:       id,
		AuthorID: "u1",
		Title:    "title " + id,
		Body:     "body",
		Embeds:   []Embed{File("https://cdn.example/" + id + "/cover.jpg")},
	}
}

func TestImportPostIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))
	assert.Equal(t, SkippedExists, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))

	n, err := h.db.CountPosts(ctx, "fanbox", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.dl.requests, 1, "second run must not download again")
}

func TestCommittedPostSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.Put(cache.ArtistPostCountKey("fanbox", "u1"), []byte("7")))

	assert.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))

	got, err := h.db.GetPost(ctx, "fanbox", "p1")
	require.NoError(t, err)
	require.NotNil(t, got.File)
	assert.Equal(t, "/files/fanbox/u1/p1/cover.jpg", got.File.Path)
	assert.JSONEq(t, "{}", string(got.Embed))
	assert.False(t, got.SharedFile)

	_, err = h.db.GetArtist(ctx, "fanbox", "u1")
	assert.NoError(t, err, "artist refreshed")

	v, err := h.cache.Get(cache.ArtistPostCountKey("fanbox", "u1"))
	require.NoError(t, err)
	assert.Nil(t, v, "artist caches invalidated")

	// A failing ban endpoint does not fail the import.
	assert.Equal(t, []string{"fanbox/u1"}, h.notifier.artists)
}

func TestFlaggedReimportClearsFlagAndBackup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))
	require.NoError(t, h.db.FlagPost(ctx, "fanbox", "u1", "p1"))

	updated := simplePost("p1")
	updated.Title = "edited"
	assert.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, updated, nil))

	got, err := h.db.GetPost(ctx, "fanbox", "p1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Title)

	flagged, err := h.db.PostFlagged(ctx, "fanbox", "u1", "p1")
	require.NoError(t, err)
	assert.False(t, flagged)

	n, err := h.db.CountBackups(ctx, "fanbox", "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlaggedButMissingPostImportsWithoutBackup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.db.FlagPost(ctx, "fanbox", "u1", "p1"))

	assert.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))

	flagged, err := h.db.PostFlagged(ctx, "fanbox", "u1", "p1")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestFailedUpsertRestoresBackupExactly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))
	before, err := h.db.GetPost(ctx, "fanbox", "p1")
	require.NoError(t, err)
	require.NoError(t, h.db.FlagPost(ctx, "fanbox", "u1", "p1"))

	h.store.upsertErr = errors.New("database is locked")
	updated := simplePost("p1")
	updated.Title = "never stored"
	assert.Equal(t, RolledBack, h.imp.ImportPost(ctx, h.job, updated, nil))

	after, err := h.db.GetPost(ctx, "fanbox", "p1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	n, err := h.db.CountBackups(ctx, "fanbox", "p1")
	require.NoError(t, err)
	assert.Zero(t, n)

	flagged, err := h.db.PostFlagged(ctx, "fanbox", "u1", "p1")
	require.NoError(t, err)
	assert.True(t, flagged, "flag survives so the next run retries")
}

func TestFailedDownloadRestoresBackup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))
	require.NoError(t, h.db.FlagPost(ctx, "fanbox", "u1", "p1"))

	h.dl.fail["https://cdn.example/p1/cover.jpg"] = errors.New("404")
	assert.Equal(t, RolledBack, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))

	exists, err := h.db.PostExists(ctx, "fanbox", "u1", "p1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFailedNewPostIsNotCommitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dl.fail["https://cdn.example/p1/cover.jpg"] = errors.New("404")
	assert.Equal(t, Failed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))

	exists, err := h.db.PostExists(ctx, "fanbox", "u1", "p1")
	require.NoError(t, err)
	assert.False(t, exists)

	// The next post is unaffected.
	assert.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p2"), nil))
}

func TestPanicIsContainedToOnePost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dl.panicOn = "https://cdn.example/p1/cover.jpg"
	assert.Equal(t, Failed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))
	assert.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p2"), nil))
}

func TestBlockedArtistNeverDownloads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.db.AddDNP(ctx, "fanbox", "u1"))

	payloads := [][]Embed{
		nil,
		{File("https://cdn.example/a.png")},
		{Link("youtube", "abc"), File("https://cdn.example/a.png"), File("https://cdn.example/b.zip")},
		{Embed{Kind: EmbedFile, URL: "https://cdn.example/c.png", AttachmentOnly: true, Anonymous: true}},
	}
	for i, embeds := range payloads {
		post := simplePost("p" + string(rune('a'+i)))
		post.Embeds = embeds

		admitted := false
		out := h.imp.ImportPost(ctx, h.job, post, func(context.Context) { admitted = true })
		assert.Equal(t, SkippedDNP, out)
		assert.False(t, admitted)
	}
	assert.Empty(t, h.dl.requests)

	n, err := h.db.CountPosts(ctx, "fanbox", "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRestrictedPostHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	post := simplePost("p1")
	post.Restricted = true
	post.RestrictReason = "user is not subscribed to the required tier"

	admitted := false
	assert.Equal(t, SkippedRestricted, h.imp.ImportPost(ctx, h.job, post, func(context.Context) { admitted = true }))
	assert.False(t, admitted)
	assert.Empty(t, h.dl.requests)
	assert.Empty(t, h.notifier.artists)
	assert.True(t, errors.Is(SkippedRestricted.Err(), ErrRestricted))
}

func TestSkipReasonsReachTheClientLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	logger, entries := logtest.NewNullLogger()
	logger.AddHook(storage.NewLogHook(h.db, utils.FieldImportID, utils.FieldInternal))
	job := NewJob("job-skips", "fanbox", logger)

	require.NoError(t, h.db.AddDNP(ctx, "fanbox", "banned"))
	restricted := simplePost("p1")
	restricted.Restricted = true
	restricted.RestrictReason = "post is from higher subscription tier"
	blocked := simplePost("p2")
	blocked.AuthorID = "banned"

	require.Equal(t, Committed, h.imp.ImportPost(ctx, job, simplePost("p3"), nil))
	entries.Reset()

	cases := []struct {
		post RemotePost
		out  Outcome
		err  error
	}{
		{restricted, SkippedRestricted, ErrRestricted},
		{blocked, SkippedDNP, ErrDNP},
		{simplePost("p3"), SkippedExists, ErrExists},
	}
	for _, c := range cases {
		require.Equal(t, c.out, h.imp.ImportPost(ctx, job, c.post, nil))
		logged, ok := entries.LastEntry().Data[logrus.ErrorKey].(error)
		require.True(t, ok)
		assert.ErrorIs(t, logged, c.err)
		var reject *PolicyReject
		assert.ErrorAs(t, logged, &reject)
	}

	lines, err := h.db.ListLogs(ctx, "job-skips")
	require.NoError(t, err)
	var messages []string
	for _, l := range lines {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "Skipping post p1 from user u1: post is restricted: post is from higher subscription tier")
	assert.Contains(t, messages, "Skipping post p2 from user banned: artist is in do not post list")
	assert.Contains(t, messages, "Skipping post p3 from user u1: post already exists")
}

func TestAfterAdmitRunsForExistingPosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))

	calls := 0
	out := h.imp.ImportPost(ctx, h.job, simplePost("p1"), func(context.Context) {
		calls++
		panic("comment listing exploded")
	})
	assert.Equal(t, SkippedExists, out)
	assert.Equal(t, 1, calls)
}

func TestEmbedOrderingAndPrimaryFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	post := simplePost("p1")
	post.Embeds = []Embed{
		Link("youtube", "AAA"),
		File("https://cdn.example/x.png"),
		File("https://cdn.example/y.zip"),
		Link("twitter", "BBB"),
		Link("myspace", "CCC"),
	}
	require.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, post, nil))

	got, err := h.db.GetPost(ctx, "fanbox", "p1")
	require.NoError(t, err)
	require.NotNil(t, got.File)
	assert.Equal(t, storage.FileRef{Name: "x.png", Path: "/files/fanbox/u1/p1/x.png"}, *got.File)
	assert.Equal(t, []storage.FileRef{{Name: "y.zip", Path: "/attachments/fanbox/u1/p1/y.zip"}}, got.Attachments)

	a := strings.Index(got.Content, "https://www.youtube.com/watch?v=AAA")
	b := strings.Index(got.Content, "https://twitter.com/_/status/BBB")
	require.NotEqual(t, -1, a)
	require.NotEqual(t, -1, b)
	assert.Less(t, a, b)
	assert.True(t, strings.HasPrefix(got.Content, "body"))
	assert.NotContains(t, got.Content, "CCC")

	require.Len(t, h.dl.requests, 2)
	assert.Equal(t, "https://cdn.example/x.png", h.dl.requests[0].URL, "primary is downloaded first")
}

func TestPlanEmbedsAttachmentOnlyFiles(t *testing.T) {
	plan := PlanEmbeds("", []Embed{
		{Kind: EmbedFile, URL: "https://cdn.example/item.pdf", AttachmentOnly: true},
		File("https://cdn.example/cover.png"),
	})
	require.NotNil(t, plan.Primary)
	assert.Equal(t, "https://cdn.example/cover.png", plan.Primary.URL)
	require.Len(t, plan.Attachments, 1)
	assert.Equal(t, "https://cdn.example/item.pdf", plan.Attachments[0].URL)
}

func TestLinkSnippetEscapesContentID(t *testing.T) {
	snippet, ok := LinkSnippet("vimeo", `1"><script>`)
	require.True(t, ok)
	assert.NotContains(t, snippet, "<script>")
	assert.Contains(t, snippet, "(Vimeo)")

	_, ok = LinkSnippet("unknown", "x")
	assert.False(t, ok)
}

func TestAnonymousFilesSkipCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.job.Cookies = nil
	h.job.Headers = append(h.job.Headers, whttp.WHTTPHeader{Name: "Cookie", Value: "_session=secret"})

	post := simplePost("p1")
	post.Embeds = []Embed{
		{Kind: EmbedFile, URL: "https://public.example/cover.png", Anonymous: true},
		{Kind: EmbedFile, URL: "https://cdn.example/file", Name: "book.pdf", AttachmentOnly: true},
	}
	require.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, post, nil))

	require.Len(t, h.dl.requests, 2)
	assert.Empty(t, h.dl.requests[0].Headers)
	assert.Len(t, h.dl.requests[1].Headers, 1)
	assert.Equal(t, "book.pdf", h.dl.requests[1].Name)
}

func TestSummaryCountsOutcomes(t *testing.T) {
	var s Summary
	for _, o := range []Outcome{Committed, SkippedDNP, SkippedExists, SkippedRestricted, Failed, RolledBack, Committed} {
		s.Add(o)
	}
	assert.Equal(t, Summary{Committed: 2, Skipped: 3, Failed: 1, RolledBack: 1}, s)
}

func TestResolveRunsOnlyForAdmittedPosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.db.AddDNP(ctx, "fanbox", "blocked"))

	calls := 0
	resolve := func(context.Context) ([]Embed, error) {
		calls++
		return []Embed{{Kind: EmbedFile, URL: "https://cdn.example/extra.bin", AttachmentOnly: true}}, nil
	}

	blocked := simplePost("p1")
	blocked.AuthorID = "blocked"
	blocked.Resolve = resolve
	assert.Equal(t, SkippedDNP, h.imp.ImportPost(ctx, h.job, blocked, nil))
	assert.Zero(t, calls)

	post := simplePost("p2")
	post.Resolve = resolve
	require.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, post, nil))
	assert.Equal(t, 1, calls)

	got, err := h.db.GetPost(ctx, "fanbox", "p2")
	require.NoError(t, err)
	require.NotNil(t, got.File)
	assert.Equal(t, "cover.jpg", got.File.Name)
	assert.Equal(t, []storage.FileRef{{Name: "extra.bin", Path: "/attachments/fanbox/u1/p2/extra.bin"}}, got.Attachments)
}

func TestResolveFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.Equal(t, Committed, h.imp.ImportPost(ctx, h.job, simplePost("p1"), nil))
	require.NoError(t, h.db.FlagPost(ctx, "fanbox", "u1", "p1"))

	post := simplePost("p1")
	post.Resolve = func(context.Context) ([]Embed, error) { return nil, errors.New("download page gone") }
	assert.Equal(t, RolledBack, h.imp.ImportPost(ctx, h.job, post, nil))
}
