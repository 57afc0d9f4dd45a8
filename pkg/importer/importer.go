package importer

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/download"
	"github.com/sw33tLie/fanmirror/pkg/storage"
	"github.com/sw33tLie/fanmirror/pkg/whttp"
)

// Store is the slice of the post store the pipeline writes through.
type Store interface {
	PostExists(ctx context.Context, service, user, id string) (bool, error)
	PostFlagged(ctx context.Context, service, user, id string) (bool, error)
	ClearPostFlag(ctx context.Context, service, user, id string) error
	MoveToBackup(ctx context.Context, service, user, id string) (storage.BackupHandle, error)
	DiscardBackup(ctx context.Context, h storage.BackupHandle) error
	RestoreFromBackup(ctx context.Context, service, user, id string, h storage.BackupHandle) error
	UpsertPost(ctx context.Context, p *storage.Post) error
	CommentExists(ctx context.Context, service, commenter, id string) (bool, error)
	InsertComment(ctx context.Context, c *storage.Comment) error
}

// Directory holds artist level state: the do not post list, metadata and the
// caches derived from posts.
type Directory interface {
	IsArtistBlocked(ctx context.Context, service, artistID string) (bool, error)
	RefreshArtist(ctx context.Context, service, artistID, name string) error
	InvalidateArtistCaches(ctx context.Context, service, artistID string) error
	InvalidateCommentCaches(ctx context.Context, service, artistID, postID string) error
	ReindexAll(ctx context.Context, fallbackNames map[string]string) error
}

type Downloader interface {
	Download(ctx context.Context, req download.Request) (string, error)
}

// Notifier is told about changed pages. Calls are best effort.
type Notifier interface {
	BanArtist(ctx context.Context, service, artistID string) error
	BanPost(ctx context.Context, service, artistID, postID string) error
}

// Job identifies one import run.
type Job struct {
	ID      string
	Service string
	Log     *logrus.Entry
	// Headers and Cookies carry the session and are sent with every
	// download that is not marked Anonymous.
	Headers []whttp.WHTTPHeader
	Cookies []*http.Cookie
}

// NewJob builds a job whose log lines carry the import id and service.
func NewJob(importID, service string, logger *logrus.Logger) Job {
	return Job{
		ID:      importID,
		Service: service,
		Log:     utils.JobLogger(logger, importID, service),
	}
}

// Importer drives posts and comments of one platform into the archive. It
// processes strictly one item at a time.
type Importer struct {
	Store      Store
	Directory  Directory
	Downloader Downloader
	// Notifier may be nil.
	Notifier Notifier
	Now      func() time.Time
}

func New(store Store, dir Directory, dl Downloader, n Notifier) *Importer {
	return &Importer{Store: store, Directory: dir, Downloader: dl, Notifier: n, Now: time.Now}
}

func (imp *Importer) now() time.Time {
	if imp.Now == nil {
		return time.Now()
	}
	return imp.Now()
}

// Reindex rebuilds the artist directory once a crawl is over. Failures are
// logged only.
func (imp *Importer) Reindex(ctx context.Context, job Job, fallbackNames map[string]string) {
	if err := imp.Directory.ReindexAll(ctx, fallbackNames); err != nil {
		job.Log.WithError(err).Error("Failed to reindex artists")
	}
}
