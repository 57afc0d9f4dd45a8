package importer

import (
	"context"
	"time"

	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/storage"
)

// RemoteComment is one comment as the platform nests it. An empty ParentID
// marks a root comment.
type RemoteComment struct {
	ID          string
	ParentID    string
	CommenterID string
	Body        string
	Published   *time.Time
	Replies     []RemoteComment
}

// PostRef scopes a comment listing to its post.
type PostRef struct {
	AuthorID string
	PostID   string
}

// ImportComments walks the paginated comment listing of a post starting at
// cursor. Each comment is stored before its replies; comments already stored
// are not written again but their replies are still visited. A failing
// comment is logged and skipped. Every page with items is followed by the
// post scoped ban and comment cache invalidation. The number of inserted
// comments is returned together with the fetch error that ended the walk.
func (imp *Importer) ImportComments(ctx context.Context, job Job, post PostRef, cursor string, fetch PageFetcher[RemoteComment]) (int, error) {
	log := job.Log.WithField("post_id", post.PostID)
	inserted := 0

	_, err := Crawl(ctx, cursor, fetch, func(ctx context.Context, _ string, page Page[RemoteComment]) {
		for _, c := range page.Items {
			inserted += imp.importCommentTree(ctx, job, post, c)
		}

		if imp.Notifier != nil {
			if err := imp.Notifier.BanPost(ctx, job.Service, post.AuthorID, post.PostID); err != nil {
				utils.Internal(log).WithError(err).Warnf("Failed to ban post page of %s", post.PostID)
			}
		}
		if err := imp.Directory.InvalidateCommentCaches(ctx, job.Service, post.AuthorID, post.PostID); err != nil {
			utils.Internal(log).WithError(err).Errorf("Failed to invalidate comment caches of post %s", post.PostID)
		}
	})
	if err != nil {
		log.WithError(err).Errorf("Error fetching comments of post %s", post.PostID)
	}
	return inserted, err
}

func (imp *Importer) importCommentTree(ctx context.Context, job Job, post PostRef, c RemoteComment) int {
	n := 0
	err := guard(func() error {
		stored, err := imp.importComment(ctx, job, post, c)
		if stored {
			n++
		}
		return err
	})
	if err != nil {
		job.Log.WithField("post_id", post.PostID).WithError(err).Errorf("Error importing comment %s from post %s", c.ID, post.PostID)
	}

	for _, reply := range c.Replies {
		n += imp.importCommentTree(ctx, job, post, reply)
	}
	return n
}

func (imp *Importer) importComment(ctx context.Context, job Job, post PostRef, c RemoteComment) (bool, error) {
	exists, err := imp.Store.CommentExists(ctx, job.Service, c.CommenterID, c.ID)
	if err != nil {
		return false, err
	}
	if exists {
		utils.Internal(job.Log).Debugf("Skipping comment %s from post %s because already exists", c.ID, post.PostID)
		return false, nil
	}

	var parent *string
	if c.ParentID != "" {
		p := c.ParentID
		parent = &p
	}
	record := &storage.Comment{
		ID:        c.ID,
		PostID:    post.PostID,
		ParentID:  parent,
		Commenter: c.CommenterID,
		Service:   job.Service,
		Content:   c.Body,
		Added:     imp.now(),
		Published: c.Published,
	}
	if err := imp.Store.InsertComment(ctx, record); err != nil {
		return false, persistErr("insert comment", err)
	}
	return true, nil
}
