package importer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/storage"
)

// ImportPost runs one post through the import decision: skip checks first,
// then backup of a flagged post, then download and commit. A failed commit
// restores the backup. Errors never escape; the outcome is returned and
// logged against the job.
//
// afterAdmit, when not nil, runs once the post passed the restriction and
// do not post checks, before the existence check. Platforms use it to import
// comments of posts that are already archived.
func (imp *Importer) ImportPost(ctx context.Context, job Job, post RemotePost, afterAdmit func(context.Context)) Outcome {
	log := postLog(job, post)

	if post.Restricted {
		var err error = ErrRestricted
		if post.RestrictReason != "" {
			err = fmt.Errorf("%w: %s", ErrRestricted, post.RestrictReason)
		}
		return skip(log, post, SkippedRestricted, err)
	}

	blocked, err := imp.Directory.IsArtistBlocked(ctx, job.Service, post.AuthorID)
	if err != nil {
		log.WithError(err).Errorf("Error importing post %s from user %s", post.ID, post.AuthorID)
		return Failed
	}
	if blocked {
		return skip(log, post, SkippedDNP, SkippedDNP.Err())
	}

	if afterAdmit != nil {
		if err := guard(func() error { afterAdmit(ctx); return nil }); err != nil {
			log.WithError(err).Errorf("Error importing comments of post %s", post.ID)
		}
	}

	exists, err := imp.Store.PostExists(ctx, job.Service, post.AuthorID, post.ID)
	if err != nil {
		log.WithError(err).Errorf("Error importing post %s from user %s", post.ID, post.AuthorID)
		return Failed
	}
	flagged, err := imp.Store.PostFlagged(ctx, job.Service, post.AuthorID, post.ID)
	if err != nil {
		log.WithError(err).Errorf("Error importing post %s from user %s", post.ID, post.AuthorID)
		return Failed
	}
	if exists && !flagged {
		return skip(log, post, SkippedExists, SkippedExists.Err())
	}

	var backup *storage.BackupHandle
	if exists {
		h, err := imp.Store.MoveToBackup(ctx, job.Service, post.AuthorID, post.ID)
		if err != nil {
			log.WithError(persistErr("backup", err)).Errorf("Error importing post %s from user %s", post.ID, post.AuthorID)
			return Failed
		}
		backup = &h
		utils.Internal(log).Debugf("Moved post %s to backup %d", post.ID, h)
	}

	log.Infof("Starting import: %s from user %s", post.ID, post.AuthorID)

	err = guard(func() error { return imp.commit(ctx, job, post, backup) })
	if err == nil {
		utils.Internal(log).Infof("Finished importing %s from user %s", post.ID, post.AuthorID)
		return Committed
	}

	log.WithError(err).Errorf("Error importing post %s from user %s", post.ID, post.AuthorID)
	if backup == nil {
		return Failed
	}
	if rerr := imp.Store.RestoreFromBackup(ctx, job.Service, post.AuthorID, post.ID, *backup); rerr != nil {
		utils.Internal(log).WithError(rerr).Errorf("Failed to restore backup %d of post %s", *backup, post.ID)
		return Failed
	}
	utils.Internal(log).Infof("Restored post %s from backup %d", post.ID, *backup)
	return RolledBack
}

func (imp *Importer) commit(ctx context.Context, job Job, post RemotePost, backup *storage.BackupHandle) error {
	record, err := imp.materialize(ctx, job, post)
	if err != nil {
		return err
	}
	if err := imp.Store.UpsertPost(ctx, record); err != nil {
		return persistErr("upsert post", err)
	}
	if err := imp.Directory.RefreshArtist(ctx, job.Service, post.AuthorID, post.AuthorName); err != nil {
		return persistErr("refresh artist", err)
	}
	if err := imp.Store.ClearPostFlag(ctx, job.Service, post.AuthorID, post.ID); err != nil {
		return persistErr("clear flag", err)
	}
	if imp.Notifier != nil {
		if err := imp.Notifier.BanArtist(ctx, job.Service, post.AuthorID); err != nil {
			utils.Internal(job.Log).WithError(err).Warnf("Failed to ban artist page of %s", post.AuthorID)
		}
	}
	if err := imp.Directory.InvalidateArtistCaches(ctx, job.Service, post.AuthorID); err != nil {
		return persistErr("invalidate artist caches", err)
	}
	if backup != nil {
		if err := imp.Store.DiscardBackup(ctx, *backup); err != nil {
			return persistErr("discard backup", err)
		}
	}
	return nil
}

// skip logs a policy reject. The reason reaches the client log through the
// error field.
func skip(log *logrus.Entry, post RemotePost, out Outcome, reason error) Outcome {
	log.WithError(reason).Infof("Skipping post %s from user %s", post.ID, post.AuthorID)
	return out
}

// guard runs fn and turns a panic into an UnexpectedError.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UnexpectedError{Value: r}
		}
	}()
	return fn()
}

func postLog(job Job, post RemotePost) *logrus.Entry {
	return job.Log.WithField("post_id", post.ID)
}
