package artists

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sw33tLie/fanmirror/pkg/cache"
	"github.com/sw33tLie/fanmirror/pkg/search"
	"github.com/sw33tLie/fanmirror/pkg/storage"
)

// Directory answers artist level questions for the import pipeline and keeps
// the derived artist data (cache keys, search index) in line with the store.
// Cache and Index are optional.
type Directory struct {
	DB    *storage.DB
	Cache *cache.Store
	Index *search.ArtistIndex
}

func New(db *storage.DB, c *cache.Store, idx *search.ArtistIndex) *Directory {
	return &Directory{DB: db, Cache: c, Index: idx}
}

func (d *Directory) IsArtistBlocked(ctx context.Context, service, artistID string) (bool, error) {
	return d.DB.IsArtistDNP(ctx, service, artistID)
}

// RefreshArtist records that the artist changed. name may be empty when the
// platform did not report one.
func (d *Directory) RefreshArtist(ctx context.Context, service, artistID, name string) error {
	return d.DB.TouchArtist(ctx, service, artistID, name)
}

func (d *Directory) InvalidateArtistCaches(ctx context.Context, service, artistID string) error {
	if d.Cache == nil {
		return nil
	}
	if err := d.Cache.Delete(cache.ArtistKey(service, artistID), cache.ArtistPostCountKey(service, artistID)); err != nil {
		return err
	}
	_, err := d.Cache.DeletePrefix(cache.ArtistPostsOffsetPrefix(service, artistID))
	return err
}

func (d *Directory) InvalidateCommentCaches(ctx context.Context, service, artistID, postID string) error {
	if d.Cache == nil {
		return nil
	}
	return d.Cache.Delete(cache.CommentsKey(service, artistID, postID), cache.PostKey(service, artistID, postID))
}

// ReindexAll registers every author found in the post store and rebuilds the
// search index. fallbackNames maps artist ids to display names for artists
// whose name is still unknown.
func (d *Directory) ReindexAll(ctx context.Context, fallbackNames map[string]string) error {
	all, err := d.DB.IndexArtists(ctx, fallbackNames)
	if err != nil {
		return fmt.Errorf("indexing artists: %w", err)
	}
	if d.Index == nil {
		return nil
	}
	if err := d.Index.Reindex(all); err != nil {
		return fmt.Errorf("rebuilding artist search index: %w", err)
	}
	return nil
}

// PostCount returns the number of archived posts of an artist, served from
// the cache when possible.
func (d *Directory) PostCount(ctx context.Context, service, artistID string) (int, error) {
	key := cache.ArtistPostCountKey(service, artistID)
	if d.Cache != nil {
		if v, err := d.Cache.Get(key); err == nil && v != nil {
			if n, err := strconv.Atoi(string(v)); err == nil {
				return n, nil
			}
		}
	}

	n, err := d.DB.CountPosts(ctx, service, artistID)
	if err != nil {
		return 0, err
	}
	if d.Cache != nil {
		_ = d.Cache.Put(key, []byte(strconv.Itoa(n)))
	}
	return n, nil
}

// Search looks artists up by name or id.
func (d *Directory) Search(query string, limit int) ([]search.Result, error) {
	if d.Index == nil {
		return nil, fmt.Errorf("artist search index not configured")
	}
	return d.Index.Search(query, limit)
}
