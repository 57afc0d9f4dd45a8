package cache

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var keysBucket = []byte("keys")

// LockTimeout bounds how long an operation waits for another process holding
// the cache file.
var LockTimeout = 5 * time.Second

// Store is a small key/value cache shared by the list views. Import jobs only
// ever delete from it. The bolt file is opened for each operation and closed
// right after, so concurrent processes only contend for single writes.
type Store struct {
	path string
}

// Open makes sure the cache file and its bucket exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	err := s.update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(keysBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache bucket: %w", err)
	}
	return s, nil
}

// Close is a no-op; no file stays open between operations.
func (s *Store) Close() error {
	return nil
}

func (s *Store) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: LockTimeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return db, nil
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

func (s *Store) Put(key string, value []byte) error {
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(keysBucket).Put([]byte(key), value)
	})
}

// Get returns nil when the key is not cached.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.view(func(tx *bolt.Tx) error {
		if v := tx.Bucket(keysBucket).Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (s *Store) Delete(keys ...string) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(keysBucket)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeletePrefix removes every key starting with prefix and reports how many
// were removed.
func (s *Store) DeletePrefix(prefix string) (int, error) {
	removed := 0
	err := s.update(func(tx *bolt.Tx) error {
		c := tx.Bucket(keysBucket).Cursor()
		p := []byte(prefix)
		var doomed [][]byte
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		b := tx.Bucket(keysBucket)
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	return removed, err
}

// Key helpers for the values the list views cache.

func ArtistKey(service, artistID string) string {
	return "artist:" + service + ":" + artistID
}

func ArtistPostCountKey(service, artistID string) string {
	return "artist_post_count:" + service + ":" + artistID
}

func ArtistPostsOffsetPrefix(service, artistID string) string {
	return "artist_posts_offset:" + service + ":" + artistID + ":"
}

func PostKey(service, artistID, postID string) string {
	return "post:" + service + ":" + artistID + ":" + postID
}

func CommentsKey(service, artistID, postID string) string {
	return "comments:" + service + ":" + artistID + ":" + postID
}
