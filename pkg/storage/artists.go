package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (d *DB) IsArtistDNP(ctx context.Context, service, id string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM dnp WHERE service = ? AND id = ?", service, id).Scan(&n)
	return n > 0, err
}

func (d *DB) AddDNP(ctx context.Context, service, id string) error {
	_, err := d.sql.ExecContext(ctx, "INSERT OR IGNORE INTO dnp(id, service, added_at) VALUES(?,?,?)", id, service, formatTime(time.Now()))
	return err
}

func (d *DB) RemoveDNP(ctx context.Context, service, id string) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM dnp WHERE service = ? AND id = ?", service, id)
	return err
}

// TouchArtist bumps the artist's updated timestamp and records name when it
// is not empty. A new artist without a name is stored under its id.
func (d *DB) TouchArtist(ctx context.Context, service, id, name string) error {
	if name == "" {
		name = id
	}
	now := formatTime(time.Now())
	_, err := d.sql.ExecContext(ctx, `INSERT INTO artists(id, service, name, indexed, updated) VALUES(?,?,?,?,?)
ON CONFLICT(id, service) DO UPDATE SET
  updated = excluded.updated,
  name = CASE WHEN excluded.name <> excluded.id THEN excluded.name ELSE artists.name END`, id, service, name, now, now)
	return err
}

func (d *DB) GetArtist(ctx context.Context, service, id string) (*Artist, error) {
	var a Artist
	var indexed, updated string
	err := d.sql.QueryRowContext(ctx, "SELECT id, service, name, indexed, updated FROM artists WHERE service = ? AND id = ?", service, id).
		Scan(&a.ID, &a.Service, &a.Name, &indexed, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Indexed = parseTime(indexed)
	a.Updated = parseTime(updated)
	return &a, nil
}

// IndexArtists makes sure every author with at least one post has an artist
// row. Names come from fallbackNames (keyed by artist id) when given and the
// stored name is still the bare id. All artists are returned.
func (d *DB) IndexArtists(ctx context.Context, fallbackNames map[string]string) (artists []Artist, err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, "SELECT DISTINCT user_id, service FROM posts")
	if err != nil {
		return nil, err
	}
	type author struct{ id, service string }
	var authors []author
	for rows.Next() {
		var a author
		if err = rows.Scan(&a.id, &a.service); err != nil {
			rows.Close()
			return nil, err
		}
		authors = append(authors, a)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	now := formatTime(time.Now())
	for _, a := range authors {
		name := a.id
		if fb, ok := fallbackNames[a.id]; ok && fb != "" {
			name = fb
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO artists(id, service, name, indexed, updated) VALUES(?,?,?,?,?)
ON CONFLICT(id, service) DO UPDATE SET
  name = CASE WHEN artists.name = artists.id THEN excluded.name ELSE artists.name END,
  indexed = excluded.indexed`, a.id, a.service, name, now, now)
		if err != nil {
			return nil, err
		}
	}

	all, err := tx.QueryContext(ctx, "SELECT id, service, name, indexed, updated FROM artists ORDER BY service, id")
	if err != nil {
		return nil, err
	}
	for all.Next() {
		var a Artist
		var indexed, updated string
		if err = all.Scan(&a.ID, &a.Service, &a.Name, &indexed, &updated); err != nil {
			all.Close()
			return nil, err
		}
		a.Indexed = parseTime(indexed)
		a.Updated = parseTime(updated)
		artists = append(artists, a)
	}
	if err = all.Close(); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return artists, nil
}
