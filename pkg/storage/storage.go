package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
  id          TEXT NOT NULL,
  user_id     TEXT NOT NULL,
  service     TEXT NOT NULL,
  title       TEXT NOT NULL DEFAULT '',
  content     TEXT NOT NULL DEFAULT '',
  embed       TEXT NOT NULL DEFAULT '{}',
  shared_file INTEGER NOT NULL DEFAULT 0 CHECK (shared_file IN (0,1)),
  added       TEXT NOT NULL,
  published   TEXT,
  edited      TEXT,
  file        TEXT NOT NULL DEFAULT '{}',
  attachments TEXT NOT NULL DEFAULT '[]',
  PRIMARY KEY (id, service)
);
CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(service, user_id);
CREATE TABLE IF NOT EXISTS posts_backup (
  backup_id   INTEGER PRIMARY KEY AUTOINCREMENT,
  backed_up_at TEXT NOT NULL,
  id          TEXT NOT NULL,
  user_id     TEXT NOT NULL,
  service     TEXT NOT NULL,
  title       TEXT NOT NULL,
  content     TEXT NOT NULL,
  embed       TEXT NOT NULL,
  shared_file INTEGER NOT NULL,
  added       TEXT NOT NULL,
  published   TEXT,
  edited      TEXT,
  file        TEXT NOT NULL,
  attachments TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS post_flags (
  service    TEXT NOT NULL,
  user_id    TEXT NOT NULL,
  id         TEXT NOT NULL,
  flagged_at TEXT NOT NULL,
  PRIMARY KEY (service, user_id, id)
);
CREATE TABLE IF NOT EXISTS comments (
  id        TEXT NOT NULL,
  post_id   TEXT NOT NULL,
  parent_id TEXT,
  commenter TEXT NOT NULL,
  service   TEXT NOT NULL,
  content   TEXT NOT NULL DEFAULT '',
  added     TEXT NOT NULL,
  published TEXT,
  UNIQUE(service, commenter, id)
);
CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(service, post_id);
CREATE TABLE IF NOT EXISTS artists (
  id      TEXT NOT NULL,
  service TEXT NOT NULL,
  name    TEXT NOT NULL,
  indexed TEXT NOT NULL,
  updated TEXT NOT NULL,
  PRIMARY KEY (id, service)
);
CREATE TABLE IF NOT EXISTS dnp (
  id       TEXT NOT NULL,
  service  TEXT NOT NULL,
  added_at TEXT NOT NULL,
  PRIMARY KEY (id, service)
);
CREATE TABLE IF NOT EXISTS import_logs (
  id         INTEGER PRIMARY KEY,
  import_id  TEXT NOT NULL,
  level      TEXT NOT NULL,
  message    TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_import_logs ON import_logs(import_id, id);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

const postColumns = "id, user_id, service, title, content, embed, shared_file, added, published, edited, file, attachments"

// UpsertPost inserts the post or, when (id, service) exists, replaces every
// column with the new values.
func (d *DB) UpsertPost(ctx context.Context, p *Post) error {
	embed, file, attachments, err := encodePostJSON(p)
	if err != nil {
		return err
	}
	added := p.Added
	if added.IsZero() {
		added = time.Now()
	}

	_, err = d.sql.ExecContext(ctx, `INSERT INTO posts(`+postColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id, service) DO UPDATE SET
  user_id = excluded.user_id,
  title = excluded.title,
  content = excluded.content,
  embed = excluded.embed,
  shared_file = excluded.shared_file,
  added = excluded.added,
  published = excluded.published,
  edited = excluded.edited,
  file = excluded.file,
  attachments = excluded.attachments`,
		p.ID, p.User, p.Service, p.Title, p.Content, embed, boolToInt(p.SharedFile),
		formatTime(added), nullTime(p.Published), nullTime(p.Edited), file, attachments)
	if err != nil {
		return fmt.Errorf("upsert post %s/%s: %w", p.Service, p.ID, err)
	}
	return nil
}

// encodePostJSON serializes the structured columns. Each attachment is
// encoded on its own; the column holds the list of encoded attachments.
func encodePostJSON(p *Post) (embed, file, attachments string, err error) {
	embed = "{}"
	if len(p.Embed) > 0 {
		if !json.Valid(p.Embed) {
			return "", "", "", fmt.Errorf("post %s/%s: embed is not valid JSON", p.Service, p.ID)
		}
		embed = string(p.Embed)
	}

	file = "{}"
	if p.File != nil {
		b, err := json.Marshal(p.File)
		if err != nil {
			return "", "", "", err
		}
		file = string(b)
	}

	encoded := make([]string, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		b, err := json.Marshal(a)
		if err != nil {
			return "", "", "", err
		}
		encoded = append(encoded, string(b))
	}
	b, err := json.Marshal(encoded)
	if err != nil {
		return "", "", "", err
	}
	return embed, file, string(b), nil
}

func (d *DB) GetPost(ctx context.Context, service, id string) (*Post, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE service = ? AND id = ?", service, id)

	var p Post
	var embed, file, attachments, added string
	var shared int
	var published, edited sql.NullString
	err := row.Scan(&p.ID, &p.User, &p.Service, &p.Title, &p.Content, &embed, &shared, &added, &published, &edited, &file, &attachments)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Embed = json.RawMessage(embed)
	p.SharedFile = shared == 1
	p.Added = parseTime(added)
	p.Published = parseNullTime(published)
	p.Edited = parseNullTime(edited)

	var f FileRef
	if err := json.Unmarshal([]byte(file), &f); err != nil {
		return nil, fmt.Errorf("post %s/%s: decoding file: %w", service, id, err)
	}
	if f != (FileRef{}) {
		p.File = &f
	}

	var encoded []string
	if err := json.Unmarshal([]byte(attachments), &encoded); err != nil {
		return nil, fmt.Errorf("post %s/%s: decoding attachments: %w", service, id, err)
	}
	for _, enc := range encoded {
		var a FileRef
		if err := json.Unmarshal([]byte(enc), &a); err != nil {
			return nil, fmt.Errorf("post %s/%s: decoding attachment: %w", service, id, err)
		}
		p.Attachments = append(p.Attachments, a)
	}
	return &p, nil
}

func (d *DB) PostExists(ctx context.Context, service, user, id string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE service = ? AND user_id = ? AND id = ?", service, user, id).Scan(&n)
	return n > 0, err
}

func (d *DB) CountPosts(ctx context.Context, service, user string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE service = ? AND user_id = ?", service, user).Scan(&n)
	return n, err
}

// FlagPost marks a post for reimport on the next run.
func (d *DB) FlagPost(ctx context.Context, service, user, id string) error {
	_, err := d.sql.ExecContext(ctx, "INSERT OR IGNORE INTO post_flags(service, user_id, id, flagged_at) VALUES(?,?,?,?)", service, user, id, formatTime(time.Now()))
	return err
}

func (d *DB) PostFlagged(ctx context.Context, service, user, id string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM post_flags WHERE service = ? AND user_id = ? AND id = ?", service, user, id).Scan(&n)
	return n > 0, err
}

func (d *DB) ClearPostFlag(ctx context.Context, service, user, id string) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM post_flags WHERE service = ? AND user_id = ? AND id = ?", service, user, id)
	return err
}

// MoveToBackup copies the stored post into posts_backup and removes it from
// posts, in one transaction.
func (d *DB) MoveToBackup(ctx context.Context, service, user, id string) (h BackupHandle, err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO posts_backup(backed_up_at, `+postColumns+`)
SELECT ?, `+postColumns+` FROM posts WHERE service = ? AND user_id = ? AND id = ?`, formatTime(time.Now()), service, user, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		err = fmt.Errorf("backup %s/%s/%s: %w", service, user, id, ErrNotFound)
		return 0, err
	}
	backupID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM posts WHERE service = ? AND user_id = ? AND id = ?", service, user, id); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return BackupHandle(backupID), nil
}

func (d *DB) DiscardBackup(ctx context.Context, h BackupHandle) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM posts_backup WHERE backup_id = ?", int64(h))
	return err
}

// RestoreFromBackup puts the backed up version back in place of whatever is
// currently stored for the post and drops the backup.
func (d *DB) RestoreFromBackup(ctx context.Context, service, user, id string, h BackupHandle) (err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM posts WHERE service = ? AND id = ?", service, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO posts(`+postColumns+`)
SELECT `+postColumns+` FROM posts_backup WHERE backup_id = ? AND service = ? AND user_id = ? AND id = ?`, int64(h), service, user, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("restore %s/%s/%s from backup %d: %w", service, user, id, h, ErrNotFound)
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM posts_backup WHERE backup_id = ?", int64(h)); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) CountBackups(ctx context.Context, service, id string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts_backup WHERE service = ? AND id = ?", service, id).Scan(&n)
	return n, err
}

// GetStats returns archive counts per service.
func (d *DB) GetStats(ctx context.Context) ([]ServiceStats, error) {
	query := `
		SELECT
			s.service,
			(SELECT COUNT(*) FROM artists a WHERE a.service = s.service),
			(SELECT COUNT(*) FROM posts p WHERE p.service = s.service),
			(SELECT COUNT(*) FROM comments c WHERE c.service = s.service)
		FROM
			(SELECT service FROM posts UNION SELECT service FROM artists UNION SELECT service FROM comments) s
		ORDER BY
			s.service;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ServiceStats
	for rows.Next() {
		var s ServiceStats
		if err := rows.Scan(&s.Service, &s.ArtistCount, &s.PostCount, &s.CommentCount); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
