package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (d *DB) CommentExists(ctx context.Context, service, commenter, id string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments WHERE service = ? AND commenter = ? AND id = ?", service, commenter, id).Scan(&n)
	return n > 0, err
}

// InsertComment stores a new comment. Comments are never updated.
func (d *DB) InsertComment(ctx context.Context, c *Comment) error {
	added := c.Added
	if added.IsZero() {
		added = time.Now()
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO comments(id, post_id, parent_id, commenter, service, content, added, published) VALUES(?,?,?,?,?,?,?,?)`,
		c.ID, c.PostID, nullString(c.ParentID), c.Commenter, c.Service, c.Content, formatTime(added), nullTime(c.Published))
	if err != nil {
		return fmt.Errorf("insert comment %s/%s: %w", c.Service, c.ID, err)
	}
	return nil
}

// ListComments returns the comments of a post in insertion order.
func (d *DB) ListComments(ctx context.Context, service, postID string) ([]Comment, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT id, post_id, parent_id, commenter, service, content, added, published FROM comments WHERE service = ? AND post_id = ? ORDER BY rowid", service, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		var parent, published sql.NullString
		var added string
		if err := rows.Scan(&c.ID, &c.PostID, &parent, &c.Commenter, &c.Service, &c.Content, &added, &published); err != nil {
			return nil, err
		}
		if parent.Valid {
			p := parent.String
			c.ParentID = &p
		}
		c.Added = parseTime(added)
		c.Published = parseNullTime(published)
		out = append(out, c)
	}
	return out, rows.Err()
}
