package storage

import (
	"encoding/json"
	"time"
)

// FileRef points at a materialized file, relative to the download root.
type FileRef struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// Post is the normalized record kept for every imported content item.
// Identity is (ID, Service).
type Post struct {
	ID          string
	User        string
	Service     string
	Title       string
	Content     string
	Embed       json.RawMessage
	SharedFile  bool
	Added       time.Time
	Published   *time.Time
	Edited      *time.Time
	File        *FileRef
	Attachments []FileRef
}

// Comment belongs to a post; ParentID is nil for top level comments.
type Comment struct {
	ID        string
	PostID    string
	ParentID  *string
	Commenter string
	Service   string
	Content   string
	Added     time.Time
	Published *time.Time
}

// BackupHandle identifies a post version moved aside before a reimport.
type BackupHandle int64

// Artist is one row of the artist directory.
type Artist struct {
	ID      string
	Service string
	Name    string
	Indexed time.Time
	Updated time.Time
}

// LogLine is a client-visible message emitted by an import job.
type LogLine struct {
	ImportID  string    `json:"import_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceStats summarizes the archive per service.
type ServiceStats struct {
	Service      string `json:"service"`
	ArtistCount  int    `json:"artists"`
	PostCount    int    `json:"posts"`
	CommentCount int    `json:"comments"`
}
