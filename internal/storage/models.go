package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Note is one ingested markdown file: where its backup lives and where the
// object store copy can be read.
type Note struct {
	ID             string    `json:"id"`
	ObjectKey      string    `json:"object_key"`
	PublicURL      string    `json:"public_url"`
	BackupPath     string    `json:"backup_path"`
	BackupMetadata string    `json:"backup_metadata"` // JSON object stored as text
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewNote carries the fields supplied by the caller of CreateNote. ID and
// timestamps are assigned by the store.
type NewNote struct {
	ObjectKey      string
	PublicURL      string
	BackupPath     string
	BackupMetadata string
}
