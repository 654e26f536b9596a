// Package state provides SQLite-based checkpoint persistence.
package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// CheckpointReader handles checkpoint lookup operations.
type CheckpointReader interface {
	GetCheckpoint(threadID string) (*Checkpoint, error)
	ListByUser(userID string) ([]*Checkpoint, error)
}

// CheckpointWriter handles checkpoint mutation operations.
type CheckpointWriter interface {
	SaveCheckpoint(cp *Checkpoint) error
	UpdateStatus(threadID string, status models.WorkflowStatus, lastError string) error
	PurgeOlderThan(olderThan time.Duration) (int64, error)
}

// Migrator handles database schema migrations. Separating this allows
// clients to depend only on migration functionality.
type Migrator interface {
	Migrate() error
}

// CheckpointStore is the interface the session manager and engine work
// against. It composes focused sub-interfaces so callers can depend on
// just what they use.
type CheckpointStore interface {
	io.Closer
	Migrator
	CheckpointReader
	CheckpointWriter
}

// Compile-time verification that DB implements all interfaces.
var (
	_ CheckpointStore  = (*DB)(nil)
	_ CheckpointReader = (*DB)(nil)
	_ CheckpointWriter = (*DB)(nil)
	_ Migrator         = (*DB)(nil)
)
