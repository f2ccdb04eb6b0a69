package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	State() StateStore
	Archive() ArchiveStore
}

// StateStore persists opaque state blobs under well-known keys.
// Load returns ErrNotFound when nothing has been saved under key yet.
type StateStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// ArchiveStore keeps finished treatment sessions.
type ArchiveStore interface {
	Record(ctx context.Context, session FinishedSession) error
	Get(ctx context.Context, id string) (*FinishedSession, error)
	List(ctx context.Context, filter ArchiveFilter) ([]FinishedSession, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ArchiveFilter defines criteria for querying finished sessions.
// Results are ordered by EndedAt, newest first.
type ArchiveFilter struct {
	PractitionerID string
	PatientID      string
	Since          *time.Time
	Until          *time.Time
	Limit          int
}

// DefaultArchiveLimit caps List results when the filter does not set a limit.
const DefaultArchiveLimit = 100

// EffectiveLimit returns the filter limit, falling back to DefaultArchiveLimit.
func (f ArchiveFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultArchiveLimit
	}
	return f.Limit
}

// Matches reports whether a finished session satisfies the filter (limit aside).
func (f ArchiveFilter) Matches(s FinishedSession) bool {
	if f.PractitionerID != "" && s.PractitionerID != f.PractitionerID {
		return false
	}
	if f.PatientID != "" && s.PatientID != f.PatientID {
		return false
	}
	if f.Since != nil && s.EndedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && s.EndedAt.After(*f.Until) {
		return false
	}
	return true
}
