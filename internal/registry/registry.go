// Package registry is the metadata store for projects, their files and the
// access audit trail.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a project or file does not exist.
	ErrNotFound = errors.New("registry: not found")
	// ErrConflict is returned when a row collides with an existing one.
	ErrConflict = errors.New("registry: conflict")
	// ErrInvalid is returned for rows that break a model invariant.
	ErrInvalid = errors.New("registry: invalid record")
)

// Registry is the project metadata store.
type Registry interface {
	// CreateProject inserts a new project. ExpiresAt must be after CreatedAt.
	CreateProject(ctx context.Context, p *Project) error
	// CreateFiles inserts all rows or none.
	CreateFiles(ctx context.Context, files []File) error
	// DeleteProject physically removes a project and its file rows. It is
	// only used to compensate a failed upload; expiry uses MarkProjectDeleted.
	DeleteProject(ctx context.Context, id uuid.UUID) error

	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListFiles(ctx context.Context, projectID uuid.UUID) ([]File, error)
	GetFile(ctx context.Context, projectID uuid.UUID, name string) (*File, error)

	// ActivateProject flips a pending project to ready.
	ActivateProject(ctx context.Context, id uuid.UUID) error

	// ListExpired returns live projects whose expiry is before now, with
	// their not-yet-purged files.
	ListExpired(ctx context.Context, now time.Time) ([]ExpiredProject, error)
	MarkFilePurged(ctx context.Context, fileID uuid.UUID, at time.Time) error
	// MarkProjectDeleted sets the deletion timestamp once. It returns false
	// when the project was already deleted, which makes concurrent reaper
	// runs safe.
	MarkProjectDeleted(ctx context.Context, id uuid.UUID, at time.Time, reclaimed int64) (bool, error)

	AppendAccessLog(ctx context.Context, e AccessLogEntry) error
	AccessLog(ctx context.Context, projectID uuid.UUID) ([]AccessLogEntry, error)

	Ping(ctx context.Context) error
}

func validateProject(p *Project) error {
	if p.ID == uuid.Nil || !p.ExpiresAt.After(p.CreatedAt) {
		return ErrInvalid
	}
	if p.Status != StatusPending && p.Status != StatusReady {
		return ErrInvalid
	}
	return nil
}
