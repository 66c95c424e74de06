package registry

import (
	"time"

	"github.com/google/uuid"
)

// Status is the upload state of a project.
type Status string

const (
	// StatusPending marks a project whose files were reserved for a direct
	// upload that has not been completed yet. Pending projects are never served.
	StatusPending Status = "pending"
	// StatusReady marks a project whose blobs are all stored.
	StatusReady Status = "ready"
)

// Project is a password-protected, time-limited bundle of files.
//
// DeletedAt and ReclaimedBytes are separate facts: DeletedAt means "no
// longer servable", ReclaimedBytes counts what was actually removed from
// the blob store.
type Project struct {
	ID             uuid.UUID
	Name           string
	PasswordHash   string
	Status         Status
	CreatedAt      time.Time
	ExpiresAt      time.Time
	TotalSize      int64
	DeletedAt      *time.Time
	ReclaimedBytes int64
}

// Deleted reports whether the project has been soft-deleted.
func (p *Project) Deleted() bool {
	return p.DeletedAt != nil
}

// Expired reports whether now is strictly after the expiry timestamp.
func (p *Project) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// File is one stored blob of a project.
type File struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Name        string
	Size        int64
	ContentType string
	StorageKey  string
	CreatedAt   time.Time
	PurgedAt    *time.Time
}

// StorageKey derives the blob key for a sanitized file name.
func StorageKey(projectID uuid.UUID, name string) string {
	return projectID.String() + "/" + name
}

// AccessAction names what a granted access did.
type AccessAction string

const (
	ActionList      AccessAction = "list"
	ActionDownload  AccessAction = "download"
	ActionSignedURL AccessAction = "signed_url"
)

// AccessLogEntry is one append-only audit record of a granted read.
type AccessLogEntry struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	Action     AccessAction
	FileName   string
	RemoteAddr string
	UserAgent  string
	At         time.Time
}

// ExpiredProject is a reaper work item: a live project past its expiry
// together with the files that still have blobs.
type ExpiredProject struct {
	Project
	Files []File
}
