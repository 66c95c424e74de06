package sharing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/blobstore"
	"github.com/hide-yama/file-share/internal/registry"
)

// Reap modes.
const (
	ModePreview = "preview"
	ModeExecute = "execute"
)

// ReapedProject is one project in a ReapSummary.
type ReapedProject struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	ExpiredAt      time.Time `json:"expiredAt"`
	FilesCount     int       `json:"filesCount"`
	FilesDeleted   int       `json:"filesDeleted"`
	BytesReclaimed int64     `json:"bytesReclaimed"`
}

// ReapSummary has the same shape for preview and execute runs. In preview
// the deleted and reclaimed figures are what an execute run would do.
type ReapSummary struct {
	Mode              string          `json:"mode"`
	RanAt             time.Time       `json:"ranAt"`
	ProjectsProcessed int             `json:"projectsProcessed"`
	FilesDeleted      int             `json:"filesDeleted"`
	BytesReclaimed    int64           `json:"bytesReclaimed"`
	FileFailures      int             `json:"fileFailures"`
	ProjectFailures   int             `json:"projectFailures"`
	Skipped           int             `json:"skipped"`
	Projects          []ReapedProject `json:"projects"`
}

// ReaperOptions configure a Reaper.
type ReaperOptions struct {
	Now    func() time.Time
	Logger *zap.Logger
}

// Reaper removes expired projects.
type Reaper struct {
	reg   registry.Registry
	blobs blobstore.Store
	now   func() time.Time
	log   *zap.Logger
}

// NewReaper wires a reaper to its stores.
func NewReaper(reg registry.Registry, blobs blobstore.Store, opts ReaperOptions) *Reaper {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Reaper{reg: reg, blobs: blobs, now: opts.Now, log: opts.Logger}
}

// Preview reports what Execute would remove without changing anything.
func (r *Reaper) Preview(ctx context.Context) (*ReapSummary, error) {
	now := r.now().UTC()
	expired, err := r.reg.ListExpired(ctx, now)
	if err != nil {
		return nil, depErr("list expired", err)
	}

	sum := &ReapSummary{Mode: ModePreview, RanAt: now, Projects: []ReapedProject{}}
	for _, ep := range expired {
		rp := ReapedProject{
			ID:           ep.ID,
			Name:         ep.Name,
			ExpiredAt:    ep.ExpiresAt,
			FilesCount:   len(ep.Files),
			FilesDeleted: len(ep.Files),
		}
		for _, f := range ep.Files {
			rp.BytesReclaimed += f.Size
		}
		sum.add(rp)
	}
	return sum, nil
}

// Execute deletes the blobs of every expired project and marks it deleted.
// Projects are handled independently; failures are counted, not returned.
// A project that a concurrent run already marked is counted as skipped.
func (r *Reaper) Execute(ctx context.Context) (*ReapSummary, error) {
	now := r.now().UTC()
	expired, err := r.reg.ListExpired(ctx, now)
	if err != nil {
		return nil, depErr("list expired", err)
	}

	sum := &ReapSummary{Mode: ModeExecute, RanAt: now, Projects: []ReapedProject{}}
	for _, ep := range expired {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		r.reapProject(ctx, ep, now, sum)
	}

	r.log.Info("reaper run finished",
		zap.Int("projects", sum.ProjectsProcessed),
		zap.Int("files", sum.FilesDeleted),
		zap.Int64("bytes", sum.BytesReclaimed),
		zap.Int("file_failures", sum.FileFailures),
		zap.Int("project_failures", sum.ProjectFailures),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

func (r *Reaper) reapProject(ctx context.Context, ep registry.ExpiredProject, now time.Time, sum *ReapSummary) {
	log := r.log.With(zap.String("project_id", ep.ID.String()))
	rp := ReapedProject{
		ID:         ep.ID,
		Name:       ep.Name,
		ExpiredAt:  ep.ExpiresAt,
		FilesCount: len(ep.Files),
	}

	keys := make([]string, len(ep.Files))
	for i, f := range ep.Files {
		keys[i] = f.StorageKey
	}
	results := r.blobs.Delete(ctx, keys)

	for _, f := range ep.Files {
		if err := results[f.StorageKey]; err != nil {
			sum.FileFailures++
			log.Warn("blob delete failed", zap.String("file", f.Name), zap.Error(err))
			continue
		}
		rp.FilesDeleted++
		rp.BytesReclaimed += f.Size
		if err := r.reg.MarkFilePurged(ctx, f.ID, now); err != nil {
			log.Warn("mark file purged failed", zap.String("file", f.Name), zap.Error(err))
		}
	}

	// The project stops being servable even when some blobs remain.
	marked, err := r.reg.MarkProjectDeleted(ctx, ep.ID, now, rp.BytesReclaimed)
	if err != nil {
		sum.ProjectFailures++
		log.Error("mark project deleted failed", zap.Error(err))
		return
	}
	if !marked {
		sum.Skipped++
		return
	}
	sum.add(rp)
}

func (s *ReapSummary) add(rp ReapedProject) {
	s.ProjectsProcessed++
	s.FilesDeleted += rp.FilesDeleted
	s.BytesReclaimed += rp.BytesReclaimed
	s.Projects = append(s.Projects, rp)
}
