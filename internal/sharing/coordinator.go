package sharing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/blobstore"
	"github.com/hide-yama/file-share/internal/password"
	"github.com/hide-yama/file-share/internal/registry"
	"github.com/hide-yama/file-share/internal/security"
)

// rollbackTimeout bounds compensation after the request context is gone.
const rollbackTimeout = 30 * time.Second

// FileSpec is a declared file: what the client says it will send.
type FileSpec struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"type"`
}

// IncomingFile is a declared file together with its bytes.
type IncomingFile struct {
	FileSpec
	Body io.Reader
}

// UploadRequest is a synchronous upload of a whole batch.
type UploadRequest struct {
	Name  string
	Files []IncomingFile
}

// ReserveRequest registers a batch whose bytes the client will PUT
// directly to blob storage.
type ReserveRequest struct {
	Name  string     `json:"name"`
	Files []FileSpec `json:"files"`
}

// FileDescriptor tells the uploader how to reach one stored file.
type FileDescriptor struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ContentType  string `json:"contentType"`
	StorageKey   string `json:"-"`
	DownloadPath string `json:"downloadPath"`
	UploadURL    string `json:"uploadUrl,omitempty"`
}

// UploadResult is returned once per accepted batch. Password is only set
// when the project is created; it cannot be recovered later.
type UploadResult struct {
	ProjectID uuid.UUID        `json:"projectId"`
	Name      string           `json:"name"`
	Password  string           `json:"password,omitempty"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Files     []FileDescriptor `json:"files"`
}

// CoordinatorOptions configure a Coordinator.
type CoordinatorOptions struct {
	Policy       security.Policy
	Retention    time.Duration
	BcryptCost   int
	UploadURLTTL time.Duration
	Attempts     AttemptPolicy
	Now          func() time.Time
	Logger       *zap.Logger
}

// Coordinator admits upload batches. A batch becomes a project with all of
// its files or leaves nothing behind.
type Coordinator struct {
	reg      registry.Registry
	blobs    blobstore.Store
	opts     CoordinatorOptions
	attempts attemptGuard
	log      *zap.Logger
}

// NewCoordinator wires a coordinator to its stores.
func NewCoordinator(reg registry.Registry, blobs blobstore.Store, opts CoordinatorOptions) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.UploadURLTTL <= 0 {
		opts.UploadURLTTL = time.Hour
	}
	return &Coordinator{
		reg:      reg,
		blobs:    blobs,
		opts:     opts,
		attempts: attemptGuard{policy: opts.Attempts, log: opts.Logger},
		log:      opts.Logger,
	}
}

// Upload validates the batch, registers it and stores every blob.
func (c *Coordinator) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	specs := make([]FileSpec, len(req.Files))
	for i, f := range req.Files {
		specs[i] = f.FileSpec
	}
	names, total, err := c.validate(specs)
	if err != nil {
		return nil, err
	}
	for _, f := range req.Files {
		if f.Body == nil {
			return nil, invalid(f.Name, "missing file content")
		}
	}

	p, pw, files, err := c.register(ctx, req.Name, specs, names, total)
	if err != nil {
		return nil, err
	}

	stored := make([]string, 0, len(files))
	for i, f := range files {
		if err := c.blobs.Put(ctx, f.StorageKey, req.Files[i].Body, f.Size, f.ContentType); err != nil {
			// The failed key may hold a partial object.
			c.rollback(ctx, p.ID, append(stored, f.StorageKey))
			return nil, depErr("store "+f.Name, err)
		}
		stored = append(stored, f.StorageKey)
	}

	if err := c.reg.ActivateProject(ctx, p.ID); err != nil {
		c.rollback(ctx, p.ID, stored)
		return nil, depErr("activate project", err)
	}

	c.log.Info("project created",
		zap.String("project_id", p.ID.String()),
		zap.Int("files", len(files)),
		zap.Int64("bytes", total),
	)
	return c.result(p, pw, files, nil), nil
}

// Reserve validates and registers the batch as a pending project and
// returns one presigned PUT URL per file. The project is not served until
// Complete succeeds.
func (c *Coordinator) Reserve(ctx context.Context, req ReserveRequest) (*UploadResult, error) {
	names, total, err := c.validate(req.Files)
	if err != nil {
		return nil, err
	}

	p, pw, files, err := c.register(ctx, req.Name, req.Files, names, total)
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(files))
	for i, f := range files {
		u, err := c.blobs.SignUpload(ctx, f.StorageKey, c.opts.UploadURLTTL, f.ContentType)
		if err != nil {
			c.rollback(ctx, p.ID, nil)
			return nil, depErr("sign upload "+f.Name, err)
		}
		urls[i] = u
	}

	c.log.Info("project reserved",
		zap.String("project_id", p.ID.String()),
		zap.Int("files", len(files)),
	)
	return c.result(p, pw, files, urls), nil
}

// Complete checks that every reserved blob arrived with its declared size
// and makes the project servable. Any missing or mismatched blob rolls the
// whole project back. Only ProjectID, Password and RemoteAddr of req are
// used; password failures count against the attempt policy.
func (c *Coordinator) Complete(ctx context.Context, req AccessRequest) (*UploadResult, error) {
	key := c.attempts.key(req.ProjectID, req.RemoteAddr)
	if err := c.attempts.check(ctx, key); err != nil {
		return nil, err
	}
	if !password.Valid(req.Password) {
		return nil, invalid("", "invalid password format")
	}
	id, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return nil, ErrNotFound
	}

	p, err := c.reg.GetProject(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, depErr("get project", err)
	}
	if p.Status != registry.StatusPending || p.Deleted() {
		return nil, ErrNotFound
	}
	if !password.Compare(p.PasswordHash, req.Password) {
		c.attempts.failure(ctx, key)
		return nil, ErrUnauthorized
	}
	c.attempts.success(ctx, key)
	if p.Expired(c.opts.Now()) {
		return nil, ErrGone
	}

	files, err := c.reg.ListFiles(ctx, id)
	if err != nil {
		return nil, depErr("list files", err)
	}

	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = f.StorageKey
	}

	var issues []Issue
	for _, f := range files {
		info, err := c.blobs.Stat(ctx, f.StorageKey)
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
			issues = append(issues, Issue{File: f.Name, Reason: "not uploaded"})
		case err != nil:
			c.abandon(ctx, id, keys)
			return nil, depErr("stat "+f.Name, err)
		case info.Size != f.Size:
			issues = append(issues, Issue{
				File:   f.Name,
				Reason: fmt.Sprintf("size mismatch: declared %d, stored %d", f.Size, info.Size),
			})
		}
	}
	if len(issues) > 0 {
		c.abandon(ctx, id, keys)
		return nil, &ValidationError{Issues: issues}
	}

	if err := c.reg.ActivateProject(ctx, id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// A concurrent Complete got there first. Its outcome stands.
			return c.completedElsewhere(ctx, id, files)
		}
		c.rollback(ctx, id, keys)
		return nil, depErr("activate project", err)
	}

	c.log.Info("project completed", zap.String("project_id", id.String()), zap.Int("files", len(files)))
	return c.result(p, "", files, nil), nil
}

// validate applies the policy to the whole batch and returns the unique
// sanitized names and the total size. Every violation is reported.
func (c *Coordinator) validate(specs []FileSpec) ([]string, int64, error) {
	pol := c.opts.Policy
	if len(specs) == 0 {
		return nil, 0, invalid("", "no files")
	}
	if !pol.IsFileCountAllowed(len(specs)) {
		return nil, 0, invalid("", fmt.Sprintf("too many files: %d (max %d)", len(specs), pol.MaxFiles))
	}

	var (
		issues []Issue
		total  int64
		names  = make([]string, len(specs))
		used   = make(map[string]bool, len(specs))
	)
	for i, f := range specs {
		switch {
		case !pol.IsFileSizeAllowed(f.Size):
			issues = append(issues, Issue{File: f.Name, Reason: fmt.Sprintf("file size %d not within 1..%d bytes", f.Size, pol.MaxFileSize)})
		case !pol.IsFileAllowed(f.Name, f.ContentType):
			issues = append(issues, Issue{File: f.Name, Reason: "file type not allowed"})
		case !pol.IsProjectSizeAllowed(total, f.Size):
			issues = append(issues, Issue{File: f.Name, Reason: fmt.Sprintf("project size limit of %d bytes exceeded", pol.MaxProjectSize)})
		default:
			total += f.Size
			names[i] = uniqueName(security.SanitizeFilename(f.Name), used)
		}
	}
	if len(issues) > 0 {
		return nil, 0, &ValidationError{Issues: issues}
	}
	return names, total, nil
}

// register creates the pending project and its file rows.
func (c *Coordinator) register(ctx context.Context, name string, specs []FileSpec, names []string, total int64) (*registry.Project, string, []registry.File, error) {
	pw, err := password.Generate()
	if err != nil {
		return nil, "", nil, depErr("generate password", err)
	}
	hash, err := password.Hash(pw, c.opts.BcryptCost)
	if err != nil {
		return nil, "", nil, depErr("hash password", err)
	}

	now := c.opts.Now().UTC()
	p := &registry.Project{
		ID:           uuid.New(),
		Name:         projectName(name, now),
		PasswordHash: hash,
		Status:       registry.StatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.opts.Retention),
		TotalSize:    total,
	}

	files := make([]registry.File, len(specs))
	for i, s := range specs {
		files[i] = registry.File{
			ID:          uuid.New(),
			ProjectID:   p.ID,
			Name:        names[i],
			Size:        s.Size,
			ContentType: s.ContentType,
			StorageKey:  registry.StorageKey(p.ID, names[i]),
			CreatedAt:   now,
		}
	}

	if err := c.reg.CreateProject(ctx, p); err != nil {
		return nil, "", nil, depErr("create project", err)
	}
	if err := c.reg.CreateFiles(ctx, files); err != nil {
		c.rollback(ctx, p.ID, nil)
		return nil, "", nil, depErr("create files", err)
	}
	return p, pw, files, nil
}

// completedElsewhere reports the result of a Complete that lost the race to
// activate id. It never compensates: the project belongs to the winner.
func (c *Coordinator) completedElsewhere(ctx context.Context, id uuid.UUID, files []registry.File) (*UploadResult, error) {
	p, err := c.reg.GetProject(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, depErr("get project", err)
	}
	if p.Status != registry.StatusReady || p.Deleted() {
		return nil, ErrNotFound
	}
	c.log.Info("project already completed", zap.String("project_id", id.String()))
	return c.result(p, "", files, nil), nil
}

// abandon rolls back a reserved project that failed completion, unless a
// concurrent Complete has activated it in the meantime.
func (c *Coordinator) abandon(ctx context.Context, id uuid.UUID, keys []string) {
	p, err := c.reg.GetProject(ctx, id)
	if err == nil && p.Status == registry.StatusReady {
		c.log.Info("completion failed after activation elsewhere, keeping project",
			zap.String("project_id", id.String()))
		return
	}
	c.rollback(ctx, id, keys)
}

// rollback removes stored blobs and the project rows. It keeps going after
// the request context is cancelled, since a timeout is one of the failures
// it compensates for.
func (c *Coordinator) rollback(ctx context.Context, id uuid.UUID, keys []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	log := c.log.With(zap.String("project_id", id.String()))
	if len(keys) > 0 {
		for key, err := range c.blobs.Delete(ctx, keys) {
			if err != nil {
				log.Warn("rollback: blob delete failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	if err := c.reg.DeleteProject(ctx, id); err != nil && !errors.Is(err, registry.ErrNotFound) {
		log.Error("rollback: project delete failed", zap.Error(err))
		return
	}
	log.Warn("upload rolled back", zap.Int("blobs", len(keys)))
}

func (c *Coordinator) result(p *registry.Project, pw string, files []registry.File, uploadURLs []string) *UploadResult {
	res := &UploadResult{
		ProjectID: p.ID,
		Name:      p.Name,
		Password:  pw,
		ExpiresAt: p.ExpiresAt,
		Files:     make([]FileDescriptor, len(files)),
	}
	for i, f := range files {
		res.Files[i] = FileDescriptor{
			Name:         f.Name,
			Size:         f.Size,
			ContentType:  f.ContentType,
			StorageKey:   f.StorageKey,
			DownloadPath: DownloadPath(p.ID, f.Name),
		}
		if uploadURLs != nil {
			res.Files[i].UploadURL = uploadURLs[i]
		}
	}
	return res
}

// DownloadPath is the service path that serves one file.
func DownloadPath(projectID uuid.UUID, name string) string {
	return "/download/" + projectID.String() + "/" + url.PathEscape(name)
}

func projectName(requested string, now time.Time) string {
	if name := security.CleanDisplayName(requested); name != "" {
		return name
	}
	return "share_" + now.UTC().Format("2006-01-02_15-04")
}

// uniqueName suffixes -2, -3, ... before the extension until name is unused
// in the batch.
func uniqueName(name string, used map[string]bool) string {
	if !used[name] {
		used[name] = true
		return name
	}
	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i:]
	}
	for n := 2; ; n++ {
		cand := base + "-" + strconv.Itoa(n) + ext
		if !used[cand] {
			used[cand] = true
			return cand
		}
	}
}
