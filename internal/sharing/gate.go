package sharing

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/blobstore"
	"github.com/hide-yama/file-share/internal/password"
	"github.com/hide-yama/file-share/internal/registry"
)

// State is a step of the access check. Steps run in declaration order and
// the first failing step ends the check.
type State int

const (
	StatePending State = iota
	StatePasswordFormatChecked
	StateProjectFound
	StateNotDeleted
	StateNotExpired
	StatePasswordMatched
	StateGranted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePasswordFormatChecked:
		return "password_format_checked"
	case StateProjectFound:
		return "project_found"
	case StateNotDeleted:
		return "not_deleted"
	case StateNotExpired:
		return "not_expired"
	case StatePasswordMatched:
		return "password_matched"
	case StateGranted:
		return "granted"
	}
	return "unknown"
}

// AttemptPolicy limits failed password attempts. Check returns a non-zero
// unlock time while a key is locked.
type AttemptPolicy interface {
	Check(ctx context.Context, key string) (time.Time, error)
	Failure(ctx context.Context, key string) (time.Time, error)
	Success(ctx context.Context, key string) error
}

// AccessRequest is one attempt to read a project. Either Password or Token
// is set; a token is only accepted for the file it was issued for.
type AccessRequest struct {
	ProjectID  string
	Password   string
	Token      string
	RemoteAddr string
	UserAgent  string
}

// Decision records how far an access check got.
type Decision struct {
	State   State
	Project *registry.Project
}

// ListedFile is one entry of a Listing.
type ListedFile struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ContentType  string `json:"contentType"`
	DownloadPath string `json:"downloadPath"`
}

// Listing is what a granted project request returns.
type Listing struct {
	ProjectID uuid.UUID    `json:"projectId"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"createdAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
	TotalSize int64        `json:"totalSize"`
	Files     []ListedFile `json:"files"`
}

// Download is an open file stream. The caller must close Body.
type Download struct {
	File registry.File
	Body io.ReadCloser
}

// SignedDownload is a direct blob-store link.
type SignedDownload struct {
	URL       string `json:"url"`
	FileName  string `json:"fileName"`
	ExpiresIn int64  `json:"expiresIn"`
}

// GateOptions configure a Gate.
type GateOptions struct {
	SignedURLTTL time.Duration
	Tokens       *TokenIssuer
	Attempts     AttemptPolicy
	Now          func() time.Time
	Logger       *zap.Logger
}

// Gate decides every read of a project.
type Gate struct {
	reg      registry.Registry
	blobs    blobstore.Store
	opts     GateOptions
	attempts attemptGuard
	log      *zap.Logger
}

// NewGate wires a gate to its stores. Attempts and Tokens are optional.
func NewGate(reg registry.Registry, blobs blobstore.Store, opts GateOptions) *Gate {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = time.Hour
	}
	return &Gate{
		reg:      reg,
		blobs:    blobs,
		opts:     opts,
		attempts: attemptGuard{policy: opts.Attempts, log: opts.Logger},
		log:      opts.Logger,
	}
}

// Authorize runs the password check for req. The returned Decision is
// never nil and shows the last state reached.
func (g *Gate) Authorize(ctx context.Context, req AccessRequest) (*Decision, error) {
	d := &Decision{State: StatePending}
	key := g.attempts.key(req.ProjectID, req.RemoteAddr)
	if err := g.attempts.check(ctx, key); err != nil {
		return d, err
	}

	if !password.Valid(req.Password) {
		return d, invalid("", "invalid password format")
	}
	d.State = StatePasswordFormatChecked

	p, state, err := g.checkProject(ctx, req.ProjectID)
	d.Project = p
	if state > d.State {
		d.State = state
	}
	if err != nil {
		return d, err
	}

	if !password.Compare(p.PasswordHash, req.Password) {
		g.attempts.failure(ctx, key)
		return d, ErrUnauthorized
	}
	d.State = StatePasswordMatched

	g.attempts.success(ctx, key)
	d.State = StateGranted
	return d, nil
}

// AuthorizeToken grants access to filename with a download token instead
// of the password. Project state is checked again since the project may
// have expired after the token was issued.
func (g *Gate) AuthorizeToken(ctx context.Context, req AccessRequest, filename string) (*Decision, error) {
	d := &Decision{State: StatePending}
	if g.opts.Tokens == nil {
		return d, ErrUnauthorized
	}
	claims, err := g.opts.Tokens.Verify(req.Token)
	if err != nil || claims.Subject != req.ProjectID || claims.File != filename {
		return d, ErrUnauthorized
	}
	d.State = StatePasswordFormatChecked

	p, state, err := g.checkProject(ctx, req.ProjectID)
	d.Project = p
	if state > d.State {
		d.State = state
	}
	if err != nil {
		return d, err
	}
	d.State = StateGranted
	return d, nil
}

// checkProject runs the found, not-deleted and not-expired steps and
// returns the last state passed.
func (g *Gate) checkProject(ctx context.Context, rawID string) (*registry.Project, State, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, StatePasswordFormatChecked, ErrNotFound
	}
	p, err := g.reg.GetProject(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, StatePasswordFormatChecked, ErrNotFound
	}
	if err != nil {
		return nil, StatePasswordFormatChecked, depErr("get project", err)
	}
	// Reserved direct uploads are invisible until completed.
	if p.Status != registry.StatusReady {
		return nil, StatePasswordFormatChecked, ErrNotFound
	}
	if p.Deleted() {
		return p, StateProjectFound, ErrGone
	}
	if p.Expired(g.opts.Now()) {
		return p, StateNotDeleted, ErrGone
	}
	return p, StateNotExpired, nil
}

func (g *Gate) authorize(ctx context.Context, req AccessRequest, filename string) (*Decision, error) {
	if req.Token != "" {
		return g.AuthorizeToken(ctx, req, filename)
	}
	return g.Authorize(ctx, req)
}

// List returns the project's files, each linked with a download token when
// a token issuer is configured.
func (g *Gate) List(ctx context.Context, req AccessRequest) (*Listing, error) {
	d, err := g.Authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	p := d.Project

	files, err := g.reg.ListFiles(ctx, p.ID)
	if err != nil {
		return nil, depErr("list files", err)
	}

	out := &Listing{
		ProjectID: p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
		TotalSize: p.TotalSize,
		Files:     make([]ListedFile, 0, len(files)),
	}
	for _, f := range files {
		path := DownloadPath(p.ID, f.Name)
		if g.opts.Tokens != nil {
			tok, err := g.opts.Tokens.Issue(p.ID, f.Name, p.ExpiresAt)
			if err != nil {
				return nil, depErr("issue token", err)
			}
			path += "?token=" + tok
		}
		out.Files = append(out.Files, ListedFile{
			Name:         f.Name,
			Size:         f.Size,
			ContentType:  f.ContentType,
			DownloadPath: path,
		})
	}

	g.logAccess(ctx, p.ID, registry.ActionList, "", req)
	return out, nil
}

// Open streams one file.
func (g *Gate) Open(ctx context.Context, req AccessRequest, filename string) (*Download, error) {
	d, err := g.authorize(ctx, req, filename)
	if err != nil {
		return nil, err
	}
	f, err := g.file(ctx, d.Project, filename)
	if err != nil {
		return nil, err
	}

	body, _, err := g.blobs.Get(ctx, f.StorageKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, depErr("get blob", err)
	}

	g.logAccess(ctx, d.Project.ID, registry.ActionDownload, f.Name, req)
	return &Download{File: *f, Body: body}, nil
}

// SignedURL returns a time-limited direct link to one file.
func (g *Gate) SignedURL(ctx context.Context, req AccessRequest, filename string) (*SignedDownload, error) {
	d, err := g.authorize(ctx, req, filename)
	if err != nil {
		return nil, err
	}
	f, err := g.file(ctx, d.Project, filename)
	if err != nil {
		return nil, err
	}

	u, err := g.blobs.Sign(ctx, f.StorageKey, g.opts.SignedURLTTL, true)
	if err != nil {
		return nil, depErr("sign url", err)
	}

	g.logAccess(ctx, d.Project.ID, registry.ActionSignedURL, f.Name, req)
	return &SignedDownload{
		URL:       u,
		FileName:  f.Name,
		ExpiresIn: int64(g.opts.SignedURLTTL / time.Second),
	}, nil
}

func (g *Gate) file(ctx context.Context, p *registry.Project, name string) (*registry.File, error) {
	f, err := g.reg.GetFile(ctx, p.ID, name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, depErr("get file", err)
	}
	if f.PurgedAt != nil {
		return nil, ErrGone
	}
	return f, nil
}

// logAccess appends an audit entry. A failure is logged and otherwise
// ignored.
func (g *Gate) logAccess(ctx context.Context, id uuid.UUID, action registry.AccessAction, file string, req AccessRequest) {
	err := g.reg.AppendAccessLog(ctx, registry.AccessLogEntry{
		ProjectID:  id,
		Action:     action,
		FileName:   file,
		RemoteAddr: req.RemoteAddr,
		UserAgent:  req.UserAgent,
		At:         g.opts.Now().UTC(),
	})
	if err != nil {
		g.log.Warn("access log append failed",
			zap.String("project_id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}
