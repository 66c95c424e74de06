package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hide-yama/file-share/internal/db"
)

const uniqueViolation = "23505"

const projectColumns = `id, name, password_hash, status, created_at, expires_at, total_size, deleted_at, reclaimed_bytes`

const fileColumns = `id, project_id, name, size_bytes, content_type, storage_key, created_at, purged_at`

// Postgres is the Registry backed by PostgreSQL via database/sql.
type Postgres struct {
	conn *sql.DB
}

// NewPostgres wraps an open connection pool. The schema is managed by
// db.RunMigrations.
func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{conn: conn}
}

func (r *Postgres) CreateProject(ctx context.Context, p *Project) error {
	if err := validateProject(p); err != nil {
		return err
	}

	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO projects (id, name, password_hash, status, created_at, expires_at, total_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.PasswordHash, string(p.Status), p.CreatedAt, p.ExpiresAt, p.TotalSize,
	)
	if err != nil {
		return mapWriteErr("insert project", err)
	}
	return nil
}

func (r *Postgres) CreateFiles(ctx context.Context, files []File) error {
	if len(files) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, f := range files {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO files (id, project_id, name, size_bytes, content_type, storage_key, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				f.ID, f.ProjectID, f.Name, f.Size, f.ContentType, f.StorageKey, f.CreatedAt,
			)
			if err != nil {
				return mapWriteErr("insert file "+f.Name, err)
			}
		}
		return nil
	})
}

func (r *Postgres) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return expectOne(res)
}

func (r *Postgres) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)

	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (r *Postgres) ListFiles(ctx context.Context, projectID uuid.UUID) ([]File, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE project_id = $1 ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *Postgres) GetFile(ctx context.Context, projectID uuid.UUID, name string) (*File, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE project_id = $1 AND name = $2`, projectID, name)

	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

func (r *Postgres) ActivateProject(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn.ExecContext(ctx,
		`UPDATE projects SET status = 'ready' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("activate project: %w", err)
	}
	return expectOne(res)
}

func (r *Postgres) ListExpired(ctx context.Context, now time.Time) ([]ExpiredProject, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT p.id, p.name, p.password_hash, p.status, p.created_at, p.expires_at,
		       p.total_size, p.deleted_at, p.reclaimed_bytes,
		       f.id, f.name, f.size_bytes, f.content_type, f.storage_key, f.created_at
		FROM projects p
		LEFT JOIN files f ON f.project_id = p.id AND f.purged_at IS NULL
		WHERE p.expires_at < $1 AND p.deleted_at IS NULL
		ORDER BY p.expires_at, p.id, f.name`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var out []ExpiredProject
	for rows.Next() {
		var (
			p         Project
			status    string
			deletedAt sql.NullTime
			fileID    uuid.NullUUID
			fName     sql.NullString
			fSize     sql.NullInt64
			fType     sql.NullString
			fKey      sql.NullString
			fCreated  sql.NullTime
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &p.PasswordHash, &status, &p.CreatedAt, &p.ExpiresAt,
			&p.TotalSize, &deletedAt, &p.ReclaimedBytes,
			&fileID, &fName, &fSize, &fType, &fKey, &fCreated,
		); err != nil {
			return nil, fmt.Errorf("scan expired: %w", err)
		}
		p.Status = Status(status)
		if deletedAt.Valid {
			t := deletedAt.Time
			p.DeletedAt = &t
		}

		if len(out) == 0 || out[len(out)-1].ID != p.ID {
			out = append(out, ExpiredProject{Project: p})
		}
		if fileID.Valid {
			cur := &out[len(out)-1]
			cur.Files = append(cur.Files, File{
				ID:          fileID.UUID,
				ProjectID:   p.ID,
				Name:        fName.String,
				Size:        fSize.Int64,
				ContentType: fType.String,
				StorageKey:  fKey.String,
				CreatedAt:   fCreated.Time,
			})
		}
	}
	return out, rows.Err()
}

func (r *Postgres) MarkFilePurged(ctx context.Context, fileID uuid.UUID, at time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE files SET purged_at = $2 WHERE id = $1 AND purged_at IS NULL`, fileID, at)
	if err != nil {
		return fmt.Errorf("mark file purged: %w", err)
	}
	return nil
}

func (r *Postgres) MarkProjectDeleted(ctx context.Context, id uuid.UUID, at time.Time, reclaimed int64) (bool, error) {
	res, err := r.conn.ExecContext(ctx, `
		UPDATE projects
		SET deleted_at = $2, reclaimed_bytes = reclaimed_bytes + $3
		WHERE id = $1 AND deleted_at IS NULL`, id, at, reclaimed)
	if err != nil {
		return false, fmt.Errorf("mark project deleted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Postgres) AppendAccessLog(ctx context.Context, e AccessLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO access_logs (id, project_id, action, file_name, remote_addr, user_agent, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ProjectID, string(e.Action), e.FileName, e.RemoteAddr, e.UserAgent, e.At,
	)
	if err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	return nil
}

func (r *Postgres) AccessLog(ctx context.Context, projectID uuid.UUID) ([]AccessLogEntry, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, project_id, action, file_name, remote_addr, user_agent, accessed_at
		FROM access_logs
		WHERE project_id = $1
		ORDER BY accessed_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list access log: %w", err)
	}
	defer rows.Close()

	var out []AccessLogEntry
	for rows.Next() {
		var (
			e      AccessLogEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &action, &e.FileName, &e.RemoteAddr, &e.UserAgent, &e.At); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		e.Action = AccessAction(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Postgres) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*Project, error) {
	var (
		p         Project
		status    string
		deletedAt sql.NullTime
	)
	if err := s.Scan(&p.ID, &p.Name, &p.PasswordHash, &status, &p.CreatedAt, &p.ExpiresAt,
		&p.TotalSize, &deletedAt, &p.ReclaimedBytes); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return &p, nil
}

func scanFile(s scanner) (*File, error) {
	var (
		f        File
		purgedAt sql.NullTime
	)
	if err := s.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Size, &f.ContentType, &f.StorageKey,
		&f.CreatedAt, &purgedAt); err != nil {
		return nil, err
	}
	if purgedAt.Valid {
		t := purgedAt.Time
		f.PurgedAt = &t
	}
	return &f, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
