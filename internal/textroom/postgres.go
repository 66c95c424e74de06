package textroom

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const roomColumns = `id, code, content, created_at, updated_at, expires_at`

// Postgres stores rooms in the text_rooms table. Content updates fire the
// text_room_updates notification from a trigger.
type Postgres struct {
	conn *sql.DB
}

// NewPostgres wraps an open pool.
func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{conn: conn}
}

func (s *Postgres) Create(ctx context.Context, r *Room) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO text_rooms (id, code, content, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Code, r.Content, r.CreatedAt, r.UpdatedAt, r.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, code string, now time.Time) (*Room, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM text_rooms WHERE code = $1 AND expires_at > $2`, code, now)
	return scanRoom(row)
}

func (s *Postgres) UpdateContent(ctx context.Context, code, content string, now time.Time) (*Room, error) {
	row := s.conn.QueryRowContext(ctx, `
		UPDATE text_rooms SET content = $2, updated_at = $3
		WHERE code = $1 AND expires_at > $3
		RETURNING `+roomColumns, code, content, now)
	return scanRoom(row)
}

func (s *Postgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM text_rooms WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired rooms: %w", err)
	}
	return res.RowsAffected()
}

func scanRoom(row *sql.Row) (*Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.Code, &r.Content, &r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan room: %w", err)
	}
	return &r, nil
}
