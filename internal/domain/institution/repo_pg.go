package institution

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosisview/dvserver/internal/platform/db"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, code, name, hidden, created_at`

func scan(row pgx.Row) (*Institution, error) {
	var inst Institution
	if err := row.Scan(&inst.ID, &inst.Code, &inst.Name, &inst.Hidden, &inst.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("institution: %w", apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &inst, nil
}

func (r *repoPG) Create(ctx context.Context, inst *Institution) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO institution (id, code, name, hidden)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		inst.ID, inst.Code, inst.Name, inst.Hidden).Scan(&inst.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: institution %q already exists", apperrors.ErrConflict, inst.Code)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Institution, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM institution WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Institution, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM institution WHERE code = $1`, code))
}

func (r *repoPG) Update(ctx context.Context, inst *Institution) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE institution SET code = $2, name = $3, hidden = $4 WHERE id = $1`,
		inst.ID, inst.Code, inst.Name, inst.Hidden)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("institution %s: %w", inst.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM institution WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("institution %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Institution, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM institution`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM institution ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Institution
	for rows.Next() {
		inst, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inst)
	}
	return items, total, rows.Err()
}
