package logorule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
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

const (
	cols     = `id, starts_with, logo, COALESCE(logo_file_type,''), COALESCE(link_difficulty,''), created_at, updated_at`
	listCols = `id, starts_with, NULL::bytea, COALESCE(logo_file_type,''), COALESCE(link_difficulty,''), created_at, updated_at`
)

func scanRule(row pgx.Row) (*LogoRule, error) {
	var r LogoRule
	var difficulty string
	if err := row.Scan(&r.ID, &r.StartsWith, &r.Logo, &r.LogoFileType, &difficulty, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.LinkDifficulty = coding.Difficulty(difficulty)
	return &r, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *repoPG) Create(ctx context.Context, rule *LogoRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO logo_rule (id, starts_with, logo, logo_file_type, link_difficulty)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		rule.ID, rule.StartsWith, rule.Logo, nullable(rule.LogoFileType), nullable(string(rule.LinkDifficulty)),
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LogoRule, error) {
	rule, err := scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM logo_rule WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("logo rule %s: %w", id, apperrors.ErrNotFound)
	}
	return rule, err
}

// Update keeps the stored image when rule.Logo is empty.
func (r *repoPG) Update(ctx context.Context, rule *LogoRule) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE logo_rule SET starts_with = $2,
			logo = COALESCE($3, logo),
			logo_file_type = COALESCE($4, logo_file_type),
			link_difficulty = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		rule.ID, rule.StartsWith, rule.Logo, nullable(rule.LogoFileType), nullable(string(rule.LinkDifficulty)),
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("logo rule %s: %w", rule.ID, apperrors.ErrNotFound)
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM logo_rule WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("logo rule %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context) ([]*LogoRule, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+listCols+` FROM logo_rule ORDER BY starts_with`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*LogoRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *repoPG) FindMatching(ctx context.Context, url string) (*LogoRule, error) {
	rule, err := scanRule(r.conn(ctx).QueryRow(ctx, `
		SELECT `+listCols+` FROM logo_rule
		WHERE left($1, length(starts_with)) = starts_with
		ORDER BY length(starts_with) DESC
		LIMIT 1`, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rule, err
}
