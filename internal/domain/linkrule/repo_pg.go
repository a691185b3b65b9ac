package linkrule

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

const cols = `id, link, transform, criteria_type, criteria, created_at, updated_at`

func scanRule(row pgx.Row) (*LinkRule, error) {
	var r LinkRule
	var criteriaType, criteria string
	if err := row.Scan(&r.ID, &r.Link, &r.Transform, &criteriaType, &criteria, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	c, err := coding.ParseCriteria(criteriaType, criteria)
	if err != nil {
		return nil, fmt.Errorf("link rule %s: %w", r.ID, err)
	}
	r.Criteria = c
	return &r, nil
}

func (r *repoPG) Create(ctx context.Context, rule *LinkRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO link_rule (id, link, transform, criteria_type, criteria)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		rule.ID, rule.Link, rule.Transform, string(rule.Criteria.Type()), rule.Criteria.Value(),
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LinkRule, error) {
	rule, err := scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM link_rule WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("link rule %s: %w", id, apperrors.ErrNotFound)
	}
	return rule, err
}

func (r *repoPG) Update(ctx context.Context, rule *LinkRule) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE link_rule SET link = $2, transform = $3, criteria_type = $4, criteria = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		rule.ID, rule.Link, rule.Transform, string(rule.Criteria.Type()), rule.Criteria.Value(),
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("link rule %s: %w", rule.ID, apperrors.ErrNotFound)
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM link_rule WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link rule %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context) ([]*LinkRule, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM link_rule ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*LinkRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *repoPG) CountByInstitution(ctx context.Context, code string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT count(*) FROM link_rule WHERE criteria_type = $1 AND criteria = $2`,
		string(coding.CriteriaInstitution), code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count link rules: %w", err)
	}
	return n, nil
}
