package logorule

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *LogoRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*LogoRule, error)
	Update(ctx context.Context, r *LogoRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List omits logo bytes.
	List(ctx context.Context) ([]*LogoRule, error)
	// FindMatching returns the rule with the longest prefix of url, or nil.
	FindMatching(ctx context.Context, url string) (*LogoRule, error)
}
