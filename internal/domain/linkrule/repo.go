package linkrule

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores link rules. List returns rules in creation order.
type Repository interface {
	Create(ctx context.Context, r *LinkRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*LinkRule, error)
	Update(ctx context.Context, r *LinkRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*LinkRule, error)
	// CountByInstitution counts rules whose criteria name the institution code.
	CountByInstitution(ctx context.Context, code string) (int, error)
}
