package institution

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, inst *Institution) error
	GetByID(ctx context.Context, id uuid.UUID) (*Institution, error)
	GetByCode(ctx context.Context, code string) (*Institution, error)
	Update(ctx context.Context, inst *Institution) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Institution, int, error)
}
