package coding

import (
	"context"

	"github.com/google/uuid"
)

// CodeRepository persists codes. List methods return codes fully loaded:
// categories, tags, external standards, links with logo override and mappings.
type CodeRepository interface {
	Create(ctx context.Context, c *Code) error
	GetByID(ctx context.Context, id uuid.UUID) (*Code, error)
	Update(ctx context.Context, c *Code) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListAll(ctx context.Context) ([]*Code, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Code, error)
	// SearchIDs returns codes whose synonyms contain term or whose external
	// standard code shares term's ICD-10 prefix (the part before '.').
	SearchIDs(ctx context.Context, term string) ([]uuid.UUID, error)
	ListCategories(ctx context.Context) ([]*Category, error)
}

// LinkRepository persists links. Loaded links carry their mappings in
// insertion order.
type LinkRepository interface {
	Create(ctx context.Context, l *Link) error
	GetByID(ctx context.Context, id uuid.UUID) (*Link, error)
	GetByExternalID(ctx context.Context, codeID uuid.UUID, externalID string) (*Link, error)
	Update(ctx context.Context, l *Link) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCode(ctx context.Context, codeID uuid.UUID) ([]*Link, error)
	NextDisplayOrder(ctx context.Context, codeID uuid.UUID) (int, error)
	// FindByURLContaining matches links whose url contains s (case-sensitive).
	FindByURLContaining(ctx context.Context, s string) ([]*Link, error)
	// FindByURLPrefix matches links whose url starts with prefix.
	FindByURLPrefix(ctx context.Context, prefix string) ([]*Link, error)
	SetLogoRule(ctx context.Context, linkIDs []uuid.UUID, logoRuleID uuid.UUID) error
	ClearLogoRule(ctx context.Context, logoRuleID uuid.UUID) error
}

// MappingRepository persists link rule mappings. Mappings are derived data.
type MappingRepository interface {
	CreateBatch(ctx context.Context, mappings []*Mapping) error
	ListByRule(ctx context.Context, ruleID uuid.UUID) ([]*Mapping, error)
	DeleteByRule(ctx context.Context, ruleID uuid.UUID) error
	DeleteByLink(ctx context.Context, linkID uuid.UUID) error
	DeleteAll(ctx context.Context) error
	// LockForRebuild blocks rule and link writers until the surrounding
	// transaction ends.
	LockForRebuild(ctx context.Context) error
}
