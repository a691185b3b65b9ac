package institution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/diagnosisview/dvserver/internal/platform/db"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

// RuleCounter counts link rules whose criteria name an institution code.
type RuleCounter interface {
	CountByInstitution(ctx context.Context, code string) (int, error)
}

// Evicter drops cached listings.
type Evicter interface {
	EvictListings(ctx context.Context) error
}

type Service struct {
	repo  Repository
	rules RuleCounter
	cache Evicter
}

// NewService returns an institution service. rules and cache may be nil when
// no link rules or listing cache exist.
func NewService(repo Repository, rules RuleCounter, cache Evicter) *Service {
	return &Service{repo: repo, rules: rules, cache: cache}
}

// Lookup resolves the requesting institution. A blank code means the
// request carries no institution and yields nil without error; an unknown
// code is apperrors.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, code string) (*Institution, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	inst, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("institution %q: %w", code, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return inst, nil
}

// Exists reports whether an institution with code is registered.
func (s *Service) Exists(ctx context.Context, code string) (bool, error) {
	inst, err := s.Lookup(ctx, code)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	return inst != nil, err
}

func (s *Service) Create(ctx context.Context, inst *Institution) error {
	if err := validate(inst); err != nil {
		return err
	}
	return s.repo.Create(ctx, inst)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Institution, error) {
	return s.repo.GetByID(ctx, id)
}

// Update stores inst. Renaming the code of an institution that link rules
// still reference is a conflict.
func (s *Service) Update(ctx context.Context, inst *Institution) error {
	if err := validate(inst); err != nil {
		return err
	}
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, inst.ID)
		if err != nil {
			return err
		}
		if existing.Code != inst.Code {
			if err := s.unreferenced(ctx, existing.Code, "rename"); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, inst)
	})
	if err != nil {
		return err
	}
	return s.evict(ctx)
}

// Delete removes the institution unless link rules still reference it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.unreferenced(ctx, existing.Code, "delete"); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return s.evict(ctx)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Institution, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) unreferenced(ctx context.Context, code, action string) error {
	if s.rules == nil {
		return nil
	}
	n, err := s.rules.CountByInstitution(ctx, code)
	if err != nil {
		return fmt.Errorf("count link rules for %q: %w", code, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: cannot %s institution %q, %d link rules reference it", apperrors.ErrConflict, action, code, n)
	}
	return nil
}

func (s *Service) evict(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.EvictListings(ctx); err != nil {
		return fmt.Errorf("evict listings: %w", err)
	}
	return nil
}

func validate(inst *Institution) error {
	inst.Code = strings.TrimSpace(inst.Code)
	if inst.Code == "" {
		return fmt.Errorf("%w: code is required", apperrors.ErrBadRequest)
	}
	if strings.TrimSpace(inst.Name) == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrBadRequest)
	}
	return nil
}
