package linkrule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/platform/db"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

// InstitutionChecker reports whether an institution code is registered.
type InstitutionChecker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// Service administers link rules. Every mutation runs in one transaction
// together with its mapping changes and evicts cached listings.
type Service struct {
	repo         Repository
	mappings     coding.MappingRepository
	mat          *Materializer
	institutions InstitutionChecker
	cache        coding.Evicter
	log          zerolog.Logger
}

func NewService(repo Repository, mappings coding.MappingRepository, mat *Materializer,
	institutions InstitutionChecker, cache coding.Evicter, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		mappings:     mappings,
		mat:          mat,
		institutions: institutions,
		cache:        cache,
		log:          log.With().Str("service", "linkrule").Logger(),
	}
}

func (s *Service) List(ctx context.Context) ([]*LinkRule, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LinkRule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Mappings, err = s.mappings.ListByRule(ctx, id)
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) Create(ctx context.Context, req Request) (*LinkRule, error) {
	rule, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	err = db.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, rule); err != nil {
			return err
		}
		return s.mat.Materialize(ctx, rule)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("rule_id", rule.ID.String()).Str("link", rule.Link).
		Str("criteria", rule.Criteria.Value()).Msg("link rule created")
	return rule, s.evict(ctx)
}

// Update replaces the rule and regenerates its mappings. An unknown id is
// a bad request.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req Request) (*LinkRule, error) {
	rule, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	rule.ID = id
	err = db.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, rule); err != nil {
			return missingRule(err)
		}
		return s.mat.Rematerialize(ctx, rule)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("rule_id", rule.ID.String()).Int("mappings", len(rule.Mappings)).Msg("link rule updated")
	return rule, s.evict(ctx)
}

// Delete removes the rule and every mapping it generated. An unknown id is
// a bad request.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return missingRule(err)
		}
		if err := s.mappings.DeleteByRule(ctx, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("rule_id", id.String()).Msg("link rule deleted")
	return s.evict(ctx)
}

// RebuildMappings regenerates every mapping from the stored rules.
func (s *Service) RebuildMappings(ctx context.Context) (int, error) {
	n, err := s.mat.RebuildAll(ctx)
	if err != nil {
		return 0, err
	}
	return n, s.evict(ctx)
}

func (s *Service) validate(ctx context.Context, req Request) (*LinkRule, error) {
	if strings.TrimSpace(req.Link) == "" {
		return nil, fmt.Errorf("%w: link is required", apperrors.ErrBadRequest)
	}
	rule, err := req.ToRule()
	if err != nil {
		return nil, err
	}
	switch c := rule.Criteria.(type) {
	case coding.InstitutionCriteria:
		ok, err := s.institutions.Exists(ctx, c.Code)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("institution %q: %w", c.Code, apperrors.ErrNotFound)
		}
	}
	return rule, nil
}

func missingRule(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}
	return err
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
