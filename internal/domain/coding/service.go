package coding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diagnosisview/dvserver/internal/platform/db"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

// RuleMatcher synthesizes the mappings every existing link rule would
// produce for one link, without persisting them.
type RuleMatcher interface {
	MatchLink(ctx context.Context, l *Link) ([]*Mapping, error)
}

// LogoMatch identifies the logo rule attached to a link.
type LogoMatch struct {
	ID         uuid.UUID
	Difficulty Difficulty
}

// LogoMatcher finds the logo rule whose prefix a url starts with.
type LogoMatcher interface {
	MatchLogo(ctx context.Context, url string) (*LogoMatch, error)
}

// Evicter drops cached listings after a write.
type Evicter interface {
	EvictListings(ctx context.Context) error
}

// Service owns the code and link lifecycle: it keeps each link's mappings
// and logo in step with its url and evicts cached listings on every write.
type Service struct {
	codes    CodeRepository
	links    LinkRepository
	mappings MappingRepository
	rules    RuleMatcher
	logos    LogoMatcher
	cache    Evicter
	log      zerolog.Logger
}

func NewService(codes CodeRepository, links LinkRepository, mappings MappingRepository,
	rules RuleMatcher, logos LogoMatcher, cache Evicter, log zerolog.Logger) *Service {
	return &Service{
		codes:    codes,
		links:    links,
		mappings: mappings,
		rules:    rules,
		logos:    logos,
		cache:    cache,
		log:      log.With().Str("service", "coding").Logger(),
	}
}

// -- Codes --

func (s *Service) GetCode(ctx context.Context, id uuid.UUID) (*Code, error) {
	return s.codes.GetByID(ctx, id)
}

func (s *Service) CreateCode(ctx context.Context, c *Code) error {
	c.Code = strings.TrimSpace(c.Code)
	if c.Code == "" {
		return fmt.Errorf("%w: code is required", apperrors.ErrBadRequest)
	}
	if err := s.codes.Create(ctx, c); err != nil {
		return err
	}
	return s.evict(ctx)
}

func (s *Service) UpdateCode(ctx context.Context, c *Code) error {
	c.Code = strings.TrimSpace(c.Code)
	if c.Code == "" {
		return fmt.Errorf("%w: code is required", apperrors.ErrBadRequest)
	}
	if err := s.codes.Update(ctx, c); err != nil {
		return err
	}
	return s.evict(ctx)
}

func (s *Service) DeleteCode(ctx context.Context, id uuid.UUID) error {
	if err := s.codes.Delete(ctx, id); err != nil {
		return err
	}
	return s.evict(ctx)
}

// -- Links --

func (s *Service) GetLink(ctx context.Context, id uuid.UUID) (*Link, error) {
	return s.links.GetByID(ctx, id)
}

func validateLink(l *Link) error {
	l.URL = strings.TrimSpace(l.URL)
	if l.URL == "" {
		return fmt.Errorf("%w: link is required", apperrors.ErrBadRequest)
	}
	if l.LinkType == "" {
		l.LinkType = LinkTypeCustom
	}
	if !l.LinkType.Valid() {
		return fmt.Errorf("%w: unknown link type %q", apperrors.ErrBadRequest, l.LinkType)
	}
	if !l.DifficultyLevel.Valid() {
		return fmt.Errorf("%w: unknown difficulty level %q", apperrors.ErrBadRequest, l.DifficultyLevel)
	}
	return nil
}

// AddLink attaches a new link to a code, seeding its mappings from the
// existing rules and its logo from the matching logo rule.
func (s *Service) AddLink(ctx context.Context, codeID uuid.UUID, l *Link) error {
	if err := validateLink(l); err != nil {
		return err
	}
	if _, err := s.codes.GetByID(ctx, codeID); err != nil {
		return err
	}
	l.CodeID = codeID

	err := db.RunInTx(ctx, func(ctx context.Context) error {
		if l.DisplayOrder <= 0 {
			next, err := s.links.NextDisplayOrder(ctx, codeID)
			if err != nil {
				return err
			}
			l.DisplayOrder = next
		}
		if err := s.attachLogo(ctx, l); err != nil {
			return err
		}
		if err := s.links.Create(ctx, l); err != nil {
			return err
		}
		return s.seedMappings(ctx, l)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("link_id", l.ID.String()).Str("code_id", codeID.String()).
		Int("mappings", len(l.Mappings)).Msg("link added")
	return s.evict(ctx)
}

// UpdateLink stores l. A changed url re-seeds mappings and logo.
func (s *Service) UpdateLink(ctx context.Context, l *Link) error {
	if err := validateLink(l); err != nil {
		return err
	}
	existing, err := s.links.GetByID(ctx, l.ID)
	if err != nil {
		return err
	}
	l.CodeID = existing.CodeID
	if l.DisplayOrder <= 0 {
		l.DisplayOrder = existing.DisplayOrder
	}
	urlChanged := existing.URL != l.URL

	err = db.RunInTx(ctx, func(ctx context.Context) error {
		if urlChanged {
			if err := s.attachLogo(ctx, l); err != nil {
				return err
			}
		} else {
			l.LogoRuleID = existing.LogoRuleID
			l.LogoDifficulty = existing.LogoDifficulty
		}
		if err := s.links.Update(ctx, l); err != nil {
			return err
		}
		if !urlChanged {
			l.Mappings = existing.Mappings
			return nil
		}
		if err := s.mappings.DeleteByLink(ctx, l.ID); err != nil {
			return err
		}
		return s.seedMappings(ctx, l)
	})
	if err != nil {
		return err
	}
	return s.evict(ctx)
}

func (s *Service) DeleteLink(ctx context.Context, id uuid.UUID) error {
	if err := s.links.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("link_id", id.String()).Msg("link deleted")
	return s.evict(ctx)
}

// SyncExternalLink upserts a link supplied by an external import, using
// ExternalID to deduplicate within the code. It reports whether the link
// was newly created. On re-import, flags the import leaves unset keep their
// stored values.
func (s *Service) SyncExternalLink(ctx context.Context, codeID uuid.UUID, in *LinkImport) (bool, error) {
	l := &in.Link
	if l.ExternalID == "" {
		return false, fmt.Errorf("%w: external id is required", apperrors.ErrBadRequest)
	}
	existing, err := s.links.GetByExternalID(ctx, codeID, l.ExternalID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		l.FreeLink = boolOr(in.FreeLink, false)
		l.TransformationsOnly = boolOr(in.TransformationsOnly, false)
		return true, s.AddLink(ctx, codeID, l)
	case err != nil:
		return false, err
	}

	l.ID = existing.ID
	l.DisplayOrder = existing.DisplayOrder
	// Admin edits to difficulty survive re-imports.
	if l.DifficultyLevel == "" {
		l.DifficultyLevel = existing.DifficultyLevel
	}
	l.FreeLink = boolOr(in.FreeLink, existing.FreeLink)
	l.TransformationsOnly = boolOr(in.TransformationsOnly, existing.TransformationsOnly)
	return false, s.UpdateLink(ctx, l)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (s *Service) attachLogo(ctx context.Context, l *Link) error {
	l.LogoRuleID = nil
	l.LogoDifficulty = ""
	if s.logos == nil {
		return nil
	}
	match, err := s.logos.MatchLogo(ctx, l.URL)
	if err != nil {
		return fmt.Errorf("match logo rule: %w", err)
	}
	if match != nil {
		id := match.ID
		l.LogoRuleID = &id
		l.LogoDifficulty = match.Difficulty
	}
	return nil
}

func (s *Service) seedMappings(ctx context.Context, l *Link) error {
	l.Mappings = nil
	if s.rules == nil {
		return nil
	}
	mappings, err := s.rules.MatchLink(ctx, l)
	if err != nil {
		return fmt.Errorf("match link rules: %w", err)
	}
	for _, m := range mappings {
		m.LinkID = l.ID
	}
	if err := s.mappings.CreateBatch(ctx, mappings); err != nil {
		return err
	}
	l.Mappings = mappings
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
