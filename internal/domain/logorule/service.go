package logorule

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/platform/db"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

// Service administers logo rules. Unlike link rules, logo rules are not
// materialized into a join table: each link points at the rule with the
// longest prefix of its url, whatever order the rules were written in.
type Service struct {
	repo  Repository
	links coding.LinkRepository
	cache coding.Evicter
	log   zerolog.Logger
}

func NewService(repo Repository, links coding.LinkRepository, cache coding.Evicter, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		links: links,
		cache: cache,
		log:   log.With().Str("service", "logorule").Logger(),
	}
}

func (s *Service) List(ctx context.Context) ([]*LogoRule, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LogoRule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, rule *LogoRule) error {
	if err := validate(rule); err != nil {
		return err
	}
	var attached int
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, rule); err != nil {
			return err
		}
		var err error
		attached, err = s.reattach(ctx, rule.ID, rule.StartsWith)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("rule_id", rule.ID.String()).Str("starts_with", rule.StartsWith).
		Int("links", attached).Msg("logo rule created")
	return s.evict(ctx)
}

// Update stores rule and re-matches every link under its old and new
// prefixes. An unknown id is a bad request.
func (s *Service) Update(ctx context.Context, rule *LogoRule) error {
	if err := validate(rule); err != nil {
		return err
	}
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetByID(ctx, rule.ID)
		if err != nil {
			return missingRule(err)
		}
		if err := s.repo.Update(ctx, rule); err != nil {
			return missingRule(err)
		}
		if err := s.links.ClearLogoRule(ctx, rule.ID); err != nil {
			return err
		}
		_, err = s.reattach(ctx, rule.ID, old.StartsWith, rule.StartsWith)
		return err
	})
	if err != nil {
		return err
	}
	return s.evict(ctx)
}

// Delete detaches the rule from its links, removes it and hands those links
// to the next longest matching rule, if any. An unknown id is a bad request.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return missingRule(err)
		}
		if err := s.links.ClearLogoRule(ctx, id); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		_, err = s.reattach(ctx, id, old.StartsWith)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("rule_id", id.String()).Msg("logo rule deleted")
	return s.evict(ctx)
}

// Image returns the rule's logo and its content type.
func (s *Service) Image(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if len(rule.Logo) == 0 {
		return nil, "", fmt.Errorf("logo rule %s has no image: %w", id, apperrors.ErrNotFound)
	}
	contentType := rule.LogoFileType
	if contentType == "" {
		contentType = http.DetectContentType(rule.Logo)
	}
	return rule.Logo, contentType, nil
}

// MatchLogo implements coding.LogoMatcher.
func (s *Service) MatchLogo(ctx context.Context, url string) (*coding.LogoMatch, error) {
	rule, err := s.repo.FindMatching(ctx, url)
	if err != nil || rule == nil {
		return nil, err
	}
	match := &coding.LogoMatch{ID: rule.ID}
	if d, ok := rule.Override(); ok {
		match.Difficulty = d
	}
	return match, nil
}

// reattach points every link under the given prefixes at its longest
// matching rule. Links that match no rule keep a null logo rule. It returns
// how many links ended up on ruleID.
func (s *Service) reattach(ctx context.Context, ruleID uuid.UUID, prefixes ...string) (int, error) {
	seen := make(map[uuid.UUID]bool)
	byRule := make(map[uuid.UUID][]uuid.UUID)
	for _, prefix := range prefixes {
		links, err := s.links.FindByURLPrefix(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("find links starting with %q: %w", prefix, err)
		}
		for _, l := range links {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			match, err := s.repo.FindMatching(ctx, l.URL)
			if err != nil {
				return 0, fmt.Errorf("match logo rule for %s: %w", l.ID, err)
			}
			if match != nil {
				byRule[match.ID] = append(byRule[match.ID], l.ID)
			}
		}
	}
	for id, linkIDs := range byRule {
		if err := s.links.SetLogoRule(ctx, linkIDs, id); err != nil {
			return 0, err
		}
	}
	return len(byRule[ruleID]), nil
}

func validate(rule *LogoRule) error {
	rule.StartsWith = strings.TrimSpace(rule.StartsWith)
	if rule.StartsWith == "" {
		return fmt.Errorf("%w: startsWith is required", apperrors.ErrBadRequest)
	}
	if !rule.LinkDifficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", apperrors.ErrBadRequest, rule.LinkDifficulty)
	}
	return nil
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
