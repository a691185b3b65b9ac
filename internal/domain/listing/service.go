package listing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/domain/institution"
	"github.com/diagnosisview/dvserver/internal/domain/resolution"
	"github.com/diagnosisview/dvserver/internal/platform/cache"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

// InstitutionLookup resolves an institution code. A blank code yields nil.
type InstitutionLookup interface {
	Lookup(ctx context.Context, code string) (*institution.Institution, error)
}

// Service assembles the patient-facing code listings.
type Service struct {
	codes        coding.CodeRepository
	institutions InstitutionLookup
	resolver     *resolution.Resolver
	cache        *cache.Loader
	log          zerolog.Logger
}

func NewService(codes coding.CodeRepository, institutions InstitutionLookup, resolver *resolution.Resolver,
	loader *cache.Loader, log zerolog.Logger) *Service {
	return &Service{
		codes:        codes,
		institutions: institutions,
		resolver:     resolver,
		cache:        loader,
		log:          log.With().Str("service", "listing").Logger(),
	}
}

// cacheKey is the per-institution key inside a listing namespace.
func cacheKey(inst *institution.Institution) string {
	if inst == nil {
		return "_"
	}
	return inst.Code
}

// GetAll lists every code with links resolved for institutionCode. An
// unknown institution fails the whole request with apperrors.ErrNotFound.
func (s *Service) GetAll(ctx context.Context, institutionCode string) ([]CodeDTO, error) {
	inst, err := s.institutions.Lookup(ctx, institutionCode)
	if err != nil {
		return nil, err
	}
	return cache.Load(ctx, s.cache, cache.NamespaceCodes, cacheKey(inst), func(ctx context.Context) ([]CodeDTO, error) {
		codes, err := s.codes.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("list codes: %w", err)
		}
		out := s.build(codes, inst)
		s.log.Debug().Str("institution", cacheKey(inst)).Int("codes", len(out)).Msg("code listing built")
		return out, nil
	})
}

// GetCodesBySynonyms lists codes whose synonyms match term or whose
// external ICD-10 code shares term's category. Results are not cached.
func (s *Service) GetCodesBySynonyms(ctx context.Context, term, institutionCode string) ([]CodeDTO, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", apperrors.ErrBadRequest)
	}
	inst, err := s.institutions.Lookup(ctx, institutionCode)
	if err != nil {
		return nil, err
	}
	ids, err := s.codes.SearchIDs(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search codes: %w", err)
	}
	if len(ids) == 0 {
		return []CodeDTO{}, nil
	}
	codes, err := s.codes.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load codes: %w", err)
	}
	return s.build(codes, inst), nil
}

func (s *Service) GetAllCategories(ctx context.Context) ([]CategoryDTO, error) {
	return cache.Load(ctx, s.cache, cache.NamespaceCategories, "_", func(ctx context.Context) ([]CategoryDTO, error) {
		cats, err := s.codes.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		out := make([]CategoryDTO, 0, len(cats))
		for _, c := range cats {
			out = append(out, categoryDTO(c))
		}
		return out, nil
	})
}

func (s *Service) build(codes []*coding.Code, inst *institution.Institution) []CodeDTO {
	out := make([]CodeDTO, 0, len(codes))
	for _, c := range codes {
		out = append(out, s.codeDTO(c, inst))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].FriendlyName, out[j].FriendlyName
		switch {
		case a == nil && b == nil:
			return out[i].Code < out[j].Code
		case a == nil:
			return true
		case b == nil:
			return false
		case *a != *b:
			return *a < *b
		default:
			return out[i].Code < out[j].Code
		}
	})
	return out
}

func (s *Service) codeDTO(c *coding.Code, inst *institution.Institution) CodeDTO {
	dto := CodeDTO{
		Code:         c.Code,
		FriendlyName: c.FriendlyName,
		Deleted:      c.Deleted(),
		Categories:   make([]CategoryDTO, 0, len(c.Categories)),
		Tags:         append([]string{}, c.Tags...),
		Links:        make([]LinkDTO, 0, len(c.Links)),
	}
	for _, cat := range c.Categories {
		dto.Categories = append(dto.Categories, categoryDTO(cat))
	}

	links := append([]*coding.Link(nil), c.Links...)
	sort.SliceStable(links, func(i, j int) bool { return links[i].DisplayOrder < links[j].DisplayOrder })
	for _, l := range links {
		r := s.resolver.Resolve(l, inst)
		if !r.Displayed {
			continue
		}
		dto.Links = append(dto.Links, linkDTO(l, r))
	}
	return dto
}
