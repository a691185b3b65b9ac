// Package codingtest provides in-memory coding repositories for tests.
package codingtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

// Store implements coding.CodeRepository, coding.LinkRepository and
// coding.MappingRepository over maps. Reads return deep-enough copies so
// callers cannot mutate stored state by accident.
type Store struct {
	mu         sync.Mutex
	codes      map[uuid.UUID]*coding.Code
	links      map[uuid.UUID]*coding.Link
	mappings   []*coding.Mapping
	categories []*coding.Category
	seq        int64

	// RuleLinks resolves a mapping's owning rule url, standing in for the
	// join against link_rule. Missing entries model deleted rules.
	RuleLinks map[uuid.UUID]string
	// LogoDifficulties stands in for the join against logo_rule.
	LogoDifficulties map[uuid.UUID]coding.Difficulty
}

func NewStore() *Store {
	return &Store{
		codes:            make(map[uuid.UUID]*coding.Code),
		links:            make(map[uuid.UUID]*coding.Link),
		RuleLinks:        make(map[uuid.UUID]string),
		LogoDifficulties: make(map[uuid.UUID]coding.Difficulty),
	}
}

// Codes, Links and Mappings expose the store through its three interfaces.
func (s *Store) Codes() coding.CodeRepository       { return codeRepo{s} }
func (s *Store) Links() coding.LinkRepository       { return linkRepo{s} }
func (s *Store) Mappings() coding.MappingRepository { return mappingRepo{s} }

// AddCategory seeds a category.
func (s *Store) AddCategory(c *coding.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.categories = append(s.categories, c)
}

// MappingCount returns the number of stored mappings.
func (s *Store) MappingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mappings)
}

func (s *Store) copyLink(l *coding.Link) *coding.Link {
	cp := *l
	if l.LogoRuleID != nil {
		cp.LogoDifficulty = s.LogoDifficulties[*l.LogoRuleID]
	}
	cp.Mappings = nil
	for _, m := range s.mappings {
		if m.LinkID == l.ID {
			cp.Mappings = append(cp.Mappings, s.copyMapping(m))
		}
	}
	return &cp
}

func (s *Store) copyMapping(m *coding.Mapping) *coding.Mapping {
	cp := *m
	cp.RuleLink = nil
	if link, ok := s.RuleLinks[m.RuleID]; ok {
		cp.RuleLink = &link
	}
	return &cp
}

func (s *Store) copyCode(c *coding.Code) *coding.Code {
	cp := *c
	cp.Links = nil
	for _, l := range s.links {
		if l.CodeID == c.ID {
			cp.Links = append(cp.Links, s.copyLink(l))
		}
	}
	sort.Slice(cp.Links, func(i, j int) bool { return cp.Links[i].DisplayOrder < cp.Links[j].DisplayOrder })
	return &cp
}

// =========== codes ===========

type codeRepo struct{ s *Store }

func (r codeRepo) Create(_ context.Context, c *coding.Code) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.codes {
		if existing.Code == c.Code {
			return fmt.Errorf("%w: code %q already exists", apperrors.ErrConflict, c.Code)
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	cp.Links = nil
	r.s.codes[c.ID] = &cp
	return nil
}

func (r codeRepo) GetByID(_ context.Context, id uuid.UUID) (*coding.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[id]
	if !ok {
		return nil, fmt.Errorf("code %s: %w", id, apperrors.ErrNotFound)
	}
	return r.s.copyCode(c), nil
}

func (r codeRepo) Update(_ context.Context, c *coding.Code) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.codes[c.ID]; !ok {
		return fmt.Errorf("code %s: %w", c.ID, apperrors.ErrNotFound)
	}
	cp := *c
	cp.Links = nil
	r.s.codes[c.ID] = &cp
	return nil
}

func (r codeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.codes[id]; !ok {
		return fmt.Errorf("code %s: %w", id, apperrors.ErrNotFound)
	}
	delete(r.s.codes, id)
	for lid, l := range r.s.links {
		if l.CodeID == id {
			delete(r.s.links, lid)
			r.s.dropMappings(func(m *coding.Mapping) bool { return m.LinkID == lid })
		}
	}
	return nil
}

func (r codeRepo) ListAll(_ context.Context) ([]*coding.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*coding.Code
	for _, c := range r.s.codes {
		out = append(out, r.s.copyCode(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r codeRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*coding.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*coding.Code
	for _, id := range ids {
		if c, ok := r.s.codes[id]; ok {
			out = append(out, r.s.copyCode(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r codeRepo) SearchIDs(_ context.Context, term string) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q := strings.ToLower(term)
	prefix := coding.ICD10Prefix(term)
	var ids []uuid.UUID
	for _, c := range r.s.codes {
		if matchesCode(c, q, prefix) {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func matchesCode(c *coding.Code, q, prefix string) bool {
	if strings.Contains(strings.ToLower(c.Code), q) {
		return true
	}
	if c.FriendlyName != nil && strings.Contains(strings.ToLower(*c.FriendlyName), q) {
		return true
	}
	for _, syn := range c.Synonyms {
		if strings.Contains(strings.ToLower(syn), q) {
			return true
		}
	}
	if prefix != "" {
		for _, es := range c.ExternalStandards {
			if es.Standard == coding.StandardICD10 && strings.HasPrefix(es.CodeString, prefix) {
				return true
			}
		}
	}
	return false
}

func (r codeRepo) ListCategories(_ context.Context) ([]*coding.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := append([]*coding.Category(nil), r.s.categories...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// =========== links ===========

type linkRepo struct{ s *Store }

func (r linkRepo) Create(_ context.Context, l *coding.Link) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.links {
		if existing.CodeID == l.CodeID && existing.DisplayOrder == l.DisplayOrder {
			return fmt.Errorf("%w: display order %d taken", apperrors.ErrConflict, l.DisplayOrder)
		}
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	cp := *l
	cp.Mappings = nil
	r.s.links[l.ID] = &cp
	return nil
}

func (r linkRepo) GetByID(_ context.Context, id uuid.UUID) (*coding.Link, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.links[id]
	if !ok {
		return nil, fmt.Errorf("link %s: %w", id, apperrors.ErrNotFound)
	}
	return r.s.copyLink(l), nil
}

func (r linkRepo) GetByExternalID(_ context.Context, codeID uuid.UUID, externalID string) (*coding.Link, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.links {
		if l.CodeID == codeID && l.ExternalID == externalID {
			return r.s.copyLink(l), nil
		}
	}
	return nil, fmt.Errorf("link with external id %q: %w", externalID, apperrors.ErrNotFound)
}

func (r linkRepo) Update(_ context.Context, l *coding.Link) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.links[l.ID]; !ok {
		return fmt.Errorf("link %s: %w", l.ID, apperrors.ErrNotFound)
	}
	cp := *l
	cp.Mappings = nil
	r.s.links[l.ID] = &cp
	return nil
}

func (r linkRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.links[id]; !ok {
		return fmt.Errorf("link %s: %w", id, apperrors.ErrNotFound)
	}
	delete(r.s.links, id)
	r.s.dropMappings(func(m *coding.Mapping) bool { return m.LinkID == id })
	return nil
}

func (r linkRepo) ListByCode(_ context.Context, codeID uuid.UUID) ([]*coding.Link, error) {
	return r.filter(func(l *coding.Link) bool { return l.CodeID == codeID }), nil
}

func (r linkRepo) NextDisplayOrder(_ context.Context, codeID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	next := 1
	for _, l := range r.s.links {
		if l.CodeID == codeID && l.DisplayOrder >= next {
			next = l.DisplayOrder + 1
		}
	}
	return next, nil
}

func (r linkRepo) FindByURLContaining(_ context.Context, sub string) ([]*coding.Link, error) {
	return r.filter(func(l *coding.Link) bool { return strings.Contains(l.URL, sub) }), nil
}

func (r linkRepo) FindByURLPrefix(_ context.Context, prefix string) ([]*coding.Link, error) {
	return r.filter(func(l *coding.Link) bool { return strings.HasPrefix(l.URL, prefix) }), nil
}

func (r linkRepo) SetLogoRule(_ context.Context, linkIDs []uuid.UUID, logoRuleID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range linkIDs {
		if l, ok := r.s.links[id]; ok {
			lid := logoRuleID
			l.LogoRuleID = &lid
		}
	}
	return nil
}

func (r linkRepo) ClearLogoRule(_ context.Context, logoRuleID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.links {
		if l.LogoRuleID != nil && *l.LogoRuleID == logoRuleID {
			l.LogoRuleID = nil
		}
	}
	return nil
}

func (r linkRepo) filter(keep func(*coding.Link) bool) []*coding.Link {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*coding.Link
	for _, l := range r.s.links {
		if keep(l) {
			out = append(out, r.s.copyLink(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CodeID != out[j].CodeID {
			return out[i].CodeID.String() < out[j].CodeID.String()
		}
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

// =========== mappings ===========

type mappingRepo struct{ s *Store }

func (r mappingRepo) CreateBatch(_ context.Context, mappings []*coding.Mapping) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range mappings {
		if m.Criteria == nil {
			return fmt.Errorf("%w: mapping without criteria", apperrors.ErrBadRequest)
		}
	}
	for _, m := range mappings {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		r.s.seq++
		m.Seq = r.s.seq
		cp := *m
		r.s.mappings = append(r.s.mappings, &cp)
	}
	return nil
}

func (r mappingRepo) ListByRule(_ context.Context, ruleID uuid.UUID) ([]*coding.Mapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*coding.Mapping
	for _, m := range r.s.mappings {
		if m.RuleID == ruleID {
			out = append(out, r.s.copyMapping(m))
		}
	}
	return out, nil
}

func (r mappingRepo) DeleteByRule(_ context.Context, ruleID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.dropMappings(func(m *coding.Mapping) bool { return m.RuleID == ruleID })
	return nil
}

func (r mappingRepo) DeleteByLink(_ context.Context, linkID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.dropMappings(func(m *coding.Mapping) bool { return m.LinkID == linkID })
	return nil
}

func (r mappingRepo) LockForRebuild(context.Context) error { return nil }

func (r mappingRepo) DeleteAll(_ context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.mappings = nil
	return nil
}

// dropMappings must be called with mu held.
func (s *Store) dropMappings(drop func(*coding.Mapping) bool) {
	kept := s.mappings[:0]
	for _, m := range s.mappings {
		if !drop(m) {
			kept = append(kept, m)
		}
	}
	s.mappings = kept
}
