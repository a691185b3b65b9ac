package linkrule_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/domain/coding/codingtest"
	"github.com/diagnosisview/dvserver/internal/domain/institution"
	"github.com/diagnosisview/dvserver/internal/domain/institution/institutiontest"
	"github.com/diagnosisview/dvserver/internal/domain/linkrule"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

// memRules keeps rules in creation order and mirrors each rule's url into
// the coding store so loaded mappings carry it.
type memRules struct {
	mu    sync.Mutex
	store *codingtest.Store
	rules []*linkrule.LinkRule
	clock time.Time
}

func (r *memRules) Create(_ context.Context, rule *linkrule.LinkRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	r.clock = r.clock.Add(time.Second)
	rule.CreatedAt, rule.UpdatedAt = r.clock, r.clock
	cp := *rule
	r.rules = append(r.rules, &cp)
	r.store.RuleLinks[rule.ID] = rule.Link
	return nil
}

func (r *memRules) GetByID(_ context.Context, id uuid.UUID) (*linkrule.LinkRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID == id {
			cp := *rule
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("link rule %s: %w", id, apperrors.ErrNotFound)
}

func (r *memRules) Update(_ context.Context, rule *linkrule.LinkRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rules {
		if existing.ID == rule.ID {
			rule.CreatedAt = existing.CreatedAt
			cp := *rule
			r.rules[i] = &cp
			r.store.RuleLinks[rule.ID] = rule.Link
			return nil
		}
	}
	return fmt.Errorf("link rule %s: %w", rule.ID, apperrors.ErrNotFound)
}

func (r *memRules) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rules {
		if existing.ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			delete(r.store.RuleLinks, id)
			return nil
		}
	}
	return fmt.Errorf("link rule %s: %w", id, apperrors.ErrNotFound)
}

func (r *memRules) List(_ context.Context) ([]*linkrule.LinkRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*linkrule.LinkRule, 0, len(r.rules))
	for _, rule := range r.rules {
		cp := *rule
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRules) CountByInstitution(_ context.Context, code string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rule := range r.rules {
		if c, ok := rule.Criteria.(coding.InstitutionCriteria); ok && c.Code == code {
			n++
		}
	}
	return n, nil
}

type countingEvicter struct{ n int }

func (e *countingEvicter) EvictListings(context.Context) error {
	e.n++
	return nil
}

type fixture struct {
	store  *codingtest.Store
	rules  *memRules
	mat    *linkrule.Materializer
	svc    *linkrule.Service
	evicts *countingEvicter
	code   *coding.Code
}

func newFixture() *fixture {
	store := codingtest.NewStore()
	rules := &memRules{store: store}
	mat := linkrule.NewMaterializer(rules, store.Links(), store.Mappings(), 2, zerolog.Nop())
	insts := institution.NewService(institutiontest.NewRepo(
		&institution.Institution{Code: "UNIV_X", Name: "University X"},
		&institution.Institution{Code: "UNIV_Y", Name: "University Y"},
	), rules, nil)
	evicts := &countingEvicter{}
	f := &fixture{
		store:  store,
		rules:  rules,
		mat:    mat,
		evicts: evicts,
		svc:    linkrule.NewService(rules, store.Mappings(), mat, insts, evicts, zerolog.Nop()),
		code:   &coding.Code{Code: "ckd"},
	}
	_ = store.Codes().Create(context.Background(), f.code)
	return f
}

func (f *fixture) link(url string) *coding.Link {
	ctx := context.Background()
	next, _ := f.store.Links().NextDisplayOrder(ctx, f.code.ID)
	l := &coding.Link{CodeID: f.code.ID, URL: url, DisplayOrder: next, LinkType: coding.LinkTypeCustom}
	if err := f.store.Links().Create(ctx, l); err != nil {
		panic(err)
	}
	return l
}

func (f *fixture) reload(l *coding.Link) *coding.Link {
	got, err := f.store.Links().GetByID(context.Background(), l.ID)
	if err != nil {
		panic(err)
	}
	return got
}

func request(prefix, transform, inst string) linkrule.Request {
	return linkrule.Request{Link: prefix, Transform: transform, CriteriaType: "INSTITUTION", Criteria: inst}
}
