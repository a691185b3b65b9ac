package logorule_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/domain/coding/codingtest"
	"github.com/diagnosisview/dvserver/internal/domain/logorule"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

type memRepo struct {
	mu    sync.Mutex
	store *codingtest.Store
	rules map[uuid.UUID]*logorule.LogoRule
}

func newMemRepo(store *codingtest.Store) *memRepo {
	return &memRepo{store: store, rules: make(map[uuid.UUID]*logorule.LogoRule)}
}

func (r *memRepo) put(rule *logorule.LogoRule) {
	cp := *rule
	r.rules[rule.ID] = &cp
	d, _ := rule.Override()
	r.store.LogoDifficulties[rule.ID] = d
}

func (r *memRepo) Create(_ context.Context, rule *logorule.LogoRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	r.put(rule)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*logorule.LogoRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("logo rule %s: %w", id, apperrors.ErrNotFound)
	}
	cp := *rule
	return &cp, nil
}

func (r *memRepo) Update(_ context.Context, rule *logorule.LogoRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rules[rule.ID]
	if !ok {
		return fmt.Errorf("logo rule %s: %w", rule.ID, apperrors.ErrNotFound)
	}
	if len(rule.Logo) == 0 {
		rule.Logo = existing.Logo
	}
	r.put(rule)
	return nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return fmt.Errorf("logo rule %s: %w", id, apperrors.ErrNotFound)
	}
	delete(r.rules, id)
	delete(r.store.LogoDifficulties, id)
	return nil
}

func (r *memRepo) List(_ context.Context) ([]*logorule.LogoRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*logorule.LogoRule
	for _, rule := range r.rules {
		cp := *rule
		cp.Logo = nil
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsWith < out[j].StartsWith })
	return out, nil
}

func (r *memRepo) FindMatching(_ context.Context, url string) (*logorule.LogoRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *logorule.LogoRule
	for _, rule := range r.rules {
		if strings.HasPrefix(url, rule.StartsWith) && (best == nil || len(rule.StartsWith) > len(best.StartsWith)) {
			best = rule
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

type countingEvicter struct{ n int }

func (e *countingEvicter) EvictListings(context.Context) error {
	e.n++
	return nil
}

type fixture struct {
	store  *codingtest.Store
	svc    *logorule.Service
	evicts *countingEvicter
	code   *coding.Code
}

func newFixture() *fixture {
	store := codingtest.NewStore()
	evicts := &countingEvicter{}
	f := &fixture{
		store:  store,
		evicts: evicts,
		svc:    logorule.NewService(newMemRepo(store), store.Links(), evicts, zerolog.Nop()),
		code:   &coding.Code{Code: "ckd"},
	}
	_ = store.Codes().Create(context.Background(), f.code)
	return f
}

func (f *fixture) link(t *testing.T, url string) *coding.Link {
	t.Helper()
	ctx := context.Background()
	next, err := f.store.Links().NextDisplayOrder(ctx, f.code.ID)
	require.NoError(t, err)
	l := &coding.Link{CodeID: f.code.ID, URL: url, DisplayOrder: next}
	require.NoError(t, f.store.Links().Create(ctx, l))
	return l
}

func (f *fixture) reload(t *testing.T, l *coding.Link) *coding.Link {
	t.Helper()
	got, err := f.store.Links().GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	return got
}

func TestCreate_AttachesByPrefix(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	nhs := f.link(t, "https://www.nhs.uk/conditions/ckd")
	embedded := f.link(t, "https://mirror.test/https://www.nhs.uk/x")

	rule := &logorule.LogoRule{StartsWith: "https://www.nhs.uk", LinkDifficulty: coding.DifficultyAmber, Logo: []byte{0x89, 'P', 'N', 'G'}}
	require.NoError(t, f.svc.Create(ctx, rule))

	got := f.reload(t, nhs)
	require.NotNil(t, got.LogoRuleID)
	assert.Equal(t, rule.ID, *got.LogoRuleID)
	assert.Equal(t, coding.DifficultyAmber, got.LogoDifficulty)
	assert.Nil(t, f.reload(t, embedded).LogoRuleID)
	assert.Equal(t, 1, f.evicts.n)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	assert.ErrorIs(t, f.svc.Create(ctx, &logorule.LogoRule{StartsWith: " "}), apperrors.ErrBadRequest)
	assert.ErrorIs(t, f.svc.Create(ctx, &logorule.LogoRule{StartsWith: "https://a", LinkDifficulty: "PURPLE"}), apperrors.ErrBadRequest)
}

func TestUpdate_ReattachesOnPrefixChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.link(t, "https://a.example/x")
	b := f.link(t, "https://b.example/y")

	rule := &logorule.LogoRule{StartsWith: "https://a.example"}
	require.NoError(t, f.svc.Create(ctx, rule))
	require.NotNil(t, f.reload(t, a).LogoRuleID)

	rule.StartsWith = "https://b.example"
	require.NoError(t, f.svc.Update(ctx, rule))
	assert.Nil(t, f.reload(t, a).LogoRuleID)
	require.NotNil(t, f.reload(t, b).LogoRuleID)
}

func TestUpdateDelete_UnknownIDIsBadRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	assert.ErrorIs(t, f.svc.Update(ctx, &logorule.LogoRule{ID: uuid.New(), StartsWith: "https://a"}), apperrors.ErrBadRequest)
	assert.ErrorIs(t, f.svc.Delete(ctx, uuid.New()), apperrors.ErrBadRequest)
}

func TestDelete_Detaches(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	l := f.link(t, "https://a.example/x")
	rule := &logorule.LogoRule{StartsWith: "https://a.example", LinkDifficulty: coding.DifficultyRed}
	require.NoError(t, f.svc.Create(ctx, rule))

	require.NoError(t, f.svc.Delete(ctx, rule.ID))
	got := f.reload(t, l)
	assert.Nil(t, got.LogoRuleID)
	assert.Empty(t, got.LogoDifficulty)
}

func TestCreate_LongestPrefixWinsInEitherOrder(t *testing.T) {
	for _, specificFirst := range []bool{true, false} {
		t.Run(fmt.Sprintf("specificFirst=%v", specificFirst), func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			bmj := f.link(t, "https://x.example/bmj/ckd")
			other := f.link(t, "https://x.example/other")

			specific := &logorule.LogoRule{StartsWith: "https://x.example/bmj/", LinkDifficulty: coding.DifficultyRed}
			broad := &logorule.LogoRule{StartsWith: "https://x.example/", LinkDifficulty: coding.DifficultyGreen}
			order := []*logorule.LogoRule{broad, specific}
			if specificFirst {
				order = []*logorule.LogoRule{specific, broad}
			}
			for _, rule := range order {
				require.NoError(t, f.svc.Create(ctx, rule))
			}

			got := f.reload(t, bmj)
			require.NotNil(t, got.LogoRuleID)
			assert.Equal(t, specific.ID, *got.LogoRuleID)
			assert.Equal(t, coding.DifficultyRed, got.LogoDifficulty)
			got = f.reload(t, other)
			require.NotNil(t, got.LogoRuleID)
			assert.Equal(t, broad.ID, *got.LogoRuleID)
		})
	}
}

func TestDelete_HandsLinksToNextMatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bmj := f.link(t, "https://x.example/bmj/ckd")
	other := f.link(t, "https://x.example/other")
	specific := &logorule.LogoRule{StartsWith: "https://x.example/bmj/", LinkDifficulty: coding.DifficultyRed}
	broad := &logorule.LogoRule{StartsWith: "https://x.example/", LinkDifficulty: coding.DifficultyGreen}
	require.NoError(t, f.svc.Create(ctx, specific))
	require.NoError(t, f.svc.Create(ctx, broad))

	// Removing the broad rule leaves the specific rule in place.
	require.NoError(t, f.svc.Delete(ctx, broad.ID))
	got := f.reload(t, bmj)
	require.NotNil(t, got.LogoRuleID)
	assert.Equal(t, specific.ID, *got.LogoRuleID)
	assert.Nil(t, f.reload(t, other).LogoRuleID)

	// Removing the specific rule falls back to the broad one.
	require.NoError(t, f.svc.Create(ctx, broad))
	require.NoError(t, f.svc.Delete(ctx, specific.ID))
	got = f.reload(t, bmj)
	require.NotNil(t, got.LogoRuleID)
	assert.Equal(t, broad.ID, *got.LogoRuleID)
	assert.Equal(t, coding.DifficultyGreen, got.LogoDifficulty)
}

func TestUpdate_NarrowingPrefixReleasesLinks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bmj := f.link(t, "https://x.example/bmj/ckd")
	other := f.link(t, "https://x.example/other")
	broad := &logorule.LogoRule{StartsWith: "https://x.example/"}
	fallback := &logorule.LogoRule{StartsWith: "https://x."}
	require.NoError(t, f.svc.Create(ctx, broad))
	require.NoError(t, f.svc.Create(ctx, fallback))

	broad.StartsWith = "https://x.example/bmj/"
	require.NoError(t, f.svc.Update(ctx, broad))
	assert.Equal(t, broad.ID, *f.reload(t, bmj).LogoRuleID)
	got := f.reload(t, other)
	require.NotNil(t, got.LogoRuleID)
	assert.Equal(t, fallback.ID, *got.LogoRuleID)
}

func TestMatchLogo_LongestPrefix(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	broad := &logorule.LogoRule{StartsWith: "https://www.nhs.uk"}
	narrow := &logorule.LogoRule{StartsWith: "https://www.nhs.uk/conditions", LinkDifficulty: coding.DifficultyRed}
	require.NoError(t, f.svc.Create(ctx, broad))
	require.NoError(t, f.svc.Create(ctx, narrow))

	m, err := f.svc.MatchLogo(ctx, "https://www.nhs.uk/conditions/ckd")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, narrow.ID, m.ID)
	assert.Equal(t, coding.DifficultyRed, m.Difficulty)

	m, err = f.svc.MatchLogo(ctx, "https://www.nhs.uk/live-well")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, broad.ID, m.ID)
	assert.Empty(t, m.Difficulty)

	m, err = f.svc.MatchLogo(ctx, "https://bmj.com")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMatchLogo_DoNotOverride(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.svc.Create(ctx, &logorule.LogoRule{StartsWith: "https://a", LinkDifficulty: coding.DifficultyDoNotOverride}))
	m, err := f.svc.MatchLogo(ctx, "https://a/x")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Empty(t, m.Difficulty)
}

func TestImage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	withType := &logorule.LogoRule{StartsWith: "https://a", Logo: []byte("<svg/>"), LogoFileType: "image/svg+xml"}
	noImage := &logorule.LogoRule{StartsWith: "https://b"}
	require.NoError(t, f.svc.Create(ctx, withType))
	require.NoError(t, f.svc.Create(ctx, noImage))

	data, ct, err := f.svc.Image(ctx, withType.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", ct)
	assert.Equal(t, []byte("<svg/>"), data)

	_, _, err = f.svc.Image(ctx, noImage.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
