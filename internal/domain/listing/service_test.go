package listing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/domain/coding/codingtest"
	"github.com/diagnosisview/dvserver/internal/domain/institution"
	"github.com/diagnosisview/dvserver/internal/domain/institution/institutiontest"
	"github.com/diagnosisview/dvserver/internal/domain/listing"
	"github.com/diagnosisview/dvserver/internal/domain/resolution"
	"github.com/diagnosisview/dvserver/internal/platform/cache"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

type fixture struct {
	store  *codingtest.Store
	loader *cache.Loader
	svc    *listing.Service
}

func newFixture() *fixture {
	store := codingtest.NewStore()
	insts := institution.NewService(institutiontest.NewRepo(
		&institution.Institution{Code: "UNIV_X", Name: "University X"},
	), nil, nil)
	loader := cache.NewLoader(cache.NewMemoryStore(time.Minute), zerolog.Nop())
	return &fixture{
		store:  store,
		loader: loader,
		svc:    listing.NewService(store.Codes(), insts, resolution.NewResolver(zerolog.Nop()), loader, zerolog.Nop()),
	}
}

func strPtr(s string) *string { return &s }

func (f *fixture) code(t *testing.T, c *coding.Code) *coding.Code {
	t.Helper()
	require.NoError(t, f.store.Codes().Create(context.Background(), c))
	return c
}

func (f *fixture) link(t *testing.T, c *coding.Code, l *coding.Link) *coding.Link {
	t.Helper()
	l.CodeID = c.ID
	if l.LinkType == "" {
		l.LinkType = coding.LinkTypeCustom
	}
	require.NoError(t, f.store.Links().Create(context.Background(), l))
	return l
}

// rule stores a mapping for l as if a rule with prefix had been materialized.
func (f *fixture) rule(t *testing.T, l *coding.Link, prefix, replacement, inst string) {
	t.Helper()
	ruleID := uuid.New()
	f.store.RuleLinks[ruleID] = prefix
	require.NoError(t, f.store.Mappings().CreateBatch(context.Background(), []*coding.Mapping{{
		RuleID:          ruleID,
		LinkID:          l.ID,
		ReplacementLink: replacement,
		Criteria:        coding.InstitutionCriteria{Code: inst},
	}}))
}

func TestGetAll_SortsByFriendlyNameNullsFirst(t *testing.T) {
	f := newFixture()
	f.code(t, &coding.Code{Code: "c1", FriendlyName: strPtr("Diabetes")})
	f.code(t, &coding.Code{Code: "c2"})
	f.code(t, &coding.Code{Code: "c3", FriendlyName: strPtr("Anaemia")})

	got, err := f.svc.GetAll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c2", got[0].Code)
	assert.Equal(t, "c3", got[1].Code)
	assert.Equal(t, "c1", got[2].Code)
}

func TestGetAll_DeletedFlagAndTags(t *testing.T) {
	f := newFixture()
	f.code(t, &coding.Code{Code: "c1", HideFromPatients: true, Tags: []string{"dashboard"}})

	got, err := f.svc.GetAll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Deleted)
	assert.Equal(t, []string{"dashboard"}, got[0].Tags)
}

func TestGetAll_ResolvesLinksPerInstitution(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.code(t, &coding.Code{Code: "ckd", FriendlyName: strPtr("Kidney disease")})
	l := f.link(t, c, &coding.Link{URL: "https://publisher.example/articleA", DisplayOrder: 1})
	f.rule(t, l, "https://publisher.example/", "https://proxy.example/unlockedarticleA", "UNIV_X")

	anon, err := f.svc.GetAll(ctx, "")
	require.NoError(t, err)
	require.Len(t, anon[0].Links, 1)
	assert.Equal(t, "https://publisher.example/", anon[0].Links[0].Link)
	assert.Equal(t, resolution.PaywallLocked, anon[0].Links[0].Paywalled)
	assert.Equal(t, "https://publisher.example/articleA", anon[0].Links[0].OriginalLink)

	x, err := f.svc.GetAll(ctx, "UNIV_X")
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example/unlockedarticleA", x[0].Links[0].Link)
	assert.Equal(t, resolution.PaywallUnlocked, x[0].Links[0].Paywalled)
}

func TestGetAll_UnknownInstitutionFailsWholeRequest(t *testing.T) {
	f := newFixture()
	f.code(t, &coding.Code{Code: "ckd"})
	got, err := f.svc.GetAll(context.Background(), "UNIV_Z")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, got)
}

func TestGetAll_LinksOrderedAndHiddenFiltered(t *testing.T) {
	f := newFixture()
	c := f.code(t, &coding.Code{Code: "ckd"})
	f.link(t, c, &coding.Link{URL: "https://b", DisplayOrder: 2})
	f.link(t, c, &coding.Link{URL: "https://a", DisplayOrder: 1})
	f.link(t, c, &coding.Link{URL: "https://hidden", DisplayOrder: 3, TransformationsOnly: true})

	got, err := f.svc.GetAll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got[0].Links, 2)
	assert.Equal(t, "https://a", got[0].Links[0].Link)
	assert.Equal(t, "https://b", got[0].Links[1].Link)
}

func TestGetAll_LogoOverrideAndPath(t *testing.T) {
	f := newFixture()
	c := f.code(t, &coding.Code{Code: "ckd"})
	logoID := uuid.New()
	f.store.LogoDifficulties[logoID] = coding.DifficultyRed
	f.link(t, c, &coding.Link{URL: "https://nhs.uk/ckd", DisplayOrder: 1, DifficultyLevel: coding.DifficultyGreen, LogoRuleID: &logoID})

	got, err := f.svc.GetAll(context.Background(), "")
	require.NoError(t, err)
	link := got[0].Links[0]
	assert.Equal(t, coding.DifficultyRed, link.DifficultyLevel)
	assert.Equal(t, "/api/v1/logos/"+logoID.String()+"/image", link.LogoPath)
}

func TestGetAll_CachedUntilEvicted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.code(t, &coding.Code{Code: "c1"})

	first, err := f.svc.GetAll(ctx, "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	f.code(t, &coding.Code{Code: "c2"})
	cached, err := f.svc.GetAll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	require.NoError(t, f.loader.EvictListings(ctx))
	fresh, err := f.svc.GetAll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestGetCodesBySynonyms(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.code(t, &coding.Code{Code: "ckd", Synonyms: []string{"Chronic kidney disease"}})
	f.code(t, &coding.Code{Code: "n18", ExternalStandards: []coding.ExternalStandard{{Standard: coding.StandardICD10, CodeString: "N18.9"}}})
	f.code(t, &coding.Code{Code: "asthma", Synonyms: []string{"Wheeze"}})

	got, err := f.svc.GetCodesBySynonyms(ctx, "kidney", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ckd", got[0].Code)

	got, err = f.svc.GetCodesBySynonyms(ctx, "N18.3", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "n18", got[0].Code)

	got, err = f.svc.GetCodesBySynonyms(ctx, "nothing", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetCodesBySynonyms_Validation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GetCodesBySynonyms(context.Background(), " ", "")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = f.svc.GetCodesBySynonyms(context.Background(), "kidney", "UNIV_Z")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetAllCategories(t *testing.T) {
	f := newFixture()
	f.store.AddCategory(&coding.Category{Number: 2, FriendlyDescription: "Kidneys"})
	f.store.AddCategory(&coding.Category{Number: 1, FriendlyDescription: "Heart"})

	got, err := f.svc.GetAllCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Number)
	assert.Equal(t, "Kidneys", got[1].FriendlyDescription)
}
