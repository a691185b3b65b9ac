package linkrule_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

func TestCreate_MaterializesAndEvicts(t *testing.T) {
	f := newFixture()
	l := f.link("https://publisher.example/articleA")

	rule, err := f.svc.Create(context.Background(), request("https://publisher.example/", "https://proxy.example/unlocked", "UNIV_X"))
	require.NoError(t, err)
	require.Len(t, rule.Mappings, 1)
	assert.Equal(t, "https://proxy.example/unlockedarticleA", rule.Mappings[0].ReplacementLink)
	assert.Equal(t, coding.InstitutionCriteria{Code: "UNIV_X"}, rule.Mappings[0].Criteria)
	assert.Equal(t, l.ID, rule.Mappings[0].LinkID)
	assert.Equal(t, 1, f.evicts.n)
}

func TestCreate_RejectsUnsupportedCriteria(t *testing.T) {
	f := newFixture()
	req := request("https://publisher.example/", "x", "UNIV_X")
	req.CriteriaType = "REGION"
	_, err := f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.Zero(t, f.evicts.n)
}

func TestCreate_RequiresLink(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), request(" ", "x", "UNIV_X"))
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCreate_UnknownInstitution(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), request("https://publisher.example/", "x", "UNIV_Z"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	rules, _ := f.svc.List(context.Background())
	assert.Empty(t, rules)
}

func TestUpdate_RegeneratesMappings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.link("https://publisher.example/a")
	b := f.link("https://journal.example/b")

	rule, err := f.svc.Create(ctx, request("https://publisher.example/", "https://proxy/", "UNIV_X"))
	require.NoError(t, err)

	rule, err = f.svc.Update(ctx, rule.ID, request("https://journal.example/", "https://proxy/", "UNIV_Y"))
	require.NoError(t, err)
	require.Len(t, rule.Mappings, 1)

	assert.Empty(t, f.reload(a).Mappings)
	got := f.reload(b).Mappings
	require.Len(t, got, 1)
	assert.Equal(t, "https://proxy/b", got[0].ReplacementLink)
	assert.Equal(t, coding.InstitutionCriteria{Code: "UNIV_Y"}, got[0].Criteria)
	assert.Equal(t, 2, f.evicts.n)
}

func TestUpdateDelete_UnknownIDIsBadRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Update(ctx, uuid.New(), request("https://a/", "x", "UNIV_X"))
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.ErrorIs(t, f.svc.Delete(ctx, uuid.New()), apperrors.ErrBadRequest)
}

func TestDelete_CascadesMappings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	l := f.link("https://publisher.example/a")

	rule, err := f.svc.Create(ctx, request("https://publisher.example/", "https://proxy/", "UNIV_X"))
	require.NoError(t, err)
	require.Len(t, f.reload(l).Mappings, 1)

	require.NoError(t, f.svc.Delete(ctx, rule.ID))
	assert.Empty(t, f.reload(l).Mappings)
	assert.Zero(t, f.store.MappingCount())

	_, err = f.svc.Get(ctx, rule.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGet_IncludesMappings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.link("https://publisher.example/a")
	f.link("https://publisher.example/b")

	created, err := f.svc.Create(ctx, request("https://publisher.example/", "https://proxy/", "UNIV_X"))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.Mappings, 2)
}

func TestRebuildMappings_Evicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.link("https://publisher.example/a")
	_, err := f.svc.Create(ctx, request("https://publisher.example/", "https://proxy/", "UNIV_X"))
	require.NoError(t, err)

	n, err := f.svc.RebuildMappings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.evicts.n)
}
