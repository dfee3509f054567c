package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentreg/config"
	"incidentreg/core/attachments"
	"incidentreg/core/partialdate"
	"incidentreg/core/store"
	"incidentreg/core/store/storetest"
)

type harness struct {
	db        *store.DB
	registry  *attachments.Registry
	incidents store.IncidentsStore
	resolver  *Resolver
}

func newHarness(t *testing.T, cfg config.AttachmentsConfig) *harness {
	db := storetest.Open(t)
	atts := store.NewAttachmentsStore(db)
	incidents := store.NewIncidentsStore(db)
	return &harness{
		db:        db,
		registry:  attachments.NewRegistry(atts, nil),
		incidents: incidents,
		resolver:  NewResolver(atts, incidents, store.NewRegionsStore(db), cfg, nil),
	}
}

func (h *harness) incident(t *testing.T, fx storetest.Fixture) *store.Incident {
	inc := &store.Incident{RegionID: fx.Region.ID, SchoolID: fx.School.ID, Description: "d", OccurredAt: partialdate.MustParse("2020-09")}
	_, err := h.incidents.CreateIncident(context.Background(), inc)
	require.NoError(t, err)
	return inc
}

func TestDirectParentResolvesIncidentRegion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.AttachmentsConfig{})
	fx := storetest.Seed(t, h.db, "Renton")
	inc := h.incident(t, fx)

	for _, kind := range []attachments.Kind{attachments.KindSupportingMaterial, attachments.KindSchoolResponseMaterial} {
		blob, err := h.registry.Create(ctx, kind, "m.pdf", []byte("x"), &inc.ID)
		require.NoError(t, err)
		region, err := h.resolver.ControllingRegion(ctx, kind, blob.ID)
		require.NoError(t, err)
		require.NotNil(t, region)
		assert.Equal(t, fx.Region.ID, region.ID)
		assert.Equal(t, "Renton Admins", region.GroupName)
	}
}

func TestUnattachedMaterialIsOwnerless(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.AttachmentsConfig{})
	blob, err := h.registry.Create(ctx, attachments.KindSupportingMaterial, "loose.pdf", []byte("x"), nil)
	require.NoError(t, err)

	region, err := h.resolver.ControllingRegion(ctx, attachments.KindSupportingMaterial, blob.ID)
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestDistrictLogoHasNoRegion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.AttachmentsConfig{})
	fx := storetest.Seed(t, h.db, "Kent")
	blob, err := h.registry.Create(ctx, attachments.KindDistrictLogo, "kent.png", []byte("x"), &fx.District.ID)
	require.NoError(t, err)

	region, err := h.resolver.ControllingRegion(ctx, attachments.KindDistrictLogo, blob.ID)
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestMissingAttachmentIsNotFound(t *testing.T) {
	h := newHarness(t, config.AttachmentsConfig{})
	_, err := h.resolver.ControllingRegion(context.Background(), attachments.KindSupportingMaterial, 99)
	var nf *attachments.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestLegacyScanFindsFirstUsingIncident(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.AttachmentsConfig{})
	north := storetest.Seed(t, h.db, "North")
	south := storetest.Seed(t, h.db, "South")
	first := h.incident(t, north)
	second := h.incident(t, south)

	shared, err := h.registry.Create(ctx, attachments.KindAttachment, "shared.pdf", []byte("x"), nil)
	require.NoError(t, err)
	extra, err := h.registry.Create(ctx, attachments.KindAttachment, "extra.jpg", []byte("x"), nil)
	require.NoError(t, err)
	lonely, err := h.registry.Create(ctx, attachments.KindAttachment, "lonely.pdf", []byte("x"), nil)
	require.NoError(t, err)

	require.NoError(t, h.incidents.LinkResponseAttachment(ctx, second.ID, shared.ID))
	require.NoError(t, h.incidents.LinkSupportingAttachment(ctx, first.ID, shared.ID))
	_, err = h.incidents.AddIncidentExtra(ctx, &store.IncidentExtra{IncidentID: second.ID, Name: "photo", AttachmentID: &extra.ID})
	require.NoError(t, err)

	region, err := h.resolver.ControllingRegion(ctx, attachments.KindAttachment, shared.ID)
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, north.Region.ID, region.ID, "lowest incident id wins")

	region, err = h.resolver.ControllingRegion(ctx, attachments.KindAttachment, extra.ID)
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, south.Region.ID, region.ID)

	region, err = h.resolver.ControllingRegion(ctx, attachments.KindAttachment, lonely.ID)
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestLegacyScanCanBeDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.AttachmentsConfig{DisableLegacyScan: true})
	fx := storetest.Seed(t, h.db, "Tukwila")
	inc := h.incident(t, fx)
	blob, err := h.registry.Create(ctx, attachments.KindAttachment, "a.pdf", []byte("x"), nil)
	require.NoError(t, err)
	require.NoError(t, h.incidents.LinkSupportingAttachment(ctx, inc.ID, blob.ID))

	assert.False(t, h.resolver.LegacyScanEnabled())
	region, err := h.resolver.ControllingRegion(ctx, attachments.KindAttachment, blob.ID)
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestRegionForParent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.AttachmentsConfig{})
	fx := storetest.Seed(t, h.db, "Auburn")
	inc := h.incident(t, fx)

	region, err := h.resolver.RegionForParent(ctx, attachments.KindSchoolResponseMaterial, &inc.ID)
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, fx.Region.ID, region.ID)

	region, err = h.resolver.RegionForParent(ctx, attachments.KindDistrictLogo, &fx.District.ID)
	require.NoError(t, err)
	assert.Nil(t, region)

	region, err = h.resolver.RegionForParent(ctx, attachments.KindSupportingMaterial, nil)
	require.NoError(t, err)
	assert.Nil(t, region)

	missing := inc.ID + 50
	_, err = h.resolver.RegionForParent(ctx, attachments.KindSupportingMaterial, &missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.resolver.RegionForParent(ctx, attachments.KindDistrictLogo, &missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.resolver.RegionForParent(ctx, attachments.KindAttachment, &inc.ID)
	assert.Error(t, err)
}
