package attachments_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentreg/config"
	"incidentreg/core/attachments"
	"incidentreg/core/partialdate"
	"incidentreg/core/store"
	"incidentreg/core/store/storetest"
)

func newRegistry(t *testing.T) (*attachments.Registry, *store.DB) {
	db := storetest.Open(t)
	return attachments.NewRegistry(store.NewAttachmentsStore(db), nil), db
}

func TestFetchByName(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	_, err := reg.Create(ctx, attachments.KindAttachment, "flyer.pdf", []byte("%PDF"), nil)
	require.NoError(t, err)

	blob, err := reg.Fetch(ctx, attachments.KindAttachment, "flyer.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), blob.Data)
	ct, ok := blob.ContentType()
	assert.True(t, ok)
	assert.Equal(t, "application/pdf", ct)
	assert.False(t, blob.IsImage())
	assert.Equal(t, "/a/attachment/flyer.pdf", blob.Locator())

	_, err = reg.Fetch(ctx, attachments.KindAttachment, "missing.pdf")
	var nf *attachments.NotFoundError
	assert.True(t, errors.As(err, &nf))

	// Same name under another kind is a different instance.
	_, err = reg.Fetch(ctx, attachments.KindSupportingMaterial, "flyer.pdf")
	assert.True(t, errors.As(err, &nf))
}

func TestFetchByIDRequiresMatchingName(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	blob, err := reg.Create(ctx, attachments.KindAttachment, "map.png", []byte("png"), nil)
	require.NoError(t, err)

	got, err := reg.FetchByID(ctx, attachments.KindAttachment, blob.ID, "map.png")
	require.NoError(t, err)
	assert.True(t, got.IsImage())

	_, err = reg.FetchByID(ctx, attachments.KindAttachment, blob.ID, "other.png")
	var nf *attachments.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestWritesAndListKeys(t *testing.T) {
	ctx := context.Background()
	reg, db := newRegistry(t)
	fx := storetest.Seed(t, db, "Everett")

	_, err := reg.Create(ctx, attachments.KindDistrictLogo, "everett.svg", []byte("<svg/>"), &fx.District.ID)
	require.NoError(t, err)
	_, err = reg.Create(ctx, attachments.KindAttachment, "x.pdf", nil, &fx.District.ID)
	assert.Error(t, err, "generic kind has no parent")
	_, err = reg.Create(ctx, attachments.KindAttachment, "a/b.pdf", nil, nil)
	assert.Error(t, err)

	replaced, err := reg.Replace(ctx, attachments.KindDistrictLogo, "everett.svg", []byte("<svg></svg>"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("<svg></svg>")), replaced.Size)

	keys, err := reg.ListKeys(ctx, attachments.KindDistrictLogo)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "everett.svg", keys[0].Name)
	assert.Nil(t, keys[0].Data)

	_, err = reg.Delete(ctx, attachments.KindDistrictLogo, "everett.svg")
	require.NoError(t, err)
	_, err = reg.Delete(ctx, attachments.KindDistrictLogo, "everett.svg")
	var nf *attachments.NotFoundError
	assert.True(t, errors.As(err, &nf))
	_, err = reg.Replace(ctx, attachments.KindDistrictLogo, "everett.svg", []byte("x"))
	assert.True(t, errors.As(err, &nf))
}

type ownedKey struct {
	kind attachments.Kind
	id   int64
}

type fakeOwners struct {
	regions map[ownedKey]*store.Region
	gone    map[ownedKey]bool
	legacy  bool
}

func (f *fakeOwners) ControllingRegion(ctx context.Context, kind attachments.Kind, id int64) (*store.Region, error) {
	if f.gone[ownedKey{kind, id}] {
		return nil, &attachments.NotFoundError{What: kind.String(), Key: fmt.Sprintf("%d", id)}
	}
	return f.regions[ownedKey{kind, id}], nil
}

func (f *fakeOwners) LegacyScanEnabled() bool { return f.legacy }

func TestSweeperReportsOrphans(t *testing.T) {
	ctx := context.Background()
	reg, db := newRegistry(t)
	fx := storetest.Seed(t, db, "Bellevue")
	incidents := store.NewIncidentsStore(db)
	inc := &store.Incident{RegionID: fx.Region.ID, SchoolID: fx.School.ID, Description: "d", OccurredAt: partialdate.MustParse("2021")}
	_, err := incidents.CreateIncident(ctx, inc)
	require.NoError(t, err)

	owned, err := reg.Create(ctx, attachments.KindSupportingMaterial, "owned.pdf", []byte("1"), &inc.ID)
	require.NoError(t, err)
	_, err = reg.Create(ctx, attachments.KindSupportingMaterial, "loose.pdf", []byte("2"), nil)
	require.NoError(t, err)
	_, err = reg.Create(ctx, attachments.KindDistrictLogo, "logo.png", []byte("3"), &fx.District.ID)
	require.NoError(t, err)
	_, err = reg.Create(ctx, attachments.KindDistrictLogo, "stray.png", []byte("4"), nil)
	require.NoError(t, err)
	_, err = reg.Create(ctx, attachments.KindAttachment, "legacy.pdf", []byte("5"), nil)
	require.NoError(t, err)

	owners := &fakeOwners{regions: map[ownedKey]*store.Region{
		{attachments.KindSupportingMaterial, owned.ID}: fx.Region,
	}}
	audit := store.NewAuditStore(db)
	sweeper := attachments.NewSweeper(config.SchedulerConfig{Enabled: true, OrphanSweepSpec: "@every 1h"}, reg, owners, audit, nil)

	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"loose.pdf"}, report.Orphans[attachments.KindSupportingMaterial])
	assert.Equal(t, []string{"stray.png"}, report.Orphans[attachments.KindDistrictLogo])
	assert.NotContains(t, report.Orphans, attachments.KindAttachment, "legacy scan disabled")
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 2, report.Total())

	entries, err := audit.List(ctx, "attachments.orphans", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Details, "supporting-material=loose.pdf")

	owners.legacy = true
	report, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy.pdf"}, report.Orphans[attachments.KindAttachment])
}

func TestSweeperSkipsAttachmentsDeletedMidSweep(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	vanished, err := reg.Create(ctx, attachments.KindSupportingMaterial, "vanished.pdf", []byte("1"), nil)
	require.NoError(t, err)
	_, err = reg.Create(ctx, attachments.KindSupportingMaterial, "loose.pdf", []byte("2"), nil)
	require.NoError(t, err)

	owners := &fakeOwners{gone: map[ownedKey]bool{{attachments.KindSupportingMaterial, vanished.ID}: true}}
	sweeper := attachments.NewSweeper(config.SchedulerConfig{Enabled: true, OrphanSweepSpec: "@every 1h"}, reg, owners, nil, nil)

	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, []string{"loose.pdf"}, report.Orphans[attachments.KindSupportingMaterial])
}

func TestSweeperStartStop(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	disabled := attachments.NewSweeper(config.SchedulerConfig{Enabled: false}, reg, &fakeOwners{}, nil, nil)
	require.NoError(t, disabled.StartWithContext(ctx))
	require.NoError(t, disabled.StopWithContext(ctx))

	bad := attachments.NewSweeper(config.SchedulerConfig{Enabled: true, OrphanSweepSpec: "not a spec"}, reg, &fakeOwners{}, nil, nil)
	assert.Error(t, bad.StartWithContext(ctx))

	s := attachments.NewSweeper(config.SchedulerConfig{Enabled: true, OrphanSweepSpec: "@every 1h"}, reg, &fakeOwners{}, nil, nil)
	require.NoError(t, s.StartWithContext(ctx))
	require.NoError(t, s.StartWithContext(ctx))
	require.NoError(t, s.StopWithContext(ctx))
	require.NoError(t, s.StopWithContext(ctx))
}
