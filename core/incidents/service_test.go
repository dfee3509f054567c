package incidents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentreg/core/partialdate"
	"incidentreg/core/store"
	"incidentreg/core/store/storetest"
)

func setup(t *testing.T) (*Service, storetest.Fixture) {
	db := storetest.Open(t)
	fx := storetest.Seed(t, db, "Vancouver")
	svc := NewService(store.NewIncidentsStore(db), store.NewRegionsStore(db), store.NewAuditStore(db), nil)
	return svc, fx
}

func validInput(fx storetest.Fixture) Input {
	return Input{
		RegionID:    fx.Region.ID,
		SchoolID:    fx.School.ID,
		Description: "Graffiti in the gym",
		OccurredAt:  "2024-02",
		ReportedAt:  "2024-02-20",
		Links:       []Link{{Name: "News", URL: "https://example.org/story"}},
	}
}

func TestCreateDraft(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)

	inc, err := svc.Create(ctx, validInput(fx), "editor")
	require.NoError(t, err)
	assert.False(t, inc.IsPublished())
	assert.Equal(t, partialdate.MustParse("2024-02"), inc.OccurredAt)
	assert.True(t, inc.ReportedAt.Valid)
	assert.False(t, inc.SchoolRespondedAt.Valid)
	assert.False(t, inc.SchoolResponded())

	stored, err := svc.Get(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, stored.Links, 1)
	assert.Equal(t, "News", stored.Links[0].Name)
	assert.Equal(t, inc.Links[0].ID, stored.Links[0].ID)

	_, err = svc.GetPublished(ctx, inc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateRejectsBadDates(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)

	in := validInput(fx)
	in.OccurredAt = "2024-2"
	_, err := svc.Create(ctx, in, "editor")
	var fe *partialdate.FormatError
	assert.True(t, errors.As(err, &fe))

	in = validInput(fx)
	in.ReportedAt = "2023-02-30"
	_, err = svc.Create(ctx, in, "editor")
	var ve *partialdate.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "reported_at")
}

func TestCreateRejectsUnknownReferences(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)

	in := validInput(fx)
	in.RegionID = 999
	_, err := svc.Create(ctx, in, "editor")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "region_id", ve.Field)

	in = validInput(fx)
	in.SchoolID = 999
	_, err = svc.Create(ctx, in, "editor")
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "school_id", ve.Field)

	in = validInput(fx)
	in.Description = " "
	_, err = svc.Create(ctx, in, "editor")
	require.True(t, errors.As(err, &ve))
}

func TestCreateRejectsUnknownTypes(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	fx := storetest.Seed(t, db, "Bellingham")
	incidentsStore := store.NewIncidentsStore(db)
	svc := NewService(incidentsStore, store.NewRegionsStore(db), nil, nil)

	kind := &store.IncidentType{Name: "Vandalism"}
	_, err := incidentsStore.CreateIncidentType(ctx, kind)
	require.NoError(t, err)
	source := &store.SourceType{Name: "News report"}
	_, err = incidentsStore.CreateSourceType(ctx, source)
	require.NoError(t, err)

	in := validInput(fx)
	in.IncidentTypeIDs = []int64{kind.ID, 999}
	_, err = svc.Create(ctx, in, "editor")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "incident_type_ids", ve.Field)
	assert.Contains(t, ve.Reason, "999")

	in = validInput(fx)
	in.SourceTypeIDs = []int64{source.ID, 0}
	_, err = svc.Create(ctx, in, "editor")
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "source_type_ids", ve.Field)

	list, err := incidentsStore.ListIncidents(ctx, store.IncidentFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	in = validInput(fx)
	in.IncidentTypeIDs = []int64{kind.ID}
	in.SourceTypeIDs = []int64{source.ID}
	inc, err := svc.Create(ctx, in, "editor")
	require.NoError(t, err)
	assert.Equal(t, []int64{kind.ID}, inc.IncidentTypeIDs)
}

func TestCreateRejectsBadLinks(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)

	for _, link := range []Link{
		{Name: "", URL: "https://example.org"},
		{Name: "Relative", URL: "/story"},
		{Name: "Script", URL: "javascript:alert(1)"},
	} {
		in := validInput(fx)
		in.Links = []Link{link}
		_, err := svc.Create(ctx, in, "editor")
		var ve *ValidationError
		require.True(t, errors.As(err, &ve), link.URL)
		assert.Contains(t, ve.Field, "links[0]")
	}
	list, err := svc.ListPublished(ctx, fx.Region.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)
	inc, err := svc.Create(ctx, validInput(fx), "editor")
	require.NoError(t, err)

	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return stamp }
	published, err := svc.Publish(ctx, inc.ID, "chief")
	require.NoError(t, err)
	require.NotNil(t, published.PublishedAt)
	assert.True(t, published.PublishedAt.Equal(stamp))
	assert.True(t, published.UpdatedAt.Equal(stamp))
	assert.Equal(t, "chief", published.PublishedBy)

	svc.now = func() time.Time { return stamp.Add(time.Hour) }
	again, err := svc.Publish(ctx, inc.ID, "someone-else")
	require.NoError(t, err)
	assert.True(t, again.PublishedAt.Equal(stamp))
	assert.Equal(t, "chief", again.PublishedBy)

	visible, err := svc.GetPublished(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, inc.ID, visible.ID)

	list, err := svc.ListPublished(ctx, fx.Region.ID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Publish(ctx, inc.ID+1, "chief")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateRefreshesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)
	inc, err := svc.Create(ctx, validInput(fx), "editor")
	require.NoError(t, err)

	in := validInput(fx)
	in.SchoolResponse = "Principal called the family"
	in.SchoolRespondedAt = "2024-03"
	time.Sleep(5 * time.Millisecond)
	updated, err := svc.Update(ctx, inc.ID, in, "editor")
	require.NoError(t, err)
	assert.True(t, updated.SchoolResponded())
	assert.Equal(t, "2024-03", updated.SchoolRespondedAt.String())
	assert.True(t, updated.UpdatedAt.After(inc.UpdatedAt))
}

func TestUpdateReplacesLinks(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)
	inc, err := svc.Create(ctx, validInput(fx), "editor")
	require.NoError(t, err)

	in := validInput(fx)
	in.Links = nil
	kept, err := svc.Update(ctx, inc.ID, in, "editor")
	require.NoError(t, err)
	require.Len(t, kept.Links, 1)
	assert.Equal(t, "News", kept.Links[0].Name)

	in.Links = []Link{{Name: "Board minutes", URL: "https://example.org/minutes"}, {Name: "Letter", URL: "http://example.org/letter"}}
	replaced, err := svc.Update(ctx, inc.ID, in, "editor")
	require.NoError(t, err)
	require.Len(t, replaced.Links, 2)
	assert.Equal(t, "Board minutes", replaced.Links[0].Name)
	assert.Equal(t, "Letter", replaced.Links[1].Name)

	in.Links = []Link{}
	cleared, err := svc.Update(ctx, inc.ID, in, "editor")
	require.NoError(t, err)
	assert.Empty(t, cleared.Links)

	in.Links = []Link{{Name: "Bad", URL: "ftp://example.org"}}
	_, err = svc.Update(ctx, inc.ID, in, "editor")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	after, err := svc.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Links)
}

func TestAddExtra(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)
	inc, err := svc.Create(ctx, validInput(fx), "editor")
	require.NoError(t, err)

	extra, err := svc.AddExtra(ctx, inc.ID, "witness", "coach on duty", nil)
	require.NoError(t, err)
	assert.NotZero(t, extra.ID)

	extras, err := svc.Extras(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, extras, 1)
	assert.Equal(t, "coach on duty", extras[0].Value)

	_, err = svc.AddExtra(ctx, inc.ID, "", "x", nil)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	_, err = svc.AddExtra(ctx, inc.ID+9, "x", "y", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSchoolNeedsAGradeLevel(t *testing.T) {
	ctx := context.Background()
	svc, fx := setup(t)

	_, err := svc.CreateSchool(ctx, &store.School{Name: "Empty", DistrictID: &fx.District.ID})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "school", ve.Field)

	school, err := svc.CreateSchool(ctx, &store.School{Name: "Elm Elementary", IsElementary: true})
	require.NoError(t, err)
	assert.NotZero(t, school.ID)
}
