package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentreg/core/attachments"
	"incidentreg/core/incidents"
	"incidentreg/core/partialdate"
	"incidentreg/core/regions"
	"incidentreg/core/store"
)

func TestStatusFor(t *testing.T) {
	_, dateErr := partialdate.Parse("2023-13")
	require.Error(t, dateErr)
	_, formatErr := partialdate.Parse("yesterday")
	require.Error(t, formatErr)

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("occurred_at: %w", dateErr), http.StatusBadRequest},
		{fmt.Errorf("reported_at: %w", formatErr), http.StatusBadRequest},
		{&incidents.ValidationError{Field: "description", Reason: "required"}, http.StatusBadRequest},
		{fmt.Errorf("rename: %w", regions.ErrInvalidName), http.StatusBadRequest},
		{&attachments.NotFoundError{What: "attachment", Key: "x.pdf"}, http.StatusNotFound},
		{fmt.Errorf("incident 4: %w", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("create region: %w", store.ErrConflict), http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/incidents/1", nil)
	writeError(rr, nil, req, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = httptest.NewRecorder()
	writeError(rr, nil, req, fmt.Errorf("incident 1: %w", store.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error"`)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var payload regionPayload
	req := httptest.NewRequest(http.MethodPost, "/admin/regions", strings.NewReader(`{"name":"A","slug":"b"}`))
	assert.Error(t, decodeJSON(httptest.NewRecorder(), req, &payload))

	req = httptest.NewRequest(http.MethodPost, "/admin/regions", strings.NewReader(`{"name":"A"}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &payload))
	assert.Equal(t, "A", payload.Name)
}

func TestPathParamsFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/a/district-logo/logo.svg", nil)
	assert.Equal(t, "district-logo", urlParam(req, "kind"))
	assert.Equal(t, "logo.svg", urlParam(req, "key"))

	req = httptest.NewRequest(http.MethodPost, "/admin/incidents/42/publish", nil)
	id, ok := parseID(urlParam(req, "id"))
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)

	_, ok = parseID("-3")
	assert.False(t, ok)
	_, ok = parseID("abc")
	assert.False(t, ok)
}
