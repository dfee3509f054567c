package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"incidentreg/core/auth"
	"incidentreg/core/incidents"
	"incidentreg/core/rbac"
	"incidentreg/core/regions"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

const publicListLimit = 100

type IncidentsHandler struct {
	svc     *incidents.Service
	regions *regions.Service
	authz   *rbac.Authorizer
	logger  *utils.Logger
}

func NewIncidentsHandler(svc *incidents.Service, rs *regions.Service, authz *rbac.Authorizer, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, regions: rs, authz: authz, logger: logger}
}

type publicIncident struct {
	ID                int64       `json:"id"`
	RegionID          int64       `json:"region_id"`
	SchoolID          int64       `json:"school_id"`
	Description       string      `json:"description"`
	OccurredAt        string      `json:"occurred_at"`
	ReportedToSchool  bool        `json:"reported_to_school"`
	ReportedAt        string      `json:"reported_at,omitempty"`
	SchoolRespondedAt string      `json:"school_responded_at,omitempty"`
	SchoolResponse    string      `json:"school_response,omitempty"`
	PublishedAt       *time.Time  `json:"published_at"`
	Links             []linkView  `json:"links"`
	Extras            []extraView `json:"extras"`
}

type linkView struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type extraView struct {
	Name         string `json:"name"`
	Value        string `json:"value"`
	AttachmentID *int64 `json:"attachment_id,omitempty"`
}

func toPublic(inc *store.Incident, extras []store.IncidentExtra) publicIncident {
	out := publicIncident{
		ID:               inc.ID,
		RegionID:         inc.RegionID,
		SchoolID:         inc.SchoolID,
		Description:      inc.Description,
		OccurredAt:       inc.OccurredAt.String(),
		ReportedToSchool: inc.ReportedToSchool,
		SchoolResponse:   inc.SchoolResponse,
		PublishedAt:      inc.PublishedAt,
		Links:            make([]linkView, 0, len(inc.Links)),
		Extras:           make([]extraView, 0, len(extras)),
	}
	if inc.ReportedAt.Valid {
		out.ReportedAt = inc.ReportedAt.Date.String()
	}
	if inc.SchoolRespondedAt.Valid {
		out.SchoolRespondedAt = inc.SchoolRespondedAt.Date.String()
	}
	for _, l := range inc.Links {
		out.Links = append(out.Links, linkView{Name: l.Name, URL: l.URL})
	}
	for _, e := range extras {
		out.Extras = append(out.Extras, extraView{Name: e.Name, Value: e.Value, AttachmentID: e.AttachmentID})
	}
	return out
}

// Create handles POST /admin/incidents.
func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var in incidents.Input
	if err := decodeJSON(w, r, &in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !h.canManageRegionID(w, r, caller, in.RegionID) {
		return
	}
	inc, err := h.svc.Create(r.Context(), in, caller.User)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

// Update handles PUT /admin/incidents/{id}. Moving an incident requires
// rights over both regions.
func (h *IncidentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, existing, ok := h.loadManaged(w, r)
	if !ok {
		return
	}
	var in incidents.Input
	if err := decodeJSON(w, r, &in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if in.RegionID != existing.RegionID && !h.canManageRegionID(w, r, caller, in.RegionID) {
		return
	}
	inc, err := h.svc.Update(r.Context(), existing.ID, in, caller.User)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// Get handles GET /admin/incidents/{id}; drafts are visible here.
func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, inc, ok := h.loadManaged(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// Publish handles POST /admin/incidents/{id}/publish.
func (h *IncidentsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	caller, existing, ok := h.loadManaged(w, r)
	if !ok {
		return
	}
	inc, err := h.svc.Publish(r.Context(), existing.ID, caller.User)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// PublicGet handles GET /incidents/{id}. Unpublished incidents are reported
// as missing.
func (h *IncidentsHandler) PublicGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(urlParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	inc, err := h.svc.GetPublished(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	extras, err := h.svc.Extras(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublic(inc, extras))
}

// PublicList handles GET /regions/{slug}/incidents.
func (h *IncidentsHandler) PublicList(w http.ResponseWriter, r *http.Request) {
	region, err := h.regions.Get(r.Context(), urlParam(r, "slug"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	limit := publicListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < publicListLimit {
			limit = n
		}
	}
	list, err := h.svc.ListPublished(r.Context(), region.ID, limit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	out := make([]publicIncident, 0, len(list))
	for i := range list {
		out = append(out, toPublic(&list[i], nil))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"region": region.Slug, "items": out})
}

func (h *IncidentsHandler) loadManaged(w http.ResponseWriter, r *http.Request) (*auth.Caller, *store.Incident, bool) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, nil, false
	}
	id, ok := parseID(urlParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return nil, nil, false
	}
	inc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return nil, nil, false
	}
	region, err := h.regions.GetByID(r.Context(), inc.RegionID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return nil, nil, false
	}
	if !h.authz.CanManage(caller.User, caller.Groups, region) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, nil, false
	}
	return caller, inc, true
}

func (h *IncidentsHandler) canManageRegionID(w http.ResponseWriter, r *http.Request, caller *auth.Caller, regionID int64) bool {
	region, err := h.regions.GetByID(r.Context(), regionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, fmt.Sprintf("unknown region %d", regionID), http.StatusBadRequest)
			return false
		}
		writeError(w, h.logger, r, err)
		return false
	}
	if !h.authz.CanManage(caller.User, caller.Groups, region) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}
