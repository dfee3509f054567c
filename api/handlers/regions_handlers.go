package handlers

import (
	"net/http"
	"strings"

	"incidentreg/core/auth"
	"incidentreg/core/rbac"
	"incidentreg/core/regions"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

type RegionsHandler struct {
	svc    *regions.Service
	authz  *rbac.Authorizer
	logger *utils.Logger
}

func NewRegionsHandler(svc *regions.Service, authz *rbac.Authorizer, logger *utils.Logger) *RegionsHandler {
	return &RegionsHandler{svc: svc, authz: authz, logger: logger}
}

type regionView struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	GroupName string   `json:"group"`
	Members   []string `json:"members,omitempty"`
}

type regionPayload struct {
	Name string `json:"name"`
}

// List handles GET /admin/regions and only returns regions the caller governs.
func (h *RegionsHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	all, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	out := make([]regionView, 0, len(all))
	for i := range all {
		if h.authz.CanManage(caller.User, caller.Groups, &all[i]) {
			out = append(out, regionView{ID: all[i].ID, Name: all[i].Name, Slug: all[i].Slug, GroupName: all[i].GroupName})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
}

// Create handles POST /admin/regions. Only superusers may add regions.
func (h *RegionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.authz.IsSuperuser(caller.Groups) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var payload regionPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	region, err := h.svc.CreateWithGroup(r.Context(), payload.Name, caller.User)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(r, region))
}

// Get handles GET /admin/regions/{slug}.
func (h *RegionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	region, err := h.svc.Get(r.Context(), urlParam(r, "slug"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !h.authz.CanManage(caller.User, caller.Groups, region) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, region))
}

// Rename handles PATCH /admin/regions/{id}. The paired group is renamed in
// the same transaction.
func (h *RegionsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	caller, region, ok := h.managed(w, r)
	if !ok {
		return
	}
	var payload regionPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	renamed, err := h.svc.Rename(r.Context(), region.ID, payload.Name, caller.User)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, renamed))
}

// AddMember handles POST /admin/regions/{id}/members.
func (h *RegionsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	caller, region, ok := h.managed(w, r)
	if !ok {
		return
	}
	var payload struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(w, r, &payload); err != nil || strings.TrimSpace(payload.Username) == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}
	if err := h.svc.AddMember(r.Context(), region.ID, strings.TrimSpace(payload.Username), caller.User); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, region))
}

func (h *RegionsHandler) managed(w http.ResponseWriter, r *http.Request) (*auth.Caller, *store.Region, bool) {
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
	region, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return nil, nil, false
	}
	if !h.authz.CanManage(caller.User, caller.Groups, region) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, nil, false
	}
	return caller, region, true
}

func (h *RegionsHandler) view(r *http.Request, region *store.Region) regionView {
	v := regionView{ID: region.ID, Name: region.Name, Slug: region.Slug, GroupName: region.GroupName}
	group, err := h.svc.Group(r.Context(), region)
	if err != nil {
		h.logger.Errorf("load group for region %d: %v", region.ID, err)
		return v
	}
	if group != nil {
		v.GroupName = group.Name
		v.Members = group.Members
	}
	return v
}
