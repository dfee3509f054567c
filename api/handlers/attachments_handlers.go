package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"incidentreg/config"
	"incidentreg/core/attachments"
	"incidentreg/core/auth"
	"incidentreg/core/ownership"
	"incidentreg/core/rbac"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

type AttachmentsHandler struct {
	cfg      *config.AppConfig
	registry *attachments.Registry
	owners   *ownership.Resolver
	authz    *rbac.Authorizer
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewAttachmentsHandler(cfg *config.AppConfig, registry *attachments.Registry, owners *ownership.Resolver, authz *rbac.Authorizer, audits store.AuditStore, logger *utils.Logger) *AttachmentsHandler {
	return &AttachmentsHandler{cfg: cfg, registry: registry, owners: owners, authz: authz, audits: audits, logger: logger}
}

type attachmentView struct {
	Kind        string `json:"kind"`
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	IsImage     bool   `json:"is_image"`
	Locator     string `json:"locator"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}

func (h *AttachmentsHandler) view(b *attachments.Blob) attachmentView {
	ct, ok := b.ContentType()
	if !ok {
		ct = h.cfg.Attachments.EffectiveFallbackType()
	}
	return attachmentView{
		Kind:        b.Kind.Token(),
		ID:          b.ID,
		Name:        b.Name,
		Size:        b.Size,
		ContentType: ct,
		IsImage:     b.IsImage(),
		Locator:     b.Locator(),
		ParentID:    b.ParentID,
	}
}

// Serve handles GET /a/{kind}/{key}.
func (h *AttachmentsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	d, err := attachments.ResolveKind(urlParam(r, "kind"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	blob, err := h.registry.Fetch(r.Context(), d.Kind, urlParam(r, "key"))
	if err != nil {
		h.fetchFailed(w, r, err)
		return
	}
	h.serveBlob(w, r, blob)
}

// ServeByID handles GET /a/{kind}/{id}/{name}.
func (h *AttachmentsHandler) ServeByID(w http.ResponseWriter, r *http.Request) {
	d, err := attachments.ResolveKind(urlParam(r, "kind"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	id, ok := parseID(urlParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	blob, err := h.registry.FetchByID(r.Context(), d.Kind, id, urlParam(r, "name"))
	if err != nil {
		h.fetchFailed(w, r, err)
		return
	}
	h.serveBlob(w, r, blob)
}

func (h *AttachmentsHandler) fetchFailed(w http.ResponseWriter, r *http.Request, err error) {
	var nf *attachments.NotFoundError
	if errors.As(err, &nf) {
		http.NotFound(w, r)
		return
	}
	writeError(w, h.logger, r, err)
}

func (h *AttachmentsHandler) serveBlob(w http.ResponseWriter, r *http.Request, blob *attachments.Blob) {
	ct, ok := blob.ContentType()
	if !ok {
		ct = h.cfg.Attachments.EffectiveFallbackType()
	}
	etag := `"` + utils.ContentDigest(blob.Data) + `"`
	hdr := w.Header()
	hdr.Set("ETag", etag)
	hdr.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", h.cfg.Attachments.CacheMaxAgeSec))
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	hdr.Set("Content-Type", ct)
	hdr.Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

// Replace handles PUT /admin/attachments/{kind}/{key}; the body is the new payload.
func (h *AttachmentsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	caller, d, blob, ok := h.authorizeExisting(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.Attachments.UploadMaxBytes))
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	updated, err := h.registry.Replace(r.Context(), d.Kind, blob.Name, data)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.audit(r, caller, "attachment.replace", fmt.Sprintf("kind=%s name=%s size=%d", d.Token, blob.Name, len(data)))
	writeJSON(w, http.StatusOK, h.view(updated))
}

// Delete handles DELETE /admin/attachments/{kind}/{key}.
func (h *AttachmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, d, blob, ok := h.authorizeExisting(w, r)
	if !ok {
		return
	}
	if _, err := h.registry.Delete(r.Context(), d.Kind, blob.Name); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.audit(r, caller, "attachment.delete", fmt.Sprintf("kind=%s name=%s", d.Token, blob.Name))
	w.WriteHeader(http.StatusNoContent)
}

// Upload handles POST /admin/attachments/{kind} as multipart form data with
// a "file" part and optional "name" and "parent_id" fields.
func (h *AttachmentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	d, err := attachments.ResolveKind(urlParam(r, "kind"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Attachments.UploadMaxBytes+1<<20)
	if err := r.ParseMultipartForm(h.cfg.Attachments.UploadMaxBytes); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	if header.Size > h.cfg.Attachments.UploadMaxBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	if err := attachments.ValidateName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var parentID *int64
	if raw := strings.TrimSpace(r.FormValue("parent_id")); raw != "" {
		id, ok := parseID(raw)
		if !ok {
			http.Error(w, "invalid parent_id", http.StatusBadRequest)
			return
		}
		if d.Parent == attachments.ParentNone {
			http.Error(w, d.Token+" does not take a parent", http.StatusBadRequest)
			return
		}
		parentID = &id
	}
	region, err := h.owners.RegionForParent(r.Context(), d.Kind, parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "unknown parent", http.StatusBadRequest)
			return
		}
		writeError(w, h.logger, r, err)
		return
	}
	if !h.authz.CanManage(caller.User, caller.Groups, region) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	blob, err := h.registry.Create(r.Context(), d.Kind, name, data, parentID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.audit(r, caller, "attachment.upload", fmt.Sprintf("kind=%s name=%s size=%d", d.Token, name, len(data)))
	writeJSON(w, http.StatusCreated, h.view(blob))
}

// authorizeExisting resolves the target of an admin mutation and checks the
// caller governs its controlling region.
func (h *AttachmentsHandler) authorizeExisting(w http.ResponseWriter, r *http.Request) (*auth.Caller, attachments.Descriptor, *attachments.Blob, bool) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, attachments.Descriptor{}, nil, false
	}
	d, err := attachments.ResolveKind(urlParam(r, "kind"))
	if err != nil {
		http.NotFound(w, r)
		return nil, d, nil, false
	}
	blob, err := h.registry.Fetch(r.Context(), d.Kind, urlParam(r, "key"))
	if err != nil {
		h.fetchFailed(w, r, err)
		return nil, d, nil, false
	}
	region, err := h.owners.ControllingRegion(r.Context(), d.Kind, blob.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return nil, d, nil, false
	}
	if !h.authz.CanManage(caller.User, caller.Groups, region) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, d, nil, false
	}
	return caller, d, blob, true
}

func (h *AttachmentsHandler) audit(r *http.Request, caller *auth.Caller, action, details string) {
	if h.audits == nil {
		return
	}
	if err := h.audits.Log(r.Context(), caller.User, action, details); err != nil {
		h.logger.Errorf("audit %s: %v", action, err)
	}
}
