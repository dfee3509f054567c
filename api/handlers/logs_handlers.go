package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"incidentreg/core/auth"
	"incidentreg/core/rbac"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

const auditPageMax = 500

// LogsHandler exposes the audit trail to superusers.
type LogsHandler struct {
	audits store.AuditStore
	authz  *rbac.Authorizer
	logger *utils.Logger
}

func NewLogsHandler(audits store.AuditStore, authz *rbac.Authorizer, logger *utils.Logger) *LogsHandler {
	return &LogsHandler{audits: audits, authz: authz, logger: logger}
}

type logFilter struct {
	Action string `json:"action,omitempty"`
	User   string `json:"user,omitempty"`
	Limit  int    `json:"limit"`
}

func parseLogFilter(r *http.Request) logFilter {
	q := r.URL.Query()
	limit := 100
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > auditPageMax {
		limit = auditPageMax
	}
	return logFilter{
		Action: strings.ToLower(strings.TrimSpace(q.Get("action"))),
		User:   strings.TrimSpace(q.Get("user")),
		Limit:  limit,
	}
}

// List handles GET /admin/audit.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}
	filter := parseLogFilter(r)
	items, err := h.filteredLogs(r, filter)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "filter": filter})
}

// Export handles GET /admin/audit/export as CSV.
func (h *LogsHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}
	filter := parseLogFilter(r)
	filter.Limit = auditPageMax
	items, err := h.filteredLogs(r, filter)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	filename := "audit_" + time.Now().UTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"time", "username", "action", "details"})
	for i := range items {
		_ = writer.Write([]string{
			items[i].CreatedAt.UTC().Format(time.RFC3339),
			items[i].Username,
			items[i].Action,
			items[i].Details,
		})
	}
	writer.Flush()
}

func (h *LogsHandler) allowed(w http.ResponseWriter, r *http.Request) bool {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if !h.authz.IsSuperuser(caller.Groups) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *LogsHandler) filteredLogs(r *http.Request, filter logFilter) ([]store.AuditEntry, error) {
	items, err := h.audits.List(r.Context(), filter.Action, filter.Limit)
	if err != nil {
		return nil, err
	}
	if filter.User == "" {
		return items, nil
	}
	out := make([]store.AuditEntry, 0, len(items))
	for _, it := range items {
		if strings.EqualFold(it.Username, filter.User) {
			out = append(out, it)
		}
	}
	return out, nil
}
