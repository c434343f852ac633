package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/subjectboard/server/internal/api/pagination"
	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/validation"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

type AuditHandler struct {
	Store audit.Store
	Env   string
}

func NewAuditHandler(store audit.Store, env string) *AuditHandler {
	return &AuditHandler{Store: store, Env: env}
}

type auditListResponse struct {
	Items      []audit.Entry `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

// List returns a page of entries, newest first. Passing next_cursor back as
// ?after= continues with older entries.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultAuditLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			writeServiceError(w, r, validation.Field("limit", "must be an integer between 1 and 200"), h.Env)
			return
		}
		limit = n
	}
	after := strings.TrimSpace(query.Get("after"))
	if after != "" {
		if _, err := pagination.DecodeAuditCursor(after); err != nil {
			writeServiceError(w, r, validation.Field("after", "must be a cursor returned as next_cursor"), h.Env)
			return
		}
	}

	result, err := h.Store.ListAuditEntries(r.Context(), audit.Page{Limit: limit, After: after})
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, auditListResponse{Items: result.Entries, NextCursor: result.NextCursor})
}
