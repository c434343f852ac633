package handlers

import (
	"context"
	"net/http"

	"github.com/subjectboard/server/internal/domain/content"
)

type GroupService interface {
	ListGroups(ctx context.Context) ([]content.Group, error)
	GetGroup(ctx context.Context, id string) (*content.Group, error)
	CreateGroup(ctx context.Context, req content.CreateGroupRequest) (*content.Group, error)
	RenameGroup(ctx context.Context, req content.RenameGroupRequest) (*content.Group, error)
	DeleteGroup(ctx context.Context, req content.DeleteGroupRequest) error
}

type GroupsHandler struct {
	Service GroupService
	Env     string
}

func NewGroupsHandler(service GroupService, env string) *GroupsHandler {
	return &GroupsHandler{Service: service, Env: env}
}

type groupListResponse struct {
	Items []content.Group `json:"items"`
}

type groupResponse struct {
	Message string         `json:"message"`
	Group   *content.Group `json:"group"`
}

func (h *GroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Service.ListGroups(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, groupListResponse{Items: groups})
}

func (h *GroupsHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, err := h.Service.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *GroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req content.CreateGroupRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)

	group, err := h.Service.CreateGroup(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, groupResponse{Message: "Successfully created group", Group: group})
}

func (h *GroupsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req content.RenameGroupRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)

	group, err := h.Service.RenameGroup(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{Message: "Successfully renamed group", Group: group})
}

func (h *GroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req content.DeleteGroupRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)

	if err := h.Service.DeleteGroup(r.Context(), req); err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Successfully deleted group"})
}
