package handlers

import (
	"context"
	"net/http"

	"github.com/subjectboard/server/internal/api/middleware"
	"github.com/subjectboard/server/internal/domain/content"
)

// ContentService is the part of content.Service the content endpoints use.
type ContentService interface {
	CreateLink(ctx context.Context, req content.CreateLinkRequest) (*content.Item, error)
	CreateText(ctx context.Context, req content.CreateTextRequest) (*content.Item, error)
	CreateDeadline(ctx context.Context, req content.CreateDeadlineRequest) (*content.Item, error)
	UpdateLink(ctx context.Context, req content.UpdateLinkRequest) (*content.Item, error)
	UpdateText(ctx context.Context, req content.UpdateTextRequest) (*content.Item, error)
	UpdateDeadline(ctx context.Context, req content.UpdateDeadlineRequest) (*content.Item, error)
	Delete(ctx context.Context, req content.ItemRequest) error
	Read(ctx context.Context, req content.ItemRequest) (*content.Item, error)
}

type ContentHandler struct {
	Service ContentService
	Env     string
}

func NewContentHandler(service ContentService, env string) *ContentHandler {
	return &ContentHandler{Service: service, Env: env}
}

type createResponse struct {
	Message string        `json:"message"`
	Element *content.Item `json:"element"`
}

type updateLinkResponse struct {
	Message string        `json:"message"`
	Link    *content.Link `json:"link"`
}

type updateTextResponse struct {
	Message string        `json:"message"`
	Text    *content.Text `json:"text"`
}

type updateDeadlineResponse struct {
	Message  string            `json:"message"`
	Deadline *content.Deadline `json:"deadline"`
}

const updatedMessage = "Successfully updated field"

func (h *ContentHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req content.CreateLinkRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)
	req.IdempotencyKey = middleware.IdempotencyKey(r)

	item, err := h.Service.CreateLink(r.Context(), req)
	h.writeCreated(w, r, item, err)
}

func (h *ContentHandler) CreateText(w http.ResponseWriter, r *http.Request) {
	var req content.CreateTextRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)
	req.IdempotencyKey = middleware.IdempotencyKey(r)

	item, err := h.Service.CreateText(r.Context(), req)
	h.writeCreated(w, r, item, err)
}

func (h *ContentHandler) CreateDeadline(w http.ResponseWriter, r *http.Request) {
	var req content.CreateDeadlineRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)
	req.IdempotencyKey = middleware.IdempotencyKey(r)

	item, err := h.Service.CreateDeadline(r.Context(), req)
	h.writeCreated(w, r, item, err)
}

func (h *ContentHandler) writeCreated(w http.ResponseWriter, r *http.Request, item *content.Item, err error) {
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{
		Message: "Successfully created " + string(item.Type) + " object",
		Element: item,
	})
}

func (h *ContentHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	var req content.UpdateLinkRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)

	item, err := h.Service.UpdateLink(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, updateLinkResponse{Message: updatedMessage, Link: item.Link})
}

func (h *ContentHandler) UpdateText(w http.ResponseWriter, r *http.Request) {
	var req content.UpdateTextRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)

	item, err := h.Service.UpdateText(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, updateTextResponse{Message: updatedMessage, Text: item.Text})
}

func (h *ContentHandler) UpdateDeadline(w http.ResponseWriter, r *http.Request) {
	var req content.UpdateDeadlineRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)

	item, err := h.Service.UpdateDeadline(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, updateDeadlineResponse{Message: updatedMessage, Deadline: item.Deadline})
}

func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req content.ItemRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Fingerprint = fingerprint(r, req.Fingerprint)

	if err := h.Service.Delete(r.Context(), req); err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Successfully deleted item"})
}

// Read answers 200 with the item when it exists and 404 otherwise.
func (h *ContentHandler) Read(w http.ResponseWriter, r *http.Request) {
	var req content.ItemRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}

	item, err := h.Service.Read(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
