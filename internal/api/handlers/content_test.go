package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/subjectboard/server/internal/api/middleware"
	"github.com/subjectboard/server/internal/api/problem"
	"github.com/subjectboard/server/internal/domain/content"
	"github.com/subjectboard/server/internal/validation"
)

const (
	testGroup = "01HYX3KQW7ERTV9XNBM2P8QJZ1"
	testItem  = "01HYX3KQW7ERTV9XNBM2P8QJZ5"
)

type stubContentService struct {
	item *content.Item
	err  error

	lastCreateText content.CreateTextRequest
	lastUpdateText content.UpdateTextRequest
	lastDelete     content.ItemRequest
}

func (s *stubContentService) CreateLink(_ context.Context, req content.CreateLinkRequest) (*content.Item, error) {
	return s.item, s.err
}

func (s *stubContentService) CreateText(_ context.Context, req content.CreateTextRequest) (*content.Item, error) {
	s.lastCreateText = req
	return s.item, s.err
}

func (s *stubContentService) CreateDeadline(_ context.Context, req content.CreateDeadlineRequest) (*content.Item, error) {
	return s.item, s.err
}

func (s *stubContentService) UpdateLink(_ context.Context, req content.UpdateLinkRequest) (*content.Item, error) {
	return s.item, s.err
}

func (s *stubContentService) UpdateText(_ context.Context, req content.UpdateTextRequest) (*content.Item, error) {
	s.lastUpdateText = req
	return s.item, s.err
}

func (s *stubContentService) UpdateDeadline(_ context.Context, req content.UpdateDeadlineRequest) (*content.Item, error) {
	return s.item, s.err
}

func (s *stubContentService) Delete(_ context.Context, req content.ItemRequest) error {
	s.lastDelete = req
	return s.err
}

func (s *stubContentService) Read(_ context.Context, req content.ItemRequest) (*content.Item, error) {
	return s.item, s.err
}

func textItem(title, text string) *content.Item {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	return &content.Item{
		ID:          testItem,
		ParentGroup: testGroup,
		Type:        content.TypeText,
		Text:        &content.Text{Title: title, Text: text},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/content", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestCreateTextReturnsCreatedElement(t *testing.T) {
	svc := &stubContentService{item: textItem("Intro", "Hello")}
	h := NewContentHandler(svc, "test")

	rec := post(t, h.CreateText, fmt.Sprintf(`{"parentGroup":%q,"title":"Intro","text":"Hello"}`, testGroup))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "Successfully created text object", body["message"])
	element := body["element"].(map[string]any)
	require.Equal(t, testItem, element["id"])
	require.Equal(t, "text", element["type"])

	require.Equal(t, "203.0.113.7", svc.lastCreateText.Fingerprint, "falls back to the caller address")
}

func TestCreateKeepsSuppliedFingerprint(t *testing.T) {
	svc := &stubContentService{item: textItem("", "Hello")}
	h := NewContentHandler(svc, "test")

	post(t, h.CreateText, fmt.Sprintf(`{"parentGroup":%q,"text":"Hello","fingerprint":"browser-42"}`, testGroup))
	require.Equal(t, "browser-42", svc.lastCreateText.Fingerprint)
}

func TestFingerprintIgnoresSpoofedForwarding(t *testing.T) {
	svc := &stubContentService{item: textItem("", "Hello")}
	h := NewContentHandler(svc, "test")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/content/text/create",
		strings.NewReader(fmt.Sprintf(`{"parentGroup":%q,"text":"Hello"}`, testGroup)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.99")
	req.RemoteAddr = "198.51.100.4:5555"
	rec := httptest.NewRecorder()
	middleware.ClientIP([]string{"10.0.0.0/8"})(http.HandlerFunc(h.CreateText)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "198.51.100.4", svc.lastCreateText.Fingerprint)
}

func TestCreatePassesIdempotencyKey(t *testing.T) {
	svc := &stubContentService{item: textItem("", "Hello")}
	h := NewContentHandler(svc, "test")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/content/text/create",
		strings.NewReader(fmt.Sprintf(`{"parentGroup":%q,"text":"Hello"}`, testGroup)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.IdempotencyHeader, "retry-7")
	rec := httptest.NewRecorder()
	middleware.Idempotency(http.HandlerFunc(h.CreateText)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "retry-7", svc.lastCreateText.IdempotencyKey)
}

func TestContentErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"validation", validation.Field("parentGroup", "is required"), http.StatusBadRequest, `"parentGroup" is required`},
		{"missing group", fmt.Errorf("append text: %w", content.ErrGroupNotFound), http.StatusNotFound, "group not found"},
		{"missing content", fmt.Errorf("load item: %w", content.ErrContentNotFound), http.StatusNotFound, "content not found"},
		{"reused idempotency key", fmt.Errorf("append text: %w", content.ErrIdempotencyConflict), http.StatusConflict, "Idempotency-Key was already used for a different request"},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError, "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewContentHandler(&stubContentService{err: tt.err}, "test")
			rec := post(t, h.CreateText, `{}`)

			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			body := decodeBody[problem.ProblemDetails](t, rec)
			require.Equal(t, tt.detail, body.Detail)
		})
	}
}

func TestValidationProblemListsFields(t *testing.T) {
	err := &validation.FieldErrors{
		Message: `"parentGroup" is required`,
		Fields:  map[string]string{"parentGroup": `"parentGroup" is required`, "text": `"text" is required`},
	}
	h := NewContentHandler(&stubContentService{err: err}, "production")

	rec := post(t, h.CreateText, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[problem.ProblemDetails](t, rec)
	require.Equal(t, problem.TypeValidation, body.Type)
	require.Len(t, body.Errors, 2)
	require.Equal(t, `"parentGroup" is required`, body.Detail)
}

func TestMalformedBody(t *testing.T) {
	h := NewContentHandler(&stubContentService{}, "test")

	for _, body := range []string{"", "{not json", `["array"]`} {
		rec := post(t, h.CreateLink, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.Equal(t, problem.TypeMalformedBody, decodeBody[problem.ProblemDetails](t, rec).Type)
	}
}

func TestOversizedBody(t *testing.T) {
	h := NewContentHandler(&stubContentService{}, "test")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/content/text/create",
		strings.NewReader(`{"text":"`+strings.Repeat("a", 2048)+`"}`))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 1024)
	h.CreateText(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	body := decodeBody[problem.ProblemDetails](t, rec)
	require.Equal(t, "request body must not exceed 1 KiB", body.Detail)
}

func TestUpdateTextReturnsMergedFields(t *testing.T) {
	svc := &stubContentService{item: textItem("Intro", "")}
	h := NewContentHandler(svc, "test")

	rec := post(t, h.UpdateText, fmt.Sprintf(`{"parentGroup":%q,"id":%q,"text":"-"}`, testGroup, testItem))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "Successfully updated field", body["message"])
	text := body["text"].(map[string]any)
	require.Equal(t, "Intro", text["title"])
	require.Equal(t, "", text["text"])

	require.Nil(t, svc.lastUpdateText.Title, "omitted field stays nil")
	require.NotNil(t, svc.lastUpdateText.Text)
	require.Equal(t, "-", *svc.lastUpdateText.Text)
}

func TestUpdateLinkAndDeadlineResponses(t *testing.T) {
	link := &content.Item{ID: testItem, ParentGroup: testGroup, Type: content.TypeLink,
		Link: &content.Link{DisplayText: "Docs", Link: "https://go.dev"}}
	rec := post(t, NewContentHandler(&stubContentService{item: link}, "test").UpdateLink,
		fmt.Sprintf(`{"parentGroup":%q,"id":%q,"displayText":"Docs"}`, testGroup, testItem))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://go.dev", decodeBody[map[string]any](t, rec)["link"].(map[string]any)["link"])

	due := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	deadline := &content.Item{ID: testItem, ParentGroup: testGroup, Type: content.TypeDeadline,
		Deadline: &content.Deadline{DisplayText: "Essay", Deadline: due, Start: due.Add(-time.Hour)}}
	rec = post(t, NewContentHandler(&stubContentService{item: deadline}, "test").UpdateDeadline,
		fmt.Sprintf(`{"parentGroup":%q,"id":%q,"displayText":"Essay"}`, testGroup, testItem))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Essay", decodeBody[map[string]any](t, rec)["deadline"].(map[string]any)["displayText"])
}

func TestDeleteContent(t *testing.T) {
	svc := &stubContentService{}
	h := NewContentHandler(svc, "test")

	rec := post(t, h.Delete, fmt.Sprintf(`{"parentGroupId":%q,"id":%q}`, testGroup, testItem))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Successfully deleted item", decodeBody[messageResponse](t, rec).Message)
	require.Equal(t, testGroup, svc.lastDelete.ParentGroupID)
	require.Equal(t, testItem, svc.lastDelete.ID)
}

func TestReadContent(t *testing.T) {
	h := NewContentHandler(&stubContentService{item: textItem("Intro", "Hello")}, "test")
	rec := post(t, h.Read, fmt.Sprintf(`{"parentGroupId":%q,"id":%q}`, testGroup, testItem))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, testItem, decodeBody[map[string]any](t, rec)["id"])

	h = NewContentHandler(&stubContentService{err: content.ErrContentNotFound}, "test")
	rec = post(t, h.Read, fmt.Sprintf(`{"parentGroupId":%q,"id":%q}`, testGroup, testItem))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
