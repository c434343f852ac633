package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/subjectboard/server/internal/api/middleware"
	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/config"
	"github.com/subjectboard/server/internal/domain/content"
	"github.com/subjectboard/server/internal/realtime"
	"github.com/subjectboard/server/internal/storage/sqlite"
)

type testServer struct {
	handler http.Handler
	hub     *realtime.Hub
	auditor *audit.Logger
	store   *sqlite.Store
}

func newTestServer(t *testing.T, rateLimit config.RateLimitConfig) *testServer {
	t.Helper()

	db, err := sqlite.OpenDB(":memory:")
	require.NoError(t, err)
	store, err := sqlite.NewStore(db)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	logger := zerolog.Nop()
	hub := realtime.NewHub(16, logger)
	t.Cleanup(hub.Close)
	auditor := audit.NewLogger(logger, audit.StoreSink(store.Audit()), time.Second)
	service := content.NewService(store.Content(), auditor, hub, logger)

	cfg := config.Defaults()
	cfg.Environment = "test"
	cfg.RateLimit = rateLimit
	limiter := middleware.NewRateLimiter(rateLimit, cfg.Environment)
	t.Cleanup(limiter.Stop)

	handler := NewRouter(Deps{
		Config:      cfg,
		Logger:      logger,
		Content:     service,
		Audit:       store.Audit(),
		Stream:      realtime.NewStreamHandler(hub, time.Minute),
		RateLimiter: limiter,
		Build:       BuildInfo{Version: "test"},
	})
	return &testServer{handler: handler, hub: hub, auditor: auditor, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.Contains(rec.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestTextLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	events, cancel := srv.hub.Subscribe()
	defer cancel()

	rec, body := srv.do(t, http.MethodPost, "/api/v1/groups/create", `{"name":"Week 1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	groupID := body["group"].(map[string]any)["id"].(string)
	msg := <-events
	require.Equal(t, content.EventNewElement, msg.Event)

	rec, body = srv.do(t, http.MethodPost, "/api/v1/content/text/create",
		fmt.Sprintf(`{"parentGroup":%q,"title":"Intro","text":"Hello"}`, groupID))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "Successfully created text object", body["message"])
	element := body["element"].(map[string]any)
	itemID := element["id"].(string)
	require.Equal(t, "text", element["type"])

	msg = <-events
	require.Equal(t, content.EventNewElement, msg.Event)

	rec, body = srv.do(t, http.MethodPost, "/api/v1/content/text/update",
		fmt.Sprintf(`{"parentGroup":%q,"id":%q,"text":"-"}`, groupID, itemID))
	require.Equal(t, http.StatusOK, rec.Code)
	text := body["text"].(map[string]any)
	require.Equal(t, "Intro", text["title"])
	require.Equal(t, "", text["text"])

	msg = <-events
	require.Equal(t, content.EventUpdateElement, msg.Event)

	rec, body = srv.do(t, http.MethodPost, "/api/v1/content/read",
		fmt.Sprintf(`{"parentGroupId":%q,"id":%q}`, groupID, itemID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Intro", body["text"].(map[string]any)["title"])

	rec, body = srv.do(t, http.MethodGet, "/api/v1/groups/"+groupID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["content"], 1)

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/content/delete",
		fmt.Sprintf(`{"parentGroupId":%q,"id":%q}`, groupID, itemID))
	require.Equal(t, http.StatusOK, rec.Code)

	msg = <-events
	require.Equal(t, content.EventDeleteElement, msg.Event)
	var deleted content.DeleteEvent
	require.NoError(t, json.Unmarshal(msg.Data, &deleted))
	require.Equal(t, itemID, deleted.ID)

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/content/read",
		fmt.Sprintf(`{"parentGroupId":%q,"id":%q}`, groupID, itemID))
	require.Equal(t, http.StatusNotFound, rec.Code)

	srv.auditor.Wait()
	rec, body = srv.do(t, http.MethodGet, "/api/v1/audit?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["items"].([]any)
	require.Len(t, entries, 4, "group create, text create, update, delete")
	latest := entries[0].(map[string]any)
	require.Equal(t, "delete", latest["operation"])
}

func TestTextKeepsSpecialCharactersOverHTTP(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec, body := srv.do(t, http.MethodPost, "/api/v1/groups/create", `{"name":"Q&A"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	groupID := body["group"].(map[string]any)["id"].(string)

	rec, body = srv.do(t, http.MethodPost, "/api/v1/content/text/create",
		fmt.Sprintf(`{"parentGroup":%q,"title":"Q&A","text":"Tom & Jerry, if a < b then \"x\""}`, groupID))
	require.Equal(t, http.StatusCreated, rec.Code)
	itemID := body["element"].(map[string]any)["id"].(string)

	rec, body = srv.do(t, http.MethodPost, "/api/v1/content/read",
		fmt.Sprintf(`{"parentGroupId":%q,"id":%q}`, groupID, itemID))
	require.Equal(t, http.StatusOK, rec.Code)
	text := body["text"].(map[string]any)
	require.Equal(t, "Q&A", text["title"])
	require.Equal(t, `Tom & Jerry, if a < b then "x"`, text["text"])
}

func TestAuditPagingOverHTTP(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec, body := srv.do(t, http.MethodPost, "/api/v1/groups/create", `{"name":"Week 1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	groupID := body["group"].(map[string]any)["id"].(string)
	for i := range 4 {
		rec, _ = srv.do(t, http.MethodPost, "/api/v1/content/text/create",
			fmt.Sprintf(`{"parentGroup":%q,"text":"Note %d"}`, groupID, i))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	srv.auditor.Wait()

	seen := map[string]bool{}
	var pageSizes []int
	path := "/api/v1/audit?limit=2"
	for {
		rec, body = srv.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		items := body["items"].([]any)
		pageSizes = append(pageSizes, len(items))
		for _, item := range items {
			id := item.(map[string]any)["id"].(string)
			require.False(t, seen[id], "entry %s returned twice", id)
			seen[id] = true
		}
		next := body["next_cursor"].(string)
		if next == "" {
			break
		}
		path = "/api/v1/audit?limit=2&after=" + next
	}
	require.Equal(t, []int{2, 2, 1}, pageSizes)
	require.Len(t, seen, 5)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/audit?after=%25%25", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotentCreateOverHTTP(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec, body := srv.do(t, http.MethodPost, "/api/v1/groups/create", `{"name":"Week 1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	groupID := body["group"].(map[string]any)["id"].(string)

	create := func(text string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/content/text/create",
			strings.NewReader(fmt.Sprintf(`{"parentGroup":%q,"text":%q}`, groupID, text)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "submit-1")
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec, out
	}

	rec, first := create("Hello")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, second := create("Hello")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t,
		first["element"].(map[string]any)["id"],
		second["element"].(map[string]any)["id"])

	rec, conflict := create("Changed")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Conflict", conflict["title"])

	rec, body = srv.do(t, http.MethodGet, "/api/v1/groups/"+groupID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["content"], 1)
}

func TestCreateOnMissingGroupWritesNothing(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	events, cancel := srv.hub.Subscribe()
	defer cancel()

	rec, body := srv.do(t, http.MethodPost, "/api/v1/content/link/create",
		`{"parentGroup":"01HYX3KQW7ERTV9XNBM2P8QJZ9","displayText":"Docs","link":"https://go.dev"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Equal(t, "group not found", body["detail"])

	srv.auditor.Wait()
	result, err := srv.store.Audit().ListAuditEntries(context.Background(), audit.Page{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, result.Entries)
	require.Empty(t, events)
}

func TestValidationFailureOverHTTP(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec, body := srv.do(t, http.MethodPost, "/api/v1/content/text/create", `{"text":"Hello"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, `"parentGroup" is required`, body["detail"])
}

func TestMutationRateLimit(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{MutationPerMinute: 1})

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/groups/create", `{"name":"One"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/groups/create", `{"name":"Two"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/groups", "")
	require.Equal(t, http.StatusOK, rec.Code, "reads use the public tier")
}

func TestOperationalEndpoints(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	rec, body := srv.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])

	rec, _ = srv.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = srv.do(t, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", body["version"])

	rec, _ = srv.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/content/text/create", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStreamDeliversEvents(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	require.Equal(t, ": connected", lines.Text())

	require.Eventually(t, func() bool { return srv.hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)
	rec, _ := srv.do(t, http.MethodPost, "/api/v1/groups/create", `{"name":"Live"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var frame []string
	for lines.Scan() {
		line := lines.Text()
		if line == "" && len(frame) > 0 {
			break
		}
		if line != "" {
			frame = append(frame, line)
		}
	}
	require.Len(t, frame, 3)
	require.Equal(t, "id: 1", frame[0])
	require.Equal(t, "event: newElement", frame[1])
	require.Contains(t, frame[2], `"type":"group"`)
	require.Contains(t, frame[2], `"fieldOne":"Live"`)
}
