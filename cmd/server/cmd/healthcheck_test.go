package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		body        string
		wantStatus  string
		expectError bool
	}{
		{name: "healthy server", statusCode: http.StatusOK, body: `{"status":"healthy","checks":{"database":{"status":"pass"}}}`, wantStatus: "healthy"},
		{name: "degraded server", statusCode: http.StatusOK, body: `{"status":"degraded"}`, wantStatus: "degraded"},
		{name: "unhealthy server (503)", statusCode: http.StatusServiceUnavailable, body: `{"status":"unhealthy"}`, expectError: true},
		{name: "unhealthy body", statusCode: http.StatusOK, body: `{"status":"unhealthy"}`, wantStatus: "unhealthy", expectError: true},
		{name: "invalid response", statusCode: http.StatusOK, body: "not json", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			status, err := performHealthCheck(context.Background(), server.Client(), server.URL)
			if tt.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestPerformHealthCheckUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := performHealthCheck(context.Background(), http.DefaultClient, url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestHealthcheckCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readyz", r.URL.Path)
		fmt.Fprint(w, `{"status":"healthy"}`)
	}))
	defer server.Close()

	output, err := execute(t, "healthcheck", "--url", server.URL+"/readyz", "--timeout", "2")
	require.NoError(t, err)
	assert.Contains(t, output, "status: healthy")
}
