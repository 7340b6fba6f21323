package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/querygate/pkg/auth"
	"github.com/dukex/querygate/pkg/metrics"
	"github.com/dukex/querygate/pkg/mocks"
	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/persistence/file"
	"github.com/dukex/querygate/pkg/registry"
	"github.com/dukex/querygate/pkg/retention"
	"github.com/dukex/querygate/pkg/scripts"
	"github.com/dukex/querygate/pkg/services"
	"github.com/dukex/querygate/pkg/storage"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *auth.Authenticator) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	reg, err := registry.NewRegistry(logger, []models.ConnectionDescriptor{
		{Name: "orders", Kind: models.DatabaseKindRelational, Host: "orders.internal"},
	})
	require.NoError(t, err)

	scriptStore, err := scripts.NewStore(t.TempDir(), 0)
	require.NoError(t, err)

	store, err := storage.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	authenticator, err := auth.NewAuthenticator("test-secret")
	require.NoError(t, err)

	m := metrics.New()
	policy := retention.NewPolicy(retention.DefaultWindow)
	requests := services.NewRequest(logger, p, reg, &mocks.MockDispatcher{}, scriptStore,
		services.WithObserver(m), services.WithRetentionPolicy(policy))
	artifacts := services.NewArtifact(logger, p.ExecutionRepository(), store, policy)

	return NewAPI(logger, requests, artifacts, scriptStore, reg, authenticator, m).App(), authenticator
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "querygate API", readBody(t, resp))
}

func TestAPI_HealthEndpoints(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "OK", readBody(t, resp), path)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestAPI_RequiresToken(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/requests", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	readBody(t, resp)
}

func TestAPI_SubmitAndScrapeMetrics(t *testing.T) {
	t.Parallel()

	app, authenticator := setupTestApp(t)

	token, err := authenticator.Issue(models.Actor{
		ID: "dev-1", Name: "Dev", Role: models.RoleDeveloper, Team: "payments",
	}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/requests", strings.NewReader(`{
		"database_kind": "relational",
		"instance_name": "orders",
		"database_name": "orders",
		"query_content": "DELETE FROM orders WHERE id = 1",
		"justification": "cleanup duplicated order",
		"team": "payments"
	}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode, readBody(t, resp))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "querygate_request_transitions_total")
	assert.Contains(t, body, "querygate_destructive_submissions_total")
}
