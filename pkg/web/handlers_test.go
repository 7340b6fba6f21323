package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/querygate/pkg/auth"
	"github.com/dukex/querygate/pkg/execution"
	"github.com/dukex/querygate/pkg/mocks"
	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/persistence/file"
	"github.com/dukex/querygate/pkg/registry"
	"github.com/dukex/querygate/pkg/retention"
	"github.com/dukex/querygate/pkg/scripts"
	"github.com/dukex/querygate/pkg/services"
	"github.com/dukex/querygate/pkg/storage"
	"github.com/dukex/querygate/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	developer = models.Actor{ID: "dev-1", Name: "Dev", Role: models.RoleDeveloper, Team: "payments"}
	manager   = models.Actor{ID: "mgr-1", Name: "Manager", Role: models.RoleManager, Team: "payments"}
	outsider  = models.Actor{ID: "mgr-2", Name: "Other", Role: models.RoleManager, Team: "growth"}
)

type testEnv struct {
	app         *fiber.App
	auth        *auth.Authenticator
	dispatcher  *mocks.MockDispatcher
	persistence *file.Persistence
	store       *storage.FileStore
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	return setupTestAppWithStore(t, "")
}

func setupTestAppWithStore(t *testing.T, publicURL string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	reg, err := registry.NewRegistry(logger, []models.ConnectionDescriptor{
		{Name: "orders", Kind: models.DatabaseKindRelational, Host: "orders.internal", CredentialRef: "secret"},
		{Name: "catalog", Kind: models.DatabaseKindDocument, Host: "catalog.internal"},
	})
	require.NoError(t, err)

	scriptStore, err := scripts.NewStore(t.TempDir(), 0)
	require.NoError(t, err)

	store, err := storage.NewFileStore(t.TempDir(), publicURL)
	require.NoError(t, err)

	authenticator, err := auth.NewAuthenticator("test-secret")
	require.NoError(t, err)

	dispatcher := &mocks.MockDispatcher{}
	policy := retention.NewPolicy(retention.DefaultWindow)

	requests := services.NewRequest(logger, p, reg, dispatcher, scriptStore, services.WithRetentionPolicy(policy))
	artifacts := services.NewArtifact(logger, p.ExecutionRepository(), store, policy)

	handlers := web.NewAPIHandlers(requests, artifacts, scriptStore, reg,
		validator.New(validator.WithRequiredStructEnabled()), web.WithLocalArtifacts(store))

	app := fiber.New()
	app.Get("/health", handlers.HealthCheck)

	api := app.Group("/api", auth.Middleware(authenticator))
	handlers.Register(api)

	return &testEnv{app: app, auth: authenticator, dispatcher: dispatcher, persistence: p, store: store}
}

func (e *testEnv) do(t *testing.T, actor *models.Actor, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return e.send(t, actor, req)
}

func (e *testEnv) send(t *testing.T, actor *models.Actor, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	if actor != nil {
		token, err := e.auth.Issue(*actor, time.Hour)
		require.NoError(t, err)

		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func (e *testEnv) submit(t *testing.T, query string) string {
	t.Helper()

	resp, body := e.do(t, &developer, http.MethodPost, "/api/requests", web.SubmitQueryRequest{
		DatabaseKind:  models.DatabaseKindRelational,
		InstanceName:  "orders",
		DatabaseName:  "orders",
		QueryContent:  query,
		Justification: "ticket 42",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created web.RequestResponse
	require.NoError(t, json.Unmarshal(body, &created))

	return created.ID
}

func TestAPIHandlers_RequiresToken(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, _ := env.do(t, nil, http.MethodGet, "/api/requests", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIHandlers_CreateRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           any
		expectedStatus int
		validate       func(t *testing.T, body []byte)
	}{
		{
			name: "destructive statement is accepted with warnings",
			body: web.SubmitQueryRequest{
				DatabaseKind:  models.DatabaseKindRelational,
				InstanceName:  "orders",
				DatabaseName:  "orders",
				QueryContent:  "DROP TABLE orders",
				Justification: "decommission",
			},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, body []byte) {
				t.Helper()

				var created web.RequestResponse
				require.NoError(t, json.Unmarshal(body, &created))
				assert.Equal(t, models.RequestStatusPending, created.Status)
				assert.True(t, created.Screen.IsDestructive)
				assert.Equal(t, "dev-1", created.RequesterID)
			},
		},
		{
			name:           "missing fields",
			body:           map[string]string{"instance_name": "orders"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "whitespace statement",
			body: web.SubmitQueryRequest{
				DatabaseKind:  models.DatabaseKindRelational,
				InstanceName:  "orders",
				DatabaseName:  "orders",
				QueryContent:  "   ",
				Justification: "blank",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown instance",
			body: web.SubmitQueryRequest{
				DatabaseKind:  models.DatabaseKindRelational,
				InstanceName:  "ghost",
				DatabaseName:  "ghost",
				QueryContent:  "SELECT 1",
				Justification: "lookup",
			},
			expectedStatus: http.StatusUnprocessableEntity,
			validate: func(t *testing.T, body []byte) {
				t.Helper()
				assert.Contains(t, string(body), "Instance ghost (relational) not found in configuration")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			resp, body := env.do(t, &developer, http.MethodPost, "/api/requests", tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.validate != nil {
				tt.validate(t, body)
			}
		})
	}
}

func TestAPIHandlers_CreateScriptRequest(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	build := func(filename, content string) *http.Request {
		var buf bytes.Buffer

		writer := multipart.NewWriter(&buf)
		require.NoError(t, writer.WriteField("database_kind", "relational"))
		require.NoError(t, writer.WriteField("instance_name", "orders"))
		require.NoError(t, writer.WriteField("database_name", "orders"))
		require.NoError(t, writer.WriteField("justification", "backfill"))

		part, err := writer.CreateFormFile("script", filename)
		require.NoError(t, err)

		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/requests/script", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		return req
	}

	resp, body := env.send(t, &developer, build("backfill.js", "return connection.host;"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created web.RequestResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, models.SubmissionKindScript, created.SubmissionKind)
	assert.True(t, strings.HasSuffix(created.ScriptPath, "_backfill.js"))
	assert.Empty(t, created.QueryContent)

	resp, _ = env.send(t, &developer, build("backfill.py", "print(1)"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_ApproveFlow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	id := env.submit(t, "SELECT * FROM orders")

	resp, _ := env.do(t, &developer, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, &outsider, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	env.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(execution.Outcome{
		Error:    "pq: connection refused",
		Executor: execution.ExecutorRelational,
	}).Once()

	resp, body := env.do(t, &manager, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var request models.Request
	require.NoError(t, json.Unmarshal(body, &request))
	assert.Equal(t, models.RequestStatusFailed, request.Status)

	resp, _ = env.do(t, &manager, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, &developer, http.MethodGet, "/api/requests/"+id+"/execution", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var details map[string]any
	require.NoError(t, json.Unmarshal(body, &details))
	assert.Equal(t, "FAILURE", details["status"])
	assert.Equal(t, "pq: connection refused", details["error_message"])
	assert.Equal(t, false, details["csv_available"])
	assert.Equal(t, false, details["csv_expired"])

	resp, _ = env.do(t, &developer, http.MethodGet, "/api/requests/"+id+"/execution/download", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_RejectAndStatus(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	id := env.submit(t, "UPDATE orders SET total = 0")

	resp, _ := env.do(t, &manager, http.MethodPatch, "/api/requests/"+id+"/status", web.UpdateStatusRequest{Status: models.RequestStatusExecuted})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := env.do(t, &manager, http.MethodPatch, "/api/requests/"+id+"/status", web.UpdateStatusRequest{
		Status: models.RequestStatusRejected,
		Reason: "missing WHERE",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var request models.Request
	require.NoError(t, json.Unmarshal(body, &request))
	assert.Equal(t, models.RequestStatusRejected, request.Status)
	require.NotNil(t, request.RejectionReason)
	assert.Equal(t, "missing WHERE", *request.RejectionReason)

	resp, _ = env.do(t, &manager, http.MethodPost, "/api/requests/"+id+"/reject", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, &developer, http.MethodGet, "/api/requests/"+id+"/execution", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestAPIHandlers_GetAndList(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	id := env.submit(t, "DELETE FROM orders WHERE id = 7")

	resp, body := env.do(t, &manager, http.MethodGet, "/api/requests/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched web.RequestResponse
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, id, fetched.ID)
	assert.True(t, fetched.Screen.IsDestructive)

	resp, _ = env.do(t, &outsider, http.MethodGet, "/api/requests/"+id, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, &manager, http.MethodGet, "/api/requests/c0ffee00-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, &manager, http.MethodGet, "/api/requests?status=pending&limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed struct {
		Requests []models.Request `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Len(t, listed.Requests, 1)

	resp, body = env.do(t, &outsider, http.MethodGet, "/api/requests", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Empty(t, listed.Requests)

	resp, _ = env.do(t, &manager, http.MethodGet, "/api/requests?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_DownloadArtifact(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	ctx := context.Background()

	url, err := env.store.Upload(ctx, "query-results/orders_test.csv", []byte("id\n1\n"), "text/csv")
	require.NoError(t, err)

	id := env.submit(t, "SELECT * FROM orders")
	total := 150

	env.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(execution.Outcome{
		Success:        true,
		Payload:        []byte(`{"rows":[],"is_truncated":true}`),
		IsTruncated:    true,
		TotalRows:      &total,
		ResultFilePath: &url,
		Executor:       execution.ExecutorRelational,
	})

	resp, body := env.do(t, &manager, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.do(t, &developer, http.MethodGet, "/api/requests/"+id+"/execution", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var details map[string]any
	require.NoError(t, json.Unmarshal(body, &details))
	assert.Equal(t, true, details["csv_available"])
	assert.Equal(t, true, details["is_truncated"])
	assert.InDelta(t, 150, details["total_rows"], 0)

	resp, body = env.do(t, &developer, http.MethodGet, "/api/requests/"+id+"/execution/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "id\n1\n", string(body))

	require.NoError(t, env.store.Delete(ctx, url))

	resp, _ = env.do(t, &developer, http.MethodGet, "/api/requests/"+id+"/execution/download", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestAPIHandlers_DownloadRedirect(t *testing.T) {
	t.Parallel()

	env := setupTestAppWithStore(t, "https://files.example.com")

	url, err := env.store.Upload(context.Background(), "query-results/orders_redirect.csv", []byte("id\n"), "text/csv")
	require.NoError(t, err)

	id := env.submit(t, "SELECT * FROM orders")
	env.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(execution.Outcome{
		Success:        true,
		Payload:        []byte(`{}`),
		IsTruncated:    true,
		ResultFilePath: &url,
	})

	resp, _ := env.do(t, &manager, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, &developer, http.MethodGet, "/api/requests/"+id+"/execution/download", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://files.example.com/query-results/orders_redirect.csv", resp.Header.Get("Location"))
}

func TestAPIHandlers_DownloadForeignURL(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	id := env.submit(t, "SELECT * FROM orders")

	// the store cannot probe a URL it does not own
	foreign := "https://cdn.example.com/query-results/x.csv"
	env.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(execution.Outcome{
		Success:        true,
		Payload:        []byte(`{}`),
		IsTruncated:    true,
		ResultFilePath: &foreign,
	})

	resp, _ := env.do(t, &manager, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, &developer, http.MethodGet, "/api/requests/"+id+"/execution/download", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestAPIHandlers_ScreenAndInstances(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, body := env.do(t, &developer, http.MethodPost, "/api/screen", web.ScreenRequest{
		Content:      "db.users.deleteMany({})",
		DatabaseKind: models.DatabaseKindDocument,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"is_destructive":true`)

	resp, _ = env.do(t, &developer, http.MethodPost, "/api/screen", map[string]string{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, &developer, http.MethodGet, "/api/instances", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"orders"`)
	assert.NotContains(t, string(body), "secret")
	assert.NotContains(t, string(body), "orders.internal")
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, body := env.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)
}
