package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var manager = models.Actor{ID: "mgr-1", Name: "Maria", Role: models.RoleManager, Team: "payments"}

func TestAuthenticator_IssueVerify(t *testing.T) {
	t.Parallel()

	a, err := NewAuthenticator("s3cret")
	require.NoError(t, err)

	token, err := a.Issue(manager, time.Hour)
	require.NoError(t, err)

	actor, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, manager, actor)
}

func TestAuthenticator_Rejects(t *testing.T) {
	t.Parallel()

	a, err := NewAuthenticator("s3cret")
	require.NoError(t, err)

	other, err := NewAuthenticator("different")
	require.NoError(t, err)

	foreign, err := other.Issue(manager, time.Hour)
	require.NoError(t, err)

	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }
	expired, err := a.Issue(manager, time.Minute)
	require.NoError(t, err)
	a.now = func() time.Time { return issued.Add(time.Hour) }

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: models.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":        "not-a-token",
		"foreign secret": foreign,
		"expired":        expired,
		"alg none":       unsigned,
	} {
		_, err := a.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestAuthenticator_IssueValidation(t *testing.T) {
	t.Parallel()

	_, err := NewAuthenticator("")
	require.ErrorIs(t, err, ErrMissingSecret)

	a, err := NewAuthenticator("s3cret")
	require.NoError(t, err)

	_, err = a.Issue(models.Actor{Role: models.RoleAdmin}, time.Hour)
	require.Error(t, err)

	_, err = a.Issue(models.Actor{ID: "x", Role: "root"}, time.Hour)
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer   abc", "abc", true},
		{"", "", false},
		{"Basic dXNlcg==", "", false},
		{"Bearer ", "", false},
		{"abc", "", false},
	}

	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if tt.ok {
			require.NoError(t, err, tt.header)
			assert.Equal(t, tt.want, got)
		} else {
			require.ErrorIs(t, err, ErrMissingToken, tt.header)
		}
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	a, err := NewAuthenticator("s3cret")
	require.NoError(t, err)

	app := fiber.New()
	app.Use(Middleware(a))
	app.Get("/me", func(c fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}

		return c.JSON(actor)
	})

	token, err := a.Issue(manager, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, header := range []string{"", "Bearer nope"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	}
}
