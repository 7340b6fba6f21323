package web

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/dukex/querygate/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
	}{
		{&services.ServiceError{Op: "Get", Code: services.CodeNotFound, Err: services.ErrNotFound}, http.StatusNotFound},
		{&services.ServiceError{Op: "Submit", Code: services.CodeInvalidArgument, Err: services.ErrInvalidArgument}, http.StatusBadRequest},
		{&services.ServiceError{Op: "Approve", Code: services.CodeInvalidState, Err: services.ErrInvalidState}, http.StatusConflict},
		{&services.ServiceError{Op: "Approve", Code: services.CodeForbidden, Err: services.ErrForbidden}, http.StatusForbidden},
		{&services.ServiceError{Op: "Submit", Code: services.CodeInstanceNotFound, Err: services.ErrInstanceNotFound}, http.StatusUnprocessableEntity},
		{&services.ServiceError{Op: "Download", Code: services.CodeArtifactExpired, Err: services.ErrArtifactExpired}, http.StatusGone},
		{&services.ServiceError{Op: "Download", Code: services.CodeArtifactNotRecorded, Err: services.ErrArtifactUnavailable}, http.StatusNotFound},
		{&services.ServiceError{Op: "Download", Code: services.CodeArtifactGone, Err: services.ErrArtifactUnavailable}, http.StatusGone},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	app := fiber.New()
	app.Get("/:case", func(c fiber.Ctx) error {
		i, err := strconv.Atoi(c.Params("case"))
		if err != nil {
			return err
		}

		return handleServiceError(c, tests[i].err)
	})

	for i, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+strconv.Itoa(i), nil))
		require.NoError(t, err)
		assert.Equal(t, tt.status, resp.StatusCode, tt.err.Error())
	}
}
