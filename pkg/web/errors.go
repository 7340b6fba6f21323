package web

import (
	"github.com/dukex/querygate/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func unauthorized(c fiber.Ctx) error {
	return problem(c, fiber.StatusUnauthorized, "unauthorized", "authentication required")
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps service errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "not_found", err.Error())

	case services.IsInvalidArgument(err):
		return problem(c, fiber.StatusBadRequest, "invalid_argument", err.Error())

	case services.IsInvalidState(err):
		return problem(c, fiber.StatusConflict, "invalid_state", err.Error())

	case services.IsForbidden(err):
		return problem(c, fiber.StatusForbidden, "forbidden", err.Error())

	case services.IsInstanceNotFound(err):
		return problem(c, fiber.StatusUnprocessableEntity, "instance_not_found", err.Error())

	case services.IsArtifactExpired(err):
		return problem(c, fiber.StatusGone, "artifact_expired", err.Error())

	case services.IsArtifactUnavailable(err):
		if services.ErrorCode(err) == services.CodeArtifactNotRecorded {
			return problem(c, fiber.StatusNotFound, "artifact_unavailable", err.Error())
		}

		return problem(c, fiber.StatusGone, "artifact_unavailable", err.Error())

	default:
		return internalError(c, err)
	}
}
