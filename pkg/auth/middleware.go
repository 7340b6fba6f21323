package auth

import (
	"github.com/dukex/querygate/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

type actorKey struct{}

// Middleware rejects requests without a valid bearer token and stores the actor in locals.
func Middleware(authenticator *Authenticator) fiber.Handler {
	return func(c fiber.Ctx) error {
		token, err := BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err.Error())
		}

		actor, err := authenticator.Verify(token)
		if err != nil {
			return unauthorized(c, "invalid or expired token")
		}

		c.Locals(actorKey{}, actor)

		return c.Next()
	}
}

// ActorFrom returns the actor stored by Middleware.
func ActorFrom(c fiber.Ctx) (models.Actor, bool) {
	actor, ok := c.Locals(actorKey{}).(models.Actor)

	return actor, ok
}

func unauthorized(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusUnauthorized).
		WithInstance(c.Path()).
		WithType("unauthorized").
		WithDetail(detail)

	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}
