package web

import (
	"errors"

	"github.com/dukex/taskpipe/pkg/auth"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps domain errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		return badRequest(c, "Invalid state")
	case errors.Is(err, auth.ErrUnknownProvider):
		return notFound(c, "provider_not_found", err.Error())
	case errors.Is(err, secrets.ErrInvalidSecret):
		return badRequest(c, err.Error())
	case secrets.IsSecretNotFound(err):
		return notFound(c, "secret_not_found", "secret not found")
	case flows.IsFlowNotFound(err):
		return notFound(c, "flow_not_found", "flow not found")
	default:
		return internalError(c, err)
	}
}
