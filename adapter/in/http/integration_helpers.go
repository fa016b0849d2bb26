package http

import (
	"integration_server/core/domain"
	"integration_server/infra/middleware"
	"integration_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// GetUserID extracts the authenticated user or fails with 401.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	return middleware.GetUserID(c)
}

func providerParam(c *fiber.Ctx) (domain.Provider, error) {
	raw := c.Params("provider")
	provider, ok := domain.ParseProvider(raw)
	if !ok {
		return "", apperr.UnsupportedProvider(raw)
	}
	return provider, nil
}

// parseBody decodes a JSON body, mapping decode failures to 400.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return apperr.BadRequest("request body is required")
	}
	if err := c.BodyParser(v); err != nil {
		return apperr.BadRequest("invalid request body").WithError(err)
	}
	return nil
}

// countQuery reads an optional positive count, falling back to def.
func countQuery(c *fiber.Ctx, key string, def int) (int, error) {
	if c.Query(key) == "" {
		return def, nil
	}
	n := c.QueryInt(key, -1)
	if n < 1 {
		return 0, apperr.InvalidInput(key, "must be a positive integer")
	}
	return n, nil
}
