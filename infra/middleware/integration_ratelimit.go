package middleware

import (
	"math"
	"strconv"

	"integration_server/pkg/ratelimit"
	"integration_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RateLimit rejects requests over the limiter's budget with 429. Requests
// are keyed by the authenticated user, falling back to the client IP.
func RateLimit(limiter ratelimit.Limiter, scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := scope + ":ip:" + c.IP()
		if userID, ok := c.Locals("user_id").(uuid.UUID); ok && userID != uuid.Nil {
			key = scope + ":user:" + userID.String()
		}

		allowed, wait := limiter.Allow(c.UserContext(), key)
		if allowed {
			return c.Next()
		}

		retryAfter := int(math.Ceil(wait.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		return response.Error(c, fiber.StatusTooManyRequests, response.ErrorInfo{
			Code:    "RATE_LIMITED",
			Message: "rate limit exceeded",
			Details: map[string]any{"retry_after": retryAfter},
		})
	}
}
