package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"assistant_server/pkg/apperr"
)

// GetUserID pulls the authenticated user id out of the request context.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userID, ok := c.Locals("user_id").(uuid.UUID)
	if !ok {
		return uuid.Nil, apperr.Unauthorized("user not authenticated")
	}
	return userID, nil
}

// parseBody decodes the JSON request body or fails with a validation error.
func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		return apperr.ValidationError("invalid request body")
	}
	return nil
}
