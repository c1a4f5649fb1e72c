package http

import (
	"github.com/gofiber/fiber/v2"

	"assistant_server/core/port/in"
)

// AuthHandler serves signup and login.
type AuthHandler struct {
	auth in.AuthService
}

// NewAuthHandler builds the handler.
func NewAuthHandler(auth in.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register mounts the public auth routes.
func (h *AuthHandler) Register(app fiber.Router) {
	app.Post("/auth/signup", h.Signup)
	app.Post("/auth/login", h.Login)
}

// Signup registers an account and returns it with a session token.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req in.SignupRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Signup(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// Login authenticates an account and returns it with a session token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req in.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Login(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(result)
}
