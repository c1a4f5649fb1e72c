package http

import (
	"github.com/gofiber/fiber/v2"

	"assistant_server/core/service/auth"
)

// OAuthHandler serves the calendar consent flow.
type OAuthHandler struct {
	credentials *auth.CredentialProvider
}

// NewOAuthHandler builds the handler.
func NewOAuthHandler(credentials *auth.CredentialProvider) *OAuthHandler {
	return &OAuthHandler{credentials: credentials}
}

// Register mounts the authenticated oauth routes.
func (h *OAuthHandler) Register(app fiber.Router) {
	app.Get("/oauth/google/url", h.AuthURL)
}

// RegisterPublic mounts the callback, which Google calls without a session
// token.
func (h *OAuthHandler) RegisterPublic(app fiber.Router) {
	app.Get("/oauth/google/callback", h.Callback)
}

// AuthURL starts a consent flow and returns the URL to redirect the user to.
func (h *OAuthHandler) AuthURL(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	url, err := h.credentials.AuthURL(c.Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"url": url})
}

// Callback completes the consent flow.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		return c.Status(fiber.StatusUnauthorized).
			SendString("Calendar access was declined. You can close this window and try again.")
	}

	if err := h.credentials.HandleCallback(c.Context(), c.Query("state"), c.Query("code")); err != nil {
		return err
	}
	return c.SendString("Calendar connected. You can close this window.")
}
