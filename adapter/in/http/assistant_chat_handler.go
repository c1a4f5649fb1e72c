package http

import (
	"github.com/gofiber/fiber/v2"

	"assistant_server/core/port/in"
)

// ChatHandler serves the conversation endpoints.
type ChatHandler struct {
	chat in.ChatService
}

// NewChatHandler builds the handler.
func NewChatHandler(chat in.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Register mounts the chat routes on an authenticated router.
func (h *ChatHandler) Register(app fiber.Router) {
	app.Post("/chat", h.Chat)
	app.Post("/chat/reply", h.Reply)
	app.Post("/chat/resume", h.Resume)
}

// Chat runs one turn on a session, creating one if needed.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req in.ChatRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.chat.Chat(c.Context(), userID, &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// Reply runs a single stateless turn and returns just the assistant message.
func (h *ChatHandler) Reply(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}

	message, err := h.chat.Reply(c.Context(), userID, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": message})
}

// Resume answers a suspended turn.
func (h *ChatHandler) Resume(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req in.ResumeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.chat.Resume(c.Context(), userID, &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
