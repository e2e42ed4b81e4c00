package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/case-review/internal/chat"
	"github.com/codebuildervaibhav/case-review/internal/storage"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

// ChatHandler answers questions about a case
type ChatHandler struct {
	store   *storage.CaseStore
	service *chat.Service
}

// NewChatHandler creates a new chat handler. A nil service disables chat.
func NewChatHandler(store *storage.CaseStore, service *chat.Service) *ChatHandler {
	return &ChatHandler{store: store, service: service}
}

// ChatRequest represents the request body
type ChatRequest struct {
	Messages []chat.Message `json:"messages"`
}

// Handle processes a chat request
func (h *ChatHandler) Handle(c *fiber.Ctx) error {
	if h.service == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "Chat assistant is not configured",
			"code":  "ERR_CHAT_DISABLED",
		})
	}

	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	cs, err := h.store.GetCase(c.Params("id"))
	if errors.Is(err, storage.ErrCaseNotFound) {
		return c.Status(404).JSON(fiber.Map{
			"error": "Case not found",
			"code":  "ERR_CASE_NOT_FOUND",
		})
	}
	if err != nil {
		log.Printf("Chat: failed to load case: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read case",
			"code":  "ERR_STORE_FAILED",
		})
	}
	if cs.Status != types.StatusCompleted {
		return c.Status(409).JSON(fiber.Map{
			"error": "Case is still processing",
			"code":  "ERR_CASE_NOT_READY",
		})
	}

	reply, err := h.service.Ask(c.UserContext(), cs, req.Messages)
	switch {
	case errors.Is(err, chat.ErrNoMessages):
		return c.Status(400).JSON(fiber.Map{
			"error": "A user message is required",
			"code":  "ERR_NO_MESSAGES",
		})
	case errors.Is(err, chat.ErrNoTranscripts):
		return c.Status(409).JSON(fiber.Map{
			"error": "Case has no transcripts",
			"code":  "ERR_NO_TRANSCRIPTS",
		})
	case err != nil:
		log.Printf("Chat for case %s failed: %v", cs.ID, err)
		return c.Status(502).JSON(fiber.Map{
			"error": "Chat assistant unavailable",
			"code":  "ERR_CHAT_FAILED",
		})
	}

	return c.JSON(reply)
}
