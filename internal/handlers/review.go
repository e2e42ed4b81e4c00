package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/case-review/internal/session"
	"github.com/codebuildervaibhav/case-review/internal/storage"
)

// ReviewHandler runs a review session over a WebSocket connection
type ReviewHandler struct {
	loader session.CaseLoader
	config session.Config
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(loader session.CaseLoader, config session.Config) *ReviewHandler {
	return &ReviewHandler{loader: loader, config: config}
}

// Upgrade rejects non-WebSocket requests and unknown cases before the
// connection is upgraded
func (h *ReviewHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "WebSocket upgrade required",
			"code":  "ERR_UPGRADE_REQUIRED",
		})
	}
	if _, err := h.loader.GetStatus(c.Params("id")); err != nil {
		if errors.Is(err, storage.ErrCaseNotFound) {
			return c.Status(404).JSON(fiber.Map{
				"error": "Case not found",
				"code":  "ERR_CASE_NOT_FOUND",
			})
		}
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read case",
			"code":  "ERR_STORE_FAILED",
		})
	}
	return c.Next()
}

// Handle processes WebSocket connections
func (h *ReviewHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	caseID := strings.Clone(c.Params("id"))
	s := session.New(caseID, h.loader, h.config)
	log.Printf("WebSocket review connection established: %s (case %s)", s.ID, caseID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Only this goroutine writes to the connection
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range s.Outbox() {
			if err := c.WriteJSON(msg); err != nil {
				log.Printf("WebSocket write error: %v", err)
				cancel()
				// keep draining so the session can shut down
				for range s.Outbox() {
				}
				return
			}
		}
	}()

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Printf("WebSocket read error: %v", err)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg session.Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Session %s: ignoring malformed message: %v", s.ID, err)
			continue
		}
		if !s.Dispatch(msg) {
			break
		}
	}

	cancel()
	<-writerDone
}
