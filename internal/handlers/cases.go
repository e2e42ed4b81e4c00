package handlers

import (
	"errors"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/case-review/internal/session"
	"github.com/codebuildervaibhav/case-review/internal/storage"
	"github.com/codebuildervaibhav/case-review/internal/transcript"
	"github.com/codebuildervaibhav/case-review/internal/types"
	"github.com/codebuildervaibhav/case-review/internal/views"
)

// CaseHandler serves case data and audio
type CaseHandler struct {
	store     *storage.CaseStore
	audio     *storage.LocalStorage
	maxSizeMB int
}

// NewCaseHandler creates a new case handler
func NewCaseHandler(store *storage.CaseStore, audio *storage.LocalStorage, maxSizeMB int) *CaseHandler {
	return &CaseHandler{store: store, audio: audio, maxSizeMB: maxSizeMB}
}

// CreateCaseRequest represents the request body
type CreateCaseRequest struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Create creates a new case
func (h *CaseHandler) Create(c *fiber.Ctx) error {
	var req CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}

	if err := h.store.CreateCase(id, req.Description); err != nil {
		if errors.Is(err, storage.ErrCaseExists) {
			return c.Status(409).JSON(fiber.Map{
				"error": "Case already exists",
				"code":  "ERR_CASE_EXISTS",
			})
		}
		log.Printf("Failed to create case %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to create case",
			"code":  "ERR_CREATE_FAILED",
		})
	}

	log.Printf("Case %s created", id)
	return c.Status(201).JSON(fiber.Map{
		"id":     id,
		"status": types.StatusCreated,
	})
}

// List returns the most recent cases
func (h *CaseHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	cases, err := h.store.ListCases(limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error(), "code": "ERR_LIST_FAILED"})
	}
	return c.JSON(cases)
}

// Get returns a case's files, summaries and graph
func (h *CaseHandler) Get(c *fiber.Ctx) error {
	cs, ok, err := h.loadCase(c)
	if !ok {
		return err
	}
	return c.JSON(fiber.Map{
		"id":          cs.ID,
		"description": cs.Description,
		"status":      cs.Status,
		"files":       nonNil(cs.Files),
		"summaries":   cs.Summaries,
		"graph":       cs.Graph,
		"created_at":  cs.CreatedAt,
		"updated_at":  cs.UpdatedAt,
	})
}

// Status returns the processing status of a case
func (h *CaseHandler) Status(c *fiber.Ctx) error {
	status, err := h.store.GetStatus(c.Params("id"))
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(fiber.Map{"status": status})
}

// Transcript returns the segments of one source. With ?t=<seconds> the
// segment active at that time is reported too.
func (h *CaseHandler) Transcript(c *fiber.Ctx) error {
	cs, ok, err := h.loadCase(c)
	if !ok {
		return err
	}
	filename := c.Params("filename")
	data, found := cs.Transcripts[filename]
	if !found {
		return c.Status(404).JSON(fiber.Map{
			"error": "Transcript not found",
			"code":  "ERR_TRANSCRIPT_NOT_FOUND",
		})
	}

	payload, perr := transcript.DecodePayload(data)
	if perr != nil {
		log.Printf("Transcript %s/%s could not be decoded: %v", cs.ID, filename, perr)
		payload = transcript.RawLines(nil)
	}
	idx := transcript.NewIndex(filename, payload)

	resp := fiber.Map{
		"source":   filename,
		"segments": session.SegmentViews(idx.Segments()),
		"summary":  cs.Summaries[filename],
	}
	if q := c.Query("t"); q != "" {
		t, perr := strconv.ParseFloat(q, 64)
		if perr != nil {
			return c.Status(400).JSON(fiber.Map{
				"error": "t must be a number of seconds",
				"code":  "ERR_INVALID_TIME",
			})
		}
		resp["active"] = idx.ActiveSegmentIndex(t)
	}
	return c.JSON(resp)
}

// Mentions resolves the recorded mentions of a graph node
func (h *CaseHandler) Mentions(c *fiber.Ctx) error {
	cs, ok, err := h.loadCase(c)
	if !ok {
		return err
	}
	node := c.Params("node")
	// no cursor: resolving never seeks
	resolver := views.NewGraphMentionResolver(nil, cs.Graph, cs.Files)
	return c.JSON(fiber.Map{
		"node":     node,
		"mentions": resolver.Mentions(node),
	})
}

// Audio streams one audio file of a case
func (h *CaseHandler) Audio(c *fiber.Ctx) error {
	caseID, filename := c.Params("id"), c.Params("filename")
	path, err := h.audio.AudioPath(caseID, filename)
	if err != nil || !h.audio.HasAudio(caseID, filename) {
		return c.Status(404).JSON(fiber.Map{
			"error": "Audio not found",
			"code":  "ERR_AUDIO_NOT_FOUND",
		})
	}
	c.Set(fiber.HeaderContentType, storage.AudioContentType(filename))
	return c.SendFile(path)
}

// UploadAudio stores an audio file for a case
func (h *CaseHandler) UploadAudio(c *fiber.Ctx) error {
	caseID := c.Params("id")
	if _, err := h.store.GetStatus(caseID); err != nil {
		return h.storeError(c, err)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	if file.Size > int64(h.maxSizeMB)*1024*1024 {
		return c.Status(400).JSON(fiber.Map{
			"error": "File too large",
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !storage.ValidateAudioFormat(file.Filename) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read upload",
			"code":  "ERR_SAVE_FAILED",
		})
	}
	defer src.Close()

	saved, err := h.audio.SaveAudio(caseID, file.Filename, src)
	if err != nil {
		log.Printf("Failed to save audio for case %s: %v", caseID, err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	return c.Status(201).JSON(fiber.Map{
		"case_id":  caseID,
		"filename": filepath.Base(saved),
		"url":      session.DefaultAudioURL(caseID, filepath.Base(saved)),
	})
}

// loadCase fetches the case named in the route. When ok is false the error
// response has already been written and err is what the handler returns.
func (h *CaseHandler) loadCase(c *fiber.Ctx) (cs *types.Case, ok bool, err error) {
	cs, lerr := h.store.GetCase(c.Params("id"))
	if lerr != nil {
		return nil, false, h.storeError(c, lerr)
	}
	return cs, true, nil
}

func (h *CaseHandler) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, storage.ErrCaseNotFound) {
		return c.Status(404).JSON(fiber.Map{
			"error": "Case not found",
			"code":  "ERR_CASE_NOT_FOUND",
		})
	}
	log.Printf("Case store error: %v", err)
	return c.Status(500).JSON(fiber.Map{
		"error": "Failed to read case",
		"code":  "ERR_STORE_FAILED",
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
