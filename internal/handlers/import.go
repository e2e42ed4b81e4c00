package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/case-review/internal/queue"
	"github.com/codebuildervaibhav/case-review/internal/storage"
)

// Import source types
const (
	SourceUpload = "upload"
	SourceGDrive = "gdrive"
)

var (
	driveFilePattern = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveIDPattern   = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveRawPattern  = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// ImportHandler accepts pipeline bundles for a case and queues their import
type ImportHandler struct {
	workerPool  *queue.WorkerPool
	driveClient *storage.DriveClient
	httpClient  *http.Client
	tempDir     string
	maxSizeMB   int
}

// NewImportHandler creates a new import handler. driveClient may be nil, in
// which case Drive links are fetched through the public download URL.
func NewImportHandler(workerPool *queue.WorkerPool, driveClient *storage.DriveClient, tempDir string, maxSizeMB int) *ImportHandler {
	return &ImportHandler{
		workerPool:  workerPool,
		driveClient: driveClient,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		tempDir:     tempDir,
		maxSizeMB:   maxSizeMB,
	}
}

func (h *ImportHandler) maxBytes() int64 {
	return int64(h.maxSizeMB) * 1024 * 1024
}

// Upload processes a multipart bundle upload
func (h *ImportHandler) Upload(c *fiber.Ctx) error {
	caseID := c.Params("id")

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No bundle uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	if file.Size > h.maxBytes() {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("Bundle too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.tempDir, jobID+".bundle.json")
	if err := c.SaveFile(file, tempPath); err != nil {
		log.Printf("Failed to save uploaded bundle: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save bundle",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	job := queue.NewJob(jobID, caseID, SourceUpload, tempPath)
	return h.enqueue(c, job, "Bundle uploaded, import started")
}

// GDriveRequest represents the request body
type GDriveRequest struct {
	URL string `json:"url"`
}

// GDrive imports a bundle shared as a Google Drive link
func (h *ImportHandler) GDrive(c *fiber.Ctx) error {
	caseID := c.Params("id")

	var req GDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	if req.URL == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "URL is required",
			"code":  "ERR_NO_URL",
		})
	}

	fileID := extractGDriveFileID(req.URL)
	if fileID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid Google Drive URL",
			"code":  "ERR_INVALID_URL",
		})
	}

	log.Printf("Downloading bundle from Google Drive: %s", fileID)
	data, err := h.download(c.UserContext(), fileID)
	if err != nil {
		log.Printf("Failed to download from Google Drive: %v", err)
		return c.Status(400).JSON(fiber.Map{
			"error": "File not accessible (may be private or doesn't exist)",
			"code":  "ERR_FILE_NOT_ACCESSIBLE",
		})
	}

	job := queue.NewJob(uuid.New().String(), caseID, SourceGDrive, "")
	job.Data = data
	return h.enqueue(c, job, "Google Drive bundle downloaded, import started")
}

func (h *ImportHandler) download(ctx context.Context, fileID string) ([]byte, error) {
	if h.driveClient != nil {
		return h.driveClient.Download(ctx, fileID, h.maxBytes())
	}

	downloadURL := fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drive returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes()+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxBytes() {
		return nil, fmt.Errorf("bundle exceeds %dMB", h.maxSizeMB)
	}
	return data, nil
}

func (h *ImportHandler) enqueue(c *fiber.Ctx, job *queue.Job, message string) error {
	if err := h.workerPool.EnqueueJob(job); err != nil {
		if job.FilePath != "" {
			removeTemp(job.FilePath)
		}
		if errors.Is(err, storage.ErrCaseNotFound) {
			return c.Status(404).JSON(fiber.Map{
				"error": "Case not found",
				"code":  "ERR_CASE_NOT_FOUND",
			})
		}
		log.Printf("Failed to enqueue import for case %s: %v", job.CaseID, err)
		return c.Status(503).JSON(fiber.Map{
			"error": "Import queue unavailable",
			"code":  "ERR_QUEUE_UNAVAILABLE",
		})
	}

	return c.Status(202).JSON(fiber.Map{
		"job_id":  job.ID,
		"case_id": job.CaseID,
		"status":  "queued",
		"message": message,
	})
}

// JobStatus reports the state of an import job
func (h *ImportHandler) JobStatus(c *fiber.Ctx) error {
	status, errMsg, ok := h.workerPool.JobStatus(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": "Job not found",
			"code":  "ERR_JOB_NOT_FOUND",
		})
	}
	resp := fiber.Map{"job_id": c.Params("id"), "status": status}
	if errMsg != "" {
		resp["error"] = errMsg
	}
	return c.JSON(resp)
}

// extractGDriveFileID extracts the file ID from various Google Drive URL formats
func extractGDriveFileID(url string) string {
	// Pattern 1: https://drive.google.com/file/d/{ID}/view
	if matches := driveFilePattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// Pattern 2: https://drive.google.com/open?id={ID}
	if matches := driveIDPattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// Pattern 3: Direct ID (25-40 characters)
	if matches := driveRawPattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	return ""
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to cleanup temp file %s: %v", path, err)
	}
}
