package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/case-review/internal/chat"
	"github.com/codebuildervaibhav/case-review/internal/cleanup"
	"github.com/codebuildervaibhav/case-review/internal/handlers"
	"github.com/codebuildervaibhav/case-review/internal/queue"
	"github.com/codebuildervaibhav/case-review/internal/session"
	"github.com/codebuildervaibhav/case-review/internal/storage"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Storage struct {
		TempDir  string `yaml:"temp_dir"`
		AudioDir string `yaml:"audio_dir"`
		Database string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`

	Review struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		OutboundBuffer      int `yaml:"outbound_buffer"`
	} `yaml:"review"`

	Chat struct {
		Model            string  `yaml:"model"`
		BaseURL          string  `yaml:"base_url"`
		MaxContextChunks int     `yaml:"max_context_chunks"`
		MaxTokens        int     `yaml:"max_tokens"`
		Temperature      float32 `yaml:"temperature"`
		TimeoutSeconds   int     `yaml:"timeout_seconds"`
	} `yaml:"chat"`
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	authorizeDrive := flag.Bool("authorize-drive", false, "run the Google Drive authorization flow and exit")
	setOpenAIKey := flag.Bool("set-openai-key", false, "store the OpenAI API key in the system keyring and exit")
	flag.Parse()

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("WARNING: failed to load .env: %v", err)
	}

	// Load configuration
	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *setOpenAIKey {
		if err := storeOpenAIKey(); err != nil {
			log.Fatalf("%v", err)
		}
		log.Println("API key saved to the system keyring")
		return
	}

	if *authorizeDrive {
		err := storage.AuthorizeDrive(context.Background(),
			config.GoogleDrive.CredentialsFile, config.GoogleDrive.TokenFile, os.Stdin, os.Stdout)
		if err != nil {
			log.Fatalf("Drive authorization failed: %v", err)
		}
		log.Printf("Drive token saved to %s", config.GoogleDrive.TokenFile)
		return
	}

	// Ensure directories exist
	if err := cleanup.EnsureTempDirExists(config.Storage.TempDir); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	if err := os.MkdirAll(config.Storage.AudioDir, 0755); err != nil {
		log.Fatalf("Failed to create audio directory: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(config.Storage.Database), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// Custom logger setup
	logBuffer := NewLogBuffer(1000)
	log.SetOutput(io.MultiWriter(os.Stdout, logBuffer))

	log.Println("Initializing components...")

	// Database
	store, err := storage.NewCaseStore(config.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Local storage
	audioStorage := storage.NewLocalStorage(config.Storage.AudioDir)

	// Google Drive client (optional - public links still work without it)
	var driveClient *storage.DriveClient
	if _, err := os.Stat(config.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err = storage.NewDriveClient(context.Background(),
			config.GoogleDrive.CredentialsFile,
			config.GoogleDrive.TokenFile,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Drive imports will use public download links")
			driveClient = nil
		} else {
			log.Println("Google Drive integration enabled")
		}
	} else {
		log.Println("Google Drive credentials not found - using public download links")
	}

	// Chat assistant (optional)
	var chatService *chat.Service
	if apiKey := openAIKey(); apiKey != "" {
		chatService = chat.NewService(chat.Config{
			APIKey:           apiKey,
			BaseURL:          config.Chat.BaseURL,
			Model:            config.Chat.Model,
			MaxContextChunks: config.Chat.MaxContextChunks,
			MaxTokens:        config.Chat.MaxTokens,
			Temperature:      config.Chat.Temperature,
			Timeout:          time.Duration(config.Chat.TimeoutSeconds) * time.Second,
		})
		log.Printf("Chat assistant enabled (model: %s)", config.Chat.Model)
	} else {
		log.Println("No OpenAI API key (env or keyring) - chat assistant disabled")
	}

	// Worker pool
	workerPool := queue.NewWorkerPool(config.Workers.Count, store)
	workerPool.Start()

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		config.Storage.TempDir,
		config.Cleanup.IntervalMinutes,
		config.Cleanup.MaxAgeHours,
	)
	cleanupScheduler.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    config.Limits.MaxFileSizeMB * 1024 * 1024,
		UnescapePath: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Initialize handlers
	caseHandler := handlers.NewCaseHandler(store, audioStorage, config.Limits.MaxFileSizeMB)
	importHandler := handlers.NewImportHandler(workerPool, driveClient, config.Storage.TempDir, config.Limits.MaxFileSizeMB)
	chatHandler := handlers.NewChatHandler(store, chatService)
	reviewHandler := handlers.NewReviewHandler(store, session.Config{
		PollInterval:   time.Duration(config.Review.PollIntervalSeconds) * time.Second,
		OutboundBuffer: config.Review.OutboundBuffer,
	})

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/cases", caseHandler.Create)
	app.Get("/cases", caseHandler.List)
	app.Get("/cases/:id", caseHandler.Get)
	app.Get("/cases/:id/status", caseHandler.Status)
	app.Get("/cases/:id/transcripts/:filename", caseHandler.Transcript)
	app.Get("/cases/:id/mentions/:node", caseHandler.Mentions)
	app.Get("/cases/:id/audio/:filename", caseHandler.Audio)
	app.Post("/cases/:id/audio", caseHandler.UploadAudio)
	app.Post("/cases/:id/import", importHandler.Upload)
	app.Post("/cases/:id/import/gdrive", importHandler.GDrive)
	app.Get("/jobs/:id", importHandler.JobStatus)
	app.Post("/cases/:id/chat", chatHandler.Handle)

	// WebSocket route
	app.Get("/cases/:id/review", reviewHandler.Upgrade, websocket.New(reviewHandler.Handle))

	// Get server logs
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST /cases                         - Create a case")
	log.Println("   GET  /cases                         - List cases")
	log.Println("   GET  /cases/:id                     - Case files, summaries and graph")
	log.Println("   GET  /cases/:id/status              - Processing status")
	log.Println("   GET  /cases/:id/transcripts/:file   - Transcript segments (?t= active segment)")
	log.Println("   GET  /cases/:id/mentions/:node      - Resolved graph node mentions")
	log.Println("   GET  /cases/:id/audio/:file         - Stream audio")
	log.Println("   POST /cases/:id/audio               - Upload audio")
	log.Println("   POST /cases/:id/import              - Import pipeline bundle")
	log.Println("   POST /cases/:id/import/gdrive       - Import bundle from Google Drive")
	log.Println("   GET  /jobs/:id                      - Import job status")
	log.Println("   POST /cases/:id/chat                - Ask the chat assistant")
	log.Println("   GET  /cases/:id/review              - WebSocket review session")
	log.Println("   GET  /logs                          - View server logs")
	log.Println("   GET  /health                        - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Printf("Server failed: %v", err)
	}

	cleanupScheduler.Stop()
	workerPool.Stop()
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	max   int
	mu    sync.Mutex
}

// NewLogBuffer creates a buffer keeping the last limit lines
func NewLogBuffer(limit int) *LogBuffer {
	return &LogBuffer{lines: make([]string, 0, limit), max: limit}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, strings.TrimRight(string(p), "\n"))
	if len(lb.lines) > lb.max {
		lb.lines = lb.lines[len(lb.lines)-lb.max:]
	}

	return len(p), nil
}

// GetLogs returns a copy of the buffered lines
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

// loadConfig loads configuration from YAML file
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applyDefaults(&config)
	return &config, nil
}

// applyDefaults fills in values the config file leaves out
func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Workers.Count <= 0 {
		c.Workers.Count = 2
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.AudioDir == "" {
		c.Storage.AudioDir = "data/audio"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "data/cases.db"
	}
	if c.Cleanup.IntervalMinutes <= 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeHours <= 0 {
		c.Cleanup.MaxAgeHours = 24
	}
	if c.GoogleDrive.CredentialsFile == "" {
		c.GoogleDrive.CredentialsFile = "config/credentials.json"
	}
	if c.GoogleDrive.TokenFile == "" {
		c.GoogleDrive.TokenFile = "config/token.json"
	}
	if c.Limits.MaxFileSizeMB <= 0 {
		c.Limits.MaxFileSizeMB = 500
	}
	if c.Review.PollIntervalSeconds <= 0 {
		c.Review.PollIntervalSeconds = 5
	}
	if c.Review.OutboundBuffer <= 0 {
		c.Review.OutboundBuffer = 256
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o-mini"
	}
	if c.Chat.MaxContextChunks <= 0 {
		c.Chat.MaxContextChunks = 40
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = 1000
	}
	if c.Chat.TimeoutSeconds <= 0 {
		c.Chat.TimeoutSeconds = 60
	}
}
