package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "server:\n  port: 9000\nreview:\n  poll_interval_seconds: 2\nchat:\n  model: local-model\n  base_url: http://localhost:11434/v1\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 9000 || c.Review.PollIntervalSeconds != 2 {
		t.Errorf("explicit values lost: %+v", c)
	}
	if c.Chat.Model != "local-model" || c.Chat.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("chat config = %+v", c.Chat)
	}
	if c.Workers.Count != 2 || c.Storage.TempDir != "temp" || c.Review.OutboundBuffer != 256 || c.Chat.MaxContextChunks != 40 {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0644)
	if _, err := loadConfig(path); err == nil {
		t.Errorf("expected error for invalid YAML")
	}
}

func TestLogBufferKeepsLastLines(t *testing.T) {
	lb := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(lb, "line %d\n", i)
	}
	logs := lb.GetLogs()
	if len(logs) != 3 || logs[0] != "line 2" || logs[2] != "line 4" {
		t.Fatalf("logs = %q", logs)
	}
}

func TestOpenAIKeyPrefersEnvironment(t *testing.T) {
	keyring.MockInit()

	t.Setenv("OPENAI_API_KEY", "")
	if got := openAIKey(); got != "" {
		t.Fatalf("key = %q, want empty", got)
	}

	if err := keyring.Set(keyringService, keyringUser(), "from-keyring"); err != nil {
		t.Fatalf("keyring set: %v", err)
	}
	if got := openAIKey(); got != "from-keyring" {
		t.Fatalf("key = %q, want keyring value", got)
	}

	t.Setenv("OPENAI_API_KEY", "from-env")
	if got := openAIKey(); got != "from-env" {
		t.Fatalf("key = %q, want env value", got)
	}
}
