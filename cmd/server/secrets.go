package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/user"
	"strings"
	"syscall"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const keyringService = "case-review"

func keyringUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}

// openAIKey returns the API key from the environment, falling back to the
// system keyring
func openAIKey() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	key, err := keyring.Get(keyringService, keyringUser())
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			log.Printf("WARNING: could not read API key from keyring: %v", err)
		}
		return ""
	}
	return key
}

// storeOpenAIKey prompts for an API key without echo and saves it in the
// system keyring
func storeOpenAIKey() error {
	fmt.Print("OpenAI API key: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}

	key := strings.TrimSpace(string(raw))
	if key == "" {
		return errors.New("empty API key")
	}
	if err := keyring.Set(keyringService, keyringUser(), key); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	return nil
}
