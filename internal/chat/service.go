// Package chat answers questions about a case from its transcripts. Answers
// cite the transcript chunks they rely on; each citation URL is an offset
// token that resolves to a moment in the case's audio.
package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codebuildervaibhav/case-review/internal/timecode"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

var (
	// ErrNoMessages is returned for a conversation without a user message
	ErrNoMessages = errors.New("no user message")
	// ErrNoTranscripts is returned when the case has nothing to answer from
	ErrNoTranscripts = errors.New("case has no transcripts")
)

var citePattern = regexp.MustCompile(`\[([^\[\]]+?__min\d+_\d+(?:\.txt)?)\]`)

// Completer is the part of the OpenAI client the service uses
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds chat settings
type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxContextChunks int
	MaxTokens        int
	Temperature      float32
	Timeout          time.Duration
}

// Message is one turn of the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the assistant's answer with the chunks it cited
type Reply struct {
	Content   string           `json:"content"`
	Citations []types.Citation `json:"citations"`
}

// Service answers questions over case transcripts
type Service struct {
	client Completer
	cfg    Config
}

// NewService creates a service backed by the OpenAI API (or any compatible
// endpoint when BaseURL is set)
func NewService(cfg Config) *Service {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return NewServiceWithClient(openai.NewClientWithConfig(clientConfig), cfg)
}

// NewServiceWithClient creates a service with a custom completion client
func NewServiceWithClient(client Completer, cfg Config) *Service {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxContextChunks <= 0 {
		cfg.MaxContextChunks = 40
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Service{client: client, cfg: cfg}
}

// Ask answers the last user message of messages from the case's transcripts
func (s *Service) Ask(ctx context.Context, c *types.Case, messages []Message) (*Reply, error) {
	question := lastUserMessage(messages)
	if question == "" {
		return nil, ErrNoMessages
	}

	all := BuildChunks(c)
	if len(all) == 0 {
		return nil, ErrNoTranscripts
	}
	chunks := selectChunks(all, question, s.cfg.MaxContextChunks)

	req := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Messages:    buildMessages(chunks, messages),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return &Reply{Content: content, Citations: ExtractCitations(content, all)}, nil
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func buildMessages(chunks []Chunk, messages []Message) []openai.ChatCompletionMessage {
	var b strings.Builder
	b.WriteString("You are an assistant helping an investigator review audio recordings of a case. ")
	b.WriteString("Answer only from the transcript excerpts below. ")
	b.WriteString("After every statement, cite the excerpt it comes from by its name in square brackets, ")
	b.WriteString("for example [interview.mp3__min01_05.txt]. ")
	b.WriteString("If the excerpts do not contain the answer, say that no information was found.\n\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "### %s\n%s\n", c.Name, c.Content())
	}

	out := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: b.String()}}
	for _, m := range messages {
		// the system prompt is ours
		if m.Role != openai.ChatMessageRoleUser && m.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// ExtractCitations returns the known chunks cited in content, in order of
// first citation. Names the model invented are dropped.
func ExtractCitations(content string, chunks []Chunk) []types.Citation {
	known := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		known[c.Name] = c
		known[strings.TrimSuffix(c.Name, ".txt")] = c
	}

	citations := []types.Citation{}
	seen := make(map[string]bool)
	for _, m := range citePattern.FindAllStringSubmatch(content, -1) {
		c, ok := known[m[1]]
		if !ok || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		citations = append(citations, types.Citation{
			URL:     c.Name,
			Title:   timecode.Label(c.Name),
			Content: c.Content(),
		})
	}
	return citations
}
