// Package llm answers widget questions directly with OpenAI chat completions
// when no automation webhook is available.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"foneai-widget/internal/webhook"
)

type PromptSpec struct {
	System string `yaml:"system"`
	Style  struct {
		Temperature float32 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"style"`
	// HistoryTurns is how many earlier question/answer pairs are replayed.
	HistoryTurns int `yaml:"history_turns"`
}

func LoadPromptSpec(path string) (PromptSpec, error) {
	var spec PromptSpec
	b, err := os.ReadFile(path)
	if err != nil {
		return spec, err
	}
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return spec, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	if strings.TrimSpace(spec.System) == "" {
		return spec, fmt.Errorf("prompt file %s has no system prompt", path)
	}
	return spec, nil
}

// Responder keeps a short history per session so follow-up questions work the
// same way they do behind a webhook that correlates on sessionId.
type Responder struct {
	spec   PromptSpec
	client *openai.Client
	model  string
	logger *zap.Logger

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessage
}

func NewResponder(spec PromptSpec, client *openai.Client, model string, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		spec:    spec,
		client:  client,
		model:   model,
		logger:  logger.Named("llm"),
		history: make(map[string][]openai.ChatCompletionMessage),
	}
}

// Exchange returns {"text": answer} so the reply is normalized like a webhook body.
func (r *Responder) Exchange(ctx context.Context, p webhook.Payload) ([]byte, error) {
	temp := r.spec.Style.Temperature
	if temp <= 0 {
		temp = 0.3
	}
	maxTok := r.spec.Style.MaxTokens
	if maxTok <= 0 {
		maxTok = 300
	}

	question := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.Question}
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: r.spec.System}}
	messages = append(messages, r.past(p.SessionID)...)
	messages = append(messages, question)

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: temp,
		MaxTokens:   maxTok,
		Messages:    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices")
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return nil, errors.New("empty completion")
	}
	r.logger.Debug("completion",
		zap.String("session", p.SessionID),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	r.remember(p.SessionID, question, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer})
	return json.Marshal(map[string]string{"text": answer})
}

// Forget drops a session's history.
func (r *Responder) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.history, sessionID)
}

func (r *Responder) past(sessionID string) []openai.ChatCompletionMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.history[sessionID]
	out := make([]openai.ChatCompletionMessage, len(h))
	copy(out, h)
	return out
}

func (r *Responder) remember(sessionID string, msgs ...openai.ChatCompletionMessage) {
	if r.spec.HistoryTurns <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h := append(r.history[sessionID], msgs...)
	if limit := r.spec.HistoryTurns * 2; len(h) > limit {
		h = h[len(h)-limit:]
	}
	r.history[sessionID] = h
}
