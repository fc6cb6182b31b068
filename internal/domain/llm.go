package domain

import (
	"context"
	"time"
)

// ChatMessage is a single turn sent to a chat-completion provider.
type ChatMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// CompletionRequest is a single schema-bound call to an LLM provider.
// All task-engine calls are one-shot (no tool loop) and deterministic-
// leaning (temperature 0).
type CompletionRequest struct {
	Messages    []ChatMessage
	Model       string
	MaxTokens   int
	Temperature float64
	JSONMode    bool // ask the provider for a JSON object response when supported
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Content      string
	FinishReason string
	PromptTokens int
	OutputTokens int
	LatencyMs    int64
}

// ChatProvider is the interface all LLM API clients implement.
type ChatProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

// LanguageModel is the task-engine view of the language-model provider.
// ClassifyIntent and SplitTasks never fail: they degrade to IntentUnknown
// and a single-element split. ParseTask and ParseDate return errors the
// caller must handle.
type LanguageModel interface {
	ClassifyIntent(ctx context.Context, text string) ClassifiedIntent
	SplitTasks(ctx context.Context, text string) []string
	ParseTask(ctx context.Context, text string, knownCategories []string) (*ParsedTask, error)
	ParseDate(ctx context.Context, text string) (time.Time, error)
}
