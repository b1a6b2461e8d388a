// Package llm defines the generation backend contract and the HTTP client
// speaking the backend's /generate and /health endpoints.
package llm

import "context"

type Request struct {
	Prompt            string  `json:"prompt"`
	SystemPrompt      string  `json:"system_prompt,omitempty"`
	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	Stream            bool    `json:"stream"`
}

// DefaultRequest returns the sampling defaults used for every attempt; callers
// override prompt, token budget, and stream flag.
func DefaultRequest() Request {
	return Request{
		MaxNewTokens:      512,
		Temperature:       0.7,
		TopP:              0.95,
		TopK:              50,
		RepetitionPenalty: 1.1,
	}
}

type Response struct {
	Text            string  `json:"text"`
	TokensGenerated int     `json:"tokens_generated"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	Model           string  `json:"model"`
}

type HealthStatus struct {
	Status      string `json:"status"`
	Model       string `json:"model"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Backend is the generation contract the gateway depends on. GenerateStreaming
// invokes onToken once per produced fragment, in order, from a single
// goroutine, and returns only after the stream terminates.
type Backend interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	GenerateStreaming(ctx context.Context, req Request, onToken func(token string)) error
	Health(ctx context.Context) (*HealthStatus, error)
}
