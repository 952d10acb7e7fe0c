package llm

import "context"

// InferRequest is one call to the vision inference provider: a prompt pair,
// an optional page image, and the JSON schema the response must satisfy.
type InferRequest struct {
	System    string
	User      string
	Image     []byte // raw page image; nil for text-only calls
	ImageMIME string
	Schema    map[string]any // validated locally against the returned JSON
	MaxTokens int
}

// InferResponse carries the model's JSON content plus the token usage the
// provider reported, which the caller turns into actual spend.
type InferResponse struct {
	Content          []byte
	PromptTokens     int
	CompletionTokens int
}

// VisionInferencer is the interface the inference client depends on. The
// provider is a black box with multi-second latency, non-zero per-call cost,
// and failure modes including timeouts, malformed output, and provider-side
// rate or quota errors.
type VisionInferencer interface {
	Infer(ctx context.Context, req InferRequest) (*InferResponse, error)
}
