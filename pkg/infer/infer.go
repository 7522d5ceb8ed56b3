package infer

import (
	"context"
)

// Package infer is the boundary to the vision model. The pipeline only ever
// sees this interface; whether the other side is Gemini or a no-op stub is
// decided by configuration.

// Config is the model-facing knobs for a run.
type Config struct {
	Model       string  // eg "gemini-2.0-flash"
	MaxTokens   int     // Cap on reply tokens. 0 = provider default.
	Temperature float32
}

// Usage is the token accounting for one inference call.
// All counts are non-negative; a no-op call reports zeros.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Result is the raw outcome of one inference call. Text is opaque here;
// the anno package digs the JSON out of it.
type Result struct {
	Text           string
	Usage          Usage
	ProcessingTime float64 // seconds
}

// Service runs one image + prompt through a vision model.
type Service interface {
	// Infer sends a JPEG image and the prompt text, and returns the model's
	// raw reply. An error return is recoverable: the caller records the
	// frame with schema defaults rather than dropping it.
	Infer(ctx context.Context, image []byte, prompt string) (Result, error)

	// Model returns the model name for record keeping.
	Model() string
}
