package infer

import (
	"context"
	"errors"
	"fmt"
	"time"

	genai "google.golang.org/genai"
)

// ErrEmptyReply means the model call succeeded but returned no candidates.
var ErrEmptyReply = errors.New("empty model reply")

const geminiMaxAttempts = 3

// Gemini talks to the Gemini API through the official genai client.
type Gemini struct {
	cli    *genai.Client
	config Config
}

func NewGemini(ctx context.Context, apiKey string, config Config) (*Gemini, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("No model name configured")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to create Gemini client: %w", err)
	}
	return &Gemini{
		cli:    cli,
		config: config,
	}, nil
}

func (g *Gemini) Model() string {
	return g.config.Model
}

// Infer sends the JPEG inline with the prompt and asks for a JSON reply.
// Transient failures are retried with exponential backoff; after the last
// attempt the error goes back to the caller, who records the frame with
// schema defaults.
func (g *Gemini) Infer(ctx context.Context, image []byte, prompt string) (Result, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: image}},
		},
	}}
	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if g.config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(g.config.MaxTokens)
	}
	temperature := g.config.Temperature
	genConfig.Temperature = &temperature

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < geminiMaxAttempts; attempt++ {
		resp, err := g.cli.Models.GenerateContent(ctx, g.config.Model, contents, genConfig)
		if err != nil {
			lastErr = err
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = ErrEmptyReply
		} else {
			result := Result{
				Text:           resp.Candidates[0].Content.Parts[0].Text,
				ProcessingTime: time.Since(start).Seconds(),
			}
			if resp.UsageMetadata != nil {
				result.Usage = Usage{
					InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			return result, nil
		}
		if ctx.Err() != nil {
			break
		}
		time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
	}
	return Result{ProcessingTime: time.Since(start).Seconds()}, lastErr
}
