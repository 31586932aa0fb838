package mission

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
)

const summarizeSystemPrompt = "You are a concise QA report summarizer. Summarize the following game test mission report in 2-4 sentences. Focus on: what was exercised, which steps failed (if any), and how screenshots compared to their golden images. Be specific about step names and numbers."

// Summarize calls the Anthropic Messages API to generate a short
// plain-text summary of a mission report. The model parameter should
// be an Anthropic model identifier (e.g. "haiku"). Returns "" without
// error when ANTHROPIC_API_KEY is unset: summaries are additive, never
// a reason to fail a run.
func Summarize(ctx context.Context, report string, model string) (string, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return "", nil
	}

	client := anthropic.NewClient()

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 200,
		System: []anthropic.TextBlockParam{
			{Text: summarizeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(report)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	// Extract text from the response content blocks.
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("no text block in response")
}
