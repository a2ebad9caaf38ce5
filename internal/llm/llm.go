// Package llm drafts assessor summary comments with an OpenAI-compatible
// model. Drafts are suggestions only; scores and advice never depend on them.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cataid/assessor/internal/llm/prompts"
	"github.com/cataid/assessor/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyDraft is returned when the model answers without a summary.
var ErrEmptyDraft = errors.New("model returned an empty summary")

type summaryResult struct {
	Summary string `json:"summary"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client. Unknown variants fall back to standard.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid summary variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
	}, nil
}

// Ping checks that the endpoint is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// DraftSummary asks the model for a summary comment of a report in lang.
func (c *Client) DraftSummary(ctx context.Context, rep model.ReportModel, lang string) (string, error) {
	prompt, err := prompts.BuildSummaryPrompt(c.variant, prompts.NewSummaryData(rep, lang))
	if err != nil {
		return "", fmt.Errorf("build summary prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: "Draft the summary now."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	var result summaryResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	summary := strings.TrimSpace(result.Summary)
	if summary == "" {
		return "", ErrEmptyDraft
	}
	return summary, nil
}
