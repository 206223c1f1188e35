package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	analysisSvc "figmant/internal/domain/services/analysis"
)

// DefaultModel is used when no model is configured
const DefaultModel = "claude-sonnet-4-5"

const defaultMaxTokens = 4096

// Analyzer answers analysis requests with Claude through the Messages API
type Analyzer struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnalyzer creates an analyzer with the given API key and model
func NewAnalyzer(apiKey, model string) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Analyzer{
		client:    &client,
		model:     model,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Name returns the provider name
func (a *Analyzer) Name() string {
	return "anthropic"
}

// Analyze sends the request as a single user turn and returns the text answer
func (a *Analyzer) Analyze(ctx context.Context, req *analysisSvc.AnalysisRequest) (*analysisSvc.AnalysisResult, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(req))),
		},
		System: []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		},
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	return convertResponse(message, req.Template != nil), nil
}
