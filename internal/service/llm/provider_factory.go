// Package llm selects the analysis provider configured for the server
package llm

import (
	"fmt"
	"time"

	"figmant/internal/config"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/service/llm/providers/anthropic"
	"figmant/internal/service/llm/providers/edge"
	"figmant/internal/service/llm/providers/lorem"
)

// loremDelay makes the mock provider feel like a real call in development
const loremDelay = 1500 * time.Millisecond

// NewAnalyzer returns the analyzer named by cfg.AnalysisProvider.
//
// Supported providers:
//   - "anthropic" - Claude via the Anthropic Messages API
//   - "edge" - the Supabase analysis edge function
//   - "lorem" - mock provider for development (no API key required)
func NewAnalyzer(cfg *config.Config, functions edge.Invoker) (analysisSvc.Analyzer, error) {
	switch cfg.AnalysisProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		return anthropic.NewAnalyzer(cfg.AnthropicAPIKey, cfg.AnalysisModel)

	case "edge":
		if functions == nil {
			return nil, fmt.Errorf("edge analysis requires SUPABASE_URL and SUPABASE_KEY")
		}
		return edge.NewAnalyzer(functions, cfg.AnalysisFunction), nil

	case "lorem":
		return lorem.NewAnalyzer(loremDelay), nil

	default:
		return nil, fmt.Errorf("unsupported analysis provider: %s", cfg.AnalysisProvider)
	}
}
