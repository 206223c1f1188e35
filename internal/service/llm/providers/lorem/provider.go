package lorem

import (
	"context"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	analysisSvc "figmant/internal/domain/services/analysis"
)

// Analyzer is a mock analysis provider that answers with lorem ipsum.
// Used for development without API keys.
type Analyzer struct {
	generator *loremgen.Lorem
	delay     time.Duration
}

// NewAnalyzer creates a lorem analyzer that waits delay before answering
func NewAnalyzer(delay time.Duration) *Analyzer {
	return &Analyzer{
		generator: loremgen.New(),
		delay:     delay,
	}
}

// Name returns the provider name
func (a *Analyzer) Name() string {
	return "lorem"
}

// Analyze returns a Markdown report with one section per attachment
func (a *Analyzer) Analyze(ctx context.Context, req *analysisSvc.AnalysisRequest) (*analysisSvc.AnalysisResult, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var b strings.Builder
	b.WriteString("## Summary\n\n")
	b.WriteString(a.generator.Paragraph(3, 5))
	b.WriteString("\n")

	for _, att := range req.Attachments {
		fmt.Fprintf(&b, "\n### %s\n\n", att.Name)
		b.WriteString(a.generator.Paragraph(2, 4))
		b.WriteString("\n")
	}

	b.WriteString("\n## Recommendations\n\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, "- %s\n", a.generator.Sentence(6, 12))
	}

	text := b.String()
	confidence := 0.5
	analysisType := "general"
	if req.Template != nil {
		analysisType = "template"
	}

	return &analysisSvc.AnalysisResult{
		Analysis:     text,
		Confidence:   &confidence,
		TokensUsed:   len(strings.Fields(req.Message)) + len(strings.Fields(text)),
		AnalysisType: analysisType,
	}, nil
}
