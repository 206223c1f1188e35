package anthropic

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"figmant/internal/domain/models/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
)

const systemPrompt = `You are a senior product designer reviewing designs for a client.
You receive a request and a manifest of attached files, images and web pages.
Screenshot links show the rendered page on desktop and mobile when available.
Answer in Markdown with concrete, prioritised recommendations.`

// buildUserPrompt renders the request text followed by a textual manifest of
// the attachments
func buildUserPrompt(req *analysisSvc.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString(req.Message)

	if len(req.Attachments) > 0 {
		b.WriteString("\n\nAttachments:\n")
		for i, a := range req.Attachments {
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, a.Kind, a.Name)
			if a.Location != "" && a.Location != a.Name {
				fmt.Fprintf(&b, " (%s)", a.Location)
			}
			b.WriteString("\n")
			writeScreenshots(&b, a.Metadata)
		}
	}

	if req.Template != nil && len(req.Template.ContextualFields) > 0 {
		b.WriteString("\nThe template also asks about: ")
		labels := make([]string, len(req.Template.ContextualFields))
		for i, f := range req.Template.ContextualFields {
			labels[i] = f.Label
		}
		b.WriteString(strings.Join(labels, ", "))
		b.WriteString("\n")
	}

	return b.String()
}

func writeScreenshots(b *strings.Builder, md *analysis.AttachmentMetadata) {
	if md == nil || md.Screenshots == nil {
		return
	}
	for _, v := range []struct {
		name   string
		result *analysis.ScreenshotResult
	}{
		{"desktop", md.Screenshots.Desktop},
		{"mobile", md.Screenshots.Mobile},
	} {
		if v.result == nil {
			continue
		}
		if v.result.Success {
			fmt.Fprintf(b, "   %s screenshot: %s\n", v.name, v.result.ScreenshotURL)
		} else {
			fmt.Fprintf(b, "   %s screenshot unavailable: %s\n", v.name, v.result.Error)
		}
	}
}

// convertResponse joins the text blocks of msg into an analysis result
func convertResponse(msg *anthropic.Message, templated bool) *analysisSvc.AnalysisResult {
	parts := make([]string, 0, len(msg.Content))
	for _, content := range msg.Content {
		if content.Type == "text" {
			parts = append(parts, content.Text)
		}
	}

	analysisType := "general"
	if templated {
		analysisType = "template"
	}

	return &analysisSvc.AnalysisResult{
		Analysis:     strings.Join(parts, "\n\n"),
		TokensUsed:   int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		AnalysisType: analysisType,
	}
}
