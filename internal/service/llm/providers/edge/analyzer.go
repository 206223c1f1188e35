package edge

import (
	"context"

	analysisSvc "figmant/internal/domain/services/analysis"
)

// Invoker calls a Supabase edge function
type Invoker interface {
	Invoke(ctx context.Context, name string, payload, out interface{}) error
}

// Analyzer forwards analysis requests to the dashboard's analysis edge function
type Analyzer struct {
	functions Invoker
	function  string
}

// NewAnalyzer creates an analyzer that calls the named edge function
func NewAnalyzer(functions Invoker, function string) *Analyzer {
	return &Analyzer{functions: functions, function: function}
}

func (a *Analyzer) Name() string {
	return "edge"
}

// Analyze posts {message, attachments, template, session_id}. A function
// error carries the function's own message.
func (a *Analyzer) Analyze(ctx context.Context, req *analysisSvc.AnalysisRequest) (*analysisSvc.AnalysisResult, error) {
	var result analysisSvc.AnalysisResult
	if err := a.functions.Invoke(ctx, a.function, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
