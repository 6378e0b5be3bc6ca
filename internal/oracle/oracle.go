// Package oracle is the boundary to the natural-language analysis engine. The
// ledger treats its output as opaque text plus a confidence.
package oracle

import (
	"context"
	"fmt"
)

// Insight is one finding returned by an analysis run.
type Insight struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Request identifies the dataset content being analyzed.
type Request struct {
	DatasetID int64
	Name      string
	FileHash  string
	Version   int
}

// Analyzer produces insights for a dataset.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) ([]Insight, error)
}

// Static returns a fixed set of insights. It stands in for the model-backed
// engine in development and tests.
type Static struct {
	Insights []Insight
}

// DefaultInsight is what the static analyzer reports when none is configured.
var DefaultInsight = Insight{
	Text:       "The dataset shows consistent patterns with minor anomalies in the upper percentile. Data quality metrics indicate a trustworthy source suitable for downstream analysis.",
	Confidence: 0.88,
}

// NewStatic returns an analyzer that always answers with insights, or with
// DefaultInsight when insights is empty.
func NewStatic(insights ...Insight) *Static {
	if len(insights) == 0 {
		insights = []Insight{DefaultInsight}
	}
	return &Static{Insights: insights}
}

func (s *Static) Analyze(ctx context.Context, req Request) ([]Insight, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("oracle: analyze dataset %d: %w", req.DatasetID, err)
	}
	out := make([]Insight, len(s.Insights))
	copy(out, s.Insights)
	return out, nil
}

// Func adapts a plain function to Analyzer.
type Func func(ctx context.Context, req Request) ([]Insight, error)

func (f Func) Analyze(ctx context.Context, req Request) ([]Insight, error) {
	return f(ctx, req)
}
