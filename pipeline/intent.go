package pipeline

import (
	"context"
	"strings"
)

// Intent is the routing decision derived from a prompt. Routers read only
// these flags.
type Intent struct {
	IncludeMetrics bool `json:"include_metrics"`
	IncludeCharts  bool `json:"include_charts"`
	IncludeNews    bool `json:"include_news"`
	OffTopic       bool `json:"off_topic"`
}

// FullReport selects every branch.
func FullReport() Intent {
	return Intent{IncludeMetrics: true, IncludeCharts: true, IncludeNews: true}
}

// Branches returns the number of branches the intent selects.
func (i Intent) Branches() int {
	n := 0
	for _, on := range []bool{i.IncludeMetrics, i.IncludeCharts, i.IncludeNews} {
		if on {
			n++
		}
	}
	return n
}

// IntentClassifier turns a prompt into an Intent.
type IntentClassifier interface {
	Classify(ctx context.Context, prompt string) (Intent, error)
}

// KeywordClassifier classifies prompts by substring match. An empty prompt
// asks for the full report. A prompt matching no branch keyword is on topic
// when it mentions a Domain keyword, and then also yields the full report.
type KeywordClassifier struct {
	Metrics []string
	Charts  []string
	News    []string
	Domain  []string
}

// NewKeywordClassifier returns a classifier with English keywords for the
// respiratory illness surveillance report.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		Metrics: []string{"metric", "rate", "mortality", "death", "icu", "vaccin", "statistic", "how many"},
		Charts:  []string{"chart", "graph", "plot", "trend", "daily", "monthly", "evolution"},
		News:    []string{"news", "headline", "context", "latest", "outbreak"},
		Domain:  []string{"srag", "sars", "respiratory", "report", "case", "hospital", "influenza", "covid"},
	}
}

func (c *KeywordClassifier) Classify(ctx context.Context, prompt string) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}

	p := strings.ToLower(strings.TrimSpace(prompt))
	if p == "" {
		return FullReport(), nil
	}

	intent := Intent{
		IncludeMetrics: containsAny(p, c.Metrics),
		IncludeCharts:  containsAny(p, c.Charts),
		IncludeNews:    containsAny(p, c.News),
	}
	if intent.Branches() > 0 {
		return intent, nil
	}

	if containsAny(p, c.Domain) {
		return FullReport(), nil
	}
	return Intent{OffTopic: true}, nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
