package pipeline

import "context"

// Metrics are the headline surveillance indicators. Rates are percentages
// rounded to two decimals.
type Metrics struct {
	MortalityRate   float64 `json:"mortality_rate"`
	ICURate         float64 `json:"icu_rate"`
	VaccinationRate float64 `json:"vaccination_rate"`
	IncreaseRate    float64 `json:"increase_rate"`
	TotalCases      int     `json:"total_cases"`
}

// Count is one point of a case series. Period is a day (YYYY-MM-DD) or a
// month (YYYY-MM).
type Count struct {
	Period string `json:"period"`
	Cases  int    `json:"cases"`
}

// ChartData holds the series the charts are drawn from.
type ChartData struct {
	Daily   []Count `json:"daily"`
	Monthly []Count `json:"monthly"`
}

// NewsItem is one piece of external context.
type NewsItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Findings is everything the branches produced, as seen by synthesis.
// Pointers and slices are nil for branches that did not run.
type Findings struct {
	Prompt  string
	Intent  Intent
	Metrics *Metrics
	Charts  map[string]string
	News    []NewsItem
}

// Synthesis is the narrative commentary of the report.
type Synthesis struct {
	ExecutiveSummary string `json:"executive_summary"`
	RiskAssessment   string `json:"risk_assessment"`
	DeepDive         string `json:"deep_dive"`
}

// Report is the input of a ReportRenderer.
type Report struct {
	Title     string
	Prompt    string
	Metrics   *Metrics
	Charts    map[string]string
	News      []NewsItem
	Synthesis *Synthesis
}

// MetricsSource computes the headline metrics.
type MetricsSource interface {
	Metrics(ctx context.Context) (Metrics, error)
}

// ChartCalculator computes the series behind the charts.
type ChartCalculator interface {
	ChartData(ctx context.Context) (ChartData, error)
}

// ChartDesigner renders chart data into named Markdown fragments.
type ChartDesigner interface {
	Design(ctx context.Context, data ChartData) (map[string]string, error)
}

// NewsSearcher finds external context for a prompt.
type NewsSearcher interface {
	Search(ctx context.Context, query string) ([]NewsItem, error)
}

// Synthesizer writes commentary from the findings.
type Synthesizer interface {
	Synthesize(ctx context.Context, findings Findings) (Synthesis, error)
}

// ReportRenderer produces the final document.
type ReportRenderer interface {
	Render(ctx context.Context, report Report) (string, error)
}
