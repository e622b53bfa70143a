package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// StaticNews returns the same items for every query.
type StaticNews []NewsItem

func (s StaticNews) Search(ctx context.Context, _ string) ([]NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]NewsItem, len(s))
	copy(out, s)
	return out, nil
}

// TableDesigner draws each series as a Markdown table with a text bar.
type TableDesigner struct {
	// Width of the longest bar in characters. Defaults to 20.
	Width int
}

func (d TableDesigner) Design(ctx context.Context, data ChartData) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	charts := make(map[string]string)
	if len(data.Daily) > 0 {
		charts["Daily cases"] = d.table("Day", data.Daily)
	}
	if len(data.Monthly) > 0 {
		charts["Monthly cases"] = d.table("Month", data.Monthly)
	}
	return charts, nil
}

func (d TableDesigner) table(label string, series []Count) string {
	width := d.Width
	if width <= 0 {
		width = 20
	}

	peak := 0
	for _, c := range series {
		peak = max(peak, c.Cases)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "| %s | Cases | |\n|---|---:|---|\n", label)
	for _, c := range series {
		bar := 0
		if peak > 0 {
			bar = c.Cases * width / peak
		}
		fmt.Fprintf(&b, "| %s | %d | %s |\n", c.Period, c.Cases, strings.Repeat("#", bar))
	}
	return b.String()
}

// Risk levels assigned by TemplateSynthesizer.
const (
	RiskLow      = "Low"
	RiskModerate = "Moderate"
	RiskHigh     = "High"
)

// TemplateSynthesizer writes commentary from fixed sentence templates. Risk
// is High when cases grew by more than HighIncrease percent or mortality is
// above HighMortality percent, Moderate when cases grew at all, Low otherwise.
type TemplateSynthesizer struct {
	HighIncrease  float64
	HighMortality float64
}

func (s TemplateSynthesizer) Synthesize(ctx context.Context, f Findings) (Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return Synthesis{}, err
	}

	highIncrease := s.HighIncrease
	if highIncrease == 0 {
		highIncrease = 20
	}
	highMortality := s.HighMortality
	if highMortality == 0 {
		highMortality = 15
	}

	var summary []string
	risk := RiskLow

	if m := f.Metrics; m != nil {
		summary = append(summary, fmt.Sprintf(
			"%d cases analysed with a mortality rate of %.2f%% and an ICU rate of %.2f%%.",
			m.TotalCases, m.MortalityRate, m.ICURate))
		if m.IncreaseRate != 0 {
			summary = append(summary, fmt.Sprintf(
				"Notifications changed by %.2f%% over the last 30 days.", m.IncreaseRate))
		}

		switch {
		case m.IncreaseRate > highIncrease || m.MortalityRate > highMortality:
			risk = RiskHigh
		case m.IncreaseRate > 0:
			risk = RiskModerate
		}
	}

	if len(f.Charts) > 0 {
		summary = append(summary, fmt.Sprintf("%d case series charted.", len(f.Charts)))
	}
	if len(summary) == 0 {
		summary = append(summary, "No quantitative findings were requested.")
	}

	var deepDive string
	if len(f.News) > 0 {
		titles := make([]string, len(f.News))
		for i, n := range f.News {
			titles[i] = n.Title
		}
		deepDive = "Recent coverage: " + strings.Join(titles, "; ") + "."
	}

	return Synthesis{
		ExecutiveSummary: strings.Join(summary, " "),
		RiskAssessment:   risk + " risk",
		DeepDive:         deepDive,
	}, nil
}
