package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var documentTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// MarkdownRenderer writes the report as Markdown and converts it to a
// standalone HTML document. Raw HTML in collaborator output is not rendered.
type MarkdownRenderer struct {
	md goldmark.Markdown
}

func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{
		md: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

func (r *MarkdownRenderer) Render(ctx context.Context, report Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var body bytes.Buffer
	if err := r.md.Convert([]byte(Markdown(report)), &body); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	var doc bytes.Buffer
	err := documentTemplate.Execute(&doc, struct {
		Title string
		Body  template.HTML
	}{report.Title, template.HTML(body.String())})
	if err != nil {
		return "", fmt.Errorf("execute document template: %w", err)
	}
	return doc.String(), nil
}

// Markdown lays out the sections present in report.
func Markdown(report Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", report.Title)
	if report.Prompt != "" {
		fmt.Fprintf(&b, "> %s\n\n", report.Prompt)
	}

	if s := report.Synthesis; s != nil {
		b.WriteString("## Executive Summary\n\n")
		fmt.Fprintf(&b, "%s\n\n", s.ExecutiveSummary)
		if s.RiskAssessment != "" {
			b.WriteString("## Risk Assessment\n\n")
			fmt.Fprintf(&b, "**%s**\n\n", s.RiskAssessment)
		}
		if s.DeepDive != "" {
			b.WriteString("## Contextual Deep Dive\n\n")
			fmt.Fprintf(&b, "%s\n\n", s.DeepDive)
		}
	}

	if m := report.Metrics; m != nil {
		b.WriteString("## Metrics\n\n")
		b.WriteString("| Indicator | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Mortality rate | %.2f%% |\n", m.MortalityRate)
		fmt.Fprintf(&b, "| ICU rate | %.2f%% |\n", m.ICURate)
		fmt.Fprintf(&b, "| Vaccination rate | %.2f%% |\n", m.VaccinationRate)
		fmt.Fprintf(&b, "| Case increase (30 days) | %.2f%% |\n", m.IncreaseRate)
		fmt.Fprintf(&b, "| Cases analysed | %d |\n\n", m.TotalCases)
	}

	if len(report.Charts) > 0 {
		b.WriteString("## Charts\n\n")
		names := make([]string, 0, len(report.Charts))
		for name := range report.Charts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", name, strings.TrimSpace(report.Charts[name]))
		}
	}

	if len(report.News) > 0 {
		b.WriteString("## News\n\n")
		for _, n := range report.News {
			if n.URL != "" {
				fmt.Fprintf(&b, "- [%s](%s)", n.Title, n.URL)
			} else {
				fmt.Fprintf(&b, "- %s", n.Title)
			}
			if n.Snippet != "" {
				fmt.Fprintf(&b, ": %s", n.Snippet)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if report.Synthesis == nil && report.Metrics == nil && len(report.Charts) == 0 && len(report.News) == 0 {
		b.WriteString("No analysis provided.\n")
	}

	return b.String()
}
