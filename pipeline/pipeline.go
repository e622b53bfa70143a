package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tailored-agentic-units/stategraph/engine"
	"github.com/tailored-agentic-units/stategraph/graph"
	"github.com/tailored-agentic-units/stategraph/state"
)

// GraphName is the name of the compiled report graph.
const GraphName = "report"

// Channels of the report graph.
const (
	ChannelPrompt    = "prompt"
	ChannelIntent    = "intent"
	ChannelExpected  = "expected_count"
	ChannelCompleted = "branches_completed"
	ChannelMetrics   = "metrics"
	ChannelChartData = NamespaceCharts + "." + chartDataKey
	ChannelCharts    = NamespaceCharts + "." + chartFiguresKey
	ChannelNews      = "news"
	ChannelSynthesis = "synthesis"
	ChannelReport    = "report"
)

// NamespaceCharts holds the chart branch. Its nodes read and write the short
// keys below and reach the shared channels through the flat fallback.
const NamespaceCharts = "charts"

const (
	chartDataKey    = "data"
	chartFiguresKey = "figures"
)

// Nodes of the report graph.
const (
	NodeIntent          = "intent"
	NodeDispatcher      = "dispatcher"
	NodeMetricsAnalyst  = "metrics_analyst"
	NodeChartCalculator = "chart_calculator"
	NodeChartDesigner   = "chart_designer"
	NodeNewsResearcher  = "news_researcher"
	NodeMarkMetrics     = "mark_metrics"
	NodeMarkCharts      = "mark_charts"
	NodeMarkNews        = "mark_news"
	NodeSynthesis       = "synthesis"
	NodeReportMaker     = "report_maker"
)

// Branch markers appended to ChannelCompleted.
const (
	BranchMetrics = "metrics"
	BranchCharts  = "charts"
	BranchNews    = "news"
)

// Deps supplies the collaborators doing the work of each node.
type Deps struct {
	Classifier  IntentClassifier
	Metrics     MetricsSource
	Calculator  ChartCalculator
	Designer    ChartDesigner
	News        NewsSearcher
	Synthesizer Synthesizer
	Renderer    ReportRenderer

	// Retry applies to the nodes calling data sources (metrics, chart
	// calculation, news). Zero means a single attempt.
	Retry graph.RetryPolicy

	// NodeTimeout bounds each data source call. Zero means no bound.
	NodeTimeout time.Duration

	// Title of the rendered report. Defaults to "SRAG Surveillance Report".
	Title string
}

func (d Deps) validate() error {
	required := []struct {
		name   string
		absent bool
	}{
		{"Classifier", d.Classifier == nil},
		{"Metrics", d.Metrics == nil},
		{"Calculator", d.Calculator == nil},
		{"Designer", d.Designer == nil},
		{"News", d.News == nil},
		{"Synthesizer", d.Synthesizer == nil},
		{"Renderer", d.Renderer == nil},
	}
	for _, r := range required {
		if r.absent {
			return fmt.Errorf("pipeline dependency %s is required", r.name)
		}
	}
	return nil
}

// Build compiles the report graph over deps.
//
// News is treated as optional context: when the search fails after its
// retries the branch degrades to no news instead of failing the run.
func Build(deps Deps) (*graph.Compiled, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Title == "" {
		deps.Title = "SRAG Surveillance Report"
	}

	b := graph.NewBuilder(GraphName)
	b.AddChannel(
		state.OverwriteChannel[string](ChannelPrompt),
		state.OverwriteChannel[Intent](ChannelIntent),
		state.OverwriteChannel[int](ChannelExpected),
		state.AppendChannel(ChannelCompleted),
		state.OverwriteChannel[Metrics](ChannelMetrics),
		state.OverwriteChannel[ChartData](ChannelChartData),
		state.OverwriteChannel[map[string]string](ChannelCharts),
		state.OverwriteChannel[[]NewsItem](ChannelNews),
		state.OverwriteChannel[Synthesis](ChannelSynthesis),
		state.OverwriteChannel[string](ChannelReport),
	)

	var sourceOpts []graph.NodeOption
	if deps.Retry.MaxAttempts > 1 {
		sourceOpts = append(sourceOpts, graph.WithRetry(deps.Retry))
	}
	if deps.NodeTimeout > 0 {
		sourceOpts = append(sourceOpts, graph.WithTimeout(deps.NodeTimeout))
	}
	newsOpts := append(slices.Clone(sourceOpts),
		graph.WithFallback(state.Update{ChannelNews: []NewsItem{}}))
	calcOpts := append(slices.Clone(sourceOpts), graph.WithNamespace(NamespaceCharts))
	chartOpts := []graph.NodeOption{graph.WithNamespace(NamespaceCharts)}

	nodes := []struct {
		id   string
		body graph.NodeFunc
		opts []graph.NodeOption
	}{
		{NodeIntent, classify(deps.Classifier), nil},
		{NodeDispatcher, dispatch, nil},
		{NodeMetricsAnalyst, analyseMetrics(deps.Metrics), sourceOpts},
		{NodeChartCalculator, calculateCharts(deps.Calculator), calcOpts},
		{NodeChartDesigner, designCharts(deps.Designer), chartOpts},
		{NodeNewsResearcher, researchNews(deps.News), newsOpts},
		{NodeMarkMetrics, mark(BranchMetrics), nil},
		{NodeMarkCharts, mark(BranchCharts), chartOpts},
		{NodeMarkNews, mark(BranchNews), nil},
		{NodeSynthesis, synthesize(deps.Synthesizer), nil},
		{NodeReportMaker, makeReport(deps.Renderer, deps.Title), nil},
	}
	for _, n := range nodes {
		if err := b.AddNode(n.id, n.body, n.opts...); err != nil {
			return nil, err
		}
	}

	if err := b.SetEntryPoint(NodeIntent); err != nil {
		return nil, err
	}
	if err := b.AddConditionalEdge(NodeIntent, routeIntent, NodeDispatcher, graph.End); err != nil {
		return nil, err
	}
	if err := b.AddConditionalEdge(NodeDispatcher, routeBranches,
		NodeMetricsAnalyst, NodeChartCalculator, NodeNewsResearcher, NodeReportMaker); err != nil {
		return nil, err
	}

	edges := [][2]string{
		{NodeMetricsAnalyst, NodeMarkMetrics},
		{NodeChartCalculator, NodeChartDesigner},
		{NodeChartDesigner, NodeMarkCharts},
		{NodeNewsResearcher, NodeMarkNews},
		{NodeSynthesis, NodeReportMaker},
		{NodeReportMaker, graph.End},
	}
	for _, e := range edges {
		if err := b.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}

	for _, marker := range []string{NodeMarkMetrics, NodeMarkCharts, NodeMarkNews} {
		if err := b.AddBarrier(marker, ChannelCompleted, ChannelExpected, NodeSynthesis); err != nil {
			return nil, err
		}
	}

	return b.Compile()
}

func intentOf(v state.View) Intent {
	intent, _ := state.Get[Intent](v, ChannelIntent)
	return intent
}

func routeIntent(v state.View) []string {
	if intentOf(v).OffTopic {
		return []string{graph.End}
	}
	return []string{NodeDispatcher}
}

func routeBranches(v state.View) []string {
	intent := intentOf(v)

	var next []string
	if intent.IncludeMetrics {
		next = append(next, NodeMetricsAnalyst)
	}
	if intent.IncludeCharts {
		next = append(next, NodeChartCalculator)
	}
	if intent.IncludeNews {
		next = append(next, NodeNewsResearcher)
	}

	if len(next) == 0 {
		return []string{NodeReportMaker}
	}
	return next
}

func classify(c IntentClassifier) graph.NodeFunc {
	return func(ctx context.Context, v state.View) (state.Update, error) {
		intent, err := c.Classify(ctx, v.String(ChannelPrompt))
		if err != nil {
			return nil, fmt.Errorf("classify prompt: %w", err)
		}
		return state.Update{ChannelIntent: intent}, nil
	}
}

func dispatch(_ context.Context, v state.View) (state.Update, error) {
	return state.Update{ChannelExpected: intentOf(v).Branches()}, nil
}

func analyseMetrics(src MetricsSource) graph.NodeFunc {
	return func(ctx context.Context, _ state.View) (state.Update, error) {
		m, err := src.Metrics(ctx)
		if err != nil {
			return nil, fmt.Errorf("compute metrics: %w", err)
		}
		return state.Update{ChannelMetrics: m}, nil
	}
}

func calculateCharts(calc ChartCalculator) graph.NodeFunc {
	return func(ctx context.Context, _ state.View) (state.Update, error) {
		data, err := calc.ChartData(ctx)
		if err != nil {
			return nil, fmt.Errorf("calculate chart data: %w", err)
		}
		return state.Update{chartDataKey: data}, nil
	}
}

func designCharts(d ChartDesigner) graph.NodeFunc {
	return func(ctx context.Context, v state.View) (state.Update, error) {
		data, _ := state.Get[ChartData](v, chartDataKey)
		charts, err := d.Design(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("design charts: %w", err)
		}
		return state.Update{chartFiguresKey: charts}, nil
	}
}

func researchNews(s NewsSearcher) graph.NodeFunc {
	return func(ctx context.Context, v state.View) (state.Update, error) {
		items, err := s.Search(ctx, v.String(ChannelPrompt))
		if err != nil {
			return nil, fmt.Errorf("search news: %w", err)
		}
		if items == nil {
			items = []NewsItem{}
		}
		return state.Update{ChannelNews: items}, nil
	}
}

func mark(branch string) graph.NodeFunc {
	return func(context.Context, state.View) (state.Update, error) {
		return state.Update{ChannelCompleted: branch}, nil
	}
}

// findings collects the branch outputs present in v.
func findings(v state.View) Findings {
	f := Findings{
		Prompt: v.String(ChannelPrompt),
		Intent: intentOf(v),
	}
	if m, ok := state.Get[Metrics](v, ChannelMetrics); ok {
		f.Metrics = &m
	}
	if c, _ := v.Lookup(NamespaceCharts, chartFiguresKey); c != nil {
		f.Charts, _ = c.(map[string]string)
	}
	if n, ok := state.Get[[]NewsItem](v, ChannelNews); ok {
		f.News = n
	}
	return f
}

func synthesize(s Synthesizer) graph.NodeFunc {
	return func(ctx context.Context, v state.View) (state.Update, error) {
		result, err := s.Synthesize(ctx, findings(v))
		if err != nil {
			return nil, fmt.Errorf("synthesize findings: %w", err)
		}
		return state.Update{ChannelSynthesis: result}, nil
	}
}

func makeReport(r ReportRenderer, title string) graph.NodeFunc {
	return func(ctx context.Context, v state.View) (state.Update, error) {
		f := findings(v)
		report := Report{
			Title:   title,
			Prompt:  f.Prompt,
			Metrics: f.Metrics,
			Charts:  f.Charts,
			News:    f.News,
		}
		if s, ok := state.Get[Synthesis](v, ChannelSynthesis); ok {
			report.Synthesis = &s
		}

		doc, err := r.Render(ctx, report)
		if err != nil {
			return nil, fmt.Errorf("render report: %w", err)
		}
		return state.Update{ChannelReport: doc}, nil
	}
}

// Pipeline runs the report graph on an engine.
type Pipeline struct {
	engine *engine.Engine
	graph  *graph.Compiled
}

// New builds the report graph and binds it to eng.
func New(eng *engine.Engine, deps Deps) (*Pipeline, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	g, err := Build(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build report graph: %w", err)
	}
	return &Pipeline{engine: eng, graph: g}, nil
}

// Graph returns the compiled report graph.
func (p *Pipeline) Graph() *graph.Compiled {
	return p.graph
}

// Output is the outcome of one report run.
type Output struct {
	Result *engine.Result
	Intent Intent

	// Report is the rendered document, empty when the prompt was off topic.
	Report string
}

// Run produces a report for prompt. The Output is non-nil whenever the run
// started, including when it fails.
func (p *Pipeline) Run(ctx context.Context, prompt string, opts ...engine.RunOption) (*Output, error) {
	result, err := p.engine.Run(ctx, p.graph, map[string]any{ChannelPrompt: prompt}, opts...)
	if result == nil {
		return nil, err
	}

	view := result.View()
	return &Output{
		Result: result,
		Intent: intentOf(view),
		Report: view.String(ChannelReport),
	}, err
}

// Resume continues a failed or aborted report run from its checkpoint.
func (p *Pipeline) Resume(ctx context.Context, runID string, opts ...engine.RunOption) (*Output, error) {
	result, err := p.engine.Resume(ctx, p.graph, runID, opts...)
	if result == nil {
		return nil, err
	}

	view := result.View()
	return &Output{
		Result: result,
		Intent: intentOf(view),
		Report: view.String(ChannelReport),
	}, err
}
