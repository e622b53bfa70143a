package pipeline_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stategraph/config"
	"github.com/tailored-agentic-units/stategraph/engine"
	"github.com/tailored-agentic-units/stategraph/graph"
	"github.com/tailored-agentic-units/stategraph/observability"
	"github.com/tailored-agentic-units/stategraph/pipeline"
)

type fixedIntent pipeline.Intent

func (f fixedIntent) Classify(context.Context, string) (pipeline.Intent, error) {
	return pipeline.Intent(f), nil
}

type metricsFunc func(context.Context) (pipeline.Metrics, error)

func (f metricsFunc) Metrics(ctx context.Context) (pipeline.Metrics, error) { return f(ctx) }

type chartsFunc func(context.Context) (pipeline.ChartData, error)

func (f chartsFunc) ChartData(ctx context.Context) (pipeline.ChartData, error) { return f(ctx) }

type newsFunc func(context.Context, string) ([]pipeline.NewsItem, error)

func (f newsFunc) Search(ctx context.Context, q string) ([]pipeline.NewsItem, error) { return f(ctx, q) }

// countingSynthesizer counts calls and records what it was given.
type countingSynthesizer struct {
	calls atomic.Int32
	last  pipeline.Findings
}

func (s *countingSynthesizer) Synthesize(ctx context.Context, f pipeline.Findings) (pipeline.Synthesis, error) {
	s.calls.Add(1)
	s.last = f
	return pipeline.TemplateSynthesizer{}.Synthesize(ctx, f)
}

func sampleMetrics() pipeline.Metrics {
	return pipeline.Metrics{MortalityRate: 12.5, ICURate: 30, VaccinationRate: 60, IncreaseRate: 10, TotalCases: 80}
}

func testDeps(intent pipeline.IntentClassifier, synth pipeline.Synthesizer) pipeline.Deps {
	return pipeline.Deps{
		Classifier: intent,
		Metrics: metricsFunc(func(context.Context) (pipeline.Metrics, error) {
			return sampleMetrics(), nil
		}),
		Calculator: chartsFunc(func(context.Context) (pipeline.ChartData, error) {
			return pipeline.ChartData{
				Daily:   []pipeline.Count{{Period: "2025-06-29", Cases: 2}, {Period: "2025-06-30", Cases: 4}},
				Monthly: []pipeline.Count{{Period: "2025-06", Cases: 6}},
			}, nil
		}),
		Designer:    pipeline.TableDesigner{},
		News:        pipeline.StaticNews{{Title: "Flu season starts early", URL: "https://example.org/flu"}},
		Synthesizer: synth,
		Renderer:    pipeline.NewMarkdownRenderer(),
	}
}

func newPipeline(t *testing.T, deps pipeline.Deps) (*pipeline.Pipeline, *observability.Recorder) {
	t.Helper()

	rec := observability.NewRecorder()
	eng, err := engine.NewWithDeps(config.DefaultEngineConfig("report-test"), rec, nil)
	require.NoError(t, err)

	p, err := pipeline.New(eng, deps)
	require.NoError(t, err)
	return p, rec
}

func TestPipeline_FullReport(t *testing.T) {
	synth := &countingSynthesizer{}
	p, _ := newPipeline(t, testDeps(pipeline.NewKeywordClassifier(), synth))

	out, err := p.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, out.Result.Status)
	assert.Equal(t, pipeline.FullReport(), out.Intent)
	assert.Equal(t, int32(1), synth.calls.Load(), "synthesis must run exactly once")

	want := [][]string{
		{pipeline.NodeIntent},
		{pipeline.NodeDispatcher},
		{pipeline.NodeMetricsAnalyst, pipeline.NodeChartCalculator, pipeline.NodeNewsResearcher},
		{pipeline.NodeMarkMetrics, pipeline.NodeChartDesigner, pipeline.NodeMarkNews},
		{pipeline.NodeMarkCharts},
		{pipeline.NodeSynthesis},
		{pipeline.NodeReportMaker},
	}
	assert.Equal(t, want, out.Result.Path)

	require.NotNil(t, synth.last.Metrics)
	assert.Equal(t, sampleMetrics(), *synth.last.Metrics)
	assert.Len(t, synth.last.Charts, 2)
	assert.Len(t, synth.last.News, 1)

	assert.Contains(t, out.Report, "<h2>Executive Summary</h2>")
	assert.Contains(t, out.Report, "<h2>Metrics</h2>")
	assert.Contains(t, out.Report, "<h2>Charts</h2>")
	assert.Contains(t, out.Report, "https://example.org/flu")

	completed := out.Result.View().Set(pipeline.ChannelCompleted)
	assert.Equal(t, []string{"charts", "metrics", "news"}, completed.Items())

	nested := out.Result.View().Nested()
	charts, ok := nested[pipeline.NamespaceCharts].(map[string]any)
	require.True(t, ok, "chart outputs are grouped under their namespace")
	assert.Contains(t, charts, "data")
	assert.Contains(t, charts, "figures")
	assert.NotContains(t, nested, pipeline.ChannelChartData)
	assert.Contains(t, nested, pipeline.ChannelCompleted)

	data, ok := out.Result.View().Get(pipeline.ChannelChartData).(pipeline.ChartData)
	require.True(t, ok)
	assert.Len(t, data.Monthly, 1)
}

func TestPipeline_SingleBranch(t *testing.T) {
	synth := &countingSynthesizer{}
	p, _ := newPipeline(t, testDeps(pipeline.NewKeywordClassifier(), synth))

	out, err := p.Run(context.Background(), "what is the mortality rate")
	require.NoError(t, err)

	assert.Equal(t, pipeline.Intent{IncludeMetrics: true}, out.Intent)
	assert.Equal(t, [][]string{
		{pipeline.NodeIntent},
		{pipeline.NodeDispatcher},
		{pipeline.NodeMetricsAnalyst},
		{pipeline.NodeMarkMetrics},
		{pipeline.NodeSynthesis},
		{pipeline.NodeReportMaker},
	}, out.Result.Path)
	assert.Equal(t, int32(1), synth.calls.Load())
	assert.Nil(t, synth.last.Charts)
	assert.NotContains(t, out.Report, "<h2>News</h2>")
}

func TestPipeline_NoBranchesGoesStraightToReport(t *testing.T) {
	synth := &countingSynthesizer{}
	p, _ := newPipeline(t, testDeps(fixedIntent(pipeline.Intent{}), synth))

	out, err := p.Run(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{pipeline.NodeIntent},
		{pipeline.NodeDispatcher},
		{pipeline.NodeReportMaker},
	}, out.Result.Path)
	assert.Zero(t, synth.calls.Load())
	assert.Contains(t, out.Report, "No analysis provided.")
	assert.Equal(t, 0, out.Result.View().Int(pipeline.ChannelExpected))
}

func TestPipeline_OffTopicEndsAfterClassification(t *testing.T) {
	p, _ := newPipeline(t, testDeps(pipeline.NewKeywordClassifier(), &countingSynthesizer{}))

	out, err := p.Run(context.Background(), "tell me a joke about dragons")
	require.NoError(t, err)

	assert.True(t, out.Intent.OffTopic)
	assert.Equal(t, [][]string{{pipeline.NodeIntent}}, out.Result.Path)
	assert.Empty(t, out.Report)
	assert.Equal(t, engine.StatusCompleted, out.Result.Status)
}

func TestPipeline_NewsDegrades(t *testing.T) {
	deps := testDeps(pipeline.NewKeywordClassifier(), &countingSynthesizer{})
	deps.Retry = graph.RetryPolicyLinear(2, time.Millisecond)

	var searches atomic.Int32
	deps.News = newsFunc(func(context.Context, string) ([]pipeline.NewsItem, error) {
		searches.Add(1)
		return nil, errors.New("search backend unavailable")
	})
	p, rec := newPipeline(t, deps)

	out, err := p.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, int32(2), searches.Load())
	require.Len(t, out.Result.Degraded, 1)
	assert.Equal(t, pipeline.NodeNewsResearcher, out.Result.Degraded[0].Node)
	assert.Len(t, rec.OfType(engine.EventNodeDegraded), 1)
	assert.NotContains(t, out.Report, "<h2>News</h2>")
	assert.Contains(t, out.Report, "<h2>Metrics</h2>")
}

func TestPipeline_MetricsFailureFailsRun(t *testing.T) {
	deps := testDeps(pipeline.NewKeywordClassifier(), &countingSynthesizer{})
	deps.Metrics = metricsFunc(func(context.Context) (pipeline.Metrics, error) {
		return pipeline.Metrics{}, errors.New("database locked")
	})
	p, _ := newPipeline(t, deps)

	out, err := p.Run(context.Background(), "")
	require.Error(t, err)

	var failure *engine.NodeFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, pipeline.NodeMetricsAnalyst, failure.Node)
	assert.Equal(t, engine.StatusFailed, out.Result.Status)
	assert.Empty(t, out.Report)
}

func TestPipeline_ResumeAfterFailure(t *testing.T) {
	var broken atomic.Bool
	broken.Store(true)

	deps := testDeps(pipeline.NewKeywordClassifier(), &countingSynthesizer{})
	deps.Calculator = chartsFunc(func(context.Context) (pipeline.ChartData, error) {
		if broken.Load() {
			return pipeline.ChartData{}, errors.New("warehouse offline")
		}
		return pipeline.ChartData{Monthly: []pipeline.Count{{Period: "2025-06", Cases: 6}}}, nil
	})

	cfg := config.DefaultEngineConfig("report-resume")
	cfg.Checkpoint.Interval = 1
	eng, err := engine.NewWithDeps(cfg, observability.NoOpObserver{}, engine.NewMemoryCheckpointStore())
	require.NoError(t, err)

	p, err := pipeline.New(eng, deps)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "", engine.WithRunID("daily"))
	require.Error(t, err)

	broken.Store(false)
	out, err := p.Resume(context.Background(), "daily")
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, out.Result.Status)
	assert.Equal(t, pipeline.FullReport(), out.Intent)
	assert.Contains(t, out.Report, "Monthly cases")
	assert.Equal(t, 7, out.Result.Rounds)
}

func TestBuild_RequiresDeps(t *testing.T) {
	deps := testDeps(pipeline.NewKeywordClassifier(), &countingSynthesizer{})
	deps.Renderer = nil

	_, err := pipeline.Build(deps)
	assert.ErrorContains(t, err, "Renderer")

	_, err = pipeline.New(nil, deps)
	assert.Error(t, err)
}

func TestBuild_Graph(t *testing.T) {
	g, err := pipeline.Build(testDeps(pipeline.NewKeywordClassifier(), &countingSynthesizer{}))
	require.NoError(t, err)

	assert.Equal(t, pipeline.GraphName, g.Name())
	assert.Equal(t, []string{pipeline.NodeIntent}, g.EntryPoints())
	assert.Len(t, g.Nodes(), 11)

	edges := g.ConditionalEdges(pipeline.NodeMarkNews)
	require.Len(t, edges, 1)
	assert.ElementsMatch(t, []string{pipeline.NodeSynthesis, graph.End}, edges[0].Targets)

	news, ok := g.Node(pipeline.NodeNewsResearcher)
	require.True(t, ok)
	assert.NotNil(t, news.Fallback)
	assert.Empty(t, news.Namespace)

	for _, id := range []string{pipeline.NodeChartCalculator, pipeline.NodeChartDesigner, pipeline.NodeMarkCharts} {
		node, ok := g.Node(id)
		require.True(t, ok, id)
		assert.Equal(t, pipeline.NamespaceCharts, node.Namespace, id)
	}
}
