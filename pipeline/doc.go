// Package pipeline assembles the report workflow on the stategraph engine.
//
// A prompt is classified into an Intent. A dispatcher records how many
// branches the intent selects and fans out to the metrics, charts, and news
// branches concurrently. Each branch ends in a marker node that appends its
// name to a completion channel; a barrier releases synthesis once every
// selected branch has reported, and the report maker renders the result.
// Prompts that select no branch go straight to the report maker, and
// off-topic prompts end the run after classification.
//
// The work itself is done by collaborators supplied through Deps:
//
//	p, err := pipeline.New(eng, pipeline.Deps{
//	    Classifier:  pipeline.NewKeywordClassifier(),
//	    Metrics:     source,
//	    Calculator:  source,
//	    Designer:    pipeline.TableDesigner{},
//	    News:        pipeline.StaticNews(items),
//	    Synthesizer: pipeline.TemplateSynthesizer{},
//	    Renderer:    pipeline.NewMarkdownRenderer(),
//	})
//	out, err := p.Run(ctx, "latest icu and mortality rates")
package pipeline
