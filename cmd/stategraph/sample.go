package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/tailored-agentic-units/stategraph/graph"
	"github.com/tailored-agentic-units/stategraph/pipeline"
)

var retryPolicy = graph.RetryPolicyLinear(3, 500*time.Millisecond)

var sampleNews = pipeline.StaticNews{
	{
		Title:   "Respiratory virus season arrives early in the south",
		URL:     "https://example.org/news/season-early",
		Snippet: "State health departments report rising hospital admissions.",
	},
	{
		Title:   "Vaccination campaign extended through July",
		URL:     "https://example.org/news/campaign-extended",
		Snippet: "Priority groups can still receive the seasonal dose.",
	},
}

// openSource opens the database at path, or an in-memory database filled with
// generated records when path is empty.
func openSource(ctx context.Context, path string) (*pipeline.SQLSource, error) {
	if path != "" {
		return pipeline.OpenSQLite(path)
	}

	src, err := pipeline.OpenSQLite(":memory:")
	if err != nil {
		return nil, err
	}
	if err := src.Insert(ctx, sampleRecords(time.Now(), 120)...); err != nil {
		src.Close()
		return nil, fmt.Errorf("seed sample data: %w", err)
	}
	return src, nil
}

// sampleRecords generates a growing daily case load over the given number of
// days ending today.
func sampleRecords(today time.Time, days int) []pipeline.Record {
	rng := rand.New(rand.NewPCG(uint64(today.YearDay()), 7))
	codes := []int{pipeline.AnswerYes, pipeline.AnswerNo, pipeline.AnswerNo, pipeline.AnswerIgnored}

	var records []pipeline.Record
	for d := range days {
		date := today.AddDate(0, 0, d-days+1).Format("2006-01-02")
		for range 2 + d/15 + rng.IntN(3) {
			evolution := pipeline.EvolutionCure
			switch n := rng.IntN(10); {
			case n == 0:
				evolution = pipeline.EvolutionDeath
			case n == 1:
				evolution = pipeline.EvolutionDeathOther
			case n < 4:
				evolution = 0
			}
			records = append(records, pipeline.Record{
				Date:      date,
				Evolution: evolution,
				ICU:       codes[rng.IntN(len(codes))],
				Vaccine:   codes[rng.IntN(len(codes))],
			})
		}
	}
	return records
}
