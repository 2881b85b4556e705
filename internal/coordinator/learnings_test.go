package coordinator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fentz26/hivemind/internal/coordinator"
	"github.com/fentz26/hivemind/internal/models"
)

func secs(v float64) *float64 { return &v }

func TestBenefitScore(t *testing.T) {
	tests := map[string]struct {
		avg float64
		exp float64
	}{
		"Quick tasks.":            {avg: 5, exp: 0.9},
		"Just under 30s.":         {avg: 29.99, exp: 0.9},
		"At 30s.":                 {avg: 30, exp: 0.7},
		"At 60s.":                 {avg: 60, exp: 0.5},
		"Just under two minutes.": {avg: 119.9, exp: 0.5},
		"Long tasks.":             {avg: 600, exp: 0.3},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, coordinator.BenefitScore(test.avg))
		})
	}
}

func TestRecommendation(t *testing.T) {
	tests := map[string]struct {
		avg  float64
		rate float64
		exp  string
	}{
		"Low success rate wins over duration.": {avg: 1, rate: 0.4, exp: "Not recommended - low success rate"},
		"Quick tasks.":                         {avg: 10, rate: 1, exp: "Highly recommended - quick tasks benefit from parallelization"},
		"Moderate tasks.":                      {avg: 90, rate: 0.5, exp: "Recommended - moderate duration tasks parallelize well"},
		"Long tasks.":                          {avg: 300, rate: 0.9, exp: "Consider sequential - long-running tasks may be resource-intensive"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, coordinator.Recommendation(test.avg, test.rate))
		})
	}
}

func TestComputeLearnings(t *testing.T) {
	tests := map[string]struct {
		history    []models.HistoryRecord
		expMessage string
		expByType  map[string]models.Learning
	}{
		"Empty history should return the no history message.": {
			history:    nil,
			expMessage: coordinator.NoHistoryMessage,
			expByType:  map[string]models.Learning{},
		},

		"Three quick successful searches.": {
			history: []models.HistoryRecord{
				{TaskType: "search", Success: true, DurationSeconds: secs(10)},
				{TaskType: "search", Success: true, DurationSeconds: secs(20)},
				{TaskType: "search", Success: true, DurationSeconds: secs(30)},
			},
			expByType: map[string]models.Learning{
				"search": {
					TaskType:        "search",
					Executions:      3,
					SuccessRate:     1,
					AvgDuration:     20,
					BenefitScore:    0.9,
					Recommendation:  "Highly recommended - quick tasks benefit from parallelization",
					HasDurationData: true,
				},
			},
		},

		"Types without successes are skipped.": {
			history: []models.HistoryRecord{
				{TaskType: "build", Success: false, DurationSeconds: secs(10)},
				{TaskType: "build", Success: false},
			},
			expByType: map[string]models.Learning{},
		},

		"Failures only count towards the success rate.": {
			history: []models.HistoryRecord{
				{TaskType: "test", Success: true, DurationSeconds: secs(90)},
				{TaskType: "test", Success: false, DurationSeconds: secs(1)},
				{TaskType: "test", Success: false, DurationSeconds: secs(1)},
			},
			expByType: map[string]models.Learning{
				"test": {
					TaskType:        "test",
					Executions:      3,
					SuccessRate:     0.33,
					AvgDuration:     90,
					BenefitScore:    0.5,
					Recommendation:  "Not recommended - low success rate",
					HasDurationData: true,
				},
			},
		},

		"Successes without durations get a neutral score.": {
			history: []models.HistoryRecord{
				{TaskType: "analyze", Success: true},
			},
			expByType: map[string]models.Learning{
				"analyze": {
					TaskType:       "analyze",
					Executions:     1,
					SuccessRate:    1,
					AvgDuration:    0,
					BenefitScore:   0.5,
					Recommendation: "Highly recommended - quick tasks benefit from parallelization",
				},
			},
		},

		"Averages ignore successes without durations.": {
			history: []models.HistoryRecord{
				{TaskType: "document", Success: true, DurationSeconds: secs(200)},
				{TaskType: "document", Success: true},
			},
			expByType: map[string]models.Learning{
				"document": {
					TaskType:        "document",
					Executions:      2,
					SuccessRate:     1,
					AvgDuration:     200,
					BenefitScore:    0.3,
					Recommendation:  "Consider sequential - long-running tasks may be resource-intensive",
					HasDurationData: true,
				},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := coordinator.ComputeLearnings(test.history)
			assert.Equal(t, test.expMessage, got.Message)
			assert.Equal(t, test.expByType, got.ByType)
		})
	}
}
