package coordinator

import (
	"math"

	"github.com/fentz26/hivemind/internal/models"
)

// NoHistoryMessage is returned by ComputeLearnings for an empty history.
const NoHistoryMessage = "No execution history yet"

const neutralBenefit = 0.5

// ComputeLearnings groups records by task type and derives, for every type
// with at least one success, its success rate, mean duration of successful
// runs, parallel benefit score and a textual recommendation.
func ComputeLearnings(history []models.HistoryRecord) models.Learnings {
	out := models.Learnings{ByType: map[string]models.Learning{}}
	if len(history) == 0 {
		out.Message = NoHistoryMessage
		return out
	}

	type acc struct {
		total, successes, timed int
		seconds                 float64
	}
	groups := map[string]*acc{}
	for _, r := range history {
		g, ok := groups[r.TaskType]
		if !ok {
			g = &acc{}
			groups[r.TaskType] = g
		}
		g.total++
		if !r.Success {
			continue
		}
		g.successes++
		if r.DurationSeconds != nil {
			g.timed++
			g.seconds += *r.DurationSeconds
		}
	}

	for taskType, g := range groups {
		if g.successes == 0 {
			continue
		}
		rate := float64(g.successes) / float64(g.total)
		l := models.Learning{
			TaskType:        taskType,
			Executions:      g.total,
			SuccessRate:     round2(rate),
			BenefitScore:    neutralBenefit,
			HasDurationData: g.timed > 0,
		}
		avg := 0.0
		if g.timed > 0 {
			avg = g.seconds / float64(g.timed)
			l.BenefitScore = BenefitScore(avg)
		}
		l.AvgDuration = round2(avg)
		l.Recommendation = Recommendation(avg, rate)
		out.ByType[taskType] = l
	}

	return out
}

// BenefitScore maps a mean duration in seconds to how much a task type is
// expected to gain from running in parallel. Shorter is better.
func BenefitScore(avgSeconds float64) float64 {
	switch {
	case avgSeconds < 30:
		return 0.9
	case avgSeconds < 60:
		return 0.7
	case avgSeconds < 120:
		return 0.5
	default:
		return 0.3
	}
}

// Recommendation returns the advice for a task type. A low success rate
// overrides the duration bands.
func Recommendation(avgSeconds, successRate float64) string {
	switch {
	case successRate < 0.5:
		return "Not recommended - low success rate"
	case avgSeconds < 30:
		return "Highly recommended - quick tasks benefit from parallelization"
	case avgSeconds < 120:
		return "Recommended - moderate duration tasks parallelize well"
	default:
		return "Consider sequential - long-running tasks may be resource-intensive"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
