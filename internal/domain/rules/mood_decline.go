package rules

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mindlog/mindlog/internal/domain/alert"
	"github.com/mindlog/mindlog/internal/domain/timeseries"
)

// Thresholds are fixed constants, provisional pending clinical sign-off.
const (
	moodRollingDays   = 7
	moodBaselineDays  = 28
	moodCriticalDelta = 3.5
	moodWarningDelta  = 2.5
	// moodMinEntries guards both windows against firing on noise from a
	// patient with almost no check-ins.
	moodMinEntries = 3
)

// MoodDecline compares the 7-day rolling mood mean against the 28-day
// baseline mean. A positive delta means decline; only the highest
// qualifying severity is returned.
type MoodDecline struct {
	Reader timeseries.Reader
}

func (r *MoodDecline) Key() string { return alert.RuleMoodDecline }

func (r *MoodDecline) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (*alert.Candidate, error) {
	to := timeseries.DateOnly(asOf)
	from := to.AddDate(0, 0, -(moodBaselineDays - 1))
	scores, err := r.Reader.MoodScores(ctx, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("mood scores: %w", err)
	}

	rollingFrom := to.AddDate(0, 0, -(moodRollingDays - 1))
	var rollingSum, baselineSum float64
	var rollingN, baselineN int
	for _, s := range scores {
		d := timeseries.DateOnly(s.Date)
		baselineSum += float64(s.Score)
		baselineN++
		if !d.Before(rollingFrom) {
			rollingSum += float64(s.Score)
			rollingN++
		}
	}
	if rollingN < moodMinEntries || baselineN < moodMinEntries {
		return nil, nil
	}

	delta := baselineSum/float64(baselineN) - rollingSum/float64(rollingN)
	var severity alert.Severity
	switch {
	case delta >= moodCriticalDelta:
		severity = alert.SeverityCritical
	case delta >= moodWarningDelta:
		severity = alert.SeverityWarning
	default:
		return nil, nil
	}

	return &alert.Candidate{
		RuleKey:  alert.RuleMoodDecline,
		Severity: severity,
		Title:    "Significant mood decline detected",
		Detail: map[string]any{
			"rolling_mean":  round1(rollingSum / float64(rollingN)),
			"baseline_mean": round1(baselineSum / float64(baselineN)),
			"delta":         round1(delta),
		},
	}, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
