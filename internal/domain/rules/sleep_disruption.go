package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mindlog/mindlog/internal/domain/alert"
	"github.com/mindlog/mindlog/internal/domain/timeseries"
)

const (
	sleepWindowDays = 5
	sleepMinHours   = 5.0
)

// SleepDisruption fires only when every day of the window has recorded
// sleep below the minimum. A single adequate or unrecorded night clears it.
type SleepDisruption struct {
	Reader timeseries.Reader
}

func (r *SleepDisruption) Key() string { return alert.RuleSleepDisruption }

func (r *SleepDisruption) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (*alert.Candidate, error) {
	to := timeseries.DateOnly(asOf)
	from := to.AddDate(0, 0, -(sleepWindowDays - 1))
	totals, err := r.Reader.SleepTotals(ctx, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("sleep totals: %w", err)
	}

	short := make(map[time.Time]bool)
	var sum float64
	for _, t := range totals {
		d := timeseries.DateOnly(t.Date)
		if t.Hours >= sleepMinHours {
			return nil, nil
		}
		if !short[d] {
			short[d] = true
			sum += t.Hours
		}
	}
	if len(short) < sleepWindowDays {
		return nil, nil
	}

	return &alert.Candidate{
		RuleKey:  alert.RuleSleepDisruption,
		Severity: alert.SeverityWarning,
		Title:    fmt.Sprintf("Under %.1f hours of sleep for %d consecutive days", sleepMinHours, sleepWindowDays),
		Detail: map[string]any{
			"window_days":   sleepWindowDays,
			"average_hours": round1(sum / float64(len(short))),
		},
	}, nil
}
