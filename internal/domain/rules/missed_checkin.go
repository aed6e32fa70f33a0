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
	// missedLookbackCap bounds the backward walk.
	missedLookbackCap  = 14
	missedCriticalDays = 5
	missedWarningDays  = 3
)

// MissedCheckin counts consecutive calendar days without a submitted
// check-in, walking backward from the day before asOf.
type MissedCheckin struct {
	Reader timeseries.Reader
}

func (r *MissedCheckin) Key() string { return alert.RuleMissedCheckin }

func (r *MissedCheckin) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (*alert.Candidate, error) {
	to := timeseries.DateOnly(asOf).AddDate(0, 0, -1)
	from := to.AddDate(0, 0, -(missedLookbackCap - 1))
	dates, err := r.Reader.SubmittedDates(ctx, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("submitted dates: %w", err)
	}

	submitted := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		submitted[timeseries.DateOnly(d)] = true
	}

	missed := 0
	for d := to; !d.Before(from); d = d.AddDate(0, 0, -1) {
		if submitted[d] {
			break
		}
		missed++
	}

	var severity alert.Severity
	switch {
	case missed >= missedCriticalDays:
		severity = alert.SeverityCritical
	case missed >= missedWarningDays:
		severity = alert.SeverityWarning
	default:
		return nil, nil
	}

	return &alert.Candidate{
		RuleKey:  alert.RuleMissedCheckin,
		Severity: severity,
		Title:    fmt.Sprintf("No check-in for %d consecutive days", missed),
		Detail: map[string]any{
			"consecutive_missed_days": missed,
		},
	}, nil
}
