package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mindlog/mindlog/internal/domain/alert"
	"github.com/mindlog/mindlog/internal/domain/timeseries"
)

const exerciseWindowDays = 7

// ExerciseDecline fires at info severity when the patient submitted a
// check-in on every day of the window and recorded no exercise on any of
// them. Unsubmitted days disqualify the window entirely, so the rule never
// conflates disengagement with inactivity.
type ExerciseDecline struct {
	Reader timeseries.Reader
}

func (r *ExerciseDecline) Key() string { return alert.RuleExerciseDecline }

func (r *ExerciseDecline) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (*alert.Candidate, error) {
	to := timeseries.DateOnly(asOf)
	from := to.AddDate(0, 0, -(exerciseWindowDays - 1))

	dates, err := r.Reader.SubmittedDates(ctx, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("submitted dates: %w", err)
	}
	submitted := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		submitted[timeseries.DateOnly(d)] = true
	}
	if len(submitted) < exerciseWindowDays {
		return nil, nil
	}

	days, err := r.Reader.ExerciseMinutes(ctx, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("exercise minutes: %w", err)
	}
	for _, d := range days {
		if d.Minutes > 0 {
			return nil, nil
		}
	}

	return &alert.Candidate{
		RuleKey:  alert.RuleExerciseDecline,
		Severity: alert.SeverityInfo,
		Title:    fmt.Sprintf("No exercise recorded for %d consecutive days", exerciseWindowDays),
		Detail: map[string]any{
			"window_days": exerciseWindowDays,
		},
	}, nil
}
