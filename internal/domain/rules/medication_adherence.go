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
	adherenceWindowDays = 7
	adherenceMissedMin  = 3
)

// MedicationAdherence counts distinct days with an explicit not-taken log
// for an active, visible medication. Days without any log do not count as
// missed.
type MedicationAdherence struct {
	Reader timeseries.Reader
}

func (r *MedicationAdherence) Key() string { return alert.RuleMedicationAdherence }

func (r *MedicationAdherence) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (*alert.Candidate, error) {
	to := timeseries.DateOnly(asOf)
	from := to.AddDate(0, 0, -(adherenceWindowDays - 1))
	logs, err := r.Reader.MedicationLogs(ctx, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("medication logs: %w", err)
	}

	days := make(map[time.Time]bool)
	for _, l := range logs {
		if !l.Taken && l.Active && l.Visible {
			days[timeseries.DateOnly(l.Date)] = true
		}
	}
	if len(days) < adherenceMissedMin {
		return nil, nil
	}

	return &alert.Candidate{
		RuleKey:  alert.RuleMedicationAdherence,
		Severity: alert.SeverityWarning,
		Title:    fmt.Sprintf("Medication not taken on %d of the last %d days", len(days), adherenceWindowDays),
		Detail: map[string]any{
			"missed_days": len(days),
			"window_days": adherenceWindowDays,
		},
	}, nil
}
