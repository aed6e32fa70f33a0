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
	triggerWindowDays  = 14
	triggerSeverityMin = 7
	triggerDaysMin     = 3
)

// TriggerEscalation looks for a trigger category logged at high severity on
// several distinct days within the window. When several categories qualify,
// the one with the most qualifying days is reported.
type TriggerEscalation struct {
	Reader timeseries.Reader
}

func (r *TriggerEscalation) Key() string { return alert.RuleTriggerEscalation }

func (r *TriggerEscalation) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (*alert.Candidate, error) {
	to := timeseries.DateOnly(asOf)
	from := to.AddDate(0, 0, -(triggerWindowDays - 1))
	logs, err := r.Reader.TriggerLogs(ctx, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("trigger logs: %w", err)
	}

	days := make(map[string]map[time.Time]bool)
	for _, l := range logs {
		if l.Severity < triggerSeverityMin {
			continue
		}
		if days[l.Category] == nil {
			days[l.Category] = make(map[time.Time]bool)
		}
		days[l.Category][timeseries.DateOnly(l.Date)] = true
	}

	var topCategory string
	topDays := 0
	for category, d := range days {
		n := len(d)
		if n < triggerDaysMin {
			continue
		}
		// Lexicographic tie-break keeps the result deterministic across runs.
		if n > topDays || (n == topDays && category < topCategory) {
			topCategory, topDays = category, n
		}
	}
	if topDays == 0 {
		return nil, nil
	}

	return &alert.Candidate{
		RuleKey:  alert.RuleTriggerEscalation,
		Severity: alert.SeverityWarning,
		Title:    fmt.Sprintf("Escalating trigger pattern: %s", topCategory),
		Detail: map[string]any{
			"category":           topCategory,
			"high_severity_days": topDays,
			"window_days":        triggerWindowDays,
		},
	}, nil
}
