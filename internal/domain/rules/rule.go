// Package rules houses the deterministic alert rule evaluators and the
// evaluation orchestrator that fans them out per (patient, as-of date) unit
// of work. Each rule reads a bounded trailing window of already-submitted
// time-series data and proposes at most one alert candidate.
package rules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindlog/mindlog/internal/domain/alert"
	"github.com/mindlog/mindlog/internal/domain/timeseries"
	"github.com/mindlog/mindlog/internal/platform/inference"
	"github.com/mindlog/mindlog/internal/platform/metrics"
)

// Rule evaluates one alert condition for a patient as of a date. A nil
// candidate with nil error means the condition did not fire.
type Rule interface {
	Key() string
	Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (*alert.Candidate, error)
}

// DefaultRules returns the seven rules the orchestrator decides locally.
// The safety-symptom rule is not among them: its alert row is materialized
// by an external integrity mechanism and only verified here.
func DefaultRules(reader timeseries.Reader, analyzer inference.Analyzer, collector *metrics.Collector, logger zerolog.Logger) []Rule {
	return []Rule{
		&MoodDecline{Reader: reader},
		&MissedCheckin{Reader: reader},
		&TriggerEscalation{Reader: reader},
		&MedicationAdherence{Reader: reader},
		&SleepDisruption{Reader: reader},
		&ExerciseDecline{Reader: reader},
		&JournalSentiment{Reader: reader, Analyzer: analyzer, Metrics: collector, Logger: logger},
	}
}
