package timeseries

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader is the windowed, read-only view of patient time-series data that
// rule and risk-factor evaluators consume. All windows are inclusive of the
// from and to dates and read only already-submitted entries.
type Reader interface {
	// MoodScores returns mood values from submitted check-ins, ordered by date.
	MoodScores(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]MoodScore, error)
	// RecentMoodScores returns the most recent submitted check-ins at or
	// before asOf, newest first, up to limit.
	RecentMoodScores(ctx context.Context, patientID uuid.UUID, asOf time.Time, limit int) ([]MoodScore, error)
	// SubmittedDates returns the distinct calendar days with a submitted entry.
	SubmittedDates(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]time.Time, error)
	// SleepTotals returns per-day total sleep hours for days with a sleep log.
	SleepTotals(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]SleepTotal, error)
	// ExerciseMinutes returns per-day total exercise minutes for days with a log.
	ExerciseMinutes(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]ExerciseDay, error)
	// TriggerLogs returns logged triggers with severities.
	TriggerLogs(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]TriggerLog, error)
	// SymptomLogs returns logged symptoms.
	SymptomLogs(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]SymptomLog, error)
	// MedicationLogs returns adherence log entries with medication state.
	MedicationLogs(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]MedicationLog, error)
	// RecentJournalEntries returns the newest journal entries at or before
	// asOf, newest first, up to limit.
	RecentJournalEntries(ctx context.Context, patientID uuid.UUID, asOf time.Time, limit int) ([]JournalEntry, error)
	// LatestAssessment returns the most recent validated score for the given
	// instrument completed at or after since, or nil when none exists.
	LatestAssessment(ctx context.Context, patientID uuid.UUID, instrument string, since time.Time) (*AssessmentScore, error)
}

// Directory lists the active patient population for nightly batch fan-out.
type Directory interface {
	ListActivePatients(ctx context.Context) ([]PatientRef, error)
}
