// Package timeseries provides read-only access to the patient-reported data
// the evaluation engine consumes: daily check-ins, sleep and exercise logs,
// trigger/symptom logs, medication adherence logs, journal entries, and
// validated assessment scores. The tables belong to the main application;
// validation of this data is the ingestion layer's responsibility.
package timeseries

import (
	"time"

	"github.com/google/uuid"
)

// Assessment instruments with validated scores.
const (
	InstrumentPHQ9  = "phq9"
	InstrumentCSSRS = "cssrs"
	InstrumentASRM  = "asrm"
)

// MoodScore is one submitted daily check-in's mood value (1-10).
type MoodScore struct {
	Date  time.Time
	Score int
}

// SleepTotal is a day's total recorded sleep.
type SleepTotal struct {
	Date  time.Time
	Hours float64
}

// ExerciseDay is a day's total recorded exercise.
type ExerciseDay struct {
	Date    time.Time
	Minutes int
}

// TriggerLog is one logged trigger occurrence with severity 0-10.
type TriggerLog struct {
	Date     time.Time
	Category string
	Severity int
}

// SymptomLog is one logged symptom occurrence.
type SymptomLog struct {
	Date    time.Time
	Symptom string
}

// MedicationLog is one adherence log entry. Only logs for active, visible
// medications are relevant to the adherence rule.
type MedicationLog struct {
	Date         time.Time
	MedicationID uuid.UUID
	Taken        bool
	Active       bool
	Visible      bool
}

// JournalEntry is one free-text journal entry.
type JournalEntry struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Body      string
}

// AssessmentScore is a validated clinical assessment result.
type AssessmentScore struct {
	Instrument  string
	Score       int
	CompletedAt time.Time
}

// PatientRef identifies an active patient for batch evaluation.
type PatientRef struct {
	ID    uuid.UUID
	OrgID uuid.UUID
}

// DateOnly truncates a timestamp to midnight UTC. Windowed rule evaluation
// compares calendar days, never instants.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
