// Package alert owns the clinical alert store: deduplicated creation of
// rule-generated alerts and the acknowledge/resolve/escalate transitions
// performed by clinicians. Alerts are never deleted.
package alert

import (
	"time"

	"github.com/google/uuid"
)

// Rule keys for the eight fixed alert rules.
const (
	RuleMoodDecline         = "mood_decline"
	RuleMissedCheckin       = "missed_checkin"
	RuleTriggerEscalation   = "trigger_escalation"
	RuleMedicationAdherence = "medication_adherence"
	RuleSleepDisruption     = "sleep_disruption"
	RuleExerciseDecline     = "exercise_decline"
	RuleJournalSentiment    = "journal_sentiment"
	RuleSafetySymptom       = "safety_symptom"
)

// Severity orders alerts by clinical urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering of a severity; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Status is a projection over the three lifecycle timestamps, not a stored
// column.
type Status string

const (
	StatusNew          Status = "new"
	StatusAcknowledged Status = "acknowledged"
	StatusEscalated    Status = "escalated"
	StatusResolved     Status = "resolved"
)

// Alert maps to the alert table.
type Alert struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	OrganizationID uuid.UUID      `db:"organization_id" json:"organization_id"`
	RuleKey        string         `db:"rule_key" json:"rule_key"`
	Severity       Severity       `db:"severity" json:"severity"`
	Title          string         `db:"title" json:"title"`
	Detail         map[string]any `db:"detail" json:"detail,omitempty"`
	AcknowledgedAt *time.Time     `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AutoResolvedAt *time.Time     `db:"auto_resolved_at" json:"auto_resolved_at,omitempty"`
	EscalatedTo    *uuid.UUID     `db:"escalated_to" json:"escalated_to,omitempty"`
	EscalatedAt    *time.Time     `db:"escalated_at" json:"escalated_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Status derives the lifecycle state. Resolution wins over escalation, which
// wins over acknowledgment.
func (a *Alert) Status() Status {
	switch {
	case a.AutoResolvedAt != nil:
		return StatusResolved
	case a.EscalatedAt != nil:
		return StatusEscalated
	case a.AcknowledgedAt != nil:
		return StatusAcknowledged
	}
	return StatusNew
}

// Open reports whether the alert still counts against the
// one-open-alert-per-(patient, rule) invariant.
func (a *Alert) Open() bool {
	return a.Status() != StatusResolved
}

// Candidate is a rule evaluator's proposed alert. It lives only between
// evaluation and the dedup decision.
type Candidate struct {
	RuleKey  string
	Severity Severity
	Title    string
	Detail   map[string]any
}
