// Package risk computes the composite risk score: seven fixed-weight clinical
// factors evaluated concurrently, summed and capped at 100, banded, and
// persisted as the patient's current snapshot. Scoring is deterministic;
// factor detail is kept for clinician-facing explainability.
package risk

import (
	"time"

	"github.com/google/uuid"
)

// Factor rule identifiers. Weights are fixed and sum to exactly 100.
const (
	FactorCSSRSElevated    = "cssrs_elevated"
	FactorPHQ9Severe       = "phq9_severe"
	FactorLowMoodStreak    = "low_mood_streak"
	FactorMissedCheckins   = "missed_checkins"
	FactorManiaScreen      = "mania_screen"
	FactorNonadherence     = "medication_nonadherence"
	FactorSocialWithdrawal = "social_withdrawal"
)

// Band classifies a score for triage.
type Band string

const (
	BandLow      Band = "low"
	BandModerate Band = "moderate"
	BandHigh     Band = "high"
	BandCritical Band = "critical"
)

// BandFor maps a score to its band.
func BandFor(score int) Band {
	switch {
	case score >= 75:
		return BandCritical
	case score >= 50:
		return BandHigh
	case score >= 25:
		return BandModerate
	}
	return BandLow
}

// Factor is one weighted clinical signal. Value preserves the raw triggering
// measurement (assessment score, day count) so clinicians can see why a
// factor fired, not just that it did.
type Factor struct {
	Rule   string  `json:"rule"`
	Label  string  `json:"label"`
	Weight int     `json:"weight"`
	Fired  bool    `json:"fired"`
	Value  float64 `json:"value"`
}

// Snapshot is a patient's current risk score. Recomputation overwrites the
// previous snapshot; no history is kept here.
type Snapshot struct {
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Score          int       `db:"score" json:"score"`
	Band           Band      `db:"band" json:"band"`
	Factors        []Factor  `db:"factors" json:"factors"`
	ComputedAt     time.Time `db:"computed_at" json:"computed_at"`
}
