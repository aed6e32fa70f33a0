package risk

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mindlog/mindlog/internal/domain/timeseries"
)

// Assessment and window thresholds. Provisional pending clinical sign-off.
const (
	cssrsThreshold       = 4
	phq9Threshold        = 20
	asrmThreshold        = 6
	assessmentWindowDays = 30

	lowMoodScore     = 3
	lowMoodLookback  = 5
	lowMoodStreakMin = 3

	missedWindowDays = 14
	missedMin        = 5

	nonadherenceWindowDays = 7
	nonadherenceMin        = 3

	withdrawalWindowDays = 14
)

// Symptom names the social-withdrawal factor looks for.
const (
	symptomSocialAvoidance = "social_avoidance"
	symptomAnhedonia       = "anhedonia"
)

// Evaluator decides whether one weighted factor fires for a patient as of a
// date. Implementations read a bounded trailing window and must not mutate
// anything. Factor returns the static identity (rule, label, weight) so the
// snapshot keeps all seven entries even when an evaluation blows up.
type Evaluator interface {
	Factor() Factor
	Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (Factor, error)
}

// DefaultEvaluators returns the seven fixed factors in presentation order.
func DefaultEvaluators(reader timeseries.Reader) []Evaluator {
	return []Evaluator{
		&cssrsElevated{reader: reader},
		&phq9Severe{reader: reader},
		&lowMoodStreak{reader: reader},
		&missedCheckins{reader: reader},
		&maniaScreen{reader: reader},
		&medicationNonadherence{reader: reader},
		&socialWithdrawal{reader: reader},
	}
}

func assessmentFactor(ctx context.Context, reader timeseries.Reader, patientID uuid.UUID, asOf time.Time, instrument string, threshold int, base Factor) (Factor, error) {
	since := asOf.AddDate(0, 0, -assessmentWindowDays)
	score, err := reader.LatestAssessment(ctx, patientID, instrument, since)
	if err != nil {
		return base, err
	}
	if score == nil {
		return base, nil
	}
	base.Value = float64(score.Score)
	base.Fired = score.Score >= threshold
	return base, nil
}

// cssrsElevated fires when the latest C-SSRS within 30 days scores at or
// above the elevated-ideation threshold. It carries the largest weight.
type cssrsElevated struct {
	reader timeseries.Reader
}

func (f *cssrsElevated) Factor() Factor {
	return Factor{Rule: FactorCSSRSElevated, Label: "C-SSRS elevated", Weight: 35}
}

func (f *cssrsElevated) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (Factor, error) {
	return assessmentFactor(ctx, f.reader, patientID, asOf, timeseries.InstrumentCSSRS, cssrsThreshold, f.Factor())
}

// phq9Severe fires when the latest PHQ-9 within 30 days is in the severe
// depression range.
type phq9Severe struct {
	reader timeseries.Reader
}

func (f *phq9Severe) Factor() Factor {
	return Factor{Rule: FactorPHQ9Severe, Label: "PHQ-9 severe", Weight: 20}
}

func (f *phq9Severe) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (Factor, error) {
	return assessmentFactor(ctx, f.reader, patientID, asOf, timeseries.InstrumentPHQ9, phq9Threshold, f.Factor())
}

// maniaScreen fires when the latest ASRM within 30 days is at or above the
// probable-mania cutoff.
type maniaScreen struct {
	reader timeseries.Reader
}

func (f *maniaScreen) Factor() Factor {
	return Factor{Rule: FactorManiaScreen, Label: "Mania screen elevated", Weight: 10}
}

func (f *maniaScreen) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (Factor, error) {
	return assessmentFactor(ctx, f.reader, patientID, asOf, timeseries.InstrumentASRM, asrmThreshold, f.Factor())
}

// lowMoodStreak fires when mood was at or below 3 on at least 3 of the last
// 5 submitted check-ins.
type lowMoodStreak struct {
	reader timeseries.Reader
}

func (f *lowMoodStreak) Factor() Factor {
	return Factor{Rule: FactorLowMoodStreak, Label: "Low mood streak", Weight: 15}
}

func (f *lowMoodStreak) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (Factor, error) {
	base := f.Factor()
	scores, err := f.reader.RecentMoodScores(ctx, patientID, asOf, lowMoodLookback)
	if err != nil {
		return base, err
	}
	low := 0
	for _, s := range scores {
		if s.Score <= lowMoodScore {
			low++
		}
	}
	base.Value = float64(low)
	base.Fired = low >= lowMoodStreakMin
	return base, nil
}

// missedCheckins fires when at least 5 of the trailing 14 calendar days have
// no submitted check-in.
type missedCheckins struct {
	reader timeseries.Reader
}

func (f *missedCheckins) Factor() Factor {
	return Factor{Rule: FactorMissedCheckins, Label: "Missed check-ins", Weight: 10}
}

func (f *missedCheckins) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (Factor, error) {
	base := f.Factor()
	from := timeseries.DateOnly(asOf).AddDate(0, 0, -(missedWindowDays - 1))
	dates, err := f.reader.SubmittedDates(ctx, patientID, from, timeseries.DateOnly(asOf))
	if err != nil {
		return base, err
	}
	missed := missedWindowDays - len(dates)
	if missed < 0 {
		missed = 0
	}
	base.Value = float64(missed)
	base.Fired = missed >= missedMin
	return base, nil
}

// medicationNonadherence fires on 3 or more distinct not-taken days for an
// active, visible medication in the trailing 7 days.
type medicationNonadherence struct {
	reader timeseries.Reader
}

func (f *medicationNonadherence) Factor() Factor {
	return Factor{Rule: FactorNonadherence, Label: "Medication non-adherence", Weight: 5}
}

func (f *medicationNonadherence) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (Factor, error) {
	base := f.Factor()
	from := timeseries.DateOnly(asOf).AddDate(0, 0, -(nonadherenceWindowDays - 1))
	logs, err := f.reader.MedicationLogs(ctx, patientID, from, timeseries.DateOnly(asOf))
	if err != nil {
		return base, err
	}
	days := make(map[time.Time]bool)
	for _, l := range logs {
		if !l.Taken && l.Active && l.Visible {
			days[timeseries.DateOnly(l.Date)] = true
		}
	}
	base.Value = float64(len(days))
	base.Fired = len(days) >= nonadherenceMin
	return base, nil
}

// socialWithdrawal fires when social-avoidance and anhedonia symptoms
// co-occur within the trailing 14 days.
type socialWithdrawal struct {
	reader timeseries.Reader
}

func (f *socialWithdrawal) Factor() Factor {
	return Factor{Rule: FactorSocialWithdrawal, Label: "Social withdrawal", Weight: 5}
}

func (f *socialWithdrawal) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (Factor, error) {
	base := f.Factor()
	from := timeseries.DateOnly(asOf).AddDate(0, 0, -(withdrawalWindowDays - 1))
	logs, err := f.reader.SymptomLogs(ctx, patientID, from, timeseries.DateOnly(asOf))
	if err != nil {
		return base, err
	}
	var avoidance, anhedonia int
	for _, l := range logs {
		switch l.Symptom {
		case symptomSocialAvoidance:
			avoidance++
		case symptomAnhedonia:
			anhedonia++
		}
	}
	base.Value = float64(avoidance + anhedonia)
	base.Fired = avoidance > 0 && anhedonia > 0
	return base, nil
}
