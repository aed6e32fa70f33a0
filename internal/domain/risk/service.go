package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindlog/mindlog/internal/platform/metrics"
)

const maxScore = 100

// Aggregator recomputes a patient's composite risk score: all factor
// evaluators run concurrently, a failed evaluator counts as not fired so one
// broken signal never blocks the rest, and the result overwrites the
// patient's current snapshot.
type Aggregator struct {
	evaluators []Evaluator
	repo       Repository
	metrics    *metrics.Collector
	logger     zerolog.Logger
}

func NewAggregator(evaluators []Evaluator, repo Repository, collector *metrics.Collector, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		evaluators: evaluators,
		repo:       repo,
		metrics:    collector,
		logger:     logger,
	}
}

// Recompute evaluates every factor for the patient as of the given date and
// persists the resulting snapshot.
func (a *Aggregator) Recompute(ctx context.Context, patientID, orgID uuid.UUID, asOf time.Time) (*Snapshot, error) {
	// Seed every slot with the factor's static identity so a panicking
	// evaluator still leaves a complete, not-fired entry in the snapshot.
	factors := make([]Factor, len(a.evaluators))
	for i, ev := range a.evaluators {
		factors[i] = ev.Factor()
	}

	var wg sync.WaitGroup
	for i, ev := range a.evaluators {
		wg.Add(1)
		go func(i int, ev Evaluator) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.metrics.IncRuleErrors()
					a.logger.Error().
						Str("patient_id", patientID.String()).
						Str("factor", factors[i].Rule).
						Interface("panic", r).
						Msg("risk factor evaluator panicked")
				}
			}()
			f, err := ev.Evaluate(ctx, patientID, asOf)
			if err != nil {
				f.Fired = false
				a.metrics.IncRuleErrors()
				a.logger.Warn().
					Err(err).
					Str("patient_id", patientID.String()).
					Str("factor", f.Rule).
					Msg("risk factor evaluation failed, treating as not fired")
			}
			factors[i] = f
		}(i, ev)
	}
	wg.Wait()

	score := 0
	for _, f := range factors {
		if f.Fired {
			score += f.Weight
		}
	}
	if score > maxScore {
		score = maxScore
	}

	snap := &Snapshot{
		PatientID:      patientID,
		OrganizationID: orgID,
		Score:          score,
		Band:           BandFor(score),
		Factors:        factors,
		ComputedAt:     time.Now().UTC(),
	}
	if err := a.repo.Upsert(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist risk snapshot: %w", err)
	}
	a.metrics.IncRiskSnapshots()
	a.logger.Info().
		Str("patient_id", patientID.String()).
		Int("score", score).
		Str("band", string(snap.Band)).
		Msg("risk score recomputed")
	return snap, nil
}

// GetByPatient returns the patient's current snapshot.
func (a *Aggregator) GetByPatient(ctx context.Context, patientID uuid.UUID) (*Snapshot, error) {
	return a.repo.GetByPatient(ctx, patientID)
}
