package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	snapshots map[uuid.UUID]*Snapshot
	upsertErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{snapshots: make(map[uuid.UUID]*Snapshot)}
}

func (m *mockRepo) Upsert(_ context.Context, s *Snapshot) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.snapshots[s.PatientID] = s
	return nil
}

func (m *mockRepo) GetByPatient(_ context.Context, patientID uuid.UUID) (*Snapshot, error) {
	return m.snapshots[patientID], nil
}

// stubEvaluator returns a fixed factor, optionally with an error or a panic.
type stubEvaluator struct {
	factor Factor
	err    error
	panics bool
}

func (s *stubEvaluator) Factor() Factor {
	return Factor{Rule: s.factor.Rule, Label: s.factor.Label, Weight: s.factor.Weight}
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ uuid.UUID, _ time.Time) (Factor, error) {
	if s.panics {
		panic("boom")
	}
	return s.factor, s.err
}

func fired(rule string, weight int) Evaluator {
	return &stubEvaluator{factor: Factor{Rule: rule, Weight: weight, Fired: true}}
}

func notFired(rule string, weight int) Evaluator {
	return &stubEvaluator{factor: Factor{Rule: rule, Weight: weight}}
}

func TestRecompute_ScoreAndBand(t *testing.T) {
	tests := []struct {
		name       string
		evaluators []Evaluator
		wantScore  int
		wantBand   Band
	}{
		{
			"cssrs and low mood streak",
			[]Evaluator{
				fired(FactorCSSRSElevated, 35),
				notFired(FactorPHQ9Severe, 20),
				fired(FactorLowMoodStreak, 15),
				notFired(FactorMissedCheckins, 10),
				notFired(FactorManiaScreen, 10),
				notFired(FactorNonadherence, 5),
				notFired(FactorSocialWithdrawal, 5),
			},
			50, BandHigh,
		},
		{
			"all seven fired",
			[]Evaluator{
				fired(FactorCSSRSElevated, 35),
				fired(FactorPHQ9Severe, 20),
				fired(FactorLowMoodStreak, 15),
				fired(FactorMissedCheckins, 10),
				fired(FactorManiaScreen, 10),
				fired(FactorNonadherence, 5),
				fired(FactorSocialWithdrawal, 5),
			},
			100, BandCritical,
		},
		{
			"none fired",
			[]Evaluator{
				notFired(FactorCSSRSElevated, 35),
				notFired(FactorPHQ9Severe, 20),
				notFired(FactorLowMoodStreak, 15),
				notFired(FactorMissedCheckins, 10),
				notFired(FactorManiaScreen, 10),
				notFired(FactorNonadherence, 5),
				notFired(FactorSocialWithdrawal, 5),
			},
			0, BandLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			agg := NewAggregator(tt.evaluators, repo, nil, zerolog.Nop())
			patientID := uuid.New()

			snap, err := agg.Recompute(context.Background(), patientID, uuid.New(), time.Now())
			if err != nil {
				t.Fatalf("Recompute: %v", err)
			}
			if snap.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", snap.Score, tt.wantScore)
			}
			if snap.Band != tt.wantBand {
				t.Errorf("Band = %s, want %s", snap.Band, tt.wantBand)
			}
			if len(snap.Factors) != 7 {
				t.Errorf("expected 7 factors in snapshot, got %d", len(snap.Factors))
			}
			stored, _ := repo.GetByPatient(context.Background(), patientID)
			if stored == nil || stored.Score != tt.wantScore {
				t.Error("snapshot should be persisted")
			}
		})
	}
}

func TestRecompute_ScoreCappedAtHundred(t *testing.T) {
	evaluators := []Evaluator{fired("a", 70), fired("b", 70)}
	agg := NewAggregator(evaluators, newMockRepo(), nil, zerolog.Nop())

	snap, err := agg.Recompute(context.Background(), uuid.New(), uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if snap.Score != 100 {
		t.Errorf("Score = %d, want capped 100", snap.Score)
	}
}

func TestRecompute_FailedFactorNotFired(t *testing.T) {
	evaluators := []Evaluator{
		&stubEvaluator{factor: Factor{Rule: "broken", Weight: 35, Fired: true}, err: errors.New("query failed")},
		fired("ok", 15),
	}
	agg := NewAggregator(evaluators, newMockRepo(), nil, zerolog.Nop())

	snap, err := agg.Recompute(context.Background(), uuid.New(), uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if snap.Score != 15 {
		t.Errorf("Score = %d, want 15 (failed factor must not count)", snap.Score)
	}
}

func TestRecompute_PanickingFactorIsolated(t *testing.T) {
	evaluators := []Evaluator{
		&stubEvaluator{factor: Factor{Rule: "broken", Label: "Broken factor", Weight: 35}, panics: true},
		fired("ok", 20),
	}
	repo := newMockRepo()
	agg := NewAggregator(evaluators, repo, nil, zerolog.Nop())
	patientID := uuid.New()

	snap, err := agg.Recompute(context.Background(), patientID, uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if snap.Score != 20 {
		t.Errorf("Score = %d, want 20", snap.Score)
	}

	// The panicked factor must still appear with its identity intact, just
	// not fired.
	stored, _ := repo.GetByPatient(context.Background(), patientID)
	if len(stored.Factors) != 2 {
		t.Fatalf("expected 2 factors in snapshot, got %d", len(stored.Factors))
	}
	got := stored.Factors[0]
	if got.Rule != "broken" || got.Label != "Broken factor" || got.Weight != 35 {
		t.Errorf("panicked factor lost identity: %+v", got)
	}
	if got.Fired {
		t.Error("panicked factor must not count as fired")
	}
}

func TestRecompute_OverwritesPrevious(t *testing.T) {
	repo := newMockRepo()
	patientID := uuid.New()

	agg := NewAggregator([]Evaluator{fired("a", 50)}, repo, nil, zerolog.Nop())
	if _, err := agg.Recompute(context.Background(), patientID, uuid.New(), time.Now()); err != nil {
		t.Fatalf("first Recompute: %v", err)
	}

	agg = NewAggregator([]Evaluator{notFired("a", 50)}, repo, nil, zerolog.Nop())
	if _, err := agg.Recompute(context.Background(), patientID, uuid.New(), time.Now()); err != nil {
		t.Fatalf("second Recompute: %v", err)
	}

	stored, _ := repo.GetByPatient(context.Background(), patientID)
	if stored.Score != 0 {
		t.Errorf("Score = %d, want 0 after overwrite", stored.Score)
	}
}

func TestRecompute_UpsertFailurePropagates(t *testing.T) {
	repo := newMockRepo()
	repo.upsertErr = errors.New("db down")
	agg := NewAggregator([]Evaluator{fired("a", 10)}, repo, nil, zerolog.Nop())

	if _, err := agg.Recompute(context.Background(), uuid.New(), uuid.New(), time.Now()); err == nil {
		t.Error("expected upsert failure to propagate")
	}
}
