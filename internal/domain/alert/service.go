package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindlog/mindlog/internal/platform/metrics"
)

// ErrNotOpen is returned when a status transition targets an alert that is
// already resolved (or does not exist).
var ErrNotOpen = errors.New("alert: not open")

var validRuleKeys = map[string]bool{
	RuleMoodDecline:         true,
	RuleMissedCheckin:       true,
	RuleTriggerEscalation:   true,
	RuleMedicationAdherence: true,
	RuleSleepDisruption:     true,
	RuleExerciseDecline:     true,
	RuleJournalSentiment:    true,
	RuleSafetySymptom:       true,
}

// Service is the alert deduplicator and store. Record is the only write path
// for new alerts; clinician-facing collaborators mutate state only through
// the explicit transitions.
type Service struct {
	repo    Repository
	metrics *metrics.Collector
	logger  zerolog.Logger
}

func NewService(repo Repository, collector *metrics.Collector, logger zerolog.Logger) *Service {
	return &Service{repo: repo, metrics: collector, logger: logger}
}

// Record applies the dedup contract to a rule candidate: if an open alert
// already exists for (patient, rule key) the candidate is suppressed,
// otherwise a new alert is inserted. Returns the alert and whether it was
// newly created.
func (s *Service) Record(ctx context.Context, patientID, orgID uuid.UUID, c Candidate) (*Alert, bool, error) {
	if patientID == uuid.Nil {
		return nil, false, fmt.Errorf("patient id is required")
	}
	if !validRuleKeys[c.RuleKey] {
		return nil, false, fmt.Errorf("unknown rule key: %s", c.RuleKey)
	}
	if !c.Severity.Valid() {
		return nil, false, fmt.Errorf("invalid severity: %s", c.Severity)
	}

	a := &Alert{
		PatientID:      patientID,
		OrganizationID: orgID,
		RuleKey:        c.RuleKey,
		Severity:       c.Severity,
		Title:          c.Title,
		Detail:         c.Detail,
	}
	created, err := s.repo.CreateIfNoneOpen(ctx, a)
	if err != nil {
		return nil, false, fmt.Errorf("create alert: %w", err)
	}

	if !created {
		s.metrics.IncAlertsSuppressed()
		s.logger.Debug().
			Str("patient_id", patientID.String()).
			Str("rule_key", c.RuleKey).
			Msg("alert suppressed, open alert exists")
		existing, err := s.repo.FindOpen(ctx, patientID, c.RuleKey)
		if err != nil {
			return nil, false, fmt.Errorf("find open alert: %w", err)
		}
		return existing, false, nil
	}

	s.metrics.IncAlertsCreated()
	s.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("patient_id", patientID.String()).
		Str("rule_key", c.RuleKey).
		Str("severity", string(c.Severity)).
		Msg("alert created")
	return a, true, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// FindByRuleOnDate exposes the lookup the orchestrator uses to verify the
// externally-materialized safety-symptom alert.
func (s *Service) FindByRuleOnDate(ctx context.Context, patientID uuid.UUID, ruleKey string, day time.Time) (*Alert, error) {
	return s.repo.FindByRuleOnDate(ctx, patientID, ruleKey, day)
}

func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID) (*Alert, error) {
	if err := s.repo.Acknowledge(ctx, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (*Alert, error) {
	if err := s.repo.Resolve(ctx, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Escalate(ctx context.Context, id, to uuid.UUID) (*Alert, error) {
	if to == uuid.Nil {
		return nil, fmt.Errorf("escalation target is required")
	}
	if err := s.repo.Escalate(ctx, id, to, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}
