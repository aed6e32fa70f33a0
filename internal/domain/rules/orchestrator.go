package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindlog/mindlog/internal/domain/alert"
	"github.com/mindlog/mindlog/internal/domain/risk"
	"github.com/mindlog/mindlog/internal/domain/timeseries"
	"github.com/mindlog/mindlog/internal/platform/metrics"
	"github.com/mindlog/mindlog/internal/platform/queue"
)

// Orchestrator drives one evaluation unit of work: verify-and-rebroadcast
// the externally materialized safety-symptom alert, fan out the remaining
// rules concurrently, persist and publish whatever they produced, then
// recompute the risk score. It is the queue consumer's Handler.
//
// A failed rule evaluator is treated as "no candidate" so one broken rule
// never blocks the rest; a failed store write fails the whole unit so the
// queue retries it.
type Orchestrator struct {
	rules     []Rule
	alerts    *alert.Service
	publisher alert.Publisher
	risk      *risk.Aggregator
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

func NewOrchestrator(rules []Rule, alerts *alert.Service, publisher alert.Publisher, aggregator *risk.Aggregator, collector *metrics.Collector, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		rules:     rules,
		alerts:    alerts,
		publisher: publisher,
		risk:      aggregator,
		metrics:   collector,
		logger:    logger,
	}
}

// Process implements queue.Handler.
func (o *Orchestrator) Process(ctx context.Context, job queue.Job) error {
	asOf := timeseries.DateOnly(job.EntryDate)
	log := o.logger.With().
		Str("patient_id", job.PatientID.String()).
		Time("as_of", asOf).
		Str("triggered_by", string(job.TriggeredBy)).
		Logger()

	if err := o.rebroadcastSafetySymptom(ctx, job, asOf, log); err != nil {
		o.metrics.IncJobsFailed()
		return err
	}

	candidates := o.evaluateAll(ctx, job.PatientID, asOf, log)

	for _, c := range candidates {
		a, created, err := o.alerts.Record(ctx, job.PatientID, job.OrgID, *c)
		if err != nil {
			o.metrics.IncJobsFailed()
			return fmt.Errorf("record %s: %w", c.RuleKey, err)
		}
		if created {
			if err := o.publisher.PublishAlert(ctx, a); err != nil {
				log.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("alert broadcast failed")
			} else {
				o.metrics.IncBroadcastsSent()
			}
		}
	}

	if _, err := o.risk.Recompute(ctx, job.PatientID, job.OrgID, asOf); err != nil {
		o.metrics.IncJobsFailed()
		return fmt.Errorf("risk recompute: %w", err)
	}

	o.metrics.IncJobsProcessed()
	log.Info().Int("candidates", len(candidates)).Msg("evaluation unit complete")
	return nil
}

// rebroadcastSafetySymptom republishes the alert an external integrity
// mechanism materializes the instant a qualifying symptom is logged. The
// decision is not made here; clinicians who were offline at creation time
// still get notified on the next evaluation of that day.
func (o *Orchestrator) rebroadcastSafetySymptom(ctx context.Context, job queue.Job, asOf time.Time, log zerolog.Logger) error {
	a, err := o.alerts.FindByRuleOnDate(ctx, job.PatientID, alert.RuleSafetySymptom, asOf)
	if err != nil {
		return fmt.Errorf("safety symptom lookup: %w", err)
	}
	if a == nil {
		return nil
	}
	if err := o.publisher.PublishAlert(ctx, a); err != nil {
		log.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("safety symptom rebroadcast failed")
		return nil
	}
	o.metrics.IncBroadcastsSent()
	log.Info().Str("alert_id", a.ID.String()).Msg("safety symptom alert rebroadcast")
	return nil
}

// evaluateAll fans the rules out concurrently and joins on completion.
// Panics and errors resolve to no candidate for that rule only.
func (o *Orchestrator) evaluateAll(ctx context.Context, patientID uuid.UUID, asOf time.Time, log zerolog.Logger) []*alert.Candidate {
	results := make([]*alert.Candidate, len(o.rules))

	var wg sync.WaitGroup
	for i, r := range o.rules {
		wg.Add(1)
		go func(i int, r Rule) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					o.metrics.IncRuleErrors()
					log.Error().Str("rule", r.Key()).Interface("panic", rec).Msg("rule evaluator panicked")
				}
			}()
			c, err := r.Evaluate(ctx, patientID, asOf)
			if err != nil {
				o.metrics.IncRuleErrors()
				log.Warn().Err(err).Str("rule", r.Key()).Msg("rule evaluation failed, treating as no candidate")
				return
			}
			results[i] = c
		}(i, r)
	}
	wg.Wait()

	out := results[:0]
	for _, c := range results {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// EnqueueNightly fans the active patient population onto the queue for the
// nightly batch run.
func EnqueueNightly(ctx context.Context, directory timeseries.Directory, q *queue.Queue, date time.Time) (int, error) {
	patients, err := directory.ListActivePatients(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active patients: %w", err)
	}
	enqueued := 0
	for _, p := range patients {
		job := queue.Job{
			PatientID:   p.ID,
			OrgID:       p.OrgID,
			EntryDate:   timeseries.DateOnly(date),
			TriggeredBy: queue.TriggerNightlyBatch,
		}
		if err := q.Enqueue(ctx, job); err != nil {
			return enqueued, fmt.Errorf("enqueue patient %s: %w", p.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}
