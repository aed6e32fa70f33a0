package rules

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindlog/mindlog/internal/domain/alert"
	"github.com/mindlog/mindlog/internal/domain/timeseries"
	"github.com/mindlog/mindlog/internal/platform/inference"
	"github.com/mindlog/mindlog/internal/platform/metrics"
)

// journalEntryLimit bounds how many recent entries are sent per analysis.
const journalEntryLimit = 5

// JournalSentiment sends recent journal text to the inference service and
// maps its structured verdict to a candidate. The rule is compliance-gated
// at construction: without both flags the Analyzer is the disabled
// implementation and the rule is a no-op. Inference failures are swallowed
// as "no candidate" and surfaced only through the fail-open counter.
type JournalSentiment struct {
	Reader   timeseries.Reader
	Analyzer inference.Analyzer
	Metrics  *metrics.Collector
	Logger   zerolog.Logger
}

func (r *JournalSentiment) Key() string { return alert.RuleJournalSentiment }

func (r *JournalSentiment) Evaluate(ctx context.Context, patientID uuid.UUID, asOf time.Time) (*alert.Candidate, error) {
	// Gate first: when analysis is not permitted the patient's journal text
	// is never read at all.
	if !inference.Enabled(r.Analyzer) {
		return nil, nil
	}

	entries, err := r.Reader.RecentJournalEntries(ctx, patientID, asOf, journalEntryLimit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	// Oldest first, so the model reads the entries in the order they were
	// written.
	parts := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		parts = append(parts, entries[i].Body)
	}

	analysis, err := r.Analyzer.AnalyzeJournal(ctx, strings.Join(parts, "\n\n"))
	if errors.Is(err, inference.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		r.Metrics.IncSentimentFailOpen()
		r.Logger.Warn().
			Err(err).
			Str("patient_id", patientID.String()).
			Msg("journal analysis failed, rule fails open")
		return nil, nil
	}

	switch {
	case analysis.CrisisIndicators:
		return &alert.Candidate{
			RuleKey:  alert.RuleJournalSentiment,
			Severity: alert.SeverityCritical,
			Title:    "Crisis indicators detected in journal entries",
			Detail: map[string]any{
				"sentiment": string(analysis.Sentiment),
				"summary":   analysis.Summary,
			},
		}, nil
	case analysis.Sentiment == inference.SentimentConcerning:
		return &alert.Candidate{
			RuleKey:  alert.RuleJournalSentiment,
			Severity: alert.SeverityWarning,
			Title:    "Concerning sentiment in recent journal entries",
			Detail: map[string]any{
				"sentiment": string(analysis.Sentiment),
				"summary":   analysis.Summary,
			},
		}, nil
	}
	return nil, nil
}
