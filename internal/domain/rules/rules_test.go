package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindlog/mindlog/internal/domain/alert"
	"github.com/mindlog/mindlog/internal/domain/timeseries"
	"github.com/mindlog/mindlog/internal/platform/inference"
)

var asOf = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return asOf.AddDate(0, 0, offset)
}

// mockReader serves canned time-series data to rule evaluators.
type mockReader struct {
	moods     []timeseries.MoodScore
	submitted []time.Time
	sleep     []timeseries.SleepTotal
	exercise  []timeseries.ExerciseDay
	triggers  []timeseries.TriggerLog
	symptoms  []timeseries.SymptomLog
	meds      []timeseries.MedicationLog
	journals  []timeseries.JournalEntry
	err       error

	journalReads int
}

func (m *mockReader) MoodScores(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]timeseries.MoodScore, error) {
	return m.moods, m.err
}

func (m *mockReader) RecentMoodScores(_ context.Context, _ uuid.UUID, _ time.Time, limit int) ([]timeseries.MoodScore, error) {
	if len(m.moods) > limit {
		return m.moods[:limit], m.err
	}
	return m.moods, m.err
}

func (m *mockReader) SubmittedDates(_ context.Context, _ uuid.UUID, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, d := range m.submitted {
		if !d.Before(from) && !d.After(to) {
			out = append(out, d)
		}
	}
	return out, m.err
}

func (m *mockReader) SleepTotals(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]timeseries.SleepTotal, error) {
	return m.sleep, m.err
}

func (m *mockReader) ExerciseMinutes(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]timeseries.ExerciseDay, error) {
	return m.exercise, m.err
}

func (m *mockReader) TriggerLogs(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]timeseries.TriggerLog, error) {
	return m.triggers, m.err
}

func (m *mockReader) SymptomLogs(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]timeseries.SymptomLog, error) {
	return m.symptoms, m.err
}

func (m *mockReader) MedicationLogs(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]timeseries.MedicationLog, error) {
	return m.meds, m.err
}

func (m *mockReader) RecentJournalEntries(_ context.Context, _ uuid.UUID, _ time.Time, limit int) ([]timeseries.JournalEntry, error) {
	m.journalReads++
	if len(m.journals) > limit {
		return m.journals[:limit], m.err
	}
	return m.journals, m.err
}

func (m *mockReader) LatestAssessment(_ context.Context, _ uuid.UUID, _ string, _ time.Time) (*timeseries.AssessmentScore, error) {
	return nil, m.err
}

// moodSeries builds three recent and three baseline-only entries whose means
// produce the wanted rolling/baseline values.
func moodSeries(recentScore, earlierScore int) []timeseries.MoodScore {
	return []timeseries.MoodScore{
		{Date: day(0), Score: recentScore},
		{Date: day(-1), Score: recentScore},
		{Date: day(-2), Score: recentScore},
		{Date: day(-10), Score: earlierScore},
		{Date: day(-15), Score: earlierScore},
		{Date: day(-20), Score: earlierScore},
	}
}

func TestMoodDecline(t *testing.T) {
	tests := []struct {
		name         string
		moods        []timeseries.MoodScore
		wantSeverity alert.Severity
		wantNone     bool
	}{
		// rolling 2.0, baseline (30+6)/6 = 6.0, delta 4.0
		{"critical decline", moodSeries(2, 10), alert.SeverityCritical, false},
		// rolling 2.0, baseline (24+6)/6 = 5.0, delta 3.0
		{"warning decline", moodSeries(2, 8), alert.SeverityWarning, false},
		// rolling 5.0, baseline (21+15)/6 = 6.0, delta 1.0
		{"mild dip", moodSeries(5, 7), "", true},
		{"improving mood", moodSeries(8, 3), "", true},
		{"too few recent entries", []timeseries.MoodScore{
			{Date: day(0), Score: 1},
			{Date: day(-1), Score: 1},
			{Date: day(-10), Score: 9},
			{Date: day(-15), Score: 9},
			{Date: day(-20), Score: 9},
		}, "", true},
		{"no data", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &MoodDecline{Reader: &mockReader{moods: tt.moods}}
			c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if tt.wantNone {
				if c != nil {
					t.Fatalf("expected no candidate, got %+v", c)
				}
				return
			}
			if c == nil {
				t.Fatal("expected a candidate")
			}
			if c.Severity != tt.wantSeverity {
				t.Errorf("Severity = %s, want %s", c.Severity, tt.wantSeverity)
			}
		})
	}
}

func TestMissedCheckin(t *testing.T) {
	tests := []struct {
		name         string
		missedDays   int
		wantSeverity alert.Severity
		wantNone     bool
	}{
		{"five missed", 5, alert.SeverityCritical, false},
		{"three missed", 3, alert.SeverityWarning, false},
		{"two missed", 2, "", true},
		{"none missed", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Submitted every day except the most recent missedDays before asOf.
			var submitted []time.Time
			for i := tt.missedDays + 1; i <= missedLookbackCap; i++ {
				submitted = append(submitted, day(-i))
			}
			r := &MissedCheckin{Reader: &mockReader{submitted: submitted}}
			c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if tt.wantNone {
				if c != nil {
					t.Fatalf("expected no candidate, got %+v", c)
				}
				return
			}
			if c == nil {
				t.Fatal("expected a candidate")
			}
			if c.Severity != tt.wantSeverity {
				t.Errorf("Severity = %s, want %s", c.Severity, tt.wantSeverity)
			}
			if c.Detail["consecutive_missed_days"] != tt.missedDays {
				t.Errorf("missed days = %v, want %d", c.Detail["consecutive_missed_days"], tt.missedDays)
			}
		})
	}
}

func TestMissedCheckin_CappedAtFourteen(t *testing.T) {
	// No submissions at all: the count stops at the lookback cap.
	r := &MissedCheckin{Reader: &mockReader{}}
	c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if c == nil {
		t.Fatal("expected a candidate")
	}
	if c.Detail["consecutive_missed_days"] != missedLookbackCap {
		t.Errorf("missed days = %v, want %d", c.Detail["consecutive_missed_days"], missedLookbackCap)
	}
}

func TestTriggerEscalation(t *testing.T) {
	highOn := func(category string, dayOffsets ...int) []timeseries.TriggerLog {
		var logs []timeseries.TriggerLog
		for _, o := range dayOffsets {
			logs = append(logs, timeseries.TriggerLog{Date: day(o), Category: category, Severity: 8})
		}
		return logs
	}

	t.Run("three high days fires", func(t *testing.T) {
		r := &TriggerEscalation{Reader: &mockReader{triggers: highOn("work_stress", 0, -3, -7)}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c == nil {
			t.Fatal("expected a candidate")
		}
		if c.Severity != alert.SeverityWarning {
			t.Errorf("Severity = %s, want warning", c.Severity)
		}
		if c.Detail["category"] != "work_stress" {
			t.Errorf("category = %v, want work_stress", c.Detail["category"])
		}
	})

	t.Run("two high days does not fire", func(t *testing.T) {
		r := &TriggerEscalation{Reader: &mockReader{triggers: highOn("work_stress", 0, -3)}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})

	t.Run("low severity ignored", func(t *testing.T) {
		logs := []timeseries.TriggerLog{
			{Date: day(0), Category: "conflict", Severity: 6},
			{Date: day(-1), Category: "conflict", Severity: 6},
			{Date: day(-2), Category: "conflict", Severity: 6},
		}
		r := &TriggerEscalation{Reader: &mockReader{triggers: logs}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})

	t.Run("category with most days wins", func(t *testing.T) {
		logs := append(highOn("conflict", 0, -1, -2), highOn("insomnia", 0, -1, -2, -3)...)
		r := &TriggerEscalation{Reader: &mockReader{triggers: logs}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c == nil {
			t.Fatal("expected a candidate")
		}
		if c.Detail["category"] != "insomnia" {
			t.Errorf("category = %v, want insomnia", c.Detail["category"])
		}
	})

	t.Run("same day logs count once", func(t *testing.T) {
		logs := []timeseries.TriggerLog{
			{Date: day(0), Category: "conflict", Severity: 9},
			{Date: day(0), Category: "conflict", Severity: 9},
			{Date: day(-1), Category: "conflict", Severity: 9},
		}
		r := &TriggerEscalation{Reader: &mockReader{triggers: logs}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate for 2 distinct days, got %+v", c)
		}
	})
}

func TestMedicationAdherence(t *testing.T) {
	notTaken := func(offset int, active, visible bool) timeseries.MedicationLog {
		return timeseries.MedicationLog{Date: day(offset), MedicationID: uuid.New(), Taken: false, Active: active, Visible: visible}
	}

	t.Run("three not-taken days fires", func(t *testing.T) {
		r := &MedicationAdherence{Reader: &mockReader{meds: []timeseries.MedicationLog{
			notTaken(0, true, true), notTaken(-2, true, true), notTaken(-4, true, true),
		}}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c == nil || c.Severity != alert.SeverityWarning {
			t.Fatalf("expected warning candidate, got %+v", c)
		}
	})

	t.Run("hidden or inactive medications ignored", func(t *testing.T) {
		r := &MedicationAdherence{Reader: &mockReader{meds: []timeseries.MedicationLog{
			notTaken(0, true, true), notTaken(-2, false, true), notTaken(-4, true, false),
		}}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})

	t.Run("taken logs do not count", func(t *testing.T) {
		taken := timeseries.MedicationLog{Date: day(-1), MedicationID: uuid.New(), Taken: true, Active: true, Visible: true}
		r := &MedicationAdherence{Reader: &mockReader{meds: []timeseries.MedicationLog{
			notTaken(0, true, true), notTaken(-2, true, true), taken,
		}}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})
}

func TestSleepDisruption(t *testing.T) {
	shortNights := func(n int) []timeseries.SleepTotal {
		var out []timeseries.SleepTotal
		for i := 0; i < n; i++ {
			out = append(out, timeseries.SleepTotal{Date: day(-i), Hours: 4.0})
		}
		return out
	}

	t.Run("five short nights fires", func(t *testing.T) {
		r := &SleepDisruption{Reader: &mockReader{sleep: shortNights(5)}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c == nil || c.Severity != alert.SeverityWarning {
			t.Fatalf("expected warning candidate, got %+v", c)
		}
	})

	t.Run("four short nights does not fire", func(t *testing.T) {
		r := &SleepDisruption{Reader: &mockReader{sleep: shortNights(4)}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})

	t.Run("one adequate night clears the window", func(t *testing.T) {
		sleep := shortNights(4)
		sleep = append(sleep, timeseries.SleepTotal{Date: day(-4), Hours: 7.5})
		r := &SleepDisruption{Reader: &mockReader{sleep: sleep}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})
}

func TestExerciseDecline(t *testing.T) {
	allSubmitted := func() []time.Time {
		var out []time.Time
		for i := 0; i < exerciseWindowDays; i++ {
			out = append(out, day(-i))
		}
		return out
	}

	t.Run("full sedentary window fires info", func(t *testing.T) {
		r := &ExerciseDecline{Reader: &mockReader{submitted: allSubmitted()}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c == nil {
			t.Fatal("expected a candidate")
		}
		if c.Severity != alert.SeverityInfo {
			t.Errorf("Severity = %s, want info", c.Severity)
		}
	})

	t.Run("six of seven does not fire", func(t *testing.T) {
		r := &ExerciseDecline{Reader: &mockReader{submitted: allSubmitted()[:6]}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})

	t.Run("any recorded exercise clears it", func(t *testing.T) {
		r := &ExerciseDecline{Reader: &mockReader{
			submitted: allSubmitted(),
			exercise:  []timeseries.ExerciseDay{{Date: day(-3), Minutes: 30}},
		}}
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})
}

// stubAnalyzer returns a canned analysis or error.
type stubAnalyzer struct {
	analysis *inference.Analysis
	err      error
	prompts  []string
}

func (s *stubAnalyzer) AnalyzeJournal(_ context.Context, text string) (*inference.Analysis, error) {
	s.prompts = append(s.prompts, text)
	return s.analysis, s.err
}

func journalRule(reader *mockReader, an inference.Analyzer) *JournalSentiment {
	return &JournalSentiment{Reader: reader, Analyzer: an, Logger: zerolog.Nop()}
}

func TestJournalSentiment(t *testing.T) {
	entries := []timeseries.JournalEntry{
		{ID: uuid.New(), CreatedAt: day(0), Body: "today was hard"},
		{ID: uuid.New(), CreatedAt: day(-1), Body: "could not sleep"},
	}

	t.Run("disabled analyzer yields no candidate and never reads the journal", func(t *testing.T) {
		reader := &mockReader{journals: entries}
		r := journalRule(reader, inference.Disabled{})
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
		if reader.journalReads != 0 {
			t.Errorf("journal read %d time(s) with analysis disabled, want 0", reader.journalReads)
		}
	})

	t.Run("no entries skips the call", func(t *testing.T) {
		an := &stubAnalyzer{}
		r := journalRule(&mockReader{}, an)
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil || len(an.prompts) != 0 {
			t.Fatal("expected no candidate and no inference call")
		}
	})

	t.Run("crisis indicators are critical", func(t *testing.T) {
		an := &stubAnalyzer{analysis: &inference.Analysis{Sentiment: inference.SentimentNegative, CrisisIndicators: true, Summary: "mentions self-harm"}}
		r := journalRule(&mockReader{journals: entries}, an)
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c == nil || c.Severity != alert.SeverityCritical {
			t.Fatalf("expected critical candidate, got %+v", c)
		}
	})

	t.Run("concerning sentiment is warning", func(t *testing.T) {
		an := &stubAnalyzer{analysis: &inference.Analysis{Sentiment: inference.SentimentConcerning}}
		r := journalRule(&mockReader{journals: entries}, an)
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c == nil || c.Severity != alert.SeverityWarning {
			t.Fatalf("expected warning candidate, got %+v", c)
		}
	})

	t.Run("negative without crisis yields no candidate", func(t *testing.T) {
		an := &stubAnalyzer{analysis: &inference.Analysis{Sentiment: inference.SentimentNegative}}
		r := journalRule(&mockReader{journals: entries}, an)
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})

	t.Run("inference failure fails open", func(t *testing.T) {
		an := &stubAnalyzer{err: errors.New("contract violation")}
		r := journalRule(&mockReader{journals: entries}, an)
		c, err := r.Evaluate(context.Background(), uuid.New(), asOf)
		if err != nil {
			t.Fatalf("failure must not propagate, got %v", err)
		}
		if c != nil {
			t.Fatalf("expected no candidate, got %+v", c)
		}
	})

	t.Run("entries sent oldest first", func(t *testing.T) {
		an := &stubAnalyzer{analysis: &inference.Analysis{Sentiment: inference.SentimentNeutral}}
		r := journalRule(&mockReader{journals: entries}, an)
		if _, err := r.Evaluate(context.Background(), uuid.New(), asOf); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if len(an.prompts) != 1 || an.prompts[0] != "could not sleep\n\ntoday was hard" {
			t.Fatalf("unexpected prompt: %q", an.prompts)
		}
	})
}
