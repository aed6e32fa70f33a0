package timeseries

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type readerPG struct{ pool *pgxpool.Pool }

// NewReaderPG returns a Reader over the main application's tables.
func NewReaderPG(pool *pgxpool.Pool) Reader { return &readerPG{pool: pool} }

func (r *readerPG) MoodScores(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]MoodScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT entry_date, mood_score
		FROM daily_entry
		WHERE patient_id = $1 AND submitted_at IS NOT NULL
		  AND entry_date BETWEEN $2 AND $3
		ORDER BY entry_date`,
		patientID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MoodScore
	for rows.Next() {
		var m MoodScore
		if err := rows.Scan(&m.Date, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *readerPG) RecentMoodScores(ctx context.Context, patientID uuid.UUID, asOf time.Time, limit int) ([]MoodScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT entry_date, mood_score
		FROM daily_entry
		WHERE patient_id = $1 AND submitted_at IS NOT NULL AND entry_date <= $2
		ORDER BY entry_date DESC
		LIMIT $3`,
		patientID, DateOnly(asOf), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MoodScore
	for rows.Next() {
		var m MoodScore
		if err := rows.Scan(&m.Date, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *readerPG) SubmittedDates(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT entry_date
		FROM daily_entry
		WHERE patient_id = $1 AND submitted_at IS NOT NULL
		  AND entry_date BETWEEN $2 AND $3
		ORDER BY entry_date`,
		patientID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *readerPG) SleepTotals(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]SleepTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sleep_date, SUM(hours)
		FROM sleep_log
		WHERE patient_id = $1 AND sleep_date BETWEEN $2 AND $3
		GROUP BY sleep_date
		ORDER BY sleep_date`,
		patientID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SleepTotal
	for rows.Next() {
		var s SleepTotal
		if err := rows.Scan(&s.Date, &s.Hours); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *readerPG) ExerciseMinutes(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]ExerciseDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT exercise_date, SUM(minutes)
		FROM exercise_log
		WHERE patient_id = $1 AND exercise_date BETWEEN $2 AND $3
		GROUP BY exercise_date
		ORDER BY exercise_date`,
		patientID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExerciseDay
	for rows.Next() {
		var e ExerciseDay
		if err := rows.Scan(&e.Date, &e.Minutes); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *readerPG) TriggerLogs(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]TriggerLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT log_date, category, severity
		FROM trigger_log
		WHERE patient_id = $1 AND log_date BETWEEN $2 AND $3
		ORDER BY log_date`,
		patientID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TriggerLog
	for rows.Next() {
		var t TriggerLog
		if err := rows.Scan(&t.Date, &t.Category, &t.Severity); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *readerPG) SymptomLogs(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]SymptomLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT log_date, symptom
		FROM symptom_log
		WHERE patient_id = $1 AND log_date BETWEEN $2 AND $3
		ORDER BY log_date`,
		patientID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SymptomLog
	for rows.Next() {
		var s SymptomLog
		if err := rows.Scan(&s.Date, &s.Symptom); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *readerPG) MedicationLogs(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]MedicationLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ml.log_date, ml.medication_id, ml.taken, m.active, m.visible
		FROM medication_log ml
		JOIN medication m ON m.id = ml.medication_id
		WHERE ml.patient_id = $1 AND ml.log_date BETWEEN $2 AND $3
		ORDER BY ml.log_date`,
		patientID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MedicationLog
	for rows.Next() {
		var m MedicationLog
		if err := rows.Scan(&m.Date, &m.MedicationID, &m.Taken, &m.Active, &m.Visible); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *readerPG) RecentJournalEntries(ctx context.Context, patientID uuid.UUID, asOf time.Time, limit int) ([]JournalEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, created_at, body
		FROM journal_entry
		WHERE patient_id = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3`,
		patientID, DateOnly(asOf).AddDate(0, 0, 1), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var j JournalEntry
		if err := rows.Scan(&j.ID, &j.CreatedAt, &j.Body); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *readerPG) LatestAssessment(ctx context.Context, patientID uuid.UUID, instrument string, since time.Time) (*AssessmentScore, error) {
	var a AssessmentScore
	err := r.pool.QueryRow(ctx, `
		SELECT instrument, score, completed_at
		FROM assessment_score
		WHERE patient_id = $1 AND instrument = $2 AND completed_at >= $3
		ORDER BY completed_at DESC
		LIMIT 1`,
		patientID, instrument, since).Scan(&a.Instrument, &a.Score, &a.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type directoryPG struct{ pool *pgxpool.Pool }

// NewDirectoryPG returns a Directory over the main application's patient table.
func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (d *directoryPG) ListActivePatients(ctx context.Context) ([]PatientRef, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, organization_id
		FROM patient
		WHERE status = 'active'
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PatientRef
	for rows.Next() {
		var p PatientRef
		if err := rows.Scan(&p.ID, &p.OrgID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
