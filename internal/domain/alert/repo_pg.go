package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const alertCols = `id, patient_id, organization_id, rule_key, severity, title, detail,
	acknowledged_at, auto_resolved_at, escalated_to, escalated_at, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	var detail []byte
	err := row.Scan(&a.ID, &a.PatientID, &a.OrganizationID, &a.RuleKey, &a.Severity, &a.Title, &detail,
		&a.AcknowledgedAt, &a.AutoResolvedAt, &a.EscalatedTo, &a.EscalatedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &a.Detail); err != nil {
			return nil, fmt.Errorf("decode alert detail: %w", err)
		}
	}
	return &a, nil
}

// CreateIfNoneOpen relies on the uq_alert_open partial unique index: the
// insert and the open-alert check are a single atomic statement, so
// concurrent workers evaluating the same patient cannot double-insert.
func (r *repoPG) CreateIfNoneOpen(ctx context.Context, a *Alert) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	detail, err := json.Marshal(a.Detail)
	if err != nil {
		return false, fmt.Errorf("encode alert detail: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO alert (id, patient_id, organization_id, rule_key, severity, title, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (patient_id, rule_key) WHERE auto_resolved_at IS NULL DO NOTHING`,
		a.ID, a.PatientID, a.OrganizationID, a.RuleKey, a.Severity, a.Title, detail)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	created, err := r.GetByID(ctx, a.ID)
	if err != nil {
		return true, err
	}
	*a = *created
	return true, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx,
		`SELECT `+alertCols+` FROM alert WHERE id = $1`, id))
}

func (r *repoPG) FindOpen(ctx context.Context, patientID uuid.UUID, ruleKey string) (*Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, `
		SELECT `+alertCols+` FROM alert
		WHERE patient_id = $1 AND rule_key = $2 AND auto_resolved_at IS NULL`,
		patientID, ruleKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *repoPG) FindByRuleOnDate(ctx context.Context, patientID uuid.UUID, ruleKey string, day time.Time) (*Alert, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	a, err := scanAlert(r.pool.QueryRow(ctx, `
		SELECT `+alertCols+` FROM alert
		WHERE patient_id = $1 AND rule_key = $2
		  AND created_at >= $3 AND created_at < $4
		ORDER BY created_at DESC
		LIMIT 1`,
		patientID, ruleKey, dayStart, dayStart.AddDate(0, 0, 1)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alert WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+alertCols+` FROM alert
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Acknowledge(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.transition(ctx, id,
		`UPDATE alert SET acknowledged_at = $2 WHERE id = $1 AND auto_resolved_at IS NULL`, at)
}

func (r *repoPG) Resolve(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.transition(ctx, id,
		`UPDATE alert SET auto_resolved_at = $2 WHERE id = $1 AND auto_resolved_at IS NULL`, at)
}

func (r *repoPG) Escalate(ctx context.Context, id uuid.UUID, to uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE alert SET escalated_to = $2, escalated_at = $3 WHERE id = $1 AND auto_resolved_at IS NULL`,
		id, to, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOpen
	}
	return nil
}

func (r *repoPG) transition(ctx context.Context, id uuid.UUID, sql string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, sql, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOpen
	}
	return nil
}
