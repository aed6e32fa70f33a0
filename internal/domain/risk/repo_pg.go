package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Upsert(ctx context.Context, s *Snapshot) error {
	factors, err := json.Marshal(s.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO risk_score (patient_id, organization_id, score, band, factors, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (patient_id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			score = EXCLUDED.score,
			band = EXCLUDED.band,
			factors = EXCLUDED.factors,
			computed_at = EXCLUDED.computed_at`,
		s.PatientID, s.OrganizationID, s.Score, s.Band, factors, s.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert risk score: %w", err)
	}
	return nil
}

func (r *repoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT patient_id, organization_id, score, band, factors, computed_at
		FROM risk_score
		WHERE patient_id = $1`,
		patientID)

	var s Snapshot
	var factors []byte
	err := row.Scan(&s.PatientID, &s.OrganizationID, &s.Score, &s.Band, &factors, &s.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get risk score: %w", err)
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &s.Factors); err != nil {
			return nil, fmt.Errorf("decode factors: %w", err)
		}
	}
	return &s, nil
}
