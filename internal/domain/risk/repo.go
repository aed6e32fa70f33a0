package risk

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists the current snapshot per patient. Upsert must be safe
// under concurrent workers recomputing the same patient.
type Repository interface {
	Upsert(ctx context.Context, s *Snapshot) error
	// GetByPatient returns the current snapshot, or nil when the patient has
	// never been scored.
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*Snapshot, error)
}
