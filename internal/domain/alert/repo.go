package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists alerts. Implementations must make CreateIfNoneOpen
// atomic under concurrent workers — the read-then-write shortcut is not
// sufficient to hold the dedup invariant.
type Repository interface {
	// CreateIfNoneOpen inserts the alert unless an open alert already exists
	// for the same (patient, rule key). Returns false when suppressed.
	CreateIfNoneOpen(ctx context.Context, a *Alert) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	// FindOpen returns the open alert for (patient, rule key), or nil.
	FindOpen(ctx context.Context, patientID uuid.UUID, ruleKey string) (*Alert, error)
	// FindByRuleOnDate returns the newest alert for (patient, rule key)
	// created on the given calendar day, or nil.
	FindByRuleOnDate(ctx context.Context, patientID uuid.UUID, ruleKey string, day time.Time) (*Alert, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error)
	Acknowledge(ctx context.Context, id uuid.UUID, at time.Time) error
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) error
	Escalate(ctx context.Context, id uuid.UUID, to uuid.UUID, at time.Time) error
}
