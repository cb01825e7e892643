package workflow

import (
	"context"

	"residency-training-server/internal/models"
)

// ScopeFilter narrows a record listing to the caller's authorization window.
// Zero-valued fields apply no constraint.
type ScopeFilter struct {
	HospitalID string
	Specialty  string
	ZoneID     string
	SocietyID  string
}

// ProgressStore persists progress records. Update must apply an optimistic
// compare-and-swap on the record's version and return ErrConflict when the
// stored version moved; Get must return ErrNotFound for unknown IDs.
type ProgressStore interface {
	Get(ctx context.Context, id string) (*models.ProgressRecord, error)
	ListByResident(ctx context.Context, residentID string) ([]models.ProgressRecord, error)
	ListPending(ctx context.Context, filter ScopeFilter) ([]models.ProgressRecord, error)
	CountByResident(ctx context.Context, residentID string) (int64, error)
	CreateBatch(ctx context.Context, records []models.ProgressRecord) error
	Update(ctx context.Context, record *models.ProgressRecord) error
}

// UserDirectory resolves user IDs to their organizational context. The
// hospital relation is resolved so zone lookups need no second call.
type UserDirectory interface {
	Resolve(ctx context.Context, userID string) (*models.User, error)
}

// CatalogStore reads the phase/activity catalog for provisioning.
type CatalogStore interface {
	PhasesForProgram(ctx context.Context, program models.ProgramType) ([]models.Phase, error)
}
