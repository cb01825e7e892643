package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"residency-training-server/internal/models"
	"residency-training-server/internal/workflow"
)

// MemoryProgressStore is an in-memory ProgressStore with the same
// compare-and-swap semantics as the GORM store. Used by tests.
type MemoryProgressStore struct {
	mu      sync.RWMutex
	records map[string]models.ProgressRecord
	// owners lets ListPending filter by affiliation without a directory.
	owners map[string]models.User
}

func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{
		records: make(map[string]models.ProgressRecord),
		owners:  make(map[string]models.User),
	}
}

// SetOwner registers the affiliation used by ListPending for a resident.
func (s *MemoryProgressStore) SetOwner(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[user.ID] = user
}

func copyRecord(rec models.ProgressRecord) models.ProgressRecord {
	out := rec
	out.Activities = make([]models.ActivityProgress, len(rec.Activities))
	copy(out.Activities, rec.Activities)
	return out
}

func (s *MemoryProgressStore) Get(ctx context.Context, id string) (*models.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: progress record %s", workflow.ErrNotFound, id)
	}
	out := copyRecord(rec)
	return &out, nil
}

func (s *MemoryProgressStore) ListByResident(ctx context.Context, residentID string) ([]models.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ProgressRecord
	for _, rec := range s.records {
		if rec.ResidentID == residentID {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryProgressStore) ListPending(ctx context.Context, filter workflow.ScopeFilter) ([]models.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ProgressRecord
	for _, rec := range s.records {
		if rec.EstadoGeneral == models.PhaseValidado {
			continue
		}
		owner := s.owners[rec.ResidentID]
		if filter.HospitalID != "" && owner.HospitalID != filter.HospitalID {
			continue
		}
		if filter.Specialty != "" && owner.Specialty != filter.Specialty {
			continue
		}
		if filter.ZoneID != "" && owner.ZoneID != filter.ZoneID {
			continue
		}
		if filter.SocietyID != "" && owner.SocietyID != filter.SocietyID {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryProgressStore) CountByResident(ctx context.Context, residentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, rec := range s.records {
		if rec.ResidentID == residentID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryProgressStore) CreateBatch(ctx context.Context, records []models.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.New().String()
		}
		s.records[records[i].ID] = copyRecord(records[i])
	}
	return nil
}

func (s *MemoryProgressStore) Update(ctx context.Context, record *models.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.ID]
	if !ok {
		return fmt.Errorf("%w: progress record %s", workflow.ErrNotFound, record.ID)
	}
	if stored.Version != record.Version {
		return fmt.Errorf("%w: progress record %s version %d", workflow.ErrConflict, record.ID, record.Version)
	}
	record.Version++
	s.records[record.ID] = copyRecord(*record)
	return nil
}

// MemoryUserDirectory is an in-memory UserDirectory for tests.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserDirectory() *MemoryUserDirectory {
	return &MemoryUserDirectory{users: make(map[string]models.User)}
}

func (d *MemoryUserDirectory) Add(user models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *MemoryUserDirectory) Resolve(ctx context.Context, userID string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", workflow.ErrNotFound, userID)
	}
	out := user
	return &out, nil
}

// MemoryCatalogStore is an in-memory CatalogStore for tests.
type MemoryCatalogStore struct {
	mu     sync.RWMutex
	phases []models.Phase
}

func NewMemoryCatalogStore(phases ...models.Phase) *MemoryCatalogStore {
	return &MemoryCatalogStore{phases: phases}
}

func (s *MemoryCatalogStore) PhasesForProgram(ctx context.Context, program models.ProgramType) ([]models.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Phase
	for _, p := range s.phases {
		if p.Program == program {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
