// Package store provides the persistence implementations behind the
// workflow coordinator's collaborator interfaces: GORM-backed stores for
// production and in-memory stores for tests.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"residency-training-server/internal/models"
	"residency-training-server/internal/workflow"
)

// GormProgressStore persists progress records in MySQL. Updates use an
// optimistic compare-and-swap on the version column.
type GormProgressStore struct {
	DB *gorm.DB
}

func NewGormProgressStore(db *gorm.DB) *GormProgressStore {
	return &GormProgressStore{DB: db}
}

func (s *GormProgressStore) Get(ctx context.Context, id string) (*models.ProgressRecord, error) {
	var rec models.ProgressRecord
	if err := s.DB.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: progress record %s", workflow.ErrNotFound, id)
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GormProgressStore) ListByResident(ctx context.Context, residentID string) ([]models.ProgressRecord, error) {
	var records []models.ProgressRecord
	err := s.DB.WithContext(ctx).
		Where("resident_id = ?", residentID).
		Order("created_at asc").
		Find(&records).Error
	return records, err
}

func (s *GormProgressStore) ListPending(ctx context.Context, filter workflow.ScopeFilter) ([]models.ProgressRecord, error) {
	q := s.DB.WithContext(ctx).
		Joins("JOIN users ON users.id = progress_records.resident_id").
		Where("progress_records.estado_general <> ?", models.PhaseValidado)
	if filter.HospitalID != "" {
		q = q.Where("users.hospital_id = ?", filter.HospitalID)
	}
	if filter.Specialty != "" {
		q = q.Where("users.specialty = ?", filter.Specialty)
	}
	if filter.ZoneID != "" {
		q = q.Where("users.zone_id = ?", filter.ZoneID)
	}
	if filter.SocietyID != "" {
		q = q.Where("users.society_id = ?", filter.SocietyID)
	}

	var records []models.ProgressRecord
	err := q.Find(&records).Error
	return records, err
}

func (s *GormProgressStore) CountByResident(ctx context.Context, residentID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.ProgressRecord{}).
		Where("resident_id = ?", residentID).Count(&count).Error
	return count, err
}

func (s *GormProgressStore) CreateBatch(ctx context.Context, records []models.ProgressRecord) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if err := tx.Create(&records[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormProgressStore) Update(ctx context.Context, record *models.ProgressRecord) error {
	current := record.Version
	record.Version = current + 1
	res := s.DB.WithContext(ctx).Model(&models.ProgressRecord{}).
		Where("id = ? AND version = ?", record.ID, current).
		Select("EstadoGeneral", "Activities", "FechaFin", "ValidadoPor", "Version").
		Updates(record)
	if res.Error != nil {
		record.Version = current
		return res.Error
	}
	if res.RowsAffected == 0 {
		record.Version = current
		return fmt.Errorf("%w: progress record %s version %d", workflow.ErrConflict, record.ID, current)
	}
	return nil
}

// GormUserDirectory resolves users with their hospital relation so the
// resolver's zone fallback needs no second query.
type GormUserDirectory struct {
	DB *gorm.DB
}

func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{DB: db}
}

func (d *GormUserDirectory) Resolve(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := d.DB.WithContext(ctx).Preload("Hospital").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", workflow.ErrNotFound, userID)
		}
		return nil, err
	}
	return &user, nil
}

// GormCatalogStore reads the phase catalog for provisioning.
type GormCatalogStore struct {
	DB *gorm.DB
}

func NewGormCatalogStore(db *gorm.DB) *GormCatalogStore {
	return &GormCatalogStore{DB: db}
}

func (s *GormCatalogStore) PhasesForProgram(ctx context.Context, program models.ProgramType) ([]models.Phase, error) {
	var phases []models.Phase
	err := s.DB.WithContext(ctx).
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("activity_order asc")
		}).
		Where("program = ?", program).
		Order("number asc").
		Find(&phases).Error
	return phases, err
}

// AttachmentStore is the collaborator interface for activity file blobs,
// keyed by progress record and activity index.
type AttachmentStore interface {
	Save(ctx context.Context, attachment *models.ActivityAttachment) error
	Get(ctx context.Context, id string) (*models.ActivityAttachment, error)
	ListFor(ctx context.Context, recordID string, index int) ([]models.ActivityAttachment, error)
}

// GormAttachmentStore stores attachment blobs in the database.
type GormAttachmentStore struct {
	DB *gorm.DB
}

func NewGormAttachmentStore(db *gorm.DB) *GormAttachmentStore {
	return &GormAttachmentStore{DB: db}
}

func (s *GormAttachmentStore) Save(ctx context.Context, attachment *models.ActivityAttachment) error {
	return s.DB.WithContext(ctx).Create(attachment).Error
}

func (s *GormAttachmentStore) Get(ctx context.Context, id string) (*models.ActivityAttachment, error) {
	var attachment models.ActivityAttachment
	if err := s.DB.WithContext(ctx).First(&attachment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: attachment %s", workflow.ErrNotFound, id)
		}
		return nil, err
	}
	return &attachment, nil
}

func (s *GormAttachmentStore) ListFor(ctx context.Context, recordID string, index int) ([]models.ActivityAttachment, error) {
	var attachments []models.ActivityAttachment
	err := s.DB.WithContext(ctx).
		Where("progress_record_id = ? AND activity_index = ?", recordID, index).
		Order("created_at asc").
		Find(&attachments).Error
	return attachments, err
}
