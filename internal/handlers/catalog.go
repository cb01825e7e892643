package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"residency-training-server/internal/models"
	"residency-training-server/internal/utils"
)

// CatalogHandler handles the reference-data endpoints: hospitals and the
// phase/activity catalog. Admin-only; the workflow engine only reads these.
type CatalogHandler struct {
	DB *gorm.DB
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{DB: db}
}

// CreateHospitalRequest represents the request body for creating a hospital.
type CreateHospitalRequest struct {
	Name   string `json:"name" binding:"required"`
	ZoneID string `json:"zoneId"`
}

// CreateHospital handles creating a hospital.
func (h *CatalogHandler) CreateHospital(c *gin.Context) {
	var req CreateHospitalRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	hospital := models.Hospital{Name: req.Name, ZoneID: req.ZoneID}
	if err := h.DB.Create(&hospital).Error; err != nil {
		utils.InternalServerError(c, "Failed to create hospital: "+err.Error())
		return
	}
	utils.Created(c, "Hospital created successfully", hospital)
}

// GetHospitals handles listing all hospitals.
func (h *CatalogHandler) GetHospitals(c *gin.Context) {
	var hospitals []models.Hospital
	if err := h.DB.Find(&hospitals).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch hospitals: "+err.Error())
		return
	}
	utils.Success(c, "Hospitals fetched successfully", hospitals)
}

// DeleteHospital handles deleting a hospital. Its users' progress records
// are bulk-deleted with it.
func (h *CatalogHandler) DeleteHospital(c *gin.Context) {
	hospitalID := c.Param("id")

	var hospital models.Hospital
	if err := h.DB.First(&hospital, "id = ?", hospitalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Hospital not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var userIDs []string
		if err := tx.Model(&models.User{}).
			Where("hospital_id = ?", hospitalID).
			Pluck("id", &userIDs).Error; err != nil {
			return err
		}
		if len(userIDs) > 0 {
			if err := tx.Where("resident_id IN ?", userIDs).Delete(&models.ProgressRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("user_id IN ?", userIDs).Delete(&models.RefreshToken{}).Error; err != nil {
				return err
			}
			if err := tx.Where("hospital_id = ?", hospitalID).Delete(&models.User{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&hospital).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete hospital: "+err.Error())
		return
	}
	utils.Success(c, "Hospital deleted successfully", nil)
}

// CreatePhaseRequest represents the request body for creating a phase.
type CreatePhaseRequest struct {
	Name    string `json:"name" binding:"required"`
	Number  int    `json:"number" binding:"required"`
	Program string `json:"program" binding:"omitempty,oneof=Residents Societies"`
}

// CreatePhase handles creating a catalog phase.
func (h *CatalogHandler) CreatePhase(c *gin.Context) {
	var req CreatePhaseRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	phase := models.Phase{Name: req.Name, Number: req.Number, Program: models.ProgramResidents}
	if req.Program != "" {
		phase.Program = models.ProgramType(req.Program)
	}
	if err := h.DB.Create(&phase).Error; err != nil {
		utils.InternalServerError(c, "Failed to create phase: "+err.Error())
		return
	}
	utils.Created(c, "Phase created successfully", phase)
}

// GetPhases handles listing the catalog with activities, ordered.
func (h *CatalogHandler) GetPhases(c *gin.Context) {
	var phases []models.Phase
	err := h.DB.
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("activity_order asc")
		}).
		Order("number asc").
		Find(&phases).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch phases: "+err.Error())
		return
	}
	utils.Success(c, "Phases fetched successfully", phases)
}

// DeletePhase handles deleting a phase. Only non-validated progress records
// for it are deleted; validated history is preserved, so the phase itself is
// removed only when no validated record references it.
func (h *CatalogHandler) DeletePhase(c *gin.Context) {
	phaseID := c.Param("id")

	var phase models.Phase
	if err := h.DB.First(&phase, "id = ?", phaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Phase not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	var validatedCount int64
	if err := h.DB.Model(&models.ProgressRecord{}).
		Where("phase_id = ? AND estado_general = ?", phaseID, models.PhaseValidado).
		Count(&validatedCount).Error; err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	if validatedCount > 0 {
		utils.BadRequest(c, "Phase has validated progress records and cannot be deleted")
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("phase_id = ?", phaseID).Delete(&models.ProgressRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("phase_id = ?", phaseID).Delete(&models.Activity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&phase).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete phase: "+err.Error())
		return
	}
	utils.Success(c, "Phase deleted successfully", nil)
}

// CreateActivityRequest represents the request body for adding a catalog activity.
type CreateActivityRequest struct {
	Name                            string `json:"name" binding:"required"`
	Type                            string `json:"type" binding:"required,oneof=theory practice evaluation observation surgery"`
	Order                           int    `json:"order"`
	RequiresValidation              *bool  `json:"requiresValidation"`
	RequiresAttachment              bool   `json:"requiresAttachment"`
	RequiresSignature               bool   `json:"requiresSignature"`
	RequiresParticipationPercentage bool   `json:"requiresParticipationPercentage"`
}

// CreateActivity handles adding an activity to a phase.
func (h *CatalogHandler) CreateActivity(c *gin.Context) {
	phaseID := c.Param("id")

	var req CreateActivityRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var phase models.Phase
	if err := h.DB.First(&phase, "id = ?", phaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Phase not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	activity := models.Activity{
		PhaseID:                         phase.ID,
		Name:                            req.Name,
		Type:                            models.ActivityType(req.Type),
		Order:                           req.Order,
		RequiresValidation:              true,
		RequiresAttachment:              req.RequiresAttachment,
		RequiresSignature:               req.RequiresSignature,
		RequiresParticipationPercentage: req.RequiresParticipationPercentage,
	}
	if req.RequiresValidation != nil {
		activity.RequiresValidation = *req.RequiresValidation
	}
	if err := h.DB.Create(&activity).Error; err != nil {
		utils.InternalServerError(c, "Failed to create activity: "+err.Error())
		return
	}
	utils.Created(c, "Activity created successfully", activity)
}

// DeleteActivity handles removing a catalog activity. The matching entry is
// removed from progress records that are not validated; validated records
// keep their history untouched.
func (h *CatalogHandler) DeleteActivity(c *gin.Context) {
	activityID := c.Param("activityId")

	var activity models.Activity
	if err := h.DB.First(&activity, "id = ?", activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Activity not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var records []models.ProgressRecord
		if err := tx.Where("phase_id = ? AND estado_general <> ?", activity.PhaseID, models.PhaseValidado).
			Find(&records).Error; err != nil {
			return err
		}
		for i := range records {
			rec := &records[i]
			kept := rec.Activities[:0]
			for _, entry := range rec.Activities {
				if entry.ActivityID != activity.ID {
					kept = append(kept, entry)
				}
			}
			if len(kept) == len(rec.Activities) {
				continue
			}
			rec.Activities = kept
			rec.Version++
			if err := tx.Model(&models.ProgressRecord{}).
				Where("id = ?", rec.ID).
				Select("Activities", "Version").
				Updates(rec).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&activity).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete activity: "+err.Error())
		return
	}
	utils.Success(c, "Activity deleted successfully", nil)
}
