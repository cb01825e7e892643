package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"residency-training-server/internal/middleware"
	"residency-training-server/internal/models"
	"residency-training-server/internal/utils"
	"residency-training-server/internal/workflow"
)

// UserHandler handles user-related requests (typically admin operations).
type UserHandler struct {
	DB          *gorm.DB
	Coordinator *workflow.Coordinator
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, coordinator *workflow.Coordinator) *UserHandler {
	return &UserHandler{DB: db, Coordinator: coordinator}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FirstName  string `json:"firstName" binding:"required"`
	LastName   string `json:"lastName" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Role       string `json:"role" binding:"required,oneof=resident tutor administrator participant professor csm"`
	HospitalID string `json:"hospitalId"`
	Specialty  string `json:"specialty"`
	SocietyID  string `json:"societyId"`
	TutorID    string `json:"tutorId"`
	Program    string `json:"program" binding:"omitempty,oneof=Residents Societies"`
}

// CreateUser handles creating a new user (admin). Creating a resident or
// participant also bulk-provisions their progress records, one per catalog
// phase of their program type.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var existingUser models.User
	if err := h.DB.Where("email = ?", req.Email).First(&existingUser).Error; err == nil {
		utils.BadRequest(c, "User with this email already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}

	user := models.User{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Role:       models.Role(req.Role),
		HospitalID: req.HospitalID,
		Specialty:  req.Specialty,
		SocietyID:  req.SocietyID,
		TutorID:    req.TutorID,
		Program:    models.ProgramResidents,
	}
	if req.Program != "" {
		user.Program = models.ProgramType(req.Program)
	}

	// Denormalize the hospital's zone onto the user for the scope resolver.
	if req.HospitalID != "" {
		var hospital models.Hospital
		if err := h.DB.First(&hospital, "id = ?", req.HospitalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.NotFound(c, "Hospital not found")
			} else {
				utils.InternalServerError(c, "Database error verifying hospital: "+err.Error())
			}
			return
		}
		user.ZoneID = hospital.ZoneID
	}

	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password: "+err.Error())
		return
	}

	if err := h.DB.Create(&user).Error; err != nil {
		utils.InternalServerError(c, "Failed to create user: "+err.Error())
		return
	}

	// Provision one progress record per catalog phase for trainees.
	if user.Role.IsTrainee() {
		actorID, _ := middleware.GetUserIDFromContext(c)
		if _, err := h.Coordinator.InitializeProgress(c.Request.Context(), actorID, user.ID); err != nil {
			utils.WorkflowError(c, err)
			return
		}
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers handles fetching all users (admin).
func (h *UserHandler) GetUsers(c *gin.Context) {
	var users []models.User
	if err := h.DB.Find(&users).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch users: "+err.Error())
		return
	}

	sanitizedUsers := make([]models.UserSanitized, len(users))
	for i, u := range users {
		sanitizedUsers[i] = u.Sanitize()
	}

	utils.Success(c, "Users fetched successfully", sanitizedUsers)
}

// GetResidents handles fetching the trainees inside the caller's supervision
// window: tutors see their hospital (and specialty unless ALL), zone
// supervisors their zone, professors their society, admins everyone.
func (h *UserHandler) GetResidents(c *gin.Context) {
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	var actor models.User
	if err := h.DB.First(&actor, "id = ?", actorID).Error; err != nil {
		utils.InternalServerError(c, "Failed to resolve caller: "+err.Error())
		return
	}

	q := h.DB.Where("role IN ?", []models.Role{models.RoleResident, models.RoleParticipant})
	switch actor.Role {
	case models.RoleAdmin:
		// no additional filter
	case models.RoleTutor:
		q = q.Where("hospital_id = ?", actor.HospitalID)
		if actor.Specialty != models.SpecialtyAll {
			q = q.Where("specialty = ?", actor.Specialty)
		}
	case models.RoleCSM:
		q = q.Where("zone_id = ?", actor.ZoneID)
	case models.RoleProfessor:
		q = q.Where("society_id = ?", actor.SocietyID)
	default:
		utils.Forbidden(c, "You do not have a supervision window.")
		return
	}

	var residents []models.User
	if err := q.Find(&residents).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch residents: "+err.Error())
		return
	}

	sanitized := make([]models.UserSanitized, len(residents))
	for i, u := range residents {
		sanitized[i] = u.Sanitize()
	}
	utils.Success(c, "Residents fetched successfully", sanitized)
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user.
type UpdateUserRequest struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Role       string `json:"role" binding:"omitempty,oneof=resident tutor administrator participant professor csm"`
	HospitalID string `json:"hospitalId"`
	Specialty  string `json:"specialty"`
	SocietyID  string `json:"societyId"`
	TutorID    string `json:"tutorId"`
}

// UpdateUser handles updating a user (admin). Changing the hospital re-syncs
// the denormalized zone.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID := c.Param("id")

	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Role != "" {
		user.Role = models.Role(req.Role)
	}
	if req.Specialty != "" {
		user.Specialty = req.Specialty
	}
	if req.SocietyID != "" {
		user.SocietyID = req.SocietyID
	}
	if req.TutorID != "" {
		user.TutorID = req.TutorID
	}
	if req.HospitalID != "" && req.HospitalID != user.HospitalID {
		var hospital models.Hospital
		if err := h.DB.First(&hospital, "id = ?", req.HospitalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.NotFound(c, "Hospital not found")
			} else {
				utils.InternalServerError(c, "Database error verifying hospital: "+err.Error())
			}
			return
		}
		user.HospitalID = hospital.ID
		user.ZoneID = hospital.ZoneID
	}

	if err := h.DB.Save(&user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update user: "+err.Error())
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser handles deleting a user (admin). Progress records and refresh
// tokens are bulk-deleted with the user; validated history goes with them.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var recordIDs []string
		if err := tx.Model(&models.ProgressRecord{}).
			Where("resident_id = ?", userID).
			Pluck("id", &recordIDs).Error; err != nil {
			return err
		}
		if len(recordIDs) > 0 {
			if err := tx.Where("progress_record_id IN ?", recordIDs).
				Delete(&models.ActivityAttachment{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("resident_id = ?", userID).Delete(&models.ProgressRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete user: "+err.Error())
		return
	}

	utils.Success(c, "User deleted successfully", nil)
}
