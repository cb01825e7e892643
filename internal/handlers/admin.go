package handlers

import (
	"github.com/gin-gonic/gin"

	"residency-training-server/internal/middleware"
	"residency-training-server/internal/models"
	"residency-training-server/internal/utils"
	"residency-training-server/internal/workflow"
)

// AdminHandler handles the administrator override endpoints. Unlike the
// supervisor-driven path, the phase force-set does not re-check aggregate
// guards; the asymmetry is intentional.
type AdminHandler struct {
	Coordinator *workflow.Coordinator
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(coordinator *workflow.Coordinator) *AdminHandler {
	return &AdminHandler{Coordinator: coordinator}
}

// ChangePhaseStatusRequest represents the request body for the phase force-set.
type ChangePhaseStatusRequest struct {
	ProgresoID    string             `json:"progresoId" binding:"required"`
	EstadoGeneral models.PhaseStatus `json:"estadoGeneral" binding:"required,oneof=bloqueada 'en progreso' completado validado"`
}

// ChangePhaseStatus handles the unguarded admin phase force-set. Setting
// "en progreso" or "bloqueada" clears fechaFin and validadoPor.
func (h *AdminHandler) ChangePhaseStatus(c *gin.Context) {
	var req ChangePhaseStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	record, err := h.Coordinator.ForceSetPhaseStatus(c.Request.Context(), actorID, req.ProgresoID, req.EstadoGeneral)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Success(c, "Phase status updated", record)
}

// ChangeActivityStatusRequest represents the request body for the activity force-set.
type ChangeActivityStatusRequest struct {
	ProgresoID string                `json:"progresoId" binding:"required"`
	Indice     *int                  `json:"indice" binding:"required"`
	Estado     models.ActivityStatus `json:"estado" binding:"required,oneof=pendiente completado rechazado validado"`
}

// ChangeActivityStatus handles the admin activity override, bypassing the
// normal transition guards.
func (h *AdminHandler) ChangeActivityStatus(c *gin.Context) {
	var req ChangeActivityStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	record, err := h.Coordinator.ForceSetActivityStatus(c.Request.Context(), actorID, req.ProgresoID, *req.Indice, req.Estado)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Success(c, "Activity status updated", record)
}

// InitializeProgress handles re-running bulk provisioning for a user.
// Returns ALREADY_INITIALIZED if any record exists for them.
func (h *AdminHandler) InitializeProgress(c *gin.Context) {
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	records, err := h.Coordinator.InitializeProgress(c.Request.Context(), actorID, c.Param("id"))
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Created(c, "Progress initialized successfully", records)
}
