package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"residency-training-server/internal/authz"
	"residency-training-server/internal/middleware"
	"residency-training-server/internal/models"
	"residency-training-server/internal/store"
	"residency-training-server/internal/utils"
	"residency-training-server/internal/workflow"
)

// ProgressHandler handles progress-record workflow requests.
type ProgressHandler struct {
	Coordinator *workflow.Coordinator
	Attachments store.AttachmentStore
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(coordinator *workflow.Coordinator, attachments store.AttachmentStore) *ProgressHandler {
	return &ProgressHandler{Coordinator: coordinator, Attachments: attachments}
}

func activityIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		utils.BadRequest(c, "Invalid activity index: "+c.Param("index"))
		return 0, false
	}
	return index, true
}

// SubmitActivityRequest represents the request body for submitting an activity.
type SubmitActivityRequest struct {
	Comentarios             string `json:"comentarios"`
	FechaRealizacion        string `json:"fechaRealizacion"`
	Cirugia                 string `json:"cirugia"`
	OtraCirugia             string `json:"otraCirugia"`
	NombreCirujano          string `json:"nombreCirujano"`
	PorcentajeParticipacion int    `json:"porcentajeParticipacion"`
}

// SubmitActivity handles a resident completing one activity of their record.
func (h *ProgressHandler) SubmitActivity(c *gin.Context) {
	var req SubmitActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	index, ok := activityIndex(c)
	if !ok {
		return
	}
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	in := workflow.SubmitInput{Comentarios: req.Comentarios}
	if req.FechaRealizacion != "" {
		parsed, err := time.Parse(time.RFC3339, req.FechaRealizacion)
		if err != nil {
			utils.BadRequest(c, "Invalid date format. Please use ISO 8601 format (YYYY-MM-DDTHH:MM:SSZ)")
			return
		}
		in.FechaRealizacion = &parsed
	}
	if req.Cirugia != "" || req.OtraCirugia != "" || req.NombreCirujano != "" || req.PorcentajeParticipacion != 0 {
		in.Surgery = &models.SurgeryFields{
			Cirugia:                 req.Cirugia,
			OtraCirugia:             req.OtraCirugia,
			NombreCirujano:          req.NombreCirujano,
			PorcentajeParticipacion: req.PorcentajeParticipacion,
		}
	}

	record, err := h.Coordinator.SubmitActivity(c.Request.Context(), actorID, c.Param("recordId"), index, in)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Success(c, "Activity submitted successfully", record)
}

// ValidateActivityRequest represents the request body for validating an activity.
type ValidateActivityRequest struct {
	Comentarios  string `json:"comentarios"`
	FirmaDigital string `json:"firmaDigital" binding:"required"`
}

// ValidateActivity handles a supervisor validating a completed activity.
func (h *ProgressHandler) ValidateActivity(c *gin.Context) {
	var req ValidateActivityRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	index, ok := activityIndex(c)
	if !ok {
		return
	}
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	record, err := h.Coordinator.ValidateActivity(c.Request.Context(), actorID, c.Param("recordId"), index, req.Comentarios, req.FirmaDigital)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Success(c, "Activity validated successfully", record)
}

// RejectActivityRequest represents the request body for rejecting an activity.
type RejectActivityRequest struct {
	Comentarios string `json:"comentarios" binding:"required"`
}

// RejectActivity handles a supervisor rejecting a completed activity.
func (h *ProgressHandler) RejectActivity(c *gin.Context) {
	var req RejectActivityRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	index, ok := activityIndex(c)
	if !ok {
		return
	}
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	record, err := h.Coordinator.RejectActivity(c.Request.Context(), actorID, c.Param("recordId"), index, req.Comentarios)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Success(c, "Activity rejected", record)
}

// SetPhaseStatusRequest represents the request body for the supervisor-driven
// phase transition.
type SetPhaseStatusRequest struct {
	EstadoGeneral models.PhaseStatus `json:"estadoGeneral" binding:"required"`
}

// SetPhaseStatus handles the guarded supervisor phase transition. Forward
// transitions re-check that the activity states satisfy the aggregate guard.
func (h *ProgressHandler) SetPhaseStatus(c *gin.Context) {
	var req SetPhaseStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	record, err := h.Coordinator.SetPhaseStatus(c.Request.Context(), actorID, c.Param("recordId"), req.EstadoGeneral)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Success(c, "Phase status updated", record)
}

// GetRecordsForResident handles fetching every progress record of a resident.
// Scope-checked: residents see their own, supervisors their window.
func (h *ProgressHandler) GetRecordsForResident(c *gin.Context) {
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	records, err := h.Coordinator.ListForResident(c.Request.Context(), actorID, c.Param("userId"))
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Success(c, "Progress records fetched successfully", records)
}

// GetPendingValidations handles the flattened list of completed activities
// awaiting validation inside the caller's authorization window.
func (h *ProgressHandler) GetPendingValidations(c *gin.Context) {
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	pending, err := h.Coordinator.PendingValidations(c.Request.Context(), actorID)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	utils.Success(c, "Pending validations fetched successfully", pending)
}

// UploadAttachment handles uploading a file for one activity of a progress
// record. Stores the file as binary data in the database. Gated like submit:
// the record owner (or an administrator) attaches evidence.
func (h *ProgressHandler) UploadAttachment(c *gin.Context) {
	index, ok := activityIndex(c)
	if !ok {
		return
	}
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	record, err := h.Coordinator.GetRecord(c.Request.Context(), actorID, c.Param("recordId"), authz.ActionSubmit)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}
	if index >= len(record.Activities) {
		utils.NotFound(c, "Activity index out of range")
		return
	}

	file, header, err := c.Request.FormFile("file") // "file" is the name of the form field
	if err != nil {
		utils.BadRequest(c, "Error retrieving file from form: "+err.Error())
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(file)
	if err != nil {
		utils.InternalServerError(c, "Error reading file content: "+err.Error())
		return
	}

	attachment := models.ActivityAttachment{
		ProgressRecordID: record.ID,
		ActivityIndex:    index,
		FileName:         header.Filename,
		FileType:         header.Header.Get("Content-Type"),
		FileData:         fileData,
	}
	if err := h.Attachments.Save(c.Request.Context(), &attachment); err != nil {
		utils.InternalServerError(c, "Failed to store attachment: "+err.Error())
		return
	}

	// Return a slimmed down version of the attachment, without the FileData
	responseAttachment := struct {
		ID               string    `json:"id"`
		ProgressRecordID string    `json:"progressRecordId"`
		ActivityIndex    int       `json:"activityIndex"`
		FileName         string    `json:"fileName"`
		FileType         string    `json:"fileType"`
		CreatedAt        time.Time `json:"createdAt"`
	}{
		ID:               attachment.ID,
		ProgressRecordID: attachment.ProgressRecordID,
		ActivityIndex:    attachment.ActivityIndex,
		FileName:         attachment.FileName,
		FileType:         attachment.FileType,
		CreatedAt:        attachment.CreatedAt,
	}

	utils.Success(c, "File uploaded and linked to activity successfully", responseAttachment)
}

// ListAttachments handles listing the attachments of one activity entry.
func (h *ProgressHandler) ListAttachments(c *gin.Context) {
	index, ok := activityIndex(c)
	if !ok {
		return
	}
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	record, err := h.Coordinator.GetRecord(c.Request.Context(), actorID, c.Param("recordId"), authz.ActionRead)
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}

	attachments, err := h.Attachments.ListFor(c.Request.Context(), record.ID, index)
	if err != nil {
		utils.InternalServerError(c, "Failed to list attachments: "+err.Error())
		return
	}
	utils.Success(c, "Attachments fetched successfully", attachments)
}

// GetAttachment handles retrieving a specific attachment by its ID and
// serving its file data. The caller must be able to read the parent record.
func (h *ProgressHandler) GetAttachment(c *gin.Context) {
	actorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	attachment, err := h.Attachments.Get(c.Request.Context(), c.Param("attachmentId"))
	if err != nil {
		utils.WorkflowError(c, err)
		return
	}

	// Authorization: check the caller can read the parent progress record
	if _, err := h.Coordinator.GetRecord(c.Request.Context(), actorID, attachment.ProgressRecordID, authz.ActionRead); err != nil {
		utils.WorkflowError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", attachment.FileName))
	c.Data(http.StatusOK, attachment.FileType, attachment.FileData)
}
