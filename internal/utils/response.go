package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"residency-training-server/internal/workflow"
)

// ResponseData represents the structure of a standard API response.
type ResponseData struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Success sends a standard success response.
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, ResponseData{
		Status:  http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// Created sends a standard resource created response.
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, ResponseData{
		Status:  http.StatusCreated,
		Message: message,
		Data:    data,
	})
}

// Error sends a standard error response.
func Error(c *gin.Context, statusCode int, errorMessage string) {
	c.JSON(statusCode, ResponseData{
		Status:  statusCode,
		Message: "An error occurred",
		Error:   errorMessage,
	})
}

// BadRequest sends a 400 Bad Request error response.
func BadRequest(c *gin.Context, errorMessage string) {
	Error(c, http.StatusBadRequest, errorMessage)
}

// Unauthorized sends a 401 Unauthorized error response.
func Unauthorized(c *gin.Context, errorMessage string) {
	Error(c, http.StatusUnauthorized, errorMessage)
}

// Forbidden sends a 403 Forbidden error response.
func Forbidden(c *gin.Context, errorMessage string) {
	Error(c, http.StatusForbidden, errorMessage)
}

// NotFound sends a 404 Not Found error response.
func NotFound(c *gin.Context, errorMessage string) {
	Error(c, http.StatusNotFound, errorMessage)
}

// InternalServerError sends a 500 Internal Server Error response.
func InternalServerError(c *gin.Context, errorMessage string) {
	Error(c, http.StatusInternalServerError, errorMessage)
}

// WorkflowError maps a workflow error to its HTTP status and stable error
// code. Guard violations never surface as a generic 500.
func WorkflowError(c *gin.Context, err error) {
	code := workflow.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case workflow.CodeNotFound:
		status = http.StatusNotFound
	case workflow.CodeForbidden:
		status = http.StatusForbidden
	case workflow.CodeInvalidTransition, workflow.CodePreconditionFailed:
		status = http.StatusUnprocessableEntity
	case workflow.CodeAlreadyInitialized, workflow.CodeConflict:
		status = http.StatusConflict
	}
	c.JSON(status, ResponseData{
		Status:  status,
		Message: "An error occurred",
		Error:   err.Error(),
		Code:    code,
	})
}
