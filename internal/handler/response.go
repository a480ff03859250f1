package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
)

// ErrorResponse is the uniform error body: an HTTP-mapped message plus
// the machine reason clients branch on.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Error writes err with the status its kind maps to. Untyped errors are
// 500s with no detail leaked.
func Error(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	message := appErr.Message
	switch appErr.Kind {
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindInvalidTransition:
		status = http.StatusUnprocessableEntity
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindPolicyViolation:
		status = http.StatusForbidden
	case apperrors.KindExpired:
		status = http.StatusGone
	case apperrors.KindInternal:
		message = "internal error"
	}
	c.JSON(status, ErrorResponse{Error: message, Reason: appErr.Reason})
}

// BadRequest writes a 400 for binding and validation failures.
func BadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}
