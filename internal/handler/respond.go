package handler

import (
	"log"
	"net/http"

	"commune/backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the wire shape of every REST error: a stable machine code
// plus a human message.
type ErrorResponse struct {
	Code    string `json:"code" example:"conflict"`
	Message string `json:"message" example:"already friends"`
}

// respondError maps the application error taxonomy to HTTP statuses in one
// place. Untyped errors are logged and surfaced as an opaque 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch apperr.KindOf(err) {
	case apperr.KindSelfReference, apperr.KindConflict:
		status = http.StatusConflict
		message = err.Error()
	case apperr.KindForbidden:
		status = http.StatusForbidden
		message = err.Error()
	case apperr.KindNotFound:
		status = http.StatusNotFound
		message = err.Error()
	case apperr.KindValidation:
		status = http.StatusBadRequest
		message = err.Error()
	default:
		log.Printf("handler: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}

	c.JSON(status, ErrorResponse{Code: apperr.CodeOf(err), Message: message})
}
