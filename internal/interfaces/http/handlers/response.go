// internal/interfaces/http/handlers/response.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
)

// statusForCode maps business error codes to HTTP statuses. Codes not listed
// are business rule failures and answer 422.
var statusForCode = map[apperror.Code]int{
	apperror.CodeNotFound:            http.StatusNotFound,
	apperror.CodeAccessDenied:        http.StatusForbidden,
	apperror.CodeInvalidQuantity:     http.StatusBadRequest,
	apperror.CodeValidation:          http.StatusBadRequest,
	apperror.CodeInvalidOwner:        http.StatusBadRequest,
	apperror.CodeConflict:            http.StatusConflict,
	apperror.CodeInvalidTransition:   http.StatusConflict,
	apperror.CodeOrderNotCancellable: http.StatusConflict,
	apperror.CodeOrderNotRefundable:  http.StatusConflict,
}

// HTTPStatus returns the response status for err
func HTTPStatus(err error) int {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	if status, ok := statusForCode[appErr.Code]; ok {
		return status
	}
	return http.StatusUnprocessableEntity
}

// respondError writes err as JSON. Internal errors are recorded on the gin
// context for the access log and never echoed to the client.
func respondError(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{
			"error": "Internal server error",
		})
		return
	}

	var appErr *apperror.Error
	errors.As(err, &appErr)
	body := gin.H{
		"error":   appErr.Code,
		"message": appErr.Message,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	c.JSON(status, body)
}

// respondBindError answers a request body that failed binding
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   apperror.CodeValidation,
		"message": "Invalid request data",
		"details": err.Error(),
	})
}

// parseIDParam reads a positive numeric path parameter
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   apperror.CodeValidation,
			"message": "Invalid " + name,
		})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
