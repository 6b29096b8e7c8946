// Package handlers contains the gin HTTP handlers.  All responses share
// one envelope: {"success": true, "data": ...} or {"success": false,
// "error": {...}}.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondErr maps an application error to its HTTP status.  Unclassified
// errors become opaque 500s so internals never leak to clients.
func respondErr(c *gin.Context, err error) {
	var ae *apperrors.AppError
	if !errors.As(err, &ae) {
		ae = apperrors.Wrap(err, apperrors.CodeInternal, "internal error")
	}

	status := apperrors.HTTPStatusForCode(ae.Code)
	body := errorBody{Code: ae.Code.String(), Message: ae.Message}
	if status < http.StatusInternalServerError {
		body.Detail = ae.Detail
	} else {
		body.Message = apperrors.DefaultMessageForCode(ae.Code)
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": body})
}
