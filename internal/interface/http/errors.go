package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/turbo-auth/internal/application"
	"github.com/oksasatya/turbo-auth/pkg/response"
	"github.com/oksasatya/turbo-auth/pkg/validation"
)

// writeError maps service errors to HTTP responses. Anything unrecognised is
// logged and reported as a generic 500.
func writeError(c *gin.Context, logger logrus.FieldLogger, err error) {
	var ve *application.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Error(c, http.StatusBadRequest, "Validation failed", map[string]string{ve.Field: ve.Message})
	case errors.Is(err, application.ErrDuplicateEmail):
		response.Error(c, http.StatusBadRequest, "Email already registered", nil)
	case errors.Is(err, application.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, "Invalid credentials", nil)
	case errors.Is(err, application.ErrAccountInactive):
		response.Error(c, http.StatusUnauthorized, "User account is inactive", nil)
	case errors.Is(err, application.ErrNoToken),
		errors.Is(err, application.ErrInvalidToken),
		errors.Is(err, application.ErrSessionExpired):
		response.Error(c, http.StatusUnauthorized, "Authentication failed", nil)
	case errors.Is(err, application.ErrNotFound):
		response.Error(c, http.StatusNotFound, "User not found", nil)
	case errors.Is(err, application.ErrAvatarUnavailable):
		response.Error(c, http.StatusServiceUnavailable, "Avatar storage is not configured", nil)
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
		}).Error("request failed")
		response.Error(c, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func bindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "Invalid payload", validation.ToDetails(err))
}
