package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/turbo-auth/internal/application"
	"github.com/oksasatya/turbo-auth/pkg/response"
)

const CtxUserIDKey = "userID"

// Authenticator is satisfied by *application.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*application.Identity, error)
	AuthenticateOptional(ctx context.Context, authorization string) *application.Identity
}

// Auth resolves the bearer token in the Authorization header. On success the
// identity is attached to the request context and userID is set on the gin
// context; every failure aborts with 401.
func Auth(svc Authenticator, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := svc.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			msg := authFailureMessage(err)
			if msg == "Authentication failed" {
				logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error("authentication error")
			}
			response.Abort(c, http.StatusUnauthorized, msg)
			return
		}
		attach(c, id)
		c.Next()
	}
}

// OptionalAuth attaches the identity when the header resolves to one and
// otherwise lets the request through anonymously.
func OptionalAuth(svc Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := svc.AuthenticateOptional(c.Request.Context(), c.GetHeader("Authorization")); id != nil {
			attach(c, id)
		}
		c.Next()
	}
}

func attach(c *gin.Context, id *application.Identity) {
	c.Request = c.Request.WithContext(application.WithIdentity(c.Request.Context(), id))
	c.Set(CtxUserIDKey, id.UserID)
}

func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, application.ErrNoToken):
		return "No token provided"
	case errors.Is(err, application.ErrInvalidToken):
		return "Invalid token"
	case errors.Is(err, application.ErrSessionExpired):
		return "Session expired"
	case errors.Is(err, application.ErrAccountInactive):
		return "User account is inactive"
	default:
		return "Authentication failed"
	}
}
