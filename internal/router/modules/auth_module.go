package modules

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	handlers "github.com/oksasatya/turbo-auth/internal/interface/http"
	"github.com/oksasatya/turbo-auth/internal/interface/middleware"
)

// AuthModule wires the auth handlers under /auth.
// Public: POST /signup, POST /login, GET /status (optional auth)
// Protected: GET /me, POST /logout, POST /logout-all, PATCH /profile,
// POST /profile/avatar, POST /change-password, GET /sessions
type AuthModule struct {
	Handler *handlers.AuthHandler
	Auth    middleware.Authenticator
	Logger  logrus.FieldLogger
}

func NewAuthModule(h *handlers.AuthHandler, auth middleware.Authenticator, logger logrus.FieldLogger) *AuthModule {
	return &AuthModule{Handler: h, Auth: auth, Logger: logger}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	g := rg.Group("/auth")
	g.POST("/signup", m.Handler.Signup)
	g.POST("/login", m.Handler.Login)
	g.GET("/status", middleware.OptionalAuth(m.Auth), m.Handler.Status)

	protected := g.Group("")
	protected.Use(middleware.Auth(m.Auth, m.Logger))
	{
		protected.GET("/me", m.Handler.Me)
		protected.POST("/logout", m.Handler.Logout)
		protected.POST("/logout-all", m.Handler.LogoutAll)
		protected.PATCH("/profile", m.Handler.UpdateProfile)
		protected.POST("/profile/avatar", m.Handler.UploadAvatar)
		protected.POST("/change-password", m.Handler.ChangePassword)
		protected.GET("/sessions", m.Handler.Sessions)
	}
}
