package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/turbo-auth/internal/application"
	"github.com/oksasatya/turbo-auth/pkg/helpers"
)

type stubAuth struct {
	id  *application.Identity
	err error
}

func (s stubAuth) Authenticate(context.Context, string) (*application.Identity, error) {
	return s.id, s.err
}

func (s stubAuth) AuthenticateOptional(context.Context, string) *application.Identity {
	if s.err != nil {
		return nil
	}
	return s.id
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		id, ok := application.IdentityFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusOK, gin.H{"user_id": ""})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "ctx_user_id": c.GetString(CtxUserIDKey)})
	})
	return r
}

func serve(r *gin.Engine, header string) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAuth_Failures(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{application.ErrNoToken, "No token provided"},
		{application.ErrInvalidToken, "Invalid token"},
		{application.ErrSessionExpired, "Session expired"},
		{application.ErrAccountInactive, "User account is inactive"},
		{assert.AnError, "Authentication failed"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			r := newEngine(Auth(stubAuth{err: tc.err}, helpers.NewNopLogger()))
			w, body := serve(r, "Bearer x")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.want, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestAuth_AttachesIdentity(t *testing.T) {
	r := newEngine(Auth(stubAuth{id: &application.Identity{UserID: "u1"}}, helpers.NewNopLogger()))
	w, body := serve(r, "Bearer x")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", body["user_id"])
	assert.Equal(t, "u1", body["ctx_user_id"])
}

func TestOptionalAuth(t *testing.T) {
	r := newEngine(OptionalAuth(stubAuth{err: application.ErrInvalidToken}))
	w, body := serve(r, "Bearer x")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", body["user_id"])

	r = newEngine(OptionalAuth(stubAuth{id: &application.Identity{UserID: "u2"}}))
	w, body = serve(r, "Bearer x")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u2", body["user_id"])
}

func TestRequestID(t *testing.T) {
	r := newEngine()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "3f1c6f5e-2f0a-4a8e-9d55-0c6a8a1f2b7e")
	r.ServeHTTP(w, req)
	assert.Equal(t, "3f1c6f5e-2f0a-4a8e-9d55-0c6a8a1f2b7e", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not a uuid")
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "not a uuid", w.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRealIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, trust := range []bool{false, true} {
		r := gin.New()
		r.Use(RealIP(trust))
		var got string
		r.GET("/", func(c *gin.Context) { got = c.GetString("real_ip") })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		r.ServeHTTP(httptest.NewRecorder(), req)

		if trust {
			assert.Equal(t, "203.0.113.9", got)
		} else {
			assert.Equal(t, "10.0.0.1", got)
		}
	}
}
