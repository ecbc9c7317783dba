// Package httpapi exposes the admin authentication lifecycle as a JSON API
// under /api/auth.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wiresaver/backend/internal/logging"
	"github.com/wiresaver/backend/internal/server/services"
)

type Server struct {
	address string
	logger  logging.Logger
	auth    *services.AuthService
}

func NewServer(address string, l logging.Logger, auth *services.AuthService) *Server {
	return &Server{
		address: address,
		logger:  l.With("module", "http_server"),
		auth:    auth,
	}
}

// Router builds the gin engine with all routes and middleware attached.
// Split out from Run so tests can drive it through httptest.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api/auth")
	api.POST("/login", s.handleLogin)
	api.POST("/verify-2fa", s.handleVerifyTwoFactor)
	api.POST("/signup", s.handleSignup)
	// Logout stays outside requireAuth: it must succeed even when the
	// session behind the token is already gone.
	api.POST("/logout", s.handleLogout)

	authed := api.Group("")
	authed.Use(s.requireAuth())
	authed.POST("/setup-2fa", s.handleSetupTwoFactor)
	authed.POST("/enable-2fa", s.handleEnableTwoFactor)
	authed.POST("/disable-2fa", s.handleDisableTwoFactor)

	return r
}

func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info(c.Request.Context(), "request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
