package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wiresaver/backend/internal/server/models"
)

const (
	ctxUserKey = "authUser"

	// NewTokenHeader carries the replacement token when rotation fired.
	// Clients must adopt it for subsequent requests.
	NewTokenHeader = "X-New-Token"
)

// requireAuth guards authenticated routes. It extracts the bearer token,
// runs it through the full authentication chain and stores the user on the
// request context. When rotation mints a replacement, the new token is
// surfaced through the response header.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, errAuthRequired)
			return
		}

		user, newToken, err := s.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		if newToken != "" {
			c.Header(NewTokenHeader, newToken)
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// currentUser returns the user placed on the context by requireAuth.
func currentUser(c *gin.Context) *models.User {
	u, _ := c.Get(ctxUserKey)
	user, _ := u.(*models.User)
	return user
}
