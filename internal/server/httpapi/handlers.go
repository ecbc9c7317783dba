package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wiresaver/backend/internal/common"
	"github.com/wiresaver/backend/internal/server/services"
)

var errAuthRequired = errors.New("authentication required")

// abortWithError maps service sentinels onto HTTP statuses. Internal
// failures never leak detail to the client.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, errAuthRequired),
		errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrSessionExpired),
		errors.Is(err, common.ErrInvalidTwoFactor),
		errors.Is(err, common.ErrorUnauthorized):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, common.ErrAccountInactive),
		errors.Is(err, common.ErrNotAdmin),
		errors.Is(err, common.ErrBadSecretPhrase):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, common.ErrPasswordMismatch),
		errors.Is(err, common.ErrWeakPassword),
		errors.Is(err, common.ErrTwoFactorNotEnabled),
		errors.Is(err, common.ErrTwoFactorNotSetup):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		status, message = http.StatusNotFound, "user not found"
	case errors.Is(err, common.ErrUsernameTaken):
		status, message = http.StatusConflict, err.Error()
	}

	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if res.RequiresTwoFactor {
		c.JSON(http.StatusOK, gin.H{
			"requiresTwoFactor": true,
			"userId":            res.UserID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": res.Token, "user": res.User})
}

// verifyTwoFactorRequest's token field carries the 6-digit code.
type verifyTwoFactorRequest struct {
	UserID int64  `json:"userId" binding:"required"`
	Token  string `json:"token" binding:"required"`
}

func (s *Server) handleVerifyTwoFactor(c *gin.Context) {
	var req verifyTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.auth.VerifyTwoFactor(c.Request.Context(), req.UserID, req.Token)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": res.Token, "user": res.User})
}

type signupRequest struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
	FirstName       string `json:"firstName" binding:"required"`
	LastName        string `json:"lastName" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Role            string `json:"role"`
	SecretPhrase    string `json:"secretPhrase" binding:"required"`
}

func (s *Server) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.auth.Signup(c.Request.Context(), &services.SignupRequest{
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Role:            req.Role,
		SecretPhrase:    req.SecretPhrase,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// handleLogout deletes the session behind the bearer token. It is not
// guarded by requireAuth: a token whose session is already gone must still
// log out successfully, so the only failure mode is a missing token.
func (s *Server) handleLogout(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}

	s.auth.Logout(c.Request.Context(), token)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) handleSetupTwoFactor(c *gin.Context) {
	setup, err := s.auth.SetupTwoFactor(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":     setup.Secret,
		"qrCode":     setup.QRCodeImage,
		"otpauthUrl": setup.OTPAuthURL,
	})
}

type enableTwoFactorRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) handleEnableTwoFactor(c *gin.Context) {
	var req enableTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.auth.EnableTwoFactor(c.Request.Context(), currentUser(c), req.Code); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "two-factor authentication enabled"})
}

func (s *Server) handleDisableTwoFactor(c *gin.Context) {
	if err := s.auth.DisableTwoFactor(c.Request.Context(), currentUser(c)); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "two-factor authentication disabled"})
}
