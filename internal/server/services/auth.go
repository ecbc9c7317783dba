// Package services contains server-side business logic. This file implements
// AuthService, which drives the whole session lifecycle: credential checks,
// token issuance, transparent rotation, the two-factor state machine, gated
// signup and the idempotent admin bootstrap.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wiresaver/backend/internal/common"
	"github.com/wiresaver/backend/internal/dbx"
	"github.com/wiresaver/backend/internal/logging"
	"github.com/wiresaver/backend/internal/server/auth"
	"github.com/wiresaver/backend/internal/server/config"
	"github.com/wiresaver/backend/internal/server/models"
	"github.com/wiresaver/backend/internal/server/repositories/repomanager"
)

// LoginResult is the outcome of a successful credential or two-factor check.
// When RequiresTwoFactor is set, no token has been issued yet and the caller
// must come back through VerifyTwoFactor with the user id.
type LoginResult struct {
	RequiresTwoFactor bool
	UserID            int64
	Token             string
	User              *models.User
}

// TwoFactorSetup carries the freshly generated enrollment material.
type TwoFactorSetup struct {
	Secret      string
	OTPAuthURL  string
	QRCodeImage string
}

// SignupRequest is the validated input of the gated admin signup flow.
type SignupRequest struct {
	Username        string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Email           string
	Role            string
	SecretPhrase    string
}

// AuthService provides the authentication lifecycle operations used by the
// HTTP handlers and the middleware.
type AuthService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	cfg    *config.Config
	logger logging.Logger
	secret []byte
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, l logging.Logger) *AuthService {
	return &AuthService{
		db:     db,
		repos:  m,
		cfg:    cfg,
		logger: l.With("module", "auth_service"),
		secret: []byte(cfg.SecretKey),
	}
}

// Login verifies a username/password pair on the admin login path.
//
// Unknown usernames and wrong passwords produce the same error so the
// endpoint cannot be used for username enumeration. Accounts that are
// inactive or lack admin access are rejected after the credential check.
// When two-factor is enabled the flow pauses: the result carries the user
// id and no token until VerifyTwoFactor succeeds.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	repo := s.repos.Users(s.db)

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, common.ErrorInternal
	}

	if !auth.CheckPassword(password, user.Password) {
		return nil, common.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, common.ErrAccountInactive
	}
	if !user.IsAdmin {
		return nil, common.ErrNotAdmin
	}

	if user.TwoFactorEnabled {
		return &LoginResult{RequiresTwoFactor: true, UserID: user.ID}, nil
	}

	return s.issueSession(ctx, user)
}

// VerifyTwoFactor completes a paused login: it checks the submitted code
// against the user's enabled secret and, on success, issues a token and
// session exactly as password login does.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, userID int64, code string) (*LoginResult, error) {
	repo := s.repos.Users(s.db)

	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}

	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return nil, common.ErrTwoFactorNotEnabled
	}
	if !auth.VerifyTOTPCode(code, *user.TwoFactorSecret) {
		return nil, common.ErrInvalidTwoFactor
	}

	return s.issueSession(ctx, user)
}

// Authenticate validates a bearer token for the middleware: cryptographic
// verification first, then the session row, then the user. It returns the
// user plus a replacement token when rotation fired (empty otherwise).
//
// A session-store error (as opposed to a clean "no row") degrades to
// trusting the verified token alone so a flaky store does not lock every
// admin out; rotation is skipped in that mode. An expired session row is
// deleted and rejected outright.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, string, error) {
	userID, issuedAt, err := auth.ParseToken(token, s.secret)
	if err != nil {
		return nil, "", err
	}

	storeHealthy := true
	sessionRepo := s.repos.Sessions(s.db)

	session, err := sessionRepo.Find(ctx, token)
	switch {
	case err == nil:
		if session.Expires.Before(time.Now()) {
			if delErr := sessionRepo.Delete(ctx, token); delErr != nil {
				s.logger.Warn(ctx, "failed to delete expired session", "error", delErr)
			}
			return nil, "", common.ErrSessionExpired
		}
	case errors.Is(err, common.ErrorNotFound):
		// Token verifies but its session was revoked or never persisted.
		return nil, "", common.ErrorUnauthorized
	default:
		storeHealthy = false
		s.logger.Warn(ctx, "session store lookup failed, trusting token verification only", "error", err)
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorUnauthorized
		}
		return nil, "", common.ErrorInternal
	}

	newToken := ""
	if storeHealthy && time.Since(issuedAt) > s.cfg.TokenRotationAge {
		newToken = s.rotate(ctx, user.ID, token)
	}

	return user, newToken, nil
}

// rotate mints a replacement token and atomically swaps the session row.
// Failures never surface: the original authentication already succeeded.
// If a concurrent request rotated first, the swap matches zero rows and no
// replacement is offered.
func (s *AuthService) rotate(ctx context.Context, userID int64, oldToken string) string {
	fresh, err := auth.GenerateToken(userID, s.secret, s.cfg.SessionValidityDuration)
	if err != nil {
		s.logger.Warn(ctx, "token rotation failed to mint replacement", "error", err)
		return ""
	}

	won, err := s.repos.Sessions(s.db).Replace(ctx, oldToken, fresh, s.cfg.SessionValidityDuration)
	if err != nil {
		s.logger.Warn(ctx, "token rotation failed to replace session", "error", err)
		return ""
	}
	if !won {
		return ""
	}
	return fresh
}

// Logout deletes the session for the given token. A missing session is a
// successful no-op, and even a store failure is not reported to the caller.
func (s *AuthService) Logout(ctx context.Context, token string) {
	if err := s.repos.Sessions(s.db).Delete(ctx, token); err != nil {
		s.logger.Warn(ctx, "logout failed to delete session", "error", err)
	}
}

// SetupTwoFactor generates a fresh secret for the user and stores it with
// enabled=false. The account stays in the pending state until the user
// proves possession of a code through EnableTwoFactor.
func (s *AuthService) SetupTwoFactor(ctx context.Context, user *models.User) (*TwoFactorSetup, error) {
	key, err := auth.GenerateTOTPKey(s.cfg.TOTPIssuer, user.Username)
	if err != nil {
		return nil, common.ErrorInternal
	}

	secret := key.Secret()
	if err := s.repos.Users(s.db).UpdateTwoFactor(ctx, user.ID, &secret, false); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}

	qr, err := auth.QRCodePNG(key)
	if err != nil {
		return nil, common.ErrorInternal
	}

	return &TwoFactorSetup{
		Secret:      secret,
		OTPAuthURL:  key.URL(),
		QRCodeImage: qr,
	}, nil
}

// EnableTwoFactor promotes a pending secret to enabled, but only after the
// submitted code verifies against it. There is no path from disabled
// straight to enabled.
func (s *AuthService) EnableTwoFactor(ctx context.Context, user *models.User, code string) error {
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return common.ErrTwoFactorNotSetup
	}
	if !auth.VerifyTOTPCode(code, *user.TwoFactorSecret) {
		return common.ErrInvalidTwoFactor
	}

	if err := s.repos.Users(s.db).UpdateTwoFactor(ctx, user.ID, user.TwoFactorSecret, true); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}
	return nil
}

// DisableTwoFactor clears the secret and the enabled flag. This is the only
// allowed regression of the two-factor state machine; a later re-enable
// must start over at SetupTwoFactor.
func (s *AuthService) DisableTwoFactor(ctx context.Context, user *models.User) error {
	if err := s.repos.Users(s.db).UpdateTwoFactor(ctx, user.ID, nil, false); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}
	return nil
}

// Signup creates a new admin account. The flow is gated by a shared secret
// phrase on top of the usual validation; only the bcrypt hash is stored.
// The existence check and the insert run in one transaction, and a
// concurrent duplicate that slips past the check still surfaces as
// ErrUsernameTaken through the unique constraint.
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) (*models.User, error) {
	if req.SecretPhrase != s.cfg.SignupSecretPhrase {
		return nil, common.ErrBadSecretPhrase
	}
	if req.Password != req.ConfirmPassword {
		return nil, common.ErrPasswordMismatch
	}
	if !auth.IsStrongPassword(req.Password) {
		return nil, common.ErrWeakPassword
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	role := req.Role
	if role == "" {
		role = models.RoleAdmin
	}

	var created *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)

		if _, err := repo.GetByUsername(ctx, req.Username); err == nil {
			return common.ErrUsernameTaken
		} else if !errors.Is(err, common.ErrorNotFound) {
			return common.ErrorInternal
		}

		user, err := repo.Create(ctx, &models.User{
			Username:  req.Username,
			Password:  hash,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Role:      role,
			IsActive:  true,
			IsAdmin:   models.IsAdminRole(role),
		})
		if err != nil {
			if errors.Is(err, common.ErrUsernameTaken) {
				return err
			}
			return fmt.Errorf("error creating user: %v", err)
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EnsureDefaultAdmins is the idempotent bootstrap routine. It removes the
// configured legacy account if present, then creates each configured
// bootstrap admin that does not already exist, skipping the rest.
func (s *AuthService) EnsureDefaultAdmins(ctx context.Context) error {
	repo := s.repos.Users(s.db)

	if legacy := s.cfg.LegacyAdminUsername; legacy != "" {
		if err := repo.DeleteByUsername(ctx, legacy); err != nil {
			return fmt.Errorf("error removing legacy account: %v", err)
		}
	}

	for _, admin := range s.cfg.BootstrapAdmins {
		_, err := repo.GetByUsername(ctx, admin.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error checking bootstrap account %q: %v", admin.Username, err)
		}

		hash, err := auth.HashPassword(admin.Password)
		if err != nil {
			return fmt.Errorf("error hashing bootstrap password: %v", err)
		}

		role := admin.Role
		if role == "" {
			role = models.RoleAdmin
		}
		if _, err := repo.Create(ctx, &models.User{
			Username:  admin.Username,
			Password:  hash,
			FirstName: admin.FirstName,
			LastName:  admin.LastName,
			Email:     admin.Email,
			Role:      role,
			IsActive:  true,
			IsAdmin:   true,
		}); err != nil {
			return fmt.Errorf("error creating bootstrap account %q: %v", admin.Username, err)
		}
		s.logger.Info(ctx, "created bootstrap admin account", "username", admin.Username)
	}

	return nil
}

// PurgeExpiredSessions removes every expired session row; the app runs it
// periodically. Expired sessions are lazily rejected on use regardless.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repos.Sessions(s.db).DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("error sweeping sessions: %v", err)
	}
	return n, nil
}

// issueSession mints a token and persists its session row. Session
// persistence failing is logged but does not fail the login: the token is
// still cryptographically valid and the middleware degrades accordingly.
func (s *AuthService) issueSession(ctx context.Context, user *models.User) (*LoginResult, error) {
	token, err := auth.GenerateToken(user.ID, s.secret, s.cfg.SessionValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	if err := s.repos.Sessions(s.db).Create(ctx, user.ID, token, s.cfg.SessionValidityDuration); err != nil {
		s.logger.Warn(ctx, "failed to persist session, continuing login", "error", err)
	}

	if err := s.repos.Users(s.db).UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "failed to record last login", "error", err)
	}

	return &LoginResult{UserID: user.ID, Token: token, User: user}, nil
}
