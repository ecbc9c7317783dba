package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	_ "modernc.org/sqlite"

	"github.com/wiresaver/backend/internal/common"
	"github.com/wiresaver/backend/internal/dbx"
	"github.com/wiresaver/backend/internal/logging"
	"github.com/wiresaver/backend/internal/server/auth"
	"github.com/wiresaver/backend/internal/server/config"
	"github.com/wiresaver/backend/internal/server/models"
	sessionsrepo "github.com/wiresaver/backend/internal/server/repositories/sessions"
	usersrepo "github.com/wiresaver/backend/internal/server/repositories/users"
	"github.com/wiresaver/backend/internal/server/services"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// --- in-memory repositories ---

type memUsers struct {
	seq   int64
	users map[int64]*models.User
}

func (r *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.seq++
	u.ID = r.seq
	r.users[u.ID] = u
	return u, nil
}

func (r *memUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) UpdateTwoFactor(ctx context.Context, id int64, secret *string, enabled bool) error {
	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.TwoFactorSecret = secret
	u.TwoFactorEnabled = enabled
	return nil
}

func (r *memUsers) UpdateLastLogin(ctx context.Context, id int64) error { return nil }

func (r *memUsers) DeleteByUsername(ctx context.Context, username string) error {
	for id, u := range r.users {
		if u.Username == username {
			delete(r.users, id)
		}
	}
	return nil
}

type memSessions struct {
	rows map[string]*models.Session
}

func (r *memSessions) Create(ctx context.Context, userID int64, token string, validity time.Duration) error {
	r.rows[token] = &models.Session{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (r *memSessions) Find(ctx context.Context, token string) (*models.Session, error) {
	if s, ok := r.rows[token]; ok {
		return s, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memSessions) Delete(ctx context.Context, token string) error {
	delete(r.rows, token)
	return nil
}

func (r *memSessions) Replace(ctx context.Context, oldToken, newToken string, validity time.Duration) (bool, error) {
	old, ok := r.rows[oldToken]
	if !ok {
		return false, nil
	}
	delete(r.rows, oldToken)
	r.rows[newToken] = &models.Session{UserID: old.UserID, Token: newToken, Expires: time.Now().Add(validity)}
	return true, nil
}

func (r *memSessions) DeleteExpired(ctx context.Context) (int64, error) { return 0, nil }

type memManager struct {
	users    *memUsers
	sessions *memSessions
}

func (m *memManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *memManager) Users(db dbx.DBTX) usersrepo.Repository             { return m.users }
func (m *memManager) Sessions(db dbx.DBTX) sessionsrepo.Repository       { return m.sessions }

// --- harness ---

type harness struct {
	router   *gin.Engine
	users    *memUsers
	sessions *memSessions
	cfg      *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	// In-memory handle for the transactional paths; queries go to the
	// in-memory repositories.
	db, err := sql.Open("sqlite", "file:httpapi_tests?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	m := &memManager{
		users:    &memUsers{users: map[int64]*models.User{}},
		sessions: &memSessions{rows: map[string]*models.Session{}},
	}
	cfg := &config.Config{
		SecretKey:               "k",
		SessionValidityDuration: 4 * time.Hour,
		TokenRotationAge:        time.Hour,
		SignupSecretPhrase:      "open-sesame",
		TOTPIssuer:              "WireSaver Admin",
	}

	logger := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	svc := services.NewAuthService(db, m, cfg, logger)
	srv := NewServer(":0", logger, svc)

	return &harness{router: srv.Router(), users: m.users, sessions: m.sessions, cfg: cfg}
}

func (h *harness) addAdmin(t *testing.T, username, password string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	u, err := h.users.Create(context.Background(), &models.User{
		Username: username,
		Password: hash,
		Role:     models.RoleAdmin,
		IsActive: true,
		IsAdmin:  true,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	return u
}

func (h *harness) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return m
}

func (h *harness) login(t *testing.T, username, password string) string {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": username, "password": password}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %v", body)
	}
	return token
}

func mintAgedToken(t *testing.T, userID int64, secret []byte, age time.Duration) string {
	t.Helper()
	issued := time.Now().Add(-age)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    auth.TokenIssuer,
			Audience:  jwt.ClaimStrings{auth.TokenAudience},
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(4 * time.Hour)),
		},
	})
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}
	return s
}

// --- login ---

func TestHandleLogin(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "alice", "Valid1Pass!")

	w := h.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "Valid1Pass!"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if tok, _ := body["token"].(string); tok == "" {
		t.Fatalf("missing token in %v", body)
	}
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("missing user in %v", body)
	}
	if _, leaked := user["password"]; leaked {
		t.Fatalf("password hash leaked in response: %v", user)
	}
	if user["username"] != "alice" {
		t.Fatalf("wrong user payload: %v", user)
	}
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "alice", "Valid1Pass!")

	wUnknown := h.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "ghost", "password": "x"}, "")
	wWrongPw := h.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "Wrong1Pass!"}, "")

	if wUnknown.Code != http.StatusUnauthorized || wWrongPw.Code != http.StatusUnauthorized {
		t.Fatalf("want 401/401, got %d/%d", wUnknown.Code, wWrongPw.Code)
	}
	if wUnknown.Body.String() != wWrongPw.Body.String() {
		t.Fatalf("responses must be indistinguishable: %s vs %s", wUnknown.Body, wWrongPw.Body)
	}
}

func TestHandleLogin_MissingFields(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
}

func TestHandleLogin_ForbiddenAccounts(t *testing.T) {
	h := newHarness(t)
	inactive := h.addAdmin(t, "inactive", "Valid1Pass!")
	inactive.IsActive = false
	viewer := h.addAdmin(t, "viewer", "Valid1Pass!")
	viewer.Role, viewer.IsAdmin = models.RoleViewer, false

	for _, name := range []string{"inactive", "viewer"} {
		w := h.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": name, "password": "Valid1Pass!"}, "")
		if w.Code != http.StatusForbidden {
			t.Fatalf("%s: want 403, got %d: %s", name, w.Code, w.Body.String())
		}
	}
}

// --- two-factor login ---

func TestTwoFactorLoginFlow(t *testing.T) {
	h := newHarness(t)
	admin := h.addAdmin(t, "alice", "Valid1Pass!")

	key, err := auth.GenerateTOTPKey("WireSaver Admin", "alice")
	if err != nil {
		t.Fatalf("GenerateTOTPKey error: %v", err)
	}
	secret := key.Secret()
	admin.TwoFactorSecret = &secret
	admin.TwoFactorEnabled = true

	// Login pauses with the challenge.
	w := h.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "Valid1Pass!"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["requiresTwoFactor"] != true {
		t.Fatalf("expected a two-factor challenge, got %v", body)
	}
	if _, hasToken := body["token"]; hasToken {
		t.Fatalf("no token may be issued before verification: %v", body)
	}
	userID := int64(body["userId"].(float64))

	// Wrong code is rejected.
	w = h.do(t, http.MethodPost, "/api/auth/verify-2fa", gin.H{"userId": userID, "token": "000000"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad code: want 401, got %d", w.Code)
	}

	// Correct code completes the login.
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode error: %v", err)
	}
	w = h.do(t, http.MethodPost, "/api/auth/verify-2fa", gin.H{"userId": userID, "token": code}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	if tok, _ := decodeBody(t, w)["token"].(string); tok == "" {
		t.Fatalf("expected a token after verification")
	}
}

func TestHandleVerifyTwoFactor_Errors(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "bob", "Valid1Pass!") // 2FA never enabled

	w := h.do(t, http.MethodPost, "/api/auth/verify-2fa", gin.H{"userId": 99, "token": "123456"}, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown user: want 404, got %d", w.Code)
	}

	w = h.do(t, http.MethodPost, "/api/auth/verify-2fa", gin.H{"userId": 1, "token": "123456"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("2FA not enabled: want 400, got %d", w.Code)
	}
}

// --- signup ---

func signupBody() gin.H {
	return gin.H{
		"username":        "newadmin",
		"password":        "Valid1Pass!",
		"confirmPassword": "Valid1Pass!",
		"firstName":       "New",
		"lastName":        "Admin",
		"email":           "new@wiresaver.io",
		"role":            models.RoleAdmin,
		"secretPhrase":    "open-sesame",
	}
}

func TestHandleSignup(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/auth/signup", signupBody(), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", w.Code, w.Body.String())
	}

	// The new account can log in right away.
	h.login(t, "newadmin", "Valid1Pass!")
}

func TestHandleSignup_Rejections(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "taken", "Valid1Pass!")

	cases := []struct {
		name   string
		mutate func(gin.H)
		want   int
	}{
		{"wrong phrase", func(b gin.H) { b["secretPhrase"] = "nope" }, http.StatusForbidden},
		{"weak password", func(b gin.H) { b["password"], b["confirmPassword"] = "weakweak", "weakweak" }, http.StatusBadRequest},
		{"mismatch", func(b gin.H) { b["confirmPassword"] = "Other1Pass!" }, http.StatusBadRequest},
		{"duplicate", func(b gin.H) { b["username"] = "taken" }, http.StatusConflict},
		{"bad email", func(b gin.H) { b["email"] = "not-an-email" }, http.StatusBadRequest},
	}

	for _, tc := range cases {
		body := signupBody()
		tc.mutate(body)
		w := h.do(t, http.MethodPost, "/api/auth/signup", body, "")
		if w.Code != tc.want {
			t.Fatalf("%s: want %d, got %d: %s", tc.name, tc.want, w.Code, w.Body.String())
		}
	}
}

// --- middleware ---

func TestRequireAuth_MissingOrBadToken(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/auth/setup-2fa", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no header: want 401, got %d", w.Code)
	}

	w = h.do(t, http.MethodPost, "/api/auth/setup-2fa", nil, "not-a-jwt")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: want 401, got %d", w.Code)
	}
}

func TestRequireAuth_RevokedSessionRejected(t *testing.T) {
	h := newHarness(t)
	admin := h.addAdmin(t, "alice", "Valid1Pass!")

	// Valid signature, but no session row behind it.
	tok := mintAgedToken(t, admin.ID, []byte("k"), 0)
	w := h.do(t, http.MethodPost, "/api/auth/setup-2fa", nil, tok)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked session: want 401, got %d", w.Code)
	}
}

func TestRequireAuth_Rotation(t *testing.T) {
	h := newHarness(t)
	admin := h.addAdmin(t, "alice", "Valid1Pass!")

	fresh := h.login(t, "alice", "Valid1Pass!")

	// Fresh token: no rotation header.
	w := h.do(t, http.MethodPost, "/api/auth/setup-2fa", nil, fresh)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get(NewTokenHeader); got != "" {
		t.Fatalf("fresh token must not rotate, got header %q", got)
	}

	// Aged token past the threshold rotates exactly once.
	old := mintAgedToken(t, admin.ID, []byte("k"), 2*time.Hour)
	h.sessions.rows[old] = &models.Session{UserID: admin.ID, Token: old, Expires: time.Now().Add(2 * time.Hour)}

	w = h.do(t, http.MethodPost, "/api/auth/setup-2fa", nil, old)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	replacement := w.Header().Get(NewTokenHeader)
	if replacement == "" || replacement == old {
		t.Fatalf("expected a replacement token in %s", NewTokenHeader)
	}

	// The old token's session is gone; the replacement works.
	if w = h.do(t, http.MethodPost, "/api/auth/disable-2fa", nil, old); w.Code != http.StatusUnauthorized {
		t.Fatalf("old token after rotation: want 401, got %d", w.Code)
	}
	if w = h.do(t, http.MethodPost, "/api/auth/disable-2fa", nil, replacement); w.Code != http.StatusOK {
		t.Fatalf("replacement token: want 200, got %d: %s", w.Code, w.Body.String())
	}
}

// --- logout ---

func TestHandleLogout(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "alice", "Valid1Pass!")
	token := h.login(t, "alice", "Valid1Pass!")

	w := h.do(t, http.MethodPost, "/api/auth/logout", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, alive := h.sessions.rows[token]; alive {
		t.Fatalf("session row must be deleted on logout")
	}

	// The token no longer authenticates on guarded routes.
	w = h.do(t, http.MethodPost, "/api/auth/setup-2fa", nil, token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("token after logout: want 401, got %d", w.Code)
	}
}

func TestHandleLogout_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "alice", "Valid1Pass!")
	token := h.login(t, "alice", "Valid1Pass!")

	for i := 0; i < 2; i++ {
		w := h.do(t, http.MethodPost, "/api/auth/logout", nil, token)
		if w.Code != http.StatusOK {
			t.Fatalf("logout #%d: want 200, got %d: %s", i+1, w.Code, w.Body.String())
		}
	}

	// A token that never had a session logs out successfully too.
	w := h.do(t, http.MethodPost, "/api/auth/logout", nil, "never-issued")
	if w.Code != http.StatusOK {
		t.Fatalf("logout of unknown token: want 200, got %d", w.Code)
	}
}

func TestHandleLogout_MissingToken(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no token: want 400, got %d", w.Code)
	}
}

// --- two-factor management ---

func TestTwoFactorManagementFlow(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "alice", "Valid1Pass!")
	token := h.login(t, "alice", "Valid1Pass!")

	// Enable before setup.
	w := h.do(t, http.MethodPost, "/api/auth/enable-2fa", gin.H{"code": "123456"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("enable before setup: want 400, got %d", w.Code)
	}

	// Setup returns enrollment material.
	w = h.do(t, http.MethodPost, "/api/auth/setup-2fa", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("setup: want 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	secret, _ := body["secret"].(string)
	qr, _ := body["qrCode"].(string)
	otpURL, _ := body["otpauthUrl"].(string)
	if secret == "" || qr == "" || otpURL == "" {
		t.Fatalf("incomplete setup material: %v", body)
	}

	// Enable with a real code.
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode error: %v", err)
	}
	w = h.do(t, http.MethodPost, "/api/auth/enable-2fa", gin.H{"code": code}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("enable: want 200, got %d: %s", w.Code, w.Body.String())
	}

	// Fresh logins now require the challenge.
	w = h.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "Valid1Pass!"}, "")
	if decodeBody(t, w)["requiresTwoFactor"] != true {
		t.Fatalf("login must now demand the code")
	}

	// Disable clears it again.
	w = h.do(t, http.MethodPost, "/api/auth/disable-2fa", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("disable: want 200, got %d: %s", w.Code, w.Body.String())
	}
	h.login(t, "alice", "Valid1Pass!")
}
