package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/middleware"
	"codecollab-auth-svc/src/internal/models"
	"codecollab-auth-svc/src/internal/security"
	"codecollab-auth-svc/src/internal/session"
	"codecollab-auth-svc/src/internal/token"
	"codecollab-auth-svc/src/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// fakeSessionRepository is an in-memory stand-in for the Mongo-backed store.
type fakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: make(map[string]*session.Session)}
}

func (r *fakeSessionRepository) Insert(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.SessionID] = &copied
	return nil
}

func (r *fakeSessionRepository) GetBySessionID(_ context.Context, sessionID string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepository) GetByRefreshToken(_ context.Context, refreshToken string, now time.Time) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RefreshToken == refreshToken && s.IsActive && s.ExpiresAt.After(now) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, models.ErrSessionNotFound
}

func (r *fakeSessionRepository) CountActive(_ context.Context, userID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive && s.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepository) GetOldestActive(_ context.Context, userID string, now time.Time) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *session.Session
	for _, s := range r.sessions {
		if s.UserID != userID || !s.IsActive || !s.ExpiresAt.After(now) {
			continue
		}
		if oldest == nil || s.LastActivity.Before(oldest.LastActivity) {
			oldest = s
		}
	}
	if oldest == nil {
		return nil, models.ErrSessionNotFound
	}
	copied := *oldest
	return &copied, nil
}

func (r *fakeSessionRepository) GetActiveByUser(_ context.Context, userID string, now time.Time) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*session.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive && s.ExpiresAt.After(now) {
			copied := *s
			copied.AccessToken = ""
			copied.RefreshToken = ""
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivity.After(result[j].LastActivity)
	})
	return result, nil
}

func (r *fakeSessionRepository) Revoke(_ context.Context, sessionID, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.IsActive {
		return nil
	}
	s.IsActive = false
	s.RevokedAt = &now
	s.RevokedReason = reason
	return nil
}

func (r *fakeSessionRepository) RevokeAllForUser(_ context.Context, userID, reason string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			s.RevokedAt = &now
			s.RevokedReason = reason
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepository) UpdateAccessToken(_ context.Context, sessionID, accessToken string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok && s.IsActive {
		s.AccessToken = accessToken
		s.LastActivity = now
	}
	return nil
}

func (r *fakeSessionRepository) UpdateActivity(_ context.Context, sessionID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok && s.IsActive {
		s.LastActivity = now
	}
	return nil
}

func (r *fakeSessionRepository) DeleteExpired(_ context.Context, now time.Time, revokedRetention time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, s := range r.sessions {
		expired := s.ExpiresAt.Before(now)
		stale := s.RevokedAt != nil && s.RevokedAt.Before(now.Add(-revokedRetention))
		if expired || stale {
			delete(r.sessions, id)
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepository) EnsureIndexes(context.Context) error { return nil }

// fakeUserService keeps accounts in memory; only the operations the auth
// handlers touch carry real behavior.
type fakeUserService struct {
	mu      sync.Mutex
	byEmail map[string]*user.User
	byID    map[string]*user.User
}

func newFakeUserService() *fakeUserService {
	return &fakeUserService{
		byEmail: make(map[string]*user.User),
		byID:    make(map[string]*user.User),
	}
}

func (s *fakeUserService) Register(_ context.Context, req *user.RegisterRequest) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[req.Email]; exists {
		return nil, models.ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	u := &user.User{
		ID:           primitive.NewObjectID(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         user.RoleUser,
		Permissions:  user.DefaultPermissionsForRole(user.RoleUser),
		IsActive:     true,
	}
	s.byEmail[u.Email] = u
	s.byID[u.ID.Hex()] = u
	return u, nil
}

func (s *fakeUserService) Authenticate(_ context.Context, email, password string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return u, nil
}

func (s *fakeUserService) ChangePassword(_ context.Context, userID, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return models.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (s *fakeUserService) GetByID(_ context.Context, userID string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserService) GetAllUsers(context.Context, *user.GetAllUsersRequest) (*user.GetAllUsersResponse, error) {
	return &user.GetAllUsersResponse{}, nil
}
func (s *fakeUserService) GetUserStats(context.Context) (*models.Stats, error) {
	return &models.Stats{}, nil
}
func (s *fakeUserService) ActivateUser(context.Context, string) error   { return nil }
func (s *fakeUserService) DeactivateUser(context.Context, string) error { return nil }
func (s *fakeUserService) SuspendUser(context.Context, string, *time.Time, string) error {
	return nil
}
func (s *fakeUserService) UnsuspendUser(context.Context, string) error { return nil }
func (s *fakeUserService) ChangeRole(context.Context, string, string, []string) error {
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Emit(_ context.Context, event string, _ logrus.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type recordingMailer struct {
	mu        sync.Mutex
	templates []string
}

func (m *recordingMailer) SendEmail(_ context.Context, _, template string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, template)
	return nil
}

type testEnv struct {
	router  *gin.Engine
	repo    *fakeSessionRepository
	users   *fakeUserService
	sink    *recordingSink
	mailer  *recordingMailer
	tracker *security.LoginTracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Configuration{
		Security: config.SecuritySettings{
			JwtKey:             "test-secret",
			AccessTokenCookie:  "access_token",
			LoginMaxAttempts:   2,
			LoginWindowMinutes: 15,
		},
		Auth: config.AuthSettings{
			AccessTokenMinutes:    15,
			RefreshTokenDays:      7,
			MaxConcurrentSessions: 3,
			RevokedRetentionDays:  7,
		},
	}

	repo := newFakeSessionRepository()
	users := newFakeUserService()
	sink := &recordingSink{}
	mailer := &recordingMailer{}
	tracker := security.NewLoginTracker(cfg.Security.LoginMaxAttempts, 15*time.Minute)

	codec := token.NewCodec(cfg.Security.JwtKey, 15*time.Minute)
	manager := session.NewManager(repo, nil, codec, sink, &cfg.Auth)

	h := NewHandler(cfg, users, manager, tracker, sink, mailer)
	authMw := middleware.NewAuthMiddleware(cfg.Security.AccessTokenCookie, manager, users, sink)

	router := gin.New()
	router.POST("/auth/register", h.Register)
	router.POST("/auth/login", h.Login)
	router.POST("/auth/refresh", h.Refresh)

	protected := router.Group("/auth", authMw.RequireAuth())
	protected.POST("/logout", h.Logout)
	protected.PUT("/password", h.ChangePassword)
	protected.GET("/sessions", h.GetSessions)
	protected.DELETE("/sessions/:id", h.RevokeSession)
	protected.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetString(middleware.CtxUserID)})
	})

	return &testEnv{router: router, repo: repo, users: users, sink: sink, mailer: mailer, tracker: tracker}
}

func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type tokenPair struct {
	SessionID    string `json:"sessionId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func extractTokens(t *testing.T, w *httptest.ResponseRecorder) tokenPair {
	t.Helper()
	var body struct {
		Data struct {
			Tokens tokenPair `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Tokens.AccessToken)
	return body.Data.Tokens
}

func registerAndLogin(t *testing.T, env *testEnv, email string) tokenPair {
	t.Helper()
	w := env.do(http.MethodPost, "/auth/register", gin.H{
		"firstName": "Dana",
		"lastName":  "Reyes",
		"email":     email,
		"password":  "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodPost, "/auth/login", gin.H{
		"email":    email,
		"password": "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	return extractTokens(t, w)
}

func TestRegisterLoginAndAccessProtectedRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/auth/register", gin.H{
		"firstName": "Dana",
		"lastName":  "Reyes",
		"email":     "dana@example.com",
		"password":  "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	tokens := extractTokens(t, w)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, []string{models.EmailTemplateWelcome}, env.mailer.templates)

	// Registration logs the user straight in.
	w = env.do(http.MethodGet, "/auth/me", nil, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	registerAndLogin(t, env, "dana@example.com")

	w := env.do(http.MethodPost, "/auth/register", gin.H{
		"firstName": "Other",
		"lastName":  "Person",
		"email":     "dana@example.com",
		"password":  "another-password",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	registerAndLogin(t, env, "dana@example.com")

	w := env.do(http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, env.sink.names(), security.EventLoginFailed)
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)
	registerAndLogin(t, env, "dana@example.com")

	attempt := gin.H{"email": "dana@example.com", "password": "wrong"}
	env.do(http.MethodPost, "/auth/login", attempt, nil)
	env.do(http.MethodPost, "/auth/login", attempt, nil)

	// Third attempt is blocked before credentials are even checked.
	w := env.do(http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "correct-horse-battery",
	}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, env.sink.names(), security.EventLoginRateLimited)
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	tokens := registerAndLogin(t, env, "dana@example.com")

	w := env.do(http.MethodPost, "/auth/logout", nil, bearer(tokens.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/auth/me", nil, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The refresh token dies with the session.
	w = env.do(http.MethodPost, "/auth/refresh", gin.H{"refreshToken": tokens.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshReplacesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	tokens := registerAndLogin(t, env, "dana@example.com")

	w := env.do(http.MethodPost, "/auth/refresh", gin.H{"refreshToken": tokens.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.AccessToken)
	assert.NotEqual(t, tokens.AccessToken, body.Data.AccessToken)

	// New token authenticates; the superseded one no longer matches the session.
	w = env.do(http.MethodGet, "/auth/me", nil, bearer(body.Data.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/auth/me", nil, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/auth/refresh", gin.H{"refreshToken": "no-such-token"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, env.sink.names(), security.EventRefreshTokenNotFound)
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	env := newTestEnv(t)
	first := registerAndLogin(t, env, "dana@example.com")

	// Second device.
	w := env.do(http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := extractTokens(t, w)

	w = env.do(http.MethodPut, "/auth/password", gin.H{
		"oldPassword": "correct-horse-battery",
		"newPassword": "even-more-correct",
	}, bearer(second.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)
	fresh := extractTokens(t, w)

	// Every pre-existing session is gone; only the fresh one works.
	for _, stale := range []string{first.AccessToken, second.AccessToken} {
		w = env.do(http.MethodGet, "/auth/me", nil, bearer(stale))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w = env.do(http.MethodGet, "/auth/me", nil, bearer(fresh.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)

	// Old credential no longer authenticates.
	w = env.do(http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "correct-horse-battery",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Contains(t, env.mailer.templates, models.EmailTemplatePasswordChanged)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	tokens := registerAndLogin(t, env, "dana@example.com")

	w := env.do(http.MethodPut, "/auth/password", gin.H{
		"oldPassword": "wrong",
		"newPassword": "even-more-correct",
	}, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Session survives the failed attempt.
	w = env.do(http.MethodGet, "/auth/me", nil, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetSessionsMarksCurrent(t *testing.T) {
	env := newTestEnv(t)
	registerAndLogin(t, env, "dana@example.com")

	w := env.do(http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := extractTokens(t, w)

	w = env.do(http.MethodGet, "/auth/sessions", nil, bearer(second.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Sessions []struct {
				SessionID    string `json:"sessionId"`
				Current      bool   `json:"current"`
				AccessToken  string `json:"accessToken"`
				RefreshToken string `json:"refreshToken"`
			} `json:"sessions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Sessions, 3)

	currentCount := 0
	for _, s := range body.Data.Sessions {
		assert.Empty(t, s.AccessToken)
		assert.Empty(t, s.RefreshToken)
		if s.Current {
			currentCount++
			assert.Equal(t, second.SessionID, s.SessionID)
		}
	}
	assert.Equal(t, 1, currentCount)
}

func TestRevokeOwnSession(t *testing.T) {
	env := newTestEnv(t)
	first := registerAndLogin(t, env, "dana@example.com")

	w := env.do(http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := extractTokens(t, w)

	w = env.do(http.MethodDelete, "/auth/sessions/"+first.SessionID, nil, bearer(second.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/auth/me", nil, bearer(first.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevokeSessionRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)
	dana := registerAndLogin(t, env, "dana@example.com")
	mallory := registerAndLogin(t, env, "mallory@example.com")

	w := env.do(http.MethodDelete, "/auth/sessions/"+dana.SessionID, nil, bearer(mallory.AccessToken))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Dana's session is untouched.
	w = env.do(http.MethodGet, "/auth/me", nil, bearer(dana.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)
}
