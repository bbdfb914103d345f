package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"codecollab-auth-svc/src/internal/models"
	"codecollab-auth-svc/src/internal/security"
	"codecollab-auth-svc/src/internal/session"
	"codecollab-auth-svc/src/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeValidator struct {
	byToken map[string]*session.Identity
	err     error
	seen    []string
}

func (v *fakeValidator) Validate(_ context.Context, accessToken string) (*session.Identity, error) {
	v.seen = append(v.seen, accessToken)
	if v.err != nil {
		return nil, v.err
	}
	return v.byToken[accessToken], nil
}

type fakeLoader struct {
	users map[string]*user.User
}

func (l *fakeLoader) GetByID(_ context.Context, userID string) (*user.User, error) {
	u, ok := l.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

type recordingSink struct {
	events []string
	fields []logrus.Fields
}

func (s *recordingSink) Emit(_ context.Context, event string, fields logrus.Fields) {
	s.events = append(s.events, event)
	s.fields = append(s.fields, fields)
}

const testCookieName = "cc_access_token"

func newAuthTestRouter(t *testing.T) (*gin.Engine, *fakeValidator, *recordingSink, *user.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testUser := &user.User{
		ID:          primitive.NewObjectID(),
		Email:       "dana@example.com",
		Role:        user.RoleUser,
		Permissions: user.DefaultPermissionsForRole(user.RoleUser),
		IsActive:    true,
	}

	validator := &fakeValidator{byToken: map[string]*session.Identity{
		"good-token": {UserID: testUser.ID.Hex(), SessionID: "sess-1"},
	}}
	loader := &fakeLoader{users: map[string]*user.User{testUser.ID.Hex(): testUser}}
	sink := &recordingSink{}

	router := gin.New()
	authMw := NewAuthMiddleware(testCookieName, validator, loader, sink)
	router.GET("/protected", authMw.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userId":    c.GetString(CtxUserID),
			"sessionId": c.GetString(CtxSessionID),
			"email":     c.GetString(CtxUserEmail),
			"role":      c.GetString(CtxUserRole),
		})
	})

	return router, validator, sink, testUser
}

func TestRequireAuthMissingToken(t *testing.T) {
	router, _, sink, _ := newAuthTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, security.EventTokenMissing, sink.events[0])
}

func TestRequireAuthInvalidToken(t *testing.T) {
	router, _, sink, _ := newAuthTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, security.EventTokenInvalid, sink.events[0])
}

func TestRequireAuthValidatorError(t *testing.T) {
	router, validator, sink, _ := newAuthTestRouter(t)
	validator.err = models.ErrDatabaseQuery

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, sink.events)
}

func TestRequireAuthBearerToken(t *testing.T) {
	router, _, sink, testUser := newAuthTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sink.events)
	assert.Contains(t, w.Body.String(), testUser.ID.Hex())
	assert.Contains(t, w.Body.String(), "sess-1")
	assert.Contains(t, w.Body.String(), "dana@example.com")
}

func TestRequireAuthPrefersCookieOverHeader(t *testing.T) {
	router, validator, _, _ := newAuthTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "good-token"})
	req.Header.Set("Authorization", "Bearer header-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, validator.seen, 1)
	assert.Equal(t, "good-token", validator.seen[0])
}

func TestRequireAuthMalformedHeader(t *testing.T) {
	router, _, sink, _ := newAuthTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token good-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, security.EventTokenMissing, sink.events[0])
}
