package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/space-reservation-backend/internal/auth"
	"github.com/nekogravitycat/space-reservation-backend/internal/user"
)

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) Register(ctx context.Context, email, password, displayName string) (*user.User, error) {
	args := m.Called(ctx, email, password, displayName)
	u, _ := args.Get(0).(*user.User)
	return u, args.Error(1)
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*user.User, error) {
	args := m.Called(ctx, email, password)
	u, _ := args.Get(0).(*user.User)
	return u, args.Error(1)
}

func (m *mockUserService) GetByID(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*user.User)
	return u, args.Error(1)
}

func (m *mockUserService) List(ctx context.Context, filter user.Filter) ([]*user.User, int, error) {
	args := m.Called(ctx, filter)
	users, _ := args.Get(0).([]*user.User)
	return users, args.Int(1), args.Error(2)
}

func newProtectedRouter(jwtManager *auth.JWTManager, users user.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Authenticate(jwtManager, users), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": auth.GetUserID(c), "admin": auth.IsSystemAdmin(c)})
	})
	r.GET("/admin", Authenticate(jwtManager, users), RequireSystemAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	const uid = "5a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
	token, err := jwtManager.GenerateAccessToken(uid)
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		user     *user.User
		err      error
		wantCode int
	}{
		{name: "missing token", wantCode: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", wantCode: http.StatusUnauthorized},
		{name: "active user", token: token, user: &user.User{ID: uid, IsActive: true}, wantCode: http.StatusOK},
		{name: "inactive user", token: token, user: &user.User{ID: uid, IsActive: false}, wantCode: http.StatusForbidden},
		{name: "deleted user", token: token, err: user.ErrNotFound, wantCode: http.StatusUnauthorized},
		{name: "lookup failure", token: token, err: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(mockUserService)
			users.On("GetByID", mock.Anything, uid).Return(tt.user, tt.err).Maybe()

			w := get(newProtectedRouter(jwtManager, users), "/me", tt.token)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			if tt.wantCode == http.StatusOK {
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, uid, body["user_id"])
				assert.Equal(t, false, body["admin"])
			}
		})
	}
}

func TestRequireSystemAdmin(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	const uid = "5a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
	token, err := jwtManager.GenerateAccessToken(uid)
	require.NoError(t, err)

	users := new(mockUserService)
	users.On("GetByID", mock.Anything, uid).Return(&user.User{ID: uid, IsActive: true}, nil).Once()
	assert.Equal(t, http.StatusForbidden, get(newProtectedRouter(jwtManager, users), "/admin", token).Code)

	admins := new(mockUserService)
	admins.On("GetByID", mock.Anything, uid).Return(&user.User{ID: uid, IsActive: true, IsSystemAdmin: true}, nil).Once()
	assert.Equal(t, http.StatusNoContent, get(newProtectedRouter(jwtManager, admins), "/admin", token).Code)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/ping/:id", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside handler")
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping/1", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))
	assert.Equal(t, "req-42", inner["request_id"])
	assert.Equal(t, "/ping/:id", access["route"])
	assert.Equal(t, float64(http.StatusTeapot), access["status"])
}

func TestAllowedOrigins(t *testing.T) {
	assert.Contains(t, allowedOrigins(false, ""), "http://localhost:3000")
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		allowedOrigins(true, " https://a.example, ,https://b.example "))
	assert.Empty(t, allowedOrigins(true, ""))
}
