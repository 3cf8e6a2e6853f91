package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-portal/internal/auth"
	"user-portal/internal/domain"
	"user-portal/internal/repository/sqlite"
	"user-portal/internal/service"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "admin123!"
)

type testServer struct {
	router *gin.Engine
	users  service.UserService
	tokens *auth.TokenManager
	admin  *domain.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	users := service.NewUserService(repo, logger)
	admin, created, err := users.EnsureAdmin(context.Background(), "admin", testAdminEmail, testAdminPassword)
	require.NoError(t, err)
	require.True(t, created)

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	router := gin.New()
	NewHandler(users, tokens, logger).RegisterRoutes(router)

	return &testServer{router: router, users: users, tokens: tokens, admin: admin}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email, password string) (token, role string) {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.Role
}

func (s *testServer) createUser(t *testing.T, adminToken, username, email, password string) UserResponse {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/users", adminToken, gin.H{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	return user
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	token, role := s.login(t, testAdminEmail, testAdminPassword)
	assert.Equal(t, "admin", role)

	claims, err := s.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, s.admin.ID, claims.Subject)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	wrongPassword := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": testAdminEmail, "password": "wrong"})
	unknownEmail := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": testAdminPassword})

	// wrong password and unknown account are indistinguishable
	assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
	assert.Equal(t, http.StatusBadRequest, unknownEmail.Code)
	assert.JSONEq(t, `{"message":"Invalid credentials"}`, wrongPassword.Body.String())
	assert.JSONEq(t, `{"message":"Invalid credentials"}`, unknownEmail.Body.String())
}

func TestLogin_MissingFields(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": testAdminEmail})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutes_RejectBeforeRoleLogic(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, path := range []string{"/api/auth/me", "/api/users", "/api/users/report"} {
		noToken := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, noToken.Code, path)

		badToken := s.do(t, http.MethodGet, path, "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, badToken.Code, path)
	}
}

func TestProtectedRoutes_TamperedToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	s.createUser(t, s.adminToken(t), "mallory", "mallory@example.com", "password123")
	userToken, _ := s.login(t, "mallory@example.com", "password123")

	parts := strings.Split(userToken, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"role":"user"`, `"role":"admin"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	rec := s.do(t, http.MethodGet, "/api/users", strings.Join(parts, "."), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredToken_Rejected(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	shortLived, err := auth.NewTokenManager("test-secret", time.Millisecond)
	require.NoError(t, err)
	token, err := shortLived.Issue(s.admin.ID, domain.RoleAdmin)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	rec := s.do(t, http.MethodGet, "/api/users", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, _ := s.login(t, testAdminEmail, testAdminPassword)
	return token
}

func TestMe(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/auth/me", s.adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var user UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, s.admin.ID, user.ID)
	assert.Equal(t, testAdminEmail, user.Email)
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "password")
}

func TestAdminRoutes_ForbiddenForUserRole(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	s.createUser(t, s.adminToken(t), "norma", "norma@example.com", "password123")
	userToken, role := s.login(t, "norma@example.com", "password123")
	assert.Equal(t, "user", role)

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/users", nil},
		{http.MethodPost, "/api/users", gin.H{"username": "x", "email": "x@example.com", "password": "password123"}},
		{http.MethodGet, "/api/users/report", nil},
		{http.MethodPut, "/api/users/some-id", gin.H{"role": "admin"}},
		{http.MethodDelete, "/api/users/some-id", nil},
	}
	for _, req := range requests {
		rec := s.do(t, req.method, req.path, userToken, req.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", req.method, req.path)
	}

	// the role gate does not block the non-admin surface
	me := s.do(t, http.MethodGet, "/api/auth/me", userToken, nil)
	assert.Equal(t, http.StatusOK, me.Code)
}

func TestCreateUser(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	adminToken := s.adminToken(t)

	created := s.createUser(t, adminToken, "oscar", "oscar@example.com", "password123")
	assert.Equal(t, "oscar", created.Username)
	assert.EqualValues(t, "user", created.Role)
	assert.Equal(t, s.admin.ID, created.CreatedBy)

	missing := s.do(t, http.MethodPost, "/api/users", adminToken, gin.H{"username": "p"})
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	dupEmail := s.do(t, http.MethodPost, "/api/users", adminToken, gin.H{
		"username": "oscar2", "email": "oscar@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, dupEmail.Code)
	assert.JSONEq(t, `{"message":"User already exists"}`, dupEmail.Body.String())

	dupUsername := s.do(t, http.MethodPost, "/api/users", adminToken, gin.H{
		"username": "oscar", "email": "oscar2@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, dupUsername.Code)
}

func TestUpdateUser(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	adminToken := s.adminToken(t)

	created := s.createUser(t, adminToken, "pat", "pat@example.com", "password123")

	rec := s.do(t, http.MethodPut, "/api/users/"+created.ID, adminToken, gin.H{"role": "admin", "username": "patricia"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.EqualValues(t, "admin", updated.Role)
	assert.Equal(t, "patricia", updated.Username)

	notFound := s.do(t, http.MethodPut, "/api/users/no-such-id", adminToken, gin.H{"username": "ghost"})
	assert.Equal(t, http.StatusNotFound, notFound.Code)

	collision := s.do(t, http.MethodPut, "/api/users/"+created.ID, adminToken, gin.H{"email": testAdminEmail})
	assert.Equal(t, http.StatusBadRequest, collision.Code)
}

func TestDeleteUser_SelfForbidden(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	adminToken := s.adminToken(t)

	rec := s.do(t, http.MethodDelete, "/api/users/"+s.admin.ID, adminToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"You cannot delete your own account"}`, rec.Body.String())
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	adminToken := s.adminToken(t)

	created := s.createUser(t, adminToken, "quinn", "quinn@example.com", "password123")

	rec := s.do(t, http.MethodDelete, "/api/users/"+created.ID, adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	again := s.do(t, http.MethodDelete, "/api/users/"+created.ID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestReport(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	adminToken := s.adminToken(t)

	s.createUser(t, adminToken, "rita", "rita@example.com", "password123")

	rec := s.do(t, http.MethodGet, "/api/users/report", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []ReportRowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)

	byName := map[string]ReportRowResponse{}
	for _, row := range rows {
		byName[row.Username] = row
	}
	// admin logged in, rita never did
	require.NotNil(t, byName["admin"].DaysInactive)
	assert.Zero(t, *byName["admin"].DaysInactive)
	assert.Nil(t, byName["rita"].DaysInactive)
}

func TestSeededAdminScenario(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	token, role := s.login(t, testAdminEmail, testAdminPassword)
	assert.Equal(t, "admin", role)

	rec := s.do(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, testAdminEmail, users[0].Email)
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "password")
}

func TestHealth_Public(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
