package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"users-api/internal/domain"
	"users-api/internal/repository"
	"users-api/internal/service"
)

type mockUserRepo struct {
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if _, taken := m.usersByEmail[user.Email]; taken {
		return repository.ErrDuplicateEmail
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := m.usersByEmail[email]
	return ok, nil
}

func (m *mockUserRepo) Update(_ context.Context, id, displayName string, role domain.Role, updatedAt time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.DisplayName = displayName
	user.Role = role
	user.UpdatedAt = &updatedAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string, updatedAt time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = &updatedAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(m.usersByEmail, user.Email)
	delete(m.usersByID, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, emailFilter string, limit, offset int) ([]domain.User, error) {
	var matched []domain.User
	for _, user := range m.usersByID {
		if emailFilter == "" || strings.Contains(user.Email, emailFilter) {
			matched = append(matched, user)
		}
	}
	for i := 0; i < len(matched); i++ {
		for j := i + 1; j < len(matched); j++ {
			if matched[j].Email < matched[i].Email {
				matched[i], matched[j] = matched[j], matched[i]
			}
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (m *mockUserRepo) Count(_ context.Context, emailFilter string) (int, error) {
	total := 0
	for _, user := range m.usersByID {
		if emailFilter == "" || strings.Contains(user.Email, emailFilter) {
			total++
		}
	}
	return total, nil
}

type testEnv struct {
	router   *gin.Engine
	userSvc  *service.UserService
	tokenSvc *service.TokenService
	repo     *mockUserRepo
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := newMockUserRepo()
	userSvc := service.NewUserService(zap.NewNop(), repo, nil)
	tokenSvc := newTestTokenService()
	handler := NewUserHandler(zap.NewNop(), userSvc, tokenSvc)
	router := NewRouter(zap.NewNop(), handler, tokenSvc, nil)
	return &testEnv{router: router, userSvc: userSvc, tokenSvc: tokenSvc, repo: repo}
}

func performRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, env *testEnv, email, password, name string, role domain.Role) domain.User {
	t.Helper()
	user, err := env.userSvc.Register(context.Background(), service.RegisterInput{
		Email:       email,
		Password:    password,
		DisplayName: name,
		Role:        role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func tokenFor(t *testing.T, env *testEnv, user domain.User) string {
	t.Helper()
	token, err := env.tokenSvc.Issue(user)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestRegisterEndpoint_CreatesUser(t *testing.T) {
	env := setupTestEnv(t)

	rec := performRequest(env.router, http.MethodPost, "/auth/register", "", map[string]string{
		"email":       "User@Example.com",
		"password":    "secret1",
		"displayName": "Ana",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.Email != "user@example.com" || resp.User.Role != domain.RoleStudent {
		t.Fatalf("unexpected user view: %+v", resp.User)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response must not leak password material: %s", rec.Body.String())
	}
}

func TestRegisterEndpoint_DuplicateEmailConflict(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "user@example.com", "secret1", "Ana", "")

	rec := performRequest(env.router, http.MethodPost, "/auth/register", "", map[string]string{
		"email":       "  USER@EXAMPLE.COM ",
		"password":    "secret2",
		"displayName": "Ana Clone",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLoginEndpoint_IssuesToken(t *testing.T) {
	env := setupTestEnv(t)
	user := registerUser(t, env, "user@example.com", "secret1", "Ana", "")

	rec := performRequest(env.router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "user@example.com",
		"password": "secret1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := env.tokenSvc.Verify(resp.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.Subject != user.ID || claims.Role != "STUDENT" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginEndpoint_NormalizesEmail(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "user@example.com", "secret1", "Ana", "")

	rec := performRequest(env.router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "  USER@Example.COM ",
		"password": "secret1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for padded email, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginEndpoint_InvalidCredentials(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "user@example.com", "secret1", "Ana", "")

	wrongPass := performRequest(env.router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "user@example.com",
		"password": "bad-pass",
	})
	unknownUser := performRequest(env.router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "ghost@example.com",
		"password": "bad-pass",
	})

	if wrongPass.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both, got %d and %d", wrongPass.Code, unknownUser.Code)
	}
	if wrongPass.Body.String() != unknownUser.Body.String() {
		t.Fatalf("login failures must be indistinguishable: %s vs %s",
			wrongPass.Body.String(), unknownUser.Body.String())
	}
}

func TestValidateEndpoint_ValidToken(t *testing.T) {
	env := setupTestEnv(t)
	user := registerUser(t, env, "user@example.com", "secret1", "Ana", "")
	token := tokenFor(t, env, user)

	rec := performRequest(env.router, http.MethodPost, "/auth/validate", "", map[string]string{"token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp service.IntrospectionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Valid || resp.Claims["sub"] != user.ID {
		t.Fatalf("unexpected introspection: %+v", resp)
	}
}

func TestValidateEndpoint_InvalidTokenStill200(t *testing.T) {
	env := setupTestEnv(t)

	rec := performRequest(env.router, http.MethodPost, "/auth/validate", "", map[string]string{"token": "garbage"})
	if rec.Code != http.StatusOK {
		t.Fatalf("introspection must answer 200 for invalid tokens, got %d", rec.Code)
	}

	var resp service.IntrospectionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Valid || resp.Reason != "malformed" {
		t.Fatalf("expected valid=false reason=malformed, got %+v", resp)
	}
}

func TestValidateEndpoint_MissingTokenBadRequest(t *testing.T) {
	env := setupTestEnv(t)

	rec := performRequest(env.router, http.MethodPost, "/auth/validate", "", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing token, got %d", rec.Code)
	}
}

func TestListUsers_AdminOnly(t *testing.T) {
	env := setupTestEnv(t)
	student := registerUser(t, env, "user@example.com", "secret1", "Ana", "")

	noToken := performRequest(env.router, http.MethodGet, "/users", "", nil)
	if noToken.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", noToken.Code)
	}

	studentRec := performRequest(env.router, http.MethodGet, "/users", tokenFor(t, env, student), nil)
	if studentRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student, got %d", studentRec.Code)
	}
}

func TestEndToEnd_SeedLoginList(t *testing.T) {
	env := setupTestEnv(t)
	if err := env.userSvc.SeedAdmin(context.Background(), "admin@example.com", "Admin@123", "Administrator"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	login := performRequest(env.router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "admin@example.com",
		"password": "Admin@123",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d: %s", login.Code, login.Body.String())
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(login.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	list := performRequest(env.router, http.MethodGet, "/users", loginResp.Token, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200 on list, got %d: %s", list.Code, list.Body.String())
	}
	var page domain.PagedResult
	if err := json.Unmarshal(list.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	seen := 0
	for _, item := range page.Items {
		if item.Email == "admin@example.com" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("expected seeded admin exactly once, got %d in %+v", seen, page.Items)
	}
}

func TestGetUser_NotFoundBeforeForbidden(t *testing.T) {
	env := setupTestEnv(t)
	student := registerUser(t, env, "user@example.com", "secret1", "Ana", "")
	other := registerUser(t, env, "other@example.com", "secret1", "Bruno", "")
	token := tokenFor(t, env, student)

	missing := performRequest(env.router, http.MethodGet, "/users/missing-id", token, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", missing.Code)
	}

	foreign := performRequest(env.router, http.MethodGet, "/users/"+other.ID, token, nil)
	if foreign.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign account, got %d", foreign.Code)
	}

	self := performRequest(env.router, http.MethodGet, "/users/"+student.ID, token, nil)
	if self.Code != http.StatusOK {
		t.Fatalf("expected 200 for self access, got %d", self.Code)
	}
}

func TestUpdateUser_SelfRoleIgnored(t *testing.T) {
	env := setupTestEnv(t)
	student := registerUser(t, env, "user@example.com", "secret1", "Ana", "")

	rec := performRequest(env.router, http.MethodPut, "/users/"+student.ID, tokenFor(t, env, student), map[string]string{
		"displayName": "Ana Maria",
		"role":        "ADMIN",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.DisplayName != "Ana Maria" {
		t.Fatalf("expected name updated, got %q", resp.User.DisplayName)
	}
	if resp.User.Role != domain.RoleStudent {
		t.Fatalf("expected role unchanged, got %q", resp.User.Role)
	}
}

func TestChangePassword_SelfService(t *testing.T) {
	env := setupTestEnv(t)
	student := registerUser(t, env, "user@example.com", "secret1", "Ana", "")
	token := tokenFor(t, env, student)

	wrong := performRequest(env.router, http.MethodPut, "/users/"+student.ID+"/password", token, map[string]string{
		"currentPassword": "not-it",
		"newPassword":     "new-secret",
	})
	if wrong.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong current password, got %d", wrong.Code)
	}

	ok := performRequest(env.router, http.MethodPut, "/users/"+student.ID+"/password", token, map[string]string{
		"currentPassword": "secret1",
		"newPassword":     "new-secret",
	})
	if ok.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", ok.Code, ok.Body.String())
	}
}

func TestDeleteUser_AdminOnly(t *testing.T) {
	env := setupTestEnv(t)
	admin := registerUser(t, env, "admin@example.com", "Admin@123", "Administrator", domain.RoleAdmin)
	student := registerUser(t, env, "user@example.com", "secret1", "Ana", "")

	denied := performRequest(env.router, http.MethodDelete, "/users/"+student.ID, tokenFor(t, env, student), nil)
	if denied.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student delete, got %d", denied.Code)
	}

	adminToken := tokenFor(t, env, admin)
	deleted := performRequest(env.router, http.MethodDelete, "/users/"+student.ID, adminToken, nil)
	if deleted.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", deleted.Code)
	}

	again := performRequest(env.router, http.MethodDelete, "/users/"+student.ID, adminToken, nil)
	if again.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", again.Code)
	}
}

func TestCreateUserEndpoint_AdminOnly(t *testing.T) {
	env := setupTestEnv(t)
	admin := registerUser(t, env, "admin@example.com", "Admin@123", "Administrator", domain.RoleAdmin)

	rec := performRequest(env.router, http.MethodPost, "/users", tokenFor(t, env, admin), map[string]string{
		"email":       "new@example.com",
		"password":    "secret1",
		"displayName": "Nuevo",
		"role":        "ADMIN",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.Role != domain.RoleAdmin {
		t.Fatalf("expected explicit role honored on admin create, got %q", resp.User.Role)
	}
}
