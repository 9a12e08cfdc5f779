package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novap2p/novap2p/shared/auth"
	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/middleware"
	"github.com/novap2p/novap2p/shared/models"
)

// ---- mock implementations ----

type mockUserCommander struct {
	createFn func(cqrs.CreateUserCommand) (*models.Identity, error)
}

func (m *mockUserCommander) CreateUser(_ context.Context, cmd cqrs.CreateUserCommand) (*models.Identity, error) {
	if m.createFn != nil {
		return m.createFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

type mockUserQuerier struct {
	getFn  func(cqrs.GetUserQuery) (*models.Identity, error)
	listFn func(cqrs.ListUsersByRoleQuery) ([]models.DepositorView, error)
}

func (m *mockUserQuerier) GetUser(_ context.Context, q cqrs.GetUserQuery) (*models.Identity, error) {
	if m.getFn != nil {
		return m.getFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockUserQuerier) ListByRole(_ context.Context, q cqrs.ListUsersByRoleQuery) ([]models.DepositorView, error) {
	if m.listFn != nil {
		return m.listFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

// ---- helpers ----

func fakeAuthUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetIdentity(c, &auth.Claims{UserID: userID})
		c.Next()
	}
}

func newUserTestRouter(cmds UserCommander, qrys UserQuerier, authUserID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewUserHandler(cmds, qrys)
	v1 := r.Group("/v1/users")
	v1.POST("", h.CreateUser)
	v1.GET("", fakeAuthUser(authUserID), h.ListUsers)
	v1.GET("/:userId", fakeAuthUser(authUserID), h.GetUser)
	return r
}

func userDoRequest(router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, url, nil)
	if body != nil {
		b, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, url, strings.NewReader(string(b)))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ---- test data ----

var uTestIdentity = &models.Identity{
	ID: "usr-001", Email: "alice@example.com", Username: "alice",
	Role: models.RoleDepositor, CreatedAt: time.Now(),
}

func uValidCreateBody() map[string]interface{} {
	return map[string]interface{}{
		"email": "alice@example.com", "username": "alice",
		"password": "securepass123", "confirm_password": "securepass123",
		"role": "depositor",
	}
}

// ---- tests ----

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		createFn       func(cqrs.CreateUserCommand) (*models.Identity, error)
		expectedStatus int
	}{
		{
			name:           "success - creates new depositor",
			body:           uValidCreateBody(),
			createFn:       func(cmd cqrs.CreateUserCommand) (*models.Identity, error) { return uTestIdentity, nil },
			expectedStatus: http.StatusCreated,
		},
		{
			name: "success - empty role accepted",
			body: func() map[string]interface{} {
				b := uValidCreateBody()
				delete(b, "role")
				return b
			}(),
			createFn: func(cmd cqrs.CreateUserCommand) (*models.Identity, error) {
				return &models.Identity{ID: "usr-002", Role: models.NormalizeRole(cmd.Role)}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "bad request - missing required fields",
			body:           map[string]interface{}{"email": "alice@example.com"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad request - passwords do not match",
			body: func() map[string]interface{} {
				b := uValidCreateBody()
				b["confirm_password"] = "different123"
				return b
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad request - unknown role",
			body: func() map[string]interface{} {
				b := uValidCreateBody()
				b["role"] = "admin"
				return b
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "conflict - email already registered",
			body: uValidCreateBody(),
			createFn: func(cmd cqrs.CreateUserCommand) (*models.Identity, error) {
				return nil, fmt.Errorf("%s: %w", cmd.Email, errs.ErrEmailTaken)
			},
			expectedStatus: http.StatusConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := &mockUserCommander{createFn: tt.createFn}
			router := newUserTestRouter(cmds, &mockUserQuerier{}, "")
			w := userDoRequest(router, http.MethodPost, "/v1/users", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateUserMismatchNamesConfirmField(t *testing.T) {
	body := uValidCreateBody()
	body["confirm_password"] = "different123"
	router := newUserTestRouter(&mockUserCommander{}, &mockUserQuerier{}, "")
	w := userDoRequest(router, http.MethodPost, "/v1/users", body)

	var resp middleware.BadRequestErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Details) != 1 || resp.Details[0].Field != "confirm_password" || resp.Details[0].Type != "eqfield" {
		t.Errorf("unexpected details %+v", resp.Details)
	}
}

func TestGetUser(t *testing.T) {
	tests := []struct {
		name           string
		urlUserID      string
		authUserID     string
		getFn          func(cqrs.GetUserQuery) (*models.Identity, error)
		expectedStatus int
	}{
		{
			name:      "success - fetch own identity",
			urlUserID: "usr-001", authUserID: "usr-001",
			getFn:          func(q cqrs.GetUserQuery) (*models.Identity, error) { return uTestIdentity, nil },
			expectedStatus: http.StatusOK,
		},
		{
			name:      "forbidden - fetch another user's identity",
			urlUserID: "usr-002", authUserID: "usr-001",
			getFn:          func(q cqrs.GetUserQuery) (*models.Identity, error) { return nil, errs.ErrForbidden },
			expectedStatus: http.StatusForbidden,
		},
		{
			name:      "not found - user does not exist",
			urlUserID: "usr-999", authUserID: "usr-999",
			getFn: func(q cqrs.GetUserQuery) (*models.Identity, error) {
				return nil, fmt.Errorf("user %s: %w", q.UserID, errs.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:      "bad request - not a user id",
			urlUserID: "acc-001", authUserID: "usr-001",
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newUserTestRouter(&mockUserCommander{}, &mockUserQuerier{getFn: tt.getFn}, tt.authUserID)
			w := userDoRequest(router, http.MethodGet, "/v1/users/"+tt.urlUserID, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestListUsers(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		wantRole       string
		listErr        error
		expectedStatus int
	}{
		{"default role is depositor", "/v1/users", models.RoleDepositor, nil, http.StatusOK},
		{"explicit depositor role", "/v1/users?role=depositor", models.RoleDepositor, nil, http.StatusOK},
		{"unknown role", "/v1/users?role=admin", "", nil, http.StatusBadRequest},
		{"store unavailable", "/v1/users?role=depositor", models.RoleDepositor, errs.ErrStoreUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listFn := func(q cqrs.ListUsersByRoleQuery) ([]models.DepositorView, error) {
				if q.Role != tt.wantRole {
					return nil, fmt.Errorf("unexpected role %q", q.Role)
				}
				if tt.listErr != nil {
					return nil, tt.listErr
				}
				return []models.DepositorView{{ID: "usr-001", Email: "alice@example.com", Role: q.Role, AssignedAccounts: 2}}, nil
			}
			router := newUserTestRouter(&mockUserCommander{}, &mockUserQuerier{listFn: listFn}, "usr-giver")
			w := userDoRequest(router, http.MethodGet, tt.url, nil)
			if w.Code != tt.expectedStatus {
				t.Fatalf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}
			var resp ListUsersResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Users) != 1 || resp.Users[0].AssignedAccounts != 2 {
				t.Errorf("unexpected users %+v", resp.Users)
			}
		})
	}
}
