package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/charaka/user-auth-service/internal/config"
	"github.com/charaka/user-auth-service/internal/middleware"
	"github.com/charaka/user-auth-service/internal/model"
	"github.com/charaka/user-auth-service/internal/queue"
	"github.com/charaka/user-auth-service/internal/repository"
	"github.com/charaka/user-auth-service/internal/utils"
)

// Hand-rolled fakes with overridable funcs, one per store contract.

type fakeUserStore struct {
	createFunc         func(ctx context.Context, u model.User, roleIDs []uint64) (uint64, error)
	getByEmailFunc     func(ctx context.Context, email string, activeOnly bool) (model.User, error)
	getByIDFunc        func(ctx context.Context, id uint64) (model.User, error)
	updatePasswordFunc func(ctx context.Context, userID uint64, hash string) error
	updateStatusFunc   func(ctx context.Context, userID uint64, status int, updatedBy uint64) error
	updateProfileFunc  func(ctx context.Context, userID uint64, upd repository.ProfileUpdate) error
	getProfileFunc     func(ctx context.Context, userID uint64) (model.UserProfile, error)
	listFunc           func(ctx context.Context, p repository.ListParams) ([]repository.UserListRow, int, error)
	emailExistsFunc    func(ctx context.Context, email string) (bool, error)
}

func (f *fakeUserStore) Create(ctx context.Context, u model.User, roleIDs []uint64) (uint64, error) {
	if f.createFunc != nil {
		return f.createFunc(ctx, u, roleIDs)
	}
	return 0, errors.New("not implemented")
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string, activeOnly bool) (model.User, error) {
	if f.getByEmailFunc != nil {
		return f.getByEmailFunc(ctx, email, activeOnly)
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	if f.getByIDFunc != nil {
		return f.getByIDFunc(ctx, id)
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) UpdatePassword(ctx context.Context, userID uint64, hash string) error {
	if f.updatePasswordFunc != nil {
		return f.updatePasswordFunc(ctx, userID, hash)
	}
	return errors.New("not implemented")
}

func (f *fakeUserStore) UpdateStatus(ctx context.Context, userID uint64, status int, updatedBy uint64) error {
	if f.updateStatusFunc != nil {
		return f.updateStatusFunc(ctx, userID, status, updatedBy)
	}
	return errors.New("not implemented")
}

func (f *fakeUserStore) UpdateProfile(ctx context.Context, userID uint64, upd repository.ProfileUpdate) error {
	if f.updateProfileFunc != nil {
		return f.updateProfileFunc(ctx, userID, upd)
	}
	return errors.New("not implemented")
}

func (f *fakeUserStore) GetProfile(ctx context.Context, userID uint64) (model.UserProfile, error) {
	if f.getProfileFunc != nil {
		return f.getProfileFunc(ctx, userID)
	}
	return model.UserProfile{}, sql.ErrNoRows
}

func (f *fakeUserStore) List(ctx context.Context, p repository.ListParams) ([]repository.UserListRow, int, error) {
	if f.listFunc != nil {
		return f.listFunc(ctx, p)
	}
	return nil, 0, errors.New("not implemented")
}

func (f *fakeUserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	if f.emailExistsFunc != nil {
		return f.emailExistsFunc(ctx, email)
	}
	return false, errors.New("not implemented")
}

type fakeRoleStore struct {
	rolesForUserFunc func(ctx context.Context, userID uint64) ([]model.Role, error)
	listFunc         func(ctx context.Context) ([]model.Role, error)
	countsFunc       func(ctx context.Context) ([]repository.RoleCount, int, error)
	rolesByUserFunc  func(ctx context.Context) (map[uint64][]string, error)
}

func (f *fakeRoleStore) RolesForUser(ctx context.Context, userID uint64) ([]model.Role, error) {
	if f.rolesForUserFunc != nil {
		return f.rolesForUserFunc(ctx, userID)
	}
	return []model.Role{{ID: 1, Name: "User"}}, nil
}

func (f *fakeRoleStore) List(ctx context.Context) ([]model.Role, error) {
	if f.listFunc != nil {
		return f.listFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (f *fakeRoleStore) Counts(ctx context.Context) ([]repository.RoleCount, int, error) {
	if f.countsFunc != nil {
		return f.countsFunc(ctx)
	}
	return nil, 0, errors.New("not implemented")
}

func (f *fakeRoleStore) RolesByUser(ctx context.Context) (map[uint64][]string, error) {
	if f.rolesByUserFunc != nil {
		return f.rolesByUserFunc(ctx)
	}
	return map[uint64][]string{}, nil
}

type fakeOTPStore struct {
	issueFunc   func(ctx context.Context, userID uint64, code string, expiresAt time.Time) error
	latestFunc  func(ctx context.Context, userID uint64) (model.PasswordOTP, error)
	consumeFunc func(ctx context.Context, userID uint64) error
}

func (f *fakeOTPStore) Issue(ctx context.Context, userID uint64, code string, expiresAt time.Time) error {
	if f.issueFunc != nil {
		return f.issueFunc(ctx, userID, code, expiresAt)
	}
	return errors.New("not implemented")
}

func (f *fakeOTPStore) Latest(ctx context.Context, userID uint64) (model.PasswordOTP, error) {
	if f.latestFunc != nil {
		return f.latestFunc(ctx, userID)
	}
	return model.PasswordOTP{}, sql.ErrNoRows
}

func (f *fakeOTPStore) Consume(ctx context.Context, userID uint64) error {
	if f.consumeFunc != nil {
		return f.consumeFunc(ctx, userID)
	}
	return nil
}

// fakeMailer records sends and signals on a channel so tests can wait for
// the fire-and-forget goroutines without racing.
type fakeMailer struct {
	mu       sync.Mutex
	otps     []string
	welcomes []string
	sent     chan struct{}
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{sent: make(chan struct{}, 8)}
}

func (m *fakeMailer) SendOTP(to, code string, ttlMinutes int) error {
	m.mu.Lock()
	m.otps = append(m.otps, code)
	m.mu.Unlock()
	m.sent <- struct{}{}
	return nil
}

func (m *fakeMailer) SendWelcome(to, name, tempPassword string) error {
	m.mu.Lock()
	m.welcomes = append(m.welcomes, tempPassword)
	m.mu.Unlock()
	m.sent <- struct{}{}
	return nil
}

func (m *fakeMailer) wait(d time.Duration) bool {
	select {
	case <-m.sent:
		return true
	case <-time.After(d):
		return false
	}
}

// ----- shared helpers -----

func testConfig() config.Config {
	return config.Config{
		Env:               "test",
		JWTSecret:         "test-secret",
		BcryptCost:        4,
		TokenTTLMin:       0,
		DefaultRoleID:     1,
		AdminRoleID:       3,
		DefaultUserStatus: model.StatusActive,
		DeleteUserStatus:  model.StatusDeleted,
		OTPLength:         6,
		OTPTTLMin:         10,
		RestrictedOrigins: []string{"portal.internal.example"},
	}
}

func newTestAuthHandler(users *fakeUserStore, roles *fakeRoleStore, otps *fakeOTPStore, mail *fakeMailer) *AuthHandler {
	return &AuthHandler{
		Cfg: testConfig(), Users: users, Roles: roles, OTPs: otps, Mail: mail,
		Audit: func(ctx context.Context, ev queue.AuditEvent) {},
	}
}

func newTestUserHandler(users *fakeUserStore, roles *fakeRoleStore, mail *fakeMailer) *UserHandler {
	return &UserHandler{
		Cfg: testConfig(), Users: users, Roles: roles, Mail: mail,
		Audit: func(ctx context.Context, ev queue.AuditEvent) {},
	}
}

// newRequest builds an Echo context around a JSON request body.
func newRequest(method, path string, body interface{}) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// asSession injects parsed claims the way JWTAuth does for protected routes.
func asSession(c echo.Context, claims utils.SessionClaims) {
	c.Set(middleware.CtxClaims, claims)
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}
