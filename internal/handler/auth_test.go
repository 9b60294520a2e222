package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/charaka/user-auth-service/internal/model"
	"github.com/charaka/user-auth-service/internal/repository"
	"github.com/charaka/user-auth-service/internal/utils"
)

func activeUser(t *testing.T, id uint64, email, password string) model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return model.User{
		ID: id, Email: email, FirstName: "Jane", LastName: "Doe",
		PasswordHash: hash, Status: model.StatusActive,
	}
}

// ----- Register -----

func TestRegister_Success(t *testing.T) {
	var gotUser model.User
	var gotRoles []uint64
	users := &fakeUserStore{
		createFunc: func(ctx context.Context, u model.User, roleIDs []uint64) (uint64, error) {
			gotUser, gotRoles = u, roleIDs
			return 7, nil
		},
	}
	h := newTestAuthHandler(users, &fakeRoleStore{}, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPost, "/auth/register", registerReq{
		FirstName: "Jane", LastName: "Doe", Email: "Jane@Example.com", Password: "abc1@x",
	})
	if err := h.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if gotUser.Email != "jane@example.com" {
		t.Errorf("email not normalized: %q", gotUser.Email)
	}
	if gotUser.Status != model.StatusActive {
		t.Errorf("status = %d, want default %d", gotUser.Status, model.StatusActive)
	}
	if len(gotRoles) != 1 || gotRoles[0] != 1 {
		t.Errorf("roles = %v, want default role only", gotRoles)
	}
	if !utils.VerifyPassword(gotUser.PasswordHash, "abc1@x") {
		t.Error("stored hash does not match submitted password")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := &fakeUserStore{
		createFunc: func(ctx context.Context, u model.User, roleIDs []uint64) (uint64, error) {
			return 0, repository.ErrEmailExists
		},
	}
	h := newTestAuthHandler(users, &fakeRoleStore{}, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPost, "/auth/register", registerReq{
		FirstName: "Jane", Email: "jane@example.com", Password: "abc1@x",
	})
	if err := h.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestRegister_Validation(t *testing.T) {
	h := newTestAuthHandler(&fakeUserStore{}, &fakeRoleStore{}, &fakeOTPStore{}, newFakeMailer())
	cases := []struct {
		name string
		req  registerReq
	}{
		{"empty first name", registerReq{Email: "a@b.com", Password: "abc1@x"}},
		{"first name too long", registerReq{FirstName: strings.Repeat("a", 21), Email: "a@b.com", Password: "abc1@x"}},
		{"digits in name", registerReq{FirstName: "Jane99", Email: "a@b.com", Password: "abc1@x"}},
		{"bad email", registerReq{FirstName: "Jane", Email: "not-an-email", Password: "abc1@x"}},
		{"weak password", registerReq{FirstName: "Jane", Email: "a@b.com", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newRequest(http.MethodPost, "/auth/register", tc.req)
			if err := h.Register(c); err != nil {
				t.Fatalf("Register: %v", err)
			}
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", rec.Code)
			}
			body := decodeBody(rec)
			if _, ok := body["fields"]; !ok {
				t.Error("expected field-level detail in response")
			}
		})
	}
}

// ----- Login -----

func loginStores(t *testing.T, roles []model.Role) (*fakeUserStore, *fakeRoleStore) {
	u := activeUser(t, 7, "jane@example.com", "abc1@x")
	users := &fakeUserStore{
		getByEmailFunc: func(ctx context.Context, email string, activeOnly bool) (model.User, error) {
			if email == u.Email {
				return u, nil
			}
			return model.User{}, sql.ErrNoRows
		},
	}
	rs := &fakeRoleStore{
		rolesForUserFunc: func(ctx context.Context, userID uint64) ([]model.Role, error) {
			return roles, nil
		},
	}
	return users, rs
}

func TestLogin_Success(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}, {ID: 3, Name: "Admin"}})
	h := newTestAuthHandler(users, roles, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPost, "/auth/login", loginReq{Email: "jane@example.com", Password: "abc1@x"})
	if err := h.Login(c); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(rec)
	tokStr, _ := body["token"].(string)
	if tokStr == "" {
		t.Fatal("token missing from body")
	}
	claims, err := utils.ParseSessionToken("test-secret", tokStr)
	if err != nil {
		t.Fatalf("body token does not parse: %v", err)
	}
	if claims.UserID != 7 || claims.Email != "jane@example.com" {
		t.Errorf("claims mismatch: %+v", claims)
	}
	if len(claims.RoleIDs) != 2 {
		t.Errorf("role ids = %v, want both roles", claims.RoleIDs)
	}

	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "token" {
			cookie = ck
		}
	}
	if cookie == nil {
		t.Fatal("token cookie not set")
	}
	if cookie.Value != tokStr {
		t.Error("cookie token differs from body token")
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteNoneMode {
		t.Errorf("cookie flags wrong: HttpOnly=%v Secure=%v SameSite=%v", cookie.HttpOnly, cookie.Secure, cookie.SameSite)
	}
	if !cookie.Expires.IsZero() {
		t.Errorf("cookie Expires = %v, want session cookie for TTL 0", cookie.Expires)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	h := newTestAuthHandler(users, roles, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPost, "/auth/login", loginReq{Email: "jane@example.com", Password: "wrong1@"})
	if err := h.Login(c); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	h := newTestAuthHandler(users, roles, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPost, "/auth/login", loginReq{Email: "nobody@example.com", Password: "abc1@x"})
	if err := h.Login(c); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_RestrictedOrigin(t *testing.T) {
	cases := []struct {
		name   string
		roles  []model.Role
		origin string
		want   int
	}{
		{"default role from restricted origin", []model.Role{{ID: 1, Name: "User"}}, "https://portal.internal.example", http.StatusForbidden},
		{"default role from open origin", []model.Role{{ID: 1, Name: "User"}}, "https://app.example.com", http.StatusOK},
		{"elevated role from restricted origin", []model.Role{{ID: 1, Name: "User"}, {ID: 3, Name: "Admin"}}, "https://portal.internal.example", http.StatusOK},
		{"no origin header", []model.Role{{ID: 1, Name: "User"}}, "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users, roles := loginStores(t, tc.roles)
			h := newTestAuthHandler(users, roles, &fakeOTPStore{}, newFakeMailer())

			c, rec := newRequest(http.MethodPost, "/auth/login", loginReq{Email: "jane@example.com", Password: "abc1@x"})
			if tc.origin != "" {
				c.Request().Header.Set("Origin", tc.origin)
			}
			if err := h.Login(c); err != nil {
				t.Fatalf("Login: %v", err)
			}
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

// ----- ForgotPassword / VerifyOTP / ResetPassword -----

func TestForgotPassword_IssuesAndMailsOTP(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	var issued string
	otps := &fakeOTPStore{
		issueFunc: func(ctx context.Context, userID uint64, code string, expiresAt time.Time) error {
			issued = code
			if userID != 7 {
				t.Errorf("issue userID = %d, want 7", userID)
			}
			if until := time.Until(expiresAt); until < 9*time.Minute || until > 11*time.Minute {
				t.Errorf("expiry %v not ~10 minutes out", until)
			}
			return nil
		},
	}
	mail := newFakeMailer()
	h := newTestAuthHandler(users, roles, otps, mail)

	c, rec := newRequest(http.MethodPost, "/auth/forgot-password", forgotPasswordReq{Email: "jane@example.com"})
	if err := h.ForgotPassword(c); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(issued) != 6 {
		t.Errorf("issued code %q, want 6 digits", issued)
	}
	if !mail.wait(time.Second) {
		t.Fatal("otp mail never sent")
	}
	mail.mu.Lock()
	defer mail.mu.Unlock()
	if len(mail.otps) != 1 || mail.otps[0] != issued {
		t.Errorf("mailed code %v, want %q", mail.otps, issued)
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	h := newTestAuthHandler(users, roles, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPost, "/auth/forgot-password", forgotPasswordReq{Email: "nobody@example.com"})
	if err := h.ForgotPassword(c); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func otpStore(code string, expiresAt time.Time, consumed *bool) *fakeOTPStore {
	return &fakeOTPStore{
		latestFunc: func(ctx context.Context, userID uint64) (model.PasswordOTP, error) {
			return model.PasswordOTP{UserID: userID, Code: code, ExpiresAt: expiresAt}, nil
		},
		consumeFunc: func(ctx context.Context, userID uint64) error {
			if consumed != nil {
				*consumed = true
			}
			return nil
		},
	}
}

func TestVerifyOTP(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	cases := []struct {
		name    string
		otp     string
		expires time.Time
		submit  string
		want    int
		wantMsg string
	}{
		{"valid", "123456", time.Now().UTC().Add(5 * time.Minute), "123456", http.StatusOK, ""},
		{"wrong code", "123456", time.Now().UTC().Add(5 * time.Minute), "654321", http.StatusUnauthorized, "invalid otp"},
		{"expired", "123456", time.Now().UTC().Add(-time.Minute), "123456", http.StatusUnauthorized, "otp expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			consumed := false
			h := newTestAuthHandler(users, roles, otpStore(tc.otp, tc.expires, &consumed), newFakeMailer())

			c, rec := newRequest(http.MethodPost, "/auth/verify-otp", verifyOTPReq{Email: "jane@example.com", OTP: tc.submit})
			if err := h.VerifyOTP(c); err != nil {
				t.Fatalf("VerifyOTP: %v", err)
			}
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.wantMsg != "" {
				if got, _ := decodeBody(rec)["error"].(string); got != tc.wantMsg {
					t.Errorf("error = %q, want %q", got, tc.wantMsg)
				}
			}
			if consumed {
				t.Error("verify must not consume the otp")
			}
		})
	}
}

func TestVerifyOTP_NoneIssued(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	h := newTestAuthHandler(users, roles, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPost, "/auth/verify-otp", verifyOTPReq{Email: "jane@example.com", OTP: "123456"})
	if err := h.VerifyOTP(c); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when no otp exists", rec.Code)
	}
}

func TestResetPassword_Success(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	var newHash string
	users.updatePasswordFunc = func(ctx context.Context, userID uint64, hash string) error {
		newHash = hash
		return nil
	}
	consumed := false
	h := newTestAuthHandler(users, roles, otpStore("123456", time.Now().UTC().Add(5*time.Minute), &consumed), newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/reset-password", resetPasswordReq{
		Email: "jane@example.com", OTP: "123456",
		NewPassword: "fresh1@", ConfirmPassword: "fresh1@",
	})
	if err := h.ResetPassword(c); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !utils.VerifyPassword(newHash, "fresh1@") {
		t.Error("stored hash does not match new password")
	}
	if !consumed {
		t.Error("otp was not consumed after reset")
	}
}

func TestResetPassword_SameAsCurrent(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	h := newTestAuthHandler(users, roles, otpStore("123456", time.Now().UTC().Add(5*time.Minute), nil), newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/reset-password", resetPasswordReq{
		Email: "jane@example.com", OTP: "123456",
		NewPassword: "abc1@x", ConfirmPassword: "abc1@x",
	})
	if err := h.ResetPassword(c); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 for unchanged password", rec.Code)
	}
}

func TestResetPassword_ConfirmMismatch(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	h := newTestAuthHandler(users, roles, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/reset-password", resetPasswordReq{
		Email: "jane@example.com", OTP: "123456",
		NewPassword: "fresh1@", ConfirmPassword: "other1@",
	})
	if err := h.ResetPassword(c); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestResetPassword_WrongOTP(t *testing.T) {
	users, roles := loginStores(t, []model.Role{{ID: 1, Name: "User"}})
	consumed := false
	h := newTestAuthHandler(users, roles, otpStore("123456", time.Now().UTC().Add(5*time.Minute), &consumed), newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/reset-password", resetPasswordReq{
		Email: "jane@example.com", OTP: "000000",
		NewPassword: "fresh1@", ConfirmPassword: "fresh1@",
	})
	if err := h.ResetPassword(c); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if consumed {
		t.Error("failed reset must not consume the otp")
	}
}

// ----- ChangePassword -----

func TestChangePassword_Success(t *testing.T) {
	u := activeUser(t, 7, "jane@example.com", "abc1@x")
	var newHash string
	users := &fakeUserStore{
		getByIDFunc: func(ctx context.Context, id uint64) (model.User, error) { return u, nil },
		updatePasswordFunc: func(ctx context.Context, userID uint64, hash string) error {
			newHash = hash
			return nil
		},
	}
	h := newTestAuthHandler(users, &fakeRoleStore{}, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/change-password", changePasswordReq{
		CurrentPassword: "abc1@x", NewPassword: "fresh1@", ConfirmPassword: "fresh1@",
	})
	asSession(c, utils.SessionClaims{UserID: 7, Email: "jane@example.com"})
	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !utils.VerifyPassword(newHash, "fresh1@") {
		t.Error("stored hash does not match new password")
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	u := activeUser(t, 7, "jane@example.com", "abc1@x")
	users := &fakeUserStore{
		getByIDFunc: func(ctx context.Context, id uint64) (model.User, error) { return u, nil },
	}
	h := newTestAuthHandler(users, &fakeRoleStore{}, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/change-password", changePasswordReq{
		CurrentPassword: "nope1@", NewPassword: "fresh1@", ConfirmPassword: "fresh1@",
	})
	asSession(c, utils.SessionClaims{UserID: 7})
	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestChangePassword_SameAsCurrent(t *testing.T) {
	h := newTestAuthHandler(&fakeUserStore{}, &fakeRoleStore{}, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/change-password", changePasswordReq{
		CurrentPassword: "abc1@x", NewPassword: "abc1@x", ConfirmPassword: "abc1@x",
	})
	asSession(c, utils.SessionClaims{UserID: 7})
	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestChangePassword_InactiveAccount(t *testing.T) {
	u := activeUser(t, 7, "jane@example.com", "abc1@x")
	u.Status = model.StatusInactive
	users := &fakeUserStore{
		getByIDFunc: func(ctx context.Context, id uint64) (model.User, error) { return u, nil },
	}
	h := newTestAuthHandler(users, &fakeRoleStore{}, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/change-password", changePasswordReq{
		CurrentPassword: "abc1@x", NewPassword: "fresh1@", ConfirmPassword: "fresh1@",
	})
	asSession(c, utils.SessionClaims{UserID: 7})
	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestChangePassword_NoSession(t *testing.T) {
	h := newTestAuthHandler(&fakeUserStore{}, &fakeRoleStore{}, &fakeOTPStore{}, newFakeMailer())

	c, rec := newRequest(http.MethodPut, "/auth/change-password", changePasswordReq{
		CurrentPassword: "abc1@x", NewPassword: "fresh1@", ConfirmPassword: "fresh1@",
	})
	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
