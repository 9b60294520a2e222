package handler

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/charaka/user-auth-service/internal/config"
	"github.com/charaka/user-auth-service/internal/mailer"
	"github.com/charaka/user-auth-service/internal/middleware"
	"github.com/charaka/user-auth-service/internal/model"
	"github.com/charaka/user-auth-service/internal/queue"
	"github.com/charaka/user-auth-service/internal/repository"
	audit_publisher "github.com/charaka/user-auth-service/internal/service"
	"github.com/charaka/user-auth-service/internal/utils"
)

// Store contracts consumed by the handlers.  The concrete implementations
// live in internal/repository; tests substitute fakes.

type UserStore interface {
	Create(ctx context.Context, u model.User, roleIDs []uint64) (uint64, error)
	GetByEmail(ctx context.Context, email string, activeOnly bool) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdatePassword(ctx context.Context, userID uint64, hash string) error
	UpdateStatus(ctx context.Context, userID uint64, status int, updatedBy uint64) error
	UpdateProfile(ctx context.Context, userID uint64, upd repository.ProfileUpdate) error
	GetProfile(ctx context.Context, userID uint64) (model.UserProfile, error)
	List(ctx context.Context, p repository.ListParams) ([]repository.UserListRow, int, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type RoleStore interface {
	RolesForUser(ctx context.Context, userID uint64) ([]model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	Counts(ctx context.Context) ([]repository.RoleCount, int, error)
	RolesByUser(ctx context.Context) (map[uint64][]string, error)
}

type OTPStore interface {
	Issue(ctx context.Context, userID uint64, code string, expiresAt time.Time) error
	Latest(ctx context.Context, userID uint64) (model.PasswordOTP, error)
	Consume(ctx context.Context, userID uint64) error
}

// AuditFunc publishes an audit event; failures never fail the request.
type AuditFunc func(ctx context.Context, event queue.AuditEvent)

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg   config.Config
	Users UserStore
	Roles RoleStore
	OTPs  OTPStore
	Mail  mailer.Mailer
	Audit AuditFunc
}

func NewAuthHandler(cfg config.Config, u UserStore, r RoleStore, o OTPStore, m mailer.Mailer) *AuthHandler {
	return &AuthHandler{
		Cfg:   cfg,
		Users: u,
		Roles: r,
		OTPs:  o,
		Mail:  m,
		Audit: func(ctx context.Context, ev queue.AuditEvent) {
			_ = audit_publisher.PublishAudit(ctx, ev)
		},
	}
}

const dbTimeout = 5 * time.Second

// ----- DTOs -----

type registerReq struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type forgotPasswordReq struct {
	Email string `json:"email"`
}
type verifyOTPReq struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}
type resetPasswordReq struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type userPart struct {
	ID          uint64   `json:"id"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	CountryCode int      `json:"countryCode,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Address     string   `json:"address,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	RoleIDs     []uint64 `json:"roleIds"`
	RoleNames   []string `json:"roleNames"`
}
type loginResp struct {
	User  userPart `json:"user"`
	Token string   `json:"token"`
}

// fieldError reports a validation failure with field-level detail.
func fieldError(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusUnprocessableEntity, echo.Map{
		"error": "validation failed",
		"fields": []echo.Map{
			{"field": field, "message": msg},
		},
	})
}

func validName(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if !(r == ' ' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

func validEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// Register: create an account with the configured default status and role.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !validName(req.FirstName) {
		return fieldError(c, "firstName", "first name must be 1-20 letters")
	}
	if !validEmail(req.Email) {
		return fieldError(c, "email", "email must be a valid email address")
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return fieldError(c, "password", err.Error())
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, model.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		Status:       h.Cfg.DefaultUserStatus,
	}, []uint64{h.Cfg.DefaultRoleID})
	if err != nil {
		if err == repository.ErrEmailExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		log.Printf("register: create user failed for %s: %v", req.Email, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	h.Audit(ctx, queue.AuditEvent{Action: queue.ActionUserRegistered, UserID: uid, Email: req.Email})
	return c.JSON(http.StatusOK, echo.Map{"message": "registered successfully"})
}

// Login: verify credentials, apply the origin policy gate, then hand back a
// signed session token in both the body and an HTTP-only cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fieldError(c, "email", "email and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email, true)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		log.Printf("login: query failed for %s: %v", req.Email, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	roles, err := h.Roles.RolesForUser(ctx, u.ID)
	if err != nil {
		log.Printf("login: load roles failed for user %d: %v", u.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	// Authorization gate, distinct from authentication: accounts holding
	// only the default role may not sign in from a restricted origin.
	if h.defaultRoleOnly(roles) && h.restrictedOrigin(c.Request().Header.Get("Origin")) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access from this origin is restricted"})
	}

	profile, err := h.Users.GetProfile(ctx, u.ID)
	if err != nil && err != sql.ErrNoRows {
		log.Printf("login: load profile failed for user %d: %v", u.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	claims := utils.SessionClaims{
		UserID:      u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		CountryCode: profile.CountryCode,
		Phone:       profile.Phone,
		Address:     profile.Address,
		Avatar:      profile.Avatar,
	}
	for _, r := range roles {
		claims.RoleIDs = append(claims.RoleIDs, r.ID)
		claims.RoleNames = append(claims.RoleNames, r.Name)
	}

	tok, err := utils.NewSessionToken(h.Cfg.JWTSecret, claims, h.Cfg.TokenTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}

	// Dual delivery: cookie for browser clients, body for stored-token ones.
	cookie := &http.Cookie{
		Name:     "token",
		Value:    tok.Token,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
	}
	if !tok.Exp.IsZero() {
		cookie.Expires = tok.Exp
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, loginResp{
		User: userPart{
			ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
			CountryCode: profile.CountryCode, Phone: profile.Phone,
			Address: profile.Address, Avatar: profile.Avatar,
			RoleIDs: claims.RoleIDs, RoleNames: claims.RoleNames,
		},
		Token: tok.Token,
	})
}

// defaultRoleOnly reports whether the role set is exactly the default role.
func (h *AuthHandler) defaultRoleOnly(roles []model.Role) bool {
	return len(roles) == 1 && roles[0].ID == h.Cfg.DefaultRoleID
}

// restrictedOrigin compares the normalized origin host against the
// configured deny list.  Exact host comparison, no substring matching.
func (h *AuthHandler) restrictedOrigin(origin string) bool {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return false
	}
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	for _, restricted := range h.Cfg.RestrictedOrigins {
		if host == restricted {
			return true
		}
	}
	return false
}

// ForgotPassword: issue a reset code for an existing active account and mail
// it out.  The response reflects persistence only; mail delivery runs in the
// background and its failure is logged, not surfaced.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(req.Email) {
		return fieldError(c, "email", "email must be a valid email address")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email, true)
	if err != nil {
		if err == sql.ErrNoRows {
			// Existence is leaked on purpose: the UI tells the user to fix
			// their address instead of waiting for a mail that never comes.
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no account found for this email"})
		}
		log.Printf("forgot-password: query failed for %s: %v", req.Email, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	code, err := utils.NewNumericCode(h.Cfg.OTPLength)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue otp failed"})
	}
	ttl := h.Cfg.OTPTTLMin
	if err := h.OTPs.Issue(ctx, u.ID, code, time.Now().UTC().Add(time.Duration(ttl)*time.Minute)); err != nil {
		log.Printf("forgot-password: store otp failed for user %d: %v", u.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue otp failed"})
	}

	go func(to, code string) {
		if err := h.Mail.SendOTP(to, code, ttl); err != nil {
			log.Printf("forgot-password: send mail to %s failed: %v", to, err)
		}
	}(u.Email, code)

	return c.JSON(http.StatusOK, echo.Map{"message": "OTP sent successfully"})
}

// checkOTP loads the latest code for the user and validates the submitted
// value against it.  Returns an error message suitable for the client, or
// "" when the code is good.
func (h *AuthHandler) checkOTP(ctx context.Context, userID uint64, submitted string) (string, error) {
	otp, err := h.OTPs.Latest(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "invalid otp", nil
		}
		return "", err
	}
	if otp.Code != strings.TrimSpace(submitted) {
		return "invalid otp", nil
	}
	if time.Now().UTC().After(otp.ExpiresAt) {
		return "otp expired", nil
	}
	return "", nil
}

// VerifyOTP: non-destructive pre-check ahead of the actual reset.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req verifyOTPReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email, true)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no account found for this email"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	if msg, err := h.checkOTP(ctx, u.ID, req.OTP); err != nil {
		log.Printf("verify-otp: query failed for user %d: %v", u.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	} else if msg != "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "otp verified"})
}

// ResetPassword: OTP-gated password replacement for users locked out of
// their account.  Consumes the code on success.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.NewPassword = strings.TrimSpace(req.NewPassword)
	if req.ConfirmPassword != req.NewPassword {
		return fieldError(c, "confirmPassword", "passwords do not match")
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		return fieldError(c, "newPassword", err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email, true)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no account found for this email"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	if msg, err := h.checkOTP(ctx, u.ID, req.OTP); err != nil {
		log.Printf("reset-password: query failed for user %d: %v", u.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	} else if msg != "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
	}

	if utils.VerifyPassword(u.PasswordHash, req.NewPassword) {
		return fieldError(c, "newPassword", "new password must differ from the current password")
	}

	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		log.Printf("reset-password: update failed for user %d: %v", u.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}
	if err := h.OTPs.Consume(ctx, u.ID); err != nil {
		// The password is already rotated; a stale OTP row only shortens the
		// window until the next issuance overwrites it.
		log.Printf("reset-password: consume otp failed for user %d: %v", u.ID, err)
	}

	h.Audit(ctx, queue.AuditEvent{Action: queue.ActionPasswordReset, UserID: u.ID, Email: u.Email})
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated successfully"})
}

// ChangePassword: session-gated password rotation; no OTP involved.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ConfirmPassword != req.NewPassword {
		return fieldError(c, "confirmPassword", "passwords do not match")
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		return fieldError(c, "newPassword", err.Error())
	}
	if req.NewPassword == req.CurrentPassword {
		return fieldError(c, "newPassword", "new password must differ from the current password")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if u.Status == model.StatusInactive || u.Status == model.StatusDeleted {
		return fieldError(c, "currentPassword", "account is not active")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
	}

	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		log.Printf("change-password: update failed for user %d: %v", u.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}

	h.Audit(ctx, queue.AuditEvent{Action: queue.ActionPasswordChanged, UserID: u.ID, Email: u.Email, ActorID: u.ID})
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated successfully"})
}

// Me: return the caller's token claims.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, userPart{
		ID: claims.UserID, Email: claims.Email,
		FirstName: claims.FirstName, LastName: claims.LastName,
		CountryCode: claims.CountryCode, Phone: claims.Phone,
		Address: claims.Address, Avatar: claims.Avatar,
		RoleIDs: claims.RoleIDs, RoleNames: claims.RoleNames,
	})
}
