package handler

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/charaka/user-auth-service/internal/config"
	"github.com/charaka/user-auth-service/internal/mailer"
	"github.com/charaka/user-auth-service/internal/middleware"
	"github.com/charaka/user-auth-service/internal/model"
	"github.com/charaka/user-auth-service/internal/queue"
	"github.com/charaka/user-auth-service/internal/repository"
	audit_publisher "github.com/charaka/user-auth-service/internal/service"
	"github.com/charaka/user-auth-service/internal/storage"
	"github.com/charaka/user-auth-service/internal/utils"
)

// UserHandler serves profile editing and role-based user management.
type UserHandler struct {
	Cfg     config.Config
	Users   UserStore
	Roles   RoleStore
	Mail    mailer.Mailer
	Avatars *storage.AvatarStore
	Audit   AuditFunc
}

func NewUserHandler(cfg config.Config, u UserStore, r RoleStore, m mailer.Mailer, a *storage.AvatarStore) *UserHandler {
	return &UserHandler{
		Cfg: cfg, Users: u, Roles: r, Mail: m, Avatars: a,
		Audit: func(ctx context.Context, ev queue.AuditEvent) {
			_ = audit_publisher.PublishAudit(ctx, ev)
		},
	}
}

// ----- DTOs -----

type editProfileReq struct {
	FirstName   *string  `json:"firstName"`
	LastName    *string  `json:"lastName"`
	Email       *string  `json:"email"`
	CountryCode *int     `json:"countryCode"`
	Phone       *string  `json:"phone"`
	Address     *string  `json:"address"`
	Avatar      *string  `json:"avatar"`
	CompanyID   *uint64  `json:"companyId"`
	Categories  *string  `json:"productCategories"`
	Roles       []uint64 `json:"roles"`
}

type createUserReq struct {
	FirstName  string   `json:"firstName"`
	LastName   string   `json:"lastName"`
	Email      string   `json:"email"`
	Status     *int     `json:"status"`
	CompanyID  uint64   `json:"companyId"`
	Categories string   `json:"productCategories"`
	Phone      string   `json:"phone"`
	Address    string   `json:"address"`
	RoleIDs    []uint64 `json:"roleIds"`
}

type statusUpdateReq struct {
	UserID   uint64 `json:"userId"`
	StatusID int    `json:"statusId"`
}

type userDetailResp struct {
	ID         uint64   `json:"id"`
	Email      string   `json:"email"`
	FirstName  string   `json:"firstName"`
	LastName   string   `json:"lastName"`
	Status     int      `json:"status"`
	Phone      string   `json:"phone,omitempty"`
	Address    string   `json:"address,omitempty"`
	Avatar     string   `json:"avatar,omitempty"`
	RoleIDs    []uint64 `json:"roleIds"`
	RoleNames  []string `json:"roleNames"`
	CompanyID  uint64   `json:"companyId,omitempty"`
	Categories string   `json:"productCategories,omitempty"`
}

func actorID(c echo.Context) uint64 {
	if claims, ok := middleware.CurrentClaims(c); ok {
		return claims.UserID
	}
	return 0
}

// buildProfileUpdate maps the request DTO onto the repository update.
func (req *editProfileReq) toUpdate(actor uint64) repository.ProfileUpdate {
	return repository.ProfileUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		CompanyID:   req.CompanyID,
		Categories:  req.Categories,
		CountryCode: req.CountryCode,
		Phone:       req.Phone,
		Address:     req.Address,
		Avatar:      req.Avatar,
		RoleIDs:     req.Roles,
		UpdatedBy:   actor,
	}
}

func (h *UserHandler) applyProfileUpdate(c echo.Context, userID uint64, upd repository.ProfileUpdate) error {
	if upd.FirstName != nil && !validName(strings.TrimSpace(*upd.FirstName)) {
		return fieldError(c, "firstName", "first name must be 1-20 letters")
	}
	if upd.Email != nil && !validEmail(strings.ToLower(strings.TrimSpace(*upd.Email))) {
		return fieldError(c, "email", "email must be a valid email address")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Users.UpdateProfile(ctx, userID, upd); err != nil {
		if err == repository.ErrEmailExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		log.Printf("edit-profile: update failed for user %d: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update profile failed"})
	}
	return nil
}

// EditProfile: JSON partial update of the caller's own account.
func (h *UserHandler) EditProfile(c echo.Context) error {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req editProfileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.applyProfileUpdate(c, claims.UserID, req.toUpdate(claims.UserID)); err != nil {
		return err
	}
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated successfully"})
}

// EditProfileByID: admin variant of EditProfile targeting any account.
func (h *UserHandler) EditProfileByID(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || id == 0 {
		return fieldError(c, "userId", "user id should be numeric")
	}
	var req editProfileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.applyProfileUpdate(c, id, req.toUpdate(actorID(c))); err != nil {
		return err
	}
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated successfully"})
}

// UpdateProfile: multipart variant accepting an avatar file.  The file is
// spooled to local disk and its stored name written onto the profile.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req editProfileReq
	form := func(name string) *string {
		if v := c.FormValue(name); v != "" {
			return &v
		}
		return nil
	}
	req.FirstName = form("firstName")
	req.LastName = form("lastName")
	req.Phone = form("phone")
	req.Address = form("address")
	if v := c.FormValue("countryCode"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.CountryCode = &n
		}
	}

	if fh, err := c.FormFile("avatar"); err == nil && fh != nil {
		name, err := h.Avatars.Save(fh)
		if err != nil {
			log.Printf("update-profile: avatar save failed for user %d: %v", claims.UserID, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "avatar upload failed"})
		}
		req.Avatar = &name
	}

	if err := h.applyProfileUpdate(c, claims.UserID, req.toUpdate(claims.UserID)); err != nil {
		return err
	}
	if c.Response().Committed {
		return nil
	}
	return h.respondUserDetail(c, claims.UserID)
}

func (h *UserHandler) respondUserDetail(c echo.Context, userID uint64) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	profile, err := h.Users.GetProfile(ctx, userID)
	if err != nil && err != sql.ErrNoRows {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	roles, err := h.Roles.RolesForUser(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	resp := userDetailResp{
		ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
		Status: u.Status, Phone: profile.Phone, Address: profile.Address,
		Avatar: profile.Avatar, CompanyID: u.CompanyID, Categories: u.Categories,
	}
	for _, r := range roles {
		resp.RoleIDs = append(resp.RoleIDs, r.ID)
		resp.RoleNames = append(resp.RoleNames, r.Name)
	}
	return c.JSON(http.StatusOK, resp)
}

// UserDetail: single-user read joining profile and roles.
func (h *UserHandler) UserDetail(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || id == 0 {
		return fieldError(c, "userId", "user id should be numeric")
	}
	return h.respondUserDetail(c, id)
}

// UserList: flat listing with role names, no paging.
func (h *UserHandler) UserList(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	rows, _, err := h.Users.List(ctx, repository.ListParams{Page: 1, Limit: 1000})
	if err != nil {
		log.Printf("user-list: query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	rolesByUser, err := h.Roles.RolesByUser(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	out := make([]echo.Map, 0, len(rows))
	for _, row := range rows {
		out = append(out, echo.Map{
			"id":        row.User.ID,
			"email":     row.User.Email,
			"firstName": row.User.FirstName,
			"lastName":  row.User.LastName,
			"status":    row.User.Status,
			"phone":     row.Phone,
			"roles":     rolesByUser[row.User.ID],
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// UpdateUserStatus: admin status flip for one account.
func (h *UserHandler) UpdateUserStatus(c echo.Context) error {
	var req statusUpdateReq
	if err := c.Bind(&req); err != nil || req.UserID == 0 {
		return fieldError(c, "userId", "invalid user")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Users.UpdateStatus(ctx, req.UserID, req.StatusID, actorID(c)); err != nil {
		log.Printf("update-user-status: update failed for user %d: %v", req.UserID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update status failed"})
	}
	h.Audit(ctx, queue.AuditEvent{
		Action: queue.ActionStatusChanged, UserID: req.UserID, ActorID: actorID(c),
		Detail: fmt.Sprintf("status=%d", req.StatusID),
	})
	return c.JSON(http.StatusOK, echo.Map{"message": "user status updated successfully"})
}

// DeleteUser: soft delete, the account row stays with the deleted status.
func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || id == 0 {
		return fieldError(c, "userId", "user id should be numeric")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Users.UpdateStatus(ctx, id, h.Cfg.DeleteUserStatus, actorID(c)); err != nil {
		log.Printf("delete-user: update failed for user %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
	}
	h.Audit(ctx, queue.AuditEvent{Action: queue.ActionUserDeleted, UserID: id, ActorID: actorID(c)})
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted successfully"})
}

// CreateUser: admin-created account with a random temporary password that is
// mailed to the new user.  Falls back to the default role when none given.
func (h *UserHandler) CreateUser(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !validName(req.FirstName) {
		return fieldError(c, "firstName", "first name must be 1-20 letters")
	}
	if !validEmail(req.Email) {
		return fieldError(c, "email", "email must be a valid email address")
	}

	tempPass, err := utils.NewTempPassword(6)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	hash, err := utils.HashPassword(tempPass, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	status := h.Cfg.DefaultUserStatus
	if req.Status != nil {
		status = *req.Status
	}
	roleIDs := req.RoleIDs
	if len(roleIDs) == 0 {
		roleIDs = []uint64{h.Cfg.DefaultRoleID}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	actor := actorID(c)
	uid, err := h.Users.Create(ctx, model.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		Status:       status,
		CompanyID:    req.CompanyID,
		Categories:   req.Categories,
		CreatedBy:    actor,
	}, roleIDs)
	if err != nil {
		if err == repository.ErrEmailExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		log.Printf("create-user: failed for %s: %v", req.Email, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	if req.Phone != "" || req.Address != "" {
		upd := repository.ProfileUpdate{UpdatedBy: actor}
		if req.Phone != "" {
			upd.Phone = &req.Phone
		}
		if req.Address != "" {
			upd.Address = &req.Address
		}
		if err := h.Users.UpdateProfile(ctx, uid, upd); err != nil {
			log.Printf("create-user: profile write failed for user %d: %v", uid, err)
		}
	}

	name := req.FirstName
	if req.LastName != "" {
		name += " " + req.LastName
	}
	go func(to, name, tempPass string) {
		if err := h.Mail.SendWelcome(to, name, tempPass); err != nil {
			log.Printf("create-user: welcome mail to %s failed: %v", to, err)
		}
	}(req.Email, name, tempPass)

	h.Audit(ctx, queue.AuditEvent{Action: queue.ActionUserCreated, UserID: uid, Email: req.Email, ActorID: actor})
	return c.JSON(http.StatusOK, echo.Map{"message": "user created successfully", "id": uid})
}

// ----- listing & lookups -----

type usersListReq struct {
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	Search    string `json:"searchString"`
	Status    *int   `json:"currentStatus"`
	RoleID    uint64 `json:"role"`
	SortKey   string `json:"sortKey"`
	SortOrder string `json:"sortOrder"`
}

var statusLabels = []string{"Inactive", "Active", "Deleted"}

func statusLabel(s int) string {
	if s >= 0 && s < len(statusLabels) {
		return statusLabels[s]
	}
	return ""
}

// UsersList: paged, sortable, filtered listing for the admin table.
func (h *UserHandler) UsersList(c echo.Context) error {
	var req usersListReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	rows, total, err := h.Users.List(ctx, repository.ListParams{
		Page: req.Page, Limit: req.Limit, Search: req.Search,
		Status: req.Status, RoleID: req.RoleID,
		SortKey: req.SortKey, SortOrder: req.SortOrder,
	})
	if err != nil {
		log.Printf("get-users-list: query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	rolesByUser, err := h.Roles.RolesByUser(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	page := req.Page
	if page <= 0 {
		page = 1
	}
	list := make([]echo.Map, 0, len(rows))
	for _, row := range rows {
		name := row.User.FirstName
		if row.User.LastName != "" {
			name += " " + row.User.LastName
		}
		list = append(list, echo.Map{
			"id":            row.User.ID,
			"name":          name,
			"email":         row.User.Email,
			"currentStatus": statusLabel(row.User.Status),
			"phoneNo":       row.Phone,
			"roles":         strings.Join(rolesByUser[row.User.ID], ", "),
			"createdAt":     row.User.CreatedAt,
			"updatedAt":     row.User.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"page":             page,
		"totalResultCount": total,
		"rowList":          list,
	})
}

// UpdateUsersStatus: bulk status flips, applied row by row.
func (h *UserHandler) UpdateUsersStatus(c echo.Context) error {
	var reqs []statusUpdateReq
	if err := c.Bind(&reqs); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	actor := actorID(c)
	for _, req := range reqs {
		if req.UserID == 0 {
			continue
		}
		if err := h.Users.UpdateStatus(ctx, req.UserID, req.StatusID, actor); err != nil {
			log.Printf("update-status: update failed for user %d: %v", req.UserID, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update status failed"})
		}
		h.Audit(ctx, queue.AuditEvent{
			Action: queue.ActionStatusChanged, UserID: req.UserID, ActorID: actor,
			Detail: fmt.Sprintf("status=%d", req.StatusID),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user status updated successfully"})
}

// RoleCounts: membership count and percentage per role.
func (h *UserHandler) RoleCounts(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	counts, total, err := h.Roles.Counts(ctx)
	if err != nil {
		log.Printf("get-roles-count: query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	out := make([]echo.Map, 0, len(counts))
	for _, rc := range counts {
		pct := 0.0
		if total > 0 {
			pct = float64(rc.Count) / float64(total) * 100
		}
		out = append(out, echo.Map{
			"roleId":     rc.RoleID,
			"roleName":   rc.RoleName,
			"count":      rc.Count,
			"percentage": fmt.Sprintf("%.2f", pct),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": out, "total": total})
}

// RolesList: id/name pairs for role pickers.
func (h *UserHandler) RolesList(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	roles, err := h.Roles.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(roles))
	for _, r := range roles {
		out = append(out, echo.Map{"value": r.ID, "label": r.Name})
	}
	return c.JSON(http.StatusOK, out)
}

// FiltersList: filter options for the admin table (statuses + roles).
func (h *UserHandler) FiltersList(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	roles, err := h.Roles.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	statusOpts := make([]echo.Map, 0, len(statusLabels))
	for i, label := range statusLabels {
		statusOpts = append(statusOpts, echo.Map{"value": i, "label": label})
	}
	roleOpts := make([]echo.Map, 0, len(roles))
	for _, r := range roles {
		roleOpts = append(roleOpts, echo.Map{"value": r.ID, "label": r.Name})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"filterOptionsMap": echo.Map{
			"currentStatus": echo.Map{"options": statusOpts},
			"role":          echo.Map{"options": roleOpts},
		},
	})
}

// IsUserExist: email existence probe used by the registration UI.
func (h *UserHandler) IsUserExist(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return fieldError(c, "email", "email must be specified")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	exists, err := h.Users.EmailExists(ctx, req.Email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"exists": exists})
}
