package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/charaka/user-auth-service/internal/model"
)

// UserRepo wraps all credential-store queries (tables 'users' and
// 'users_profiles').  All operations are single-record, last-write-wins; the
// unique index on users.email is the backstop for concurrent registrations.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func isDuplicateKey(err error) bool {
	// MySQL 1062: duplicate entry for a unique index.
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

// Create inserts the user together with its initial role assignment and
// returns the new id.  The email must not belong to a non-deleted account.
func (r *UserRepo) Create(ctx context.Context, u model.User, roleIDs []uint64) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))

	var existing uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM users WHERE email=? AND status<>? LIMIT 1",
		email, model.StatusDeleted).Scan(&existing)
	if err == nil {
		return 0, ErrEmailExists
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, first_name, last_name, password, status, company_id, product_categories, created_by) VALUES (?,?,?,?,?,?,?,?)",
		email, u.FirstName, u.LastName, u.PasswordHash, u.Status,
		nullableID(u.CompanyID), u.Categories, actorOrDefault(u.CreatedBy))
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO users_roles (user_id, role_id, created_by) VALUES (?,?,?)",
			id, roleID, actorOrDefault(u.CreatedBy)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.  With activeOnly set, only
// StatusActive accounts match; sql.ErrNoRows covers both absence and an
// inactive account in that mode.
func (r *UserRepo) GetByEmail(ctx context.Context, email string, activeOnly bool) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	q := "SELECT id,email,first_name,last_name,password,status,COALESCE(company_id,0),COALESCE(product_categories,''),created_by,created_at,updated_at FROM users WHERE email=?"
	args := []interface{}{email}
	if activeOnly {
		q += " AND status=?"
		args = append(args, model.StatusActive)
	}
	q += " LIMIT 1"
	return r.scanUser(r.DB.QueryRowContext(ctx, q, args...))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanUser(r.DB.QueryRowContext(ctx,
		"SELECT id,email,first_name,last_name,password,status,COALESCE(company_id,0),COALESCE(product_categories,''),created_by,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id))
}

func (r *UserRepo) scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var updatedAt sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.Status, &u.CompanyID, &u.Categories, &u.CreatedBy, &u.CreatedAt, &updatedAt)
	if updatedAt.Valid {
		t := updatedAt.Time
		u.UpdatedAt = &t
	}
	return u, err
}

// UpdatePassword stores a new password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID uint64, hash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password=?, updated_at=NOW() WHERE id=?", hash, userID)
	return err
}

// UpdateStatus writes a lifecycle status (soft deletes included).
func (r *UserRepo) UpdateStatus(ctx context.Context, userID uint64, status int, updatedBy uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET status=?, updated_by=?, updated_at=NOW() WHERE id=?",
		status, nullableID(updatedBy), userID)
	return err
}

// ProfileUpdate carries the optional fields of an edit-profile request.
// Nil pointers leave the column untouched.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Email       *string
	CompanyID   *uint64
	Categories  *string
	CountryCode *int
	Phone       *string
	Address     *string
	Avatar      *string
	RoleIDs     []uint64 // non-nil replaces the role set
	UpdatedBy   uint64
}

// UpdateProfile applies a partial update across users and users_profiles,
// creating the profile row on first use.  An email change re-checks
// uniqueness among other non-deleted accounts before writing, the same
// invariant Create enforces.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID uint64, upd ProfileUpdate) error {
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		var other uint64
		err := r.DB.QueryRowContext(ctx,
			"SELECT id FROM users WHERE email=? AND id<>? AND status<>? LIMIT 1",
			email, userID, model.StatusDeleted).Scan(&other)
		if err == nil {
			return ErrEmailExists
		}
		if err != sql.ErrNoRows {
			return err
		}
		upd.Email = &email
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// users columns
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if upd.FirstName != nil {
		add("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		add("last_name", *upd.LastName)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.CompanyID != nil {
		add("company_id", nullableID(*upd.CompanyID))
	}
	if upd.Categories != nil {
		add("product_categories", *upd.Categories)
	}
	if len(sets) > 0 {
		add("updated_by", nullableID(upd.UpdatedBy))
		sets = append(sets, "updated_at=NOW()")
		q := fmt.Sprintf("UPDATE users SET %s WHERE id=?", strings.Join(sets, ","))
		args = append(args, userID)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			if isDuplicateKey(err) {
				return ErrEmailExists
			}
			return err
		}
	}

	// users_profiles upsert
	if upd.CountryCode != nil || upd.Phone != nil || upd.Address != nil || upd.Avatar != nil {
		var profileID uint64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM users_profiles WHERE user_id=? LIMIT 1", userID).Scan(&profileID)
		switch err {
		case sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO users_profiles (user_id, country_code, phone, address, avatar, created_by) VALUES (?,?,?,?,?,?)",
				userID, deref(upd.CountryCode, 0), deref(upd.Phone, ""), deref(upd.Address, ""),
				deref(upd.Avatar, ""), nullableID(upd.UpdatedBy)); err != nil {
				return err
			}
		case nil:
			var psets []string
			var pargs []interface{}
			padd := func(col string, v interface{}) {
				psets = append(psets, col+"=?")
				pargs = append(pargs, v)
			}
			if upd.CountryCode != nil {
				padd("country_code", *upd.CountryCode)
			}
			if upd.Phone != nil {
				padd("phone", *upd.Phone)
			}
			if upd.Address != nil {
				padd("address", *upd.Address)
			}
			if upd.Avatar != nil {
				padd("avatar", *upd.Avatar)
			}
			padd("updated_by", nullableID(upd.UpdatedBy))
			psets = append(psets, "updated_at=NOW()")
			q := fmt.Sprintf("UPDATE users_profiles SET %s WHERE user_id=?", strings.Join(psets, ","))
			pargs = append(pargs, userID)
			if _, err := tx.ExecContext(ctx, q, pargs...); err != nil {
				return err
			}
		default:
			return err
		}
	}

	// role replacement
	if upd.RoleIDs != nil {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM users_roles WHERE user_id=?", userID); err != nil {
			return err
		}
		for _, roleID := range upd.RoleIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO users_roles (user_id, role_id, created_by) VALUES (?,?,?)",
				userID, roleID, nullableID(upd.UpdatedBy)); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetProfile fetches the optional profile row; sql.ErrNoRows when the user
// never filled one in.
func (r *UserRepo) GetProfile(ctx context.Context, userID uint64) (model.UserProfile, error) {
	var p model.UserProfile
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,COALESCE(country_code,0),COALESCE(phone,''),COALESCE(address,''),COALESCE(avatar,'') FROM users_profiles WHERE user_id=? LIMIT 1",
		userID).Scan(&p.ID, &p.UserID, &p.CountryCode, &p.Phone, &p.Address, &p.Avatar)
	return p, err
}

// ListParams shapes the paged admin listing.
type ListParams struct {
	Page      int
	Limit     int
	Search    string // matches first_name, last_name or email
	Status    *int
	RoleID    uint64 // 0 = any role
	SortKey   string // name | email | currentStatus | lastUpdatedBy
	SortOrder string // ASC | DESC
}

// UserListRow is one row of the admin listing, profile columns joined in.
type UserListRow struct {
	User  model.User
	Phone string
}

// List returns a page of users plus the unpaged total for the same filter.
func (r *UserRepo) List(ctx context.Context, p ListParams) ([]UserListRow, int, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Page <= 0 {
		p.Page = 1
	}

	var where []string
	var args []interface{}
	if p.Search != "" {
		like := "%" + p.Search + "%"
		where = append(where, "(u.first_name LIKE ? OR u.last_name LIKE ? OR u.email LIKE ?)")
		args = append(args, like, like, like)
	}
	if p.Status != nil {
		where = append(where, "u.status=?")
		args = append(args, *p.Status)
	}
	if p.RoleID != 0 {
		where = append(where, "u.id IN (SELECT user_id FROM users_roles WHERE role_id=?)")
		args = append(args, p.RoleID)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	order := "u.id DESC"
	dir := "DESC"
	if strings.EqualFold(p.SortOrder, "ASC") {
		dir = "ASC"
	}
	switch p.SortKey {
	case "name":
		order = "u.first_name " + dir
	case "email":
		order = "u.email " + dir
	case "currentStatus":
		order = "u.status " + dir
	case "lastUpdatedBy":
		order = "u.updated_by " + dir
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users u"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := "SELECT u.id,u.email,u.first_name,u.last_name,u.status,COALESCE(u.created_by,0),u.created_at,u.updated_at,COALESCE(p.phone,'') " +
		"FROM users u LEFT JOIN users_profiles p ON p.user_id=u.id" + cond +
		" ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, p.Limit, (p.Page-1)*p.Limit)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []UserListRow
	for rows.Next() {
		var row UserListRow
		var updatedAt sql.NullTime
		if err := rows.Scan(&row.User.ID, &row.User.Email, &row.User.FirstName, &row.User.LastName,
			&row.User.Status, &row.User.CreatedBy, &row.User.CreatedAt, &updatedAt, &row.Phone); err != nil {
			return nil, 0, err
		}
		if updatedAt.Valid {
			t := updatedAt.Time
			row.User.UpdatedAt = &t
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// EmailExists reports whether any account (regardless of status) holds the
// email.  Used by the pre-registration existence probe.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var id uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM users WHERE email=? LIMIT 1", email).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// nullableID maps the zero id to NULL so unset actor/company columns stay
// NULL in the schema.
func nullableID(id uint64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

// actorOrDefault maps an unknown actor to the system user (id 1) for the
// NOT NULL created_by columns written on insert.
func actorOrDefault(id uint64) uint64 {
	if id == 0 {
		return 1
	}
	return id
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
