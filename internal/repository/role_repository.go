package repository

import (
	"context"
	"database/sql"

	"github.com/charaka/user-auth-service/internal/model"
)

// RoleRepo reads role definitions and the users_roles join (who holds what,
// assigned by whom).
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// RolesForUser returns the user's roles ordered by id.  An empty slice (not
// an error) means the user holds no roles.
func (r *RoleRepo) RolesForUser(ctx context.Context, userID uint64) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT r.id, r.name FROM users_roles ur JOIN roles r ON r.id=ur.role_id WHERE ur.user_id=? ORDER BY r.id",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// List returns all defined roles.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name FROM roles ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// RoleCount aggregates membership per role for the admin dashboard.
type RoleCount struct {
	RoleID   uint64
	RoleName string
	Count    int
}

// Counts returns per-role membership counts and the total number of
// assignments (a user with two roles counts twice, matching the join table).
func (r *RoleRepo) Counts(ctx context.Context) ([]RoleCount, int, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT ur.role_id, r.name, COUNT(ur.id) FROM users_roles ur JOIN roles r ON r.id=ur.role_id GROUP BY ur.role_id, r.name ORDER BY ur.role_id")
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []RoleCount
	total := 0
	for rows.Next() {
		var rc RoleCount
		if err := rows.Scan(&rc.RoleID, &rc.RoleName, &rc.Count); err != nil {
			return nil, 0, err
		}
		total += rc.Count
		out = append(out, rc)
	}
	return out, total, rows.Err()
}

// RolesByUser returns the role-name lists for every user that holds at least
// one role, keyed by user id.  Used to decorate the admin listing without a
// per-row query.
func (r *RoleRepo) RolesByUser(ctx context.Context) (map[uint64][]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT ur.user_id, r.name FROM users_roles ur JOIN roles r ON r.id=ur.role_id ORDER BY ur.user_id, r.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint64][]string)
	for rows.Next() {
		var userID uint64
		var name string
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, err
		}
		out[userID] = append(out[userID], name)
	}
	return out, rows.Err()
}
