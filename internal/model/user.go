package model

import "time"

// Lifecycle statuses stored in users.status.  The registration status is
// configurable (DEFAULT_USER_STATUS_ID) and may carry a domain-specific
// pending value outside this set; the listed constants are the ones the
// service itself writes and filters on.
const (
	StatusInactive = 0
	StatusActive   = 1
	StatusDeleted  = 2
)

// User represents a row in the `users` table.  Accounts are never hard
// deleted; Status flips to StatusDeleted instead.  Profile attributes live
// in the separate users_profiles table (see UserProfile).
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address among non-deleted accounts.
//	FirstName    – display first name.
//	LastName     – display last name (may be empty).
//	PasswordHash – bcrypt hashed password.
//	Status       – lifecycle status (see constants above).
//	CompanyID    – optional owning company (nullable, 0 when unset).
//	Categories   – comma-joined product category tags.
//	CreatedBy/UpdatedBy – user ids of the actors, 0 when unknown.
type User struct {
	ID           uint64     // users.id
	Email        string     // users.email
	FirstName    string     // users.first_name
	LastName     string     // users.last_name
	PasswordHash string     // users.password
	Status       int        // users.status
	CompanyID    uint64     // users.company_id (0 = none)
	Categories   string     // users.product_categories
	CreatedBy    uint64     // users.created_by
	CreatedAt    time.Time  // users.created_at
	UpdatedBy    uint64     // users.updated_by
	UpdatedAt    *time.Time // users.updated_at (nullable)
}

// UserProfile is the optional 1:1 extension row in `users_profiles`.
type UserProfile struct {
	ID          uint64 // users_profiles.id
	UserID      uint64 // users_profiles.user_id
	CountryCode int    // users_profiles.country_code
	Phone       string // users_profiles.phone
	Address     string // users_profiles.address
	Avatar      string // users_profiles.avatar (stored object name)
}

// Role represents a row in the `roles` table.
type Role struct {
	ID   uint64 // roles.id
	Name string // roles.name
}

// UserRole is the join row in `users_roles` recording who assigned a role
// and when.
type UserRole struct {
	ID        uint64    // users_roles.id
	UserID    uint64    // users_roles.user_id
	RoleID    uint64    // users_roles.role_id
	CreatedBy uint64    // users_roles.created_by
	CreatedAt time.Time // users_roles.created_at
}

// PasswordOTP models an entry in the `password_otps` table.  A user has at
// most one live code: issuing a new one supersedes earlier rows, and a
// successful reset deletes the row.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the code.
//	Code      – numeric code in string form.
//	ExpiresAt – absolute expiry timestamp.
//	CreatedAt – issuance timestamp; verification always reads the latest row.
type PasswordOTP struct {
	ID        uint64    // password_otps.id
	UserID    uint64    // password_otps.user_id
	Code      string    // password_otps.otp
	ExpiresAt time.Time // password_otps.expires_at
	CreatedAt time.Time // password_otps.created_at
}
