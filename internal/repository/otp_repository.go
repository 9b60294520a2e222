package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/charaka/user-auth-service/internal/model"
)

// OTPRepo persists password-reset codes (table 'password_otps').
type OTPRepo struct{ DB *sql.DB }

func NewOTPRepo(db *sql.DB) *OTPRepo { return &OTPRepo{DB: db} }

// Issue stores a fresh code for the user, superseding any prior outstanding
// code.  The delete+insert runs in one transaction so at most one live row
// per user survives; reads still pick the newest row as a backstop.
func (r *OTPRepo) Issue(ctx context.Context, userID uint64, code string, expiresAt time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM password_otps WHERE user_id=?", userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO password_otps (user_id, otp, expires_at) VALUES (?,?,?)",
		userID, code, expiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

// Latest returns the most recently issued code for the user.  sql.ErrNoRows
// means no code is outstanding.
func (r *OTPRepo) Latest(ctx context.Context, userID uint64) (model.PasswordOTP, error) {
	var o model.PasswordOTP
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,otp,expires_at,created_at FROM password_otps WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT 1",
		userID).Scan(&o.ID, &o.UserID, &o.Code, &o.ExpiresAt, &o.CreatedAt)
	return o, err
}

// Consume removes the user's outstanding code after a successful reset.
func (r *OTPRepo) Consume(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM password_otps WHERE user_id=?", userID)
	return err
}
