// Package queue defines message payloads exchanged over the message broker.
package queue

// AuditEvent is published whenever an account-changing flow completes
// (registration, password change/reset, status change, admin user creation).
// It carries enough context for the audit consumer to write a useful record
// without querying the primary database.
type AuditEvent struct {
	Action     string `json:"action"`      // e.g. "user.registered", "password.reset"
	UserID     uint64 `json:"user_id"`     // subject of the change
	Email      string `json:"email"`       // subject email at the time of the event
	ActorID    uint64 `json:"actor_id"`    // who performed it (0 = the user themselves / anonymous flow)
	Detail     string `json:"detail"`      // free-form context, never secrets
	OccurredAt string `json:"occurred_at"` // RFC3339 UTC
}

// Audit actions emitted by the handlers.
const (
	ActionUserRegistered  = "user.registered"
	ActionUserCreated     = "user.created"
	ActionPasswordChanged = "password.changed"
	ActionPasswordReset   = "password.reset"
	ActionStatusChanged   = "status.changed"
	ActionUserDeleted     = "user.deleted"
)
