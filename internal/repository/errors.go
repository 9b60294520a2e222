// Package repository defines error values shared across repositories.
// Sentinels let handlers distinguish failure scenarios without inspecting
// driver errors; absent rows surface as sql.ErrNoRows and are a normal,
// non-exceptional outcome.
package repository

import "errors"

// ErrEmailExists is returned when an insert or email change collides with an
// existing non-deleted account.  Handlers translate this into HTTP 409.
var ErrEmailExists = errors.New("email already exists")
