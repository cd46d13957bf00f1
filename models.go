package main

import "time"

// User represents an account in the user store. Password holds the
// bcrypt hash, never the plaintext; strip it before sending a user
// over the wire.
type User struct {
	ID            int64
	Email         string
	Password      string
	CanvasToken   string
	Option        string
	ShowCompleted bool
	CreatedAt     time.Time
}

// TokenKindRefresh is the only token kind currently stored. The column
// exists so other kinds can be added without a schema change.
const TokenKindRefresh = "refresh"

// RefreshToken is a persisted refresh-token record. A record is valid
// only while ExpiresAt is in the future; every read path re-checks
// this, so a dead record lingering until the reaper removes it is
// harmless.
type RefreshToken struct {
	ID        string
	UserID    int64
	Token     string
	Kind      string
	ExpiresAt time.Time
	CreatedAt time.Time
}
