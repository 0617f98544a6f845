package models

import (
	"time"
)

// QRToken is a persisted credential payload, looked up by the SHA-256 hash
// of its payload. Rows are deactivated on consumption or revocation, never
// deleted.
type QRToken struct { //nolint:govet // fieldalignment not critical for models
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Payload     string    `db:"payload" json:"payload"`
	PayloadHash string    `db:"payload_hash" json:"payload_hash"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
