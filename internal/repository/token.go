package repository

import (
	"context"
	"time"

	"github.com/carnetapp/carnetd/internal/models"
)

// CreateQRToken inserts a new token row and assigns its ID. The payload and
// payload hash columns are unique; a collision surfaces as an error the
// caller can test with IsUniqueViolation.
func (r *Repository) CreateQRToken(ctx context.Context, token *models.QRToken) error {
	token.CreatedAt = time.Now()
	token.Active = true

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO qr_tokens (user_id, payload, payload_hash, active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.UserID, token.Payload, token.PayloadHash, token.Active, token.CreatedAt)
	if err != nil {
		return err
	}

	token.ID, err = res.LastInsertId()
	return err
}

// GetActiveQRTokenByHash retrieves an active token row by payload hash.
func (r *Repository) GetActiveQRTokenByHash(ctx context.Context, payloadHash string) (*models.QRToken, error) {
	var token models.QRToken
	err := r.db.GetContext(ctx, &token,
		`SELECT * FROM qr_tokens WHERE payload_hash = ? AND active = 1`, payloadHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// GetActivePermanentQRToken retrieves the user's active permanent-shaped
// token, identified by its payload prefix. The schema does not distinguish
// permanent from ephemeral rows by type.
func (r *Repository) GetActivePermanentQRToken(ctx context.Context, userID int64, payloadPrefix string) (*models.QRToken, error) {
	var token models.QRToken
	err := r.db.GetContext(ctx, &token,
		`SELECT * FROM qr_tokens
		 WHERE user_id = ? AND active = 1 AND payload LIKE ? || '%'
		 ORDER BY id LIMIT 1`,
		userID, payloadPrefix)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// ConsumeQRToken flips a token row to inactive, but only if it is still
// active. Returns false when another consumer got there first, so two
// concurrent presentations of the same payload cannot both succeed.
func (r *Repository) ConsumeQRToken(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE qr_tokens SET active = 0 WHERE id = ? AND active = 1`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeactivateUserQRTokens deactivates every active token owned by the user
// and returns how many rows changed. Zero is a valid result.
func (r *Repository) DeactivateUserQRTokens(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE qr_tokens SET active = 0 WHERE user_id = ? AND active = 1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountActiveQRTokens returns the number of active tokens for a user.
func (r *Repository) CountActiveQRTokens(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM qr_tokens WHERE user_id = ? AND active = 1`, userID)
	if err != nil {
		return 0, err
	}
	return count, nil
}
