package repository

import (
	"context"
	"time"

	"github.com/carnetapp/carnetd/internal/models"
)

// CreateUser inserts a new user and assigns its ID.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if !user.Active {
		user.Active = true
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (full_name, username, email, password_hash, photo, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.FullName, user.Username, user.Email, user.PasswordHash, user.Photo, user.Active, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return err
	}

	user.ID, err = res.LastInsertId()
	return err
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username (case-insensitive).
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE username = ?`, username)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UserExists checks if a user with the given username exists.
func (r *Repository) UserExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM users WHERE username = ?`, username)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateUserPassword updates a user's password hash. Outstanding login
// tokens embed the old hash and stop validating once this commits.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now(), id)
	return err
}

// DeactivateUser disables an account. Its tokens stop consuming immediately.
func (r *Repository) DeactivateUser(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}
