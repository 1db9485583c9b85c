package repository

import (
	"context"
	"fmt"
	"time"

	"pledgr/internal/models"
)

const userColumns = `id, email, password_hash, name, avatar, is_creator, bio, website,
	social_twitter, social_instagram, social_youtube, created_at, updated_at`

// UserRepository is the credential store.
type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// CreateUser inserts user and sets its ID and timestamps.
func (r *UserRepository) CreateUser(ctx context.Context, db DBExecutor, user *models.User) error {
	query := db.Rebind(`
		INSERT INTO users (email, password_hash, name, avatar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := db.GetContext(ctx, &user.ID, query,
		user.Email, user.PasswordHash, user.Name, user.Avatar, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, db DBExecutor, email string) (*models.User, error) {
	query := db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)

	var user models.User
	if err := db.GetContext(ctx, &user, query, email); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", notFound(err))
	}
	return &user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, db DBExecutor, id int64) (*models.User, error) {
	query := db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)

	var user models.User
	if err := db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, notFound(err))
	}
	return &user, nil
}

// UpdateProfile writes the editable profile fields of user.
func (r *UserRepository) UpdateProfile(ctx context.Context, db DBExecutor, user *models.User) error {
	query := db.Rebind(`
		UPDATE users
		SET name = ?, bio = ?, website = ?, social_twitter = ?, social_instagram = ?,
		    social_youtube = ?, updated_at = ?
		WHERE id = ?
	`)

	user.UpdatedAt = time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		user.Name, user.Bio, user.Website, user.SocialTwitter, user.SocialInstagram,
		user.SocialYoutube, user.UpdatedAt, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return expectOneRow(result, "user")
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, db DBExecutor, userID int64, hash string) error {
	query := db.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`)

	if _, err := db.ExecContext(ctx, query, hash, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	return nil
}

// PromoteToCreator flips the creator flag. It is a no-op for existing creators.
func (r *UserRepository) PromoteToCreator(ctx context.Context, db DBExecutor, userID int64) error {
	query := db.Rebind(`UPDATE users SET is_creator = ?, updated_at = ? WHERE id = ?`)

	result, err := db.ExecContext(ctx, query, true, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to promote user to creator: %w", err)
	}
	return expectOneRow(result, "user")
}
