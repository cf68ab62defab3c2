package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/mahaj/community-chat/pkg/db"
	apperrors "github.com/mahaj/community-chat/pkg/errors"
)

type ScyllaRepository struct {
	session *db.Session
}

func NewScyllaRepository(session *db.Session) *ScyllaRepository {
	return &ScyllaRepository{session: session}
}

// ClaimEmail reserves email for id with a lightweight transaction.
func (r *ScyllaRepository) ClaimEmail(ctx context.Context, email, id string) error {
	applied, err := r.session.Query(
		`INSERT INTO users_by_email (email, id) VALUES (?, ?) IF NOT EXISTS`, email, id,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("claim email: %w", err)
	}
	if !applied {
		return apperrors.ErrUserAlreadyExists
	}
	return nil
}

// ReleaseEmail drops the reservation of email if id still holds it.
func (r *ScyllaRepository) ReleaseEmail(ctx context.Context, email, id string) error {
	_, err := r.session.Query(
		`DELETE FROM users_by_email WHERE email = ? IF id = ?`, email, id,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("release email: %w", err)
	}
	return nil
}

func (r *ScyllaRepository) Insert(ctx context.Context, user User) error {
	err := r.session.Query(
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *ScyllaRepository) FindByID(ctx context.Context, id string) (User, error) {
	user := User{ID: id}
	err := r.session.Query(
		`SELECT name, email, password_hash, created_at FROM users WHERE id = ?`, id,
	).WithContext(ctx).Scan(&user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return User{}, apperrors.ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("select user %s: %w", id, err)
	}
	return user, nil
}

func (r *ScyllaRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	var id string
	err := r.session.Query(`SELECT id FROM users_by_email WHERE email = ?`, email).WithContext(ctx).Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return User{}, apperrors.ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("select user by email: %w", err)
	}
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	// A reservation left behind by an interrupted email change.
	if user.Email != email {
		return User{}, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (r *ScyllaRepository) Save(ctx context.Context, user User) error {
	err := r.session.Query(
		`UPDATE users SET name = ?, email = ? WHERE id = ?`, user.Name, user.Email, user.ID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("update user %s: %w", user.ID, err)
	}
	return nil
}

func (r *ScyllaRepository) Follow(ctx context.Context, userID, targetID string) error {
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO user_following (user_id, target_id) VALUES (?, ?)`, userID, targetID)
	batch.Query(`INSERT INTO user_followers (user_id, follower_id) VALUES (?, ?)`, targetID, userID)
	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("follow %s: %w", targetID, err)
	}
	return nil
}

func (r *ScyllaRepository) Unfollow(ctx context.Context, userID, targetID string) error {
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM user_following WHERE user_id = ? AND target_id = ?`, userID, targetID)
	batch.Query(`DELETE FROM user_followers WHERE user_id = ? AND follower_id = ?`, targetID, userID)
	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("unfollow %s: %w", targetID, err)
	}
	return nil
}

func (r *ScyllaRepository) IsFollowing(ctx context.Context, userID, targetID string) (bool, error) {
	var found string
	err := r.session.Query(
		`SELECT target_id FROM user_following WHERE user_id = ? AND target_id = ?`, userID, targetID,
	).WithContext(ctx).Scan(&found)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select follow: %w", err)
	}
	return true, nil
}

func (r *ScyllaRepository) count(ctx context.Context, query, userID string) (int, error) {
	var n int64
	if err := r.session.Query(query, userID).WithContext(ctx).Scan(&n); err != nil {
		return 0, fmt.Errorf("count for %s: %w", userID, err)
	}
	return int(n), nil
}

func (r *ScyllaRepository) CountFollowers(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM user_followers WHERE user_id = ?`, userID)
}

func (r *ScyllaRepository) CountFollowing(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM user_following WHERE user_id = ?`, userID)
}
