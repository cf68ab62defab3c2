//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=../mocks/mock_user_repository.go -package=mocks
package users

import (
	"context"
	"time"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository persists accounts and the follow graph. Lookups of absent users
// return apperrors.ErrUserNotFound.
//
// Emails are reserved separately from the user row: ClaimEmail returns
// apperrors.ErrUserAlreadyExists when the email is taken, and ReleaseEmail
// only drops a reservation still held by the given id.
type Repository interface {
	ClaimEmail(ctx context.Context, email, id string) error
	ReleaseEmail(ctx context.Context, email, id string) error
	Insert(ctx context.Context, user User) error
	Save(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Follow(ctx context.Context, userID, targetID string) error
	Unfollow(ctx context.Context, userID, targetID string) error
	IsFollowing(ctx context.Context, userID, targetID string) (bool, error)
	CountFollowers(ctx context.Context, userID string) (int, error)
	CountFollowing(ctx context.Context, userID string) (int, error)
}
