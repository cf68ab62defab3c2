//go:generate go run go.uber.org/mock/mockgen -source=authenticator.go -destination=../mocks/mock_authenticator.go -package=mocks
package auth

import (
	"context"
	"log/slog"

	apperrors "github.com/mahaj/community-chat/pkg/errors"
	"github.com/mahaj/community-chat/pkg/model"
)

// IdentityLookup resolves a user id to its current identity. It returns
// apperrors.ErrUserNotFound when the user does not exist.
type IdentityLookup interface {
	FindIdentity(ctx context.Context, userID string) (model.UserIdentity, error)
}

// Verifier checks a bearer credential and returns its claims.
type Verifier interface {
	ValidateToken(token string) (*Claims, error)
}

// Authenticator resolves bearer credentials to user identities. Every failure
// is reported as apperrors.ErrAuthenticationFailed.
type Authenticator struct {
	verifier Verifier
	users    IdentityLookup
	log      *slog.Logger
}

func NewAuthenticator(verifier Verifier, users IdentityLookup, log *slog.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, users: users, log: log}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (model.UserIdentity, error) {
	if token == "" {
		return model.UserIdentity{}, apperrors.ErrAuthenticationFailed
	}

	claims, err := a.verifier.ValidateToken(token)
	if err != nil {
		a.log.Debug("Token verification failed", "error", err)
		return model.UserIdentity{}, apperrors.ErrAuthenticationFailed
	}

	user, err := a.users.FindIdentity(ctx, claims.UserID)
	if err != nil {
		a.log.Debug("Identity lookup failed", "user_id", claims.UserID, "error", err)
		return model.UserIdentity{}, apperrors.ErrAuthenticationFailed
	}

	return user, nil
}
