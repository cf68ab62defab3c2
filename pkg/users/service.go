package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/mahaj/community-chat/pkg/auth"
	apperrors "github.com/mahaj/community-chat/pkg/errors"
	"github.com/mahaj/community-chat/pkg/model"
)

var validate = validator.New()

type TokenIssuer interface {
	GenerateToken(userID string) (string, error)
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type UpdateRequest struct {
	Name  string `json:"name" validate:"omitempty,max=64"`
	Email string `json:"email" validate:"omitempty,email"`
}

// Session is what register and login answer with.
type Session struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type Profile struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
}

type FollowResult struct {
	Message   string `json:"message"`
	Following int    `json:"following"`
	Followers int    `json:"followers"`
}

// Service holds account, profile and follow rules on top of a Repository. It
// also serves as the identity lookup behind chat authentication.
type Service struct {
	repo   Repository
	tokens TokenIssuer
	now    func() time.Time
}

func NewService(repo Repository, tokens TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return Session{}, apperrors.ErrInvalidUserData
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.ClaimEmail(ctx, user.Email, user.ID); err != nil {
		return Session{}, err
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		return Session{}, s.releaseEmail(ctx, user.Email, user.ID, err)
	}
	return s.session(user)
}

// releaseEmail undoes a reservation after the write it guarded failed. The
// release runs even when ctx is already cancelled.
func (s *Service) releaseEmail(ctx context.Context, email, id string, cause error) error {
	return multierr.Append(cause, s.repo.ReleaseEmail(context.WithoutCancel(ctx), email, id))
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			return Session{}, apperrors.ErrInvalidCredentials
		}
		return Session{}, err
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, apperrors.ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *Service) session(user User) (Session, error) {
	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("token generation failed: %w", err)
	}
	return Session{ID: user.ID, Name: user.Name, Email: user.Email, Token: token}, nil
}

// FindIdentity resolves the chat identity of userID.
func (s *Service) FindIdentity(ctx context.Context, userID string) (model.UserIdentity, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return model.UserIdentity{}, err
	}
	return model.UserIdentity{ID: user.ID, DisplayName: user.Name}, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	followers, err := s.repo.CountFollowers(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	following, err := s.repo.CountFollowing(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{ID: user.ID, Name: user.Name, Email: user.Email, Followers: followers, Following: following}, nil
}

// UpdateProfile changes name and email; empty fields keep their value.
func (s *Service) UpdateProfile(ctx context.Context, userID string, req UpdateRequest) (Profile, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return Profile{}, apperrors.ErrInvalidUserData
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	previousEmail := user.Email
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		user.Email = req.Email
	}

	emailChanged := user.Email != previousEmail
	if emailChanged {
		if err := s.repo.ClaimEmail(ctx, user.Email, user.ID); err != nil {
			return Profile{}, err
		}
	}
	if err := s.repo.Save(ctx, user); err != nil {
		if emailChanged {
			err = s.releaseEmail(ctx, user.Email, user.ID, err)
		}
		return Profile{}, err
	}
	if emailChanged {
		if err := s.repo.ReleaseEmail(ctx, previousEmail, user.ID); err != nil {
			return Profile{}, err
		}
	}
	return s.Profile(ctx, userID)
}

// ToggleFollow follows targetID, or unfollows it when already followed.
func (s *Service) ToggleFollow(ctx context.Context, userID, targetID string) (FollowResult, error) {
	if userID == targetID {
		return FollowResult{}, apperrors.InvalidArg("You cannot follow yourself")
	}
	if _, err := s.repo.FindByID(ctx, targetID); err != nil {
		return FollowResult{}, err
	}

	following, err := s.repo.IsFollowing(ctx, userID, targetID)
	if err != nil {
		return FollowResult{}, err
	}
	if following {
		err = s.repo.Unfollow(ctx, userID, targetID)
	} else {
		err = s.repo.Follow(ctx, userID, targetID)
	}
	if err != nil {
		return FollowResult{}, err
	}

	followingCount, err := s.repo.CountFollowing(ctx, userID)
	if err != nil {
		return FollowResult{}, err
	}
	followersCount, err := s.repo.CountFollowers(ctx, targetID)
	if err != nil {
		return FollowResult{}, err
	}
	return FollowResult{Message: "Follow/Unfollow successful", Following: followingCount, Followers: followersCount}, nil
}

func (s *Service) IsFollowing(ctx context.Context, userID, targetID string) (bool, error) {
	if _, err := s.repo.FindByID(ctx, targetID); err != nil {
		return false, err
	}
	return s.repo.IsFollowing(ctx, userID, targetID)
}
