package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"bookworms/internal/telegram"
)

// ErrNotAdmin is returned when a valid Telegram user is not a group admin.
var ErrNotAdmin = errors.New("admin access required")

// AdminChecker answers whether a Telegram user administers the group.
type AdminChecker interface {
	IsAdmin(ctx context.Context, externalID string) (bool, error)
}

// AuthService exchanges Mini App initData for an admin panel session token.
type AuthService struct {
	botToken string
	maxAge   time.Duration
	admins   AdminChecker
	now      func() time.Time
}

func NewAuthService(botToken string, maxAge time.Duration, admins AdminChecker) *AuthService {
	return &AuthService{botToken: botToken, maxAge: maxAge, admins: admins, now: time.Now}
}

// Login validates initData and issues a JWT when the user is an admin.
func (s *AuthService) Login(ctx context.Context, initData string) (string, *telegram.WebAppUser, error) {
	user, err := telegram.ValidateInitData(initData, s.botToken, s.maxAge, s.now())
	if err != nil {
		return "", nil, err
	}
	ok, err := s.admins.IsAdmin(ctx, strconv.FormatInt(user.ID, 10))
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrNotAdmin
	}
	token, err := GenerateJWT(user.ID, true)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
