package prometheus

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenauth"
)

// emptyStore knows no users.
type emptyStore struct{}

func (emptyStore) FindByEmail(context.Context, string) (tokenauth.User, error) {
	return tokenauth.User{}, tokenauth.ErrUserNotFound
}

func (emptyStore) FindByID(context.Context, string) (tokenauth.User, error) {
	return tokenauth.User{}, tokenauth.ErrUserNotFound
}

func (emptyStore) VerifyPassword(context.Context, string, string) (tokenauth.SignInResult, error) {
	return tokenauth.SignInResult{}, nil
}

func (emptyStore) CreateUser(context.Context, string, string) (tokenauth.User, error) {
	return tokenauth.User{}, tokenauth.ErrDuplicateEmail
}

func (emptyStore) StoreRefreshToken(context.Context, string, string, time.Time) error { return nil }

func (emptyStore) VerifyRefreshToken(context.Context, string, string) (bool, error) {
	return false, nil
}

func (emptyStore) ReplaceRefreshToken(context.Context, string, string, string, time.Time) (bool, error) {
	return false, nil
}

func (emptyStore) ClearRefreshToken(context.Context, string) error { return nil }
