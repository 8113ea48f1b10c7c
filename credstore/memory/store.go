package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/credstore"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/refresh"
)

var (
	errNoHasher      = errors.New("memory: seeding a password requires a hasher")
	errEmailRequired = errors.New("memory: email required")
)

type account struct {
	user         tokenauth.User
	passwordHash string
	notAllowed   bool
}

type binding struct {
	digest    refresh.Digest
	expiresAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*account
	byEmail  map[string]string
	tokens   map[string]binding

	hasher password.Hasher
	now    func() time.Time
}

// New returns an empty store. A nil hasher disables password sign-in.
func New(hasher password.Hasher) *Store {
	return &Store{
		accounts: map[string]*account{},
		byEmail:  map[string]string{},
		tokens:   map[string]binding{},
		hasher:   hasher,
		now:      time.Now,
	}
}

// WithClock replaces time.Now for refresh token expiry checks.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// AddUser hashes seed.Password and registers the user.
func (s *Store) AddUser(seed credstore.Seed) (tokenauth.User, error) {
	var hash string
	if seed.Password != "" {
		if s.hasher == nil {
			return tokenauth.User{}, errNoHasher
		}
		h, err := s.hasher.Hash(seed.Password)
		if err != nil {
			return tokenauth.User{}, err
		}
		hash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.insertLocked(seed.Email, seed.DisplayName)
	if err != nil {
		return tokenauth.User{}, err
	}
	acct := s.accounts[u.ID]
	acct.passwordHash = hash
	acct.notAllowed = seed.NotAllowed
	acct.user.LockedOut = seed.LockedOut
	acct.user.TwoFactorEnabled = seed.TwoFactorEnabled
	return acct.user, nil
}

// SetLockedOut toggles the lockout flag.
func (s *Store) SetLockedOut(userID string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return tokenauth.ErrUserNotFound
	}
	acct.user.LockedOut = locked
	return nil
}

func (s *Store) insertLocked(email, displayName string) (tokenauth.User, error) {
	key := credstore.NormalizeEmail(email)
	if key == "" {
		return tokenauth.User{}, errEmailRequired
	}
	if _, taken := s.byEmail[key]; taken {
		return tokenauth.User{}, tokenauth.ErrDuplicateEmail
	}

	u := tokenauth.User{
		ID:          uuid.NewString(),
		Email:       strings.TrimSpace(email),
		DisplayName: displayName,
	}
	s.accounts[u.ID] = &account{user: u}
	s.byEmail[key] = u.ID
	return u, nil
}

// FindByEmail looks an account up by normalised email.
func (s *Store) FindByEmail(ctx context.Context, email string) (tokenauth.User, error) {
	if err := ctx.Err(); err != nil {
		return tokenauth.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[credstore.NormalizeEmail(email)]
	if !ok {
		return tokenauth.User{}, tokenauth.ErrUserNotFound
	}
	return s.accounts[id].user, nil
}

// FindByID looks an account up by id.
func (s *Store) FindByID(ctx context.Context, userID string) (tokenauth.User, error) {
	if err := ctx.Err(); err != nil {
		return tokenauth.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return tokenauth.User{}, tokenauth.ErrUserNotFound
	}
	return acct.user, nil
}

// VerifyPassword reports every applicable flag. A locked out account still
// has its password checked so Succeeded reflects the credential alone.
func (s *Store) VerifyPassword(ctx context.Context, email, pw string) (tokenauth.SignInResult, error) {
	if err := ctx.Err(); err != nil {
		return tokenauth.SignInResult{}, err
	}

	s.mu.Lock()
	id, ok := s.byEmail[credstore.NormalizeEmail(email)]
	var acct account
	if ok {
		acct = *s.accounts[id]
	}
	s.mu.Unlock()

	if !ok || acct.passwordHash == "" || s.hasher == nil {
		return tokenauth.SignInResult{}, nil
	}

	match, err := s.hasher.Verify(pw, acct.passwordHash)
	if err != nil {
		// Oversized input is a failed attempt, not a store fault.
		if errors.Is(err, password.ErrTooLong) {
			return tokenauth.SignInResult{}, nil
		}
		return tokenauth.SignInResult{}, err
	}

	res := tokenauth.SignInResult{
		LockedOut:         acct.user.LockedOut,
		NotAllowed:        acct.notAllowed,
		RequiresTwoFactor: match && acct.user.TwoFactorEnabled,
	}
	res.Succeeded = match && !res.LockedOut && !res.NotAllowed && !res.RequiresTwoFactor
	return res, nil
}

// CreateUser adds an account without a password.
func (s *Store) CreateUser(ctx context.Context, email, displayName string) (tokenauth.User, error) {
	if err := ctx.Err(); err != nil {
		return tokenauth.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(email, displayName)
}

// StoreRefreshToken overwrites the user's binding. An empty token clears it.
func (s *Store) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[userID]; !ok {
		return tokenauth.ErrUserNotFound
	}
	if token == "" {
		delete(s.tokens, userID)
		return nil
	}
	s.tokens[userID] = binding{digest: refresh.Sum(token), expiresAt: expiresAt}
	return nil
}

// VerifyRefreshToken reports whether token is the user's unexpired stored token.
func (s *Store) VerifyRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentLocked(userID, token), nil
}

// ReplaceRefreshToken swaps expected for next under the store lock.
func (s *Store) ReplaceRefreshToken(ctx context.Context, userID, expected, next string, expiresAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(userID, expected) {
		return false, nil
	}
	s.tokens[userID] = binding{digest: refresh.Sum(next), expiresAt: expiresAt}
	return true, nil
}

// ClearRefreshToken removes the user's binding.
func (s *Store) ClearRefreshToken(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, userID)
	return nil
}

func (s *Store) currentLocked(userID, token string) bool {
	b, ok := s.tokens[userID]
	if !ok {
		return false
	}
	if !s.now().Before(b.expiresAt) {
		delete(s.tokens, userID)
		return false
	}
	return b.digest.Matches(token)
}

var _ tokenauth.CredentialStore = (*Store)(nil)
