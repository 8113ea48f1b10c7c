package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/credstore"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/refresh"
)

var errNoHasher = errors.New("sqlite: seeding a password requires a hasher")

// rehasher is implemented by hashers that can report stale parameters.
type rehasher interface {
	NeedsRehash(encoded string) (bool, error)
}

// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	hasher password.Hasher
	now    func() time.Time
}

// Open opens (or creates) the database at path, applies migrations and
// returns a Store owning the handle. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, hasher password.Hasher) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, hasher), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, hasher password.Hasher) *Store {
	return &Store{db: db, hasher: hasher, now: time.Now}
}

// WithClock replaces time.Now for token expiry and creation timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddUser hashes seed.Password and inserts the user.
func (s *Store) AddUser(ctx context.Context, seed credstore.Seed) (tokenauth.User, error) {
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

	u := tokenauth.User{
		ID:               uuid.NewString(),
		Email:            strings.TrimSpace(seed.Email),
		DisplayName:      seed.DisplayName,
		LockedOut:        seed.LockedOut,
		TwoFactorEnabled: seed.TwoFactorEnabled,
	}
	if err := s.insert(ctx, u, hash, seed.NotAllowed); err != nil {
		return tokenauth.User{}, err
	}
	return u, nil
}

func (s *Store) insert(ctx context.Context, u tokenauth.User, hash string, notAllowed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, normalized_email, display_name, password_hash,
		                   locked_out, not_allowed, two_factor_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, credstore.NormalizeEmail(u.Email), u.DisplayName, hash,
		u.LockedOut, notAllowed, u.TwoFactorEnabled, s.now().UnixMilli())
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return tokenauth.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// SetLockedOut toggles the lockout flag.
func (s *Store) SetLockedOut(ctx context.Context, userID string, locked bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET locked_out = ? WHERE id = ?`, locked, userID)
	if err != nil {
		return fmt.Errorf("failed to update user[%s]: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tokenauth.ErrUserNotFound
	}
	return nil
}

const userColumns = `id, email, display_name, locked_out, two_factor_enabled`

func scanUser(row *sql.Row) (tokenauth.User, error) {
	var u tokenauth.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.LockedOut, &u.TwoFactorEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return tokenauth.User{}, tokenauth.ErrUserNotFound
	}
	if err != nil {
		return tokenauth.User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

// FindByEmail looks an account up by normalised email.
func (s *Store) FindByEmail(ctx context.Context, email string) (tokenauth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE normalized_email = ?`, credstore.NormalizeEmail(email)))
}

// FindByID looks an account up by id.
func (s *Store) FindByID(ctx context.Context, userID string) (tokenauth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
}

// VerifyPassword reports every applicable flag and upgrades stale hashes
// after a matching password.
func (s *Store) VerifyPassword(ctx context.Context, email, pw string) (tokenauth.SignInResult, error) {
	var (
		id, hash                      string
		lockedOut, notAllowed, twoFac bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash, locked_out, not_allowed, two_factor_enabled
		FROM users WHERE normalized_email = ?
	`, credstore.NormalizeEmail(email)).Scan(&id, &hash, &lockedOut, &notAllowed, &twoFac)
	if errors.Is(err, sql.ErrNoRows) {
		return tokenauth.SignInResult{}, nil
	}
	if err != nil {
		return tokenauth.SignInResult{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if hash == "" || s.hasher == nil {
		return tokenauth.SignInResult{}, nil
	}

	match, err := s.hasher.Verify(pw, hash)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return tokenauth.SignInResult{}, nil
		}
		return tokenauth.SignInResult{}, err
	}
	if match {
		s.upgradeHash(ctx, id, pw, hash)
	}

	res := tokenauth.SignInResult{
		LockedOut:         lockedOut,
		NotAllowed:        notAllowed,
		RequiresTwoFactor: match && twoFac,
	}
	res.Succeeded = match && !res.LockedOut && !res.NotAllowed && !res.RequiresTwoFactor
	return res, nil
}

// upgradeHash is best effort; a failure leaves the old hash usable.
func (s *Store) upgradeHash(ctx context.Context, userID, pw, hash string) {
	rh, ok := s.hasher.(rehasher)
	if !ok {
		return
	}
	stale, err := rh.NeedsRehash(hash)
	if err != nil || !stale {
		return
	}
	next, err := s.hasher.Hash(pw)
	if err != nil {
		return
	}
	_, _ = s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ? AND password_hash = ?`, next, userID, hash)
}

// CreateUser inserts an account without a password.
func (s *Store) CreateUser(ctx context.Context, email, displayName string) (tokenauth.User, error) {
	u := tokenauth.User{
		ID:          uuid.NewString(),
		Email:       strings.TrimSpace(email),
		DisplayName: displayName,
	}
	if err := s.insert(ctx, u, "", false); err != nil {
		return tokenauth.User{}, err
	}
	return u, nil
}

// StoreRefreshToken overwrites the user's token row. An empty token deletes it.
func (s *Store) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if token == "" {
		return s.ClearRefreshToken(ctx, userID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_tokens (user_id, login_provider, name, value, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, login_provider, name)
		DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, userID, refresh.LoginProvider, refresh.TokenName, refresh.Sum(token).String(), expiresAt.UnixMilli())
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return tokenauth.ErrUserNotFound
		}
		return fmt.Errorf("failed to store refresh token[%s]: %w", userID, err)
	}
	return nil
}

// VerifyRefreshToken reports whether token is the user's unexpired stored token.
func (s *Store) VerifyRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	var (
		value     string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM user_tokens
		WHERE user_id = ? AND login_provider = ? AND name = ?
	`, userID, refresh.LoginProvider, refresh.TokenName).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load refresh token[%s]: %w", userID, err)
	}
	if s.now().UnixMilli() >= expiresAt {
		return false, nil
	}

	stored, err := refresh.ParseDigest(value)
	if err != nil {
		return false, fmt.Errorf("refresh token[%s]: %w", userID, err)
	}
	return stored.Matches(token), nil
}

// ReplaceRefreshToken swaps expected for next in a single conditional update.
func (s *Store) ReplaceRefreshToken(ctx context.Context, userID, expected, next string, expiresAt time.Time) (bool, error) {
	if expected == "" || next == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_tokens SET value = ?, expires_at = ?
		WHERE user_id = ? AND login_provider = ? AND name = ?
		  AND value = ? AND expires_at > ?
	`, refresh.Sum(next).String(), expiresAt.UnixMilli(),
		userID, refresh.LoginProvider, refresh.TokenName,
		refresh.Sum(expected).String(), s.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token[%s]: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token[%s]: %w", userID, err)
	}
	return n == 1, nil
}

// ClearRefreshToken deletes the user's token row.
func (s *Store) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_tokens WHERE user_id = ? AND login_provider = ? AND name = ?
	`, userID, refresh.LoginProvider, refresh.TokenName)
	if err != nil {
		return fmt.Errorf("failed to clear refresh token[%s]: %w", userID, err)
	}
	return nil
}

func isConstraint(err error, code int) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == code
}

var _ tokenauth.CredentialStore = (*Store)(nil)
