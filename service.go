package main

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// CredentialValidator checks an email/password pair against the stored
// hash. It is read-only and fails silently: a missing user and a wrong
// password are indistinguishable to the caller.
type CredentialValidator struct {
	db DB
}

func NewCredentialValidator(db DB) *CredentialValidator {
	return &CredentialValidator{db: db}
}

// Validate returns the matching user, or nil when the email is unknown
// or the password does not match. A non-nil error means a store fault.
func (v *CredentialValidator) Validate(email, password string) (*User, error) {
	user, err := v.db.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if !comparePassword(user.Password, password) {
		return nil, nil
	}
	return user, nil
}

// TokenService implements the two-token session scheme: short-lived
// stateless access tokens and longer-lived server-tracked refresh
// tokens. Access and refresh tokens are signed with separate secrets;
// neither key can forge the other class.
type TokenService struct {
	db            DB
	validator     *CredentialValidator
	accessSecret  []byte
	refreshSecret []byte
}

func NewTokenService(db DB, accessSecret, refreshSecret []byte) *TokenService {
	return &TokenService{
		db:            db,
		validator:     NewCredentialValidator(db),
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
	}
}

// LoginResult carries both tokens plus the authenticated user. User
// still holds the password hash; handlers strip it before responding.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// Login authenticates the credentials and issues a token pair. A still
// valid refresh record for the user is reused rather than replaced, so
// repeated logins before expiry do not multiply refresh tokens.
//
// The reuse check and the insert are not atomic: two concurrent logins
// for a user with no live record can both insert one. Accepted; every
// read path re-checks expiry and the reaper removes the leftovers once
// they expire.
func (s *TokenService) Login(email, password string) (*LoginResult, error) {
	user, err := s.validator.Validate(email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		log.Printf("login rejected for %q", email)
		return nil, ErrUnauthorized
	}

	access, err := signAccessToken(s.accessSecret, user.ID, user.Email, accessTokenTTL)
	if err != nil {
		return nil, err
	}

	existing, err := s.db.GetRefreshTokenByUser(user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ExpiresAt.After(time.Now()) {
		return &LoginResult{AccessToken: access, RefreshToken: existing.Token, User: user}, nil
	}

	refresh, err := signRefreshToken(s.refreshSecret, user.ID, refreshTokenTTL)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	record := &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refresh,
		Kind:      TokenKindRefresh,
		ExpiresAt: now.Add(refreshTokenTTL),
		CreatedAt: now,
	}
	if err := s.db.InsertRefreshToken(record); err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// ValidateAccess verifies an access token and returns the owning user
// id. Malformed, unsigned, and expired tokens all come back as
// ErrForbidden; the real cause goes to the log only.
func (s *TokenService) ValidateAccess(tokenStr string) (int64, error) {
	userID, err := parseToken(s.accessSecret, tokenStr)
	if err != nil {
		log.Printf("access token rejected: %v", err)
		return 0, ErrForbidden
	}
	return userID, nil
}

// CurrentUser resolves an access token to its user record, password
// hash intact. Returns ErrForbidden for any token failure and
// ErrNotFound when the user was deleted after issuance.
func (s *TokenService) CurrentUser(tokenStr string) (*User, error) {
	userID, err := s.ValidateAccess(tokenStr)
	if err != nil {
		return nil, err
	}
	user, err := s.db.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// Refresh exchanges a stored refresh token for a new access token.
// Store membership is authoritative: a token absent from the store is
// rejected even if its signature still verifies. The refresh token is
// not rotated; it stays valid until its own expiry or logout.
func (s *TokenService) Refresh(tokenStr string) (string, error) {
	stored, err := s.db.GetRefreshToken(tokenStr, TokenKindRefresh)
	if err != nil {
		return "", err
	}
	if stored == nil {
		log.Print("refresh token not in store")
		return "", ErrForbidden
	}
	if stored.ExpiresAt.Before(time.Now()) {
		log.Print("refresh token record expired")
		return "", ErrForbidden
	}
	userID, err := parseToken(s.refreshSecret, tokenStr)
	if err != nil {
		log.Printf("refresh token rejected: %v", err)
		return "", ErrForbidden
	}
	// userId only here; login-issued access tokens also carry email.
	return signAccessToken(s.accessSecret, userID, "", accessTokenTTL)
}

// Logout deletes the refresh record for the given token value. It is
// idempotent and tolerates an empty value; access tokens already
// issued stay valid until they expire on their own.
func (s *TokenService) Logout(tokenStr string) error {
	if tokenStr == "" {
		return nil
	}
	return s.db.DeleteRefreshToken(tokenStr)
}
