package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	testAccessSecret  = []byte("test-access-secret")
	testRefreshSecret = []byte("test-refresh-secret")
)

func newTestService() (*TokenService, *MemDB) {
	db := NewMemoryDB()
	return NewTokenService(db, testAccessSecret, testRefreshSecret), db
}

// seedUser creates a user with a cheap bcrypt hash so tests stay fast.
func seedUser(t *testing.T, db DB, email, password string) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := db.CreateUser(email, string(hash))
	require.NoError(t, err)
	return u
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, db := newTestService()
	seedUser(t, db, "a@x.com", "correct")

	_, err := svc.Login("a@x.com", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)

	// unknown email fails identically
	_, err = svc.Login("nobody@x.com", "correct")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginReturnsTokenPair(t *testing.T) {
	svc, db := newTestService()
	seedUser(t, db, "a@x.com", "correct")

	res, err := svc.Login("a@x.com", "correct")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, "a@x.com", res.User.Email)

	userID, err := svc.ValidateAccess(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, userID)
}

func TestLoginReusesValidRefreshToken(t *testing.T) {
	svc, db := newTestService()
	seedUser(t, db, "a@x.com", "correct")

	first, err := svc.Login("a@x.com", "correct")
	require.NoError(t, err)
	second, err := svc.Login("a@x.com", "correct")
	require.NoError(t, err)
	require.Equal(t, first.RefreshToken, second.RefreshToken)
}

func TestLoginMintsNewTokenAfterExpiry(t *testing.T) {
	svc, db := newTestService()
	u := seedUser(t, db, "a@x.com", "correct")

	stale, err := signRefreshToken(testRefreshSecret, u.ID, -time.Hour)
	require.NoError(t, err)
	require.NoError(t, db.InsertRefreshToken(&RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Token:     stale,
		Kind:      TokenKindRefresh,
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-8 * 24 * time.Hour),
	}))

	res, err := svc.Login("a@x.com", "correct")
	require.NoError(t, err)
	require.NotEqual(t, stale, res.RefreshToken)

	// the fresh record is now the one found for the user
	rec, err := db.GetRefreshTokenByUser(u.ID)
	require.NoError(t, err)
	require.Equal(t, res.RefreshToken, rec.Token)
}

func TestRefreshRequiresStoreMembership(t *testing.T) {
	svc, db := newTestService()
	u := seedUser(t, db, "a@x.com", "correct")

	// signature verifies, but the token was never persisted
	orphan, err := signRefreshToken(testRefreshSecret, u.ID, refreshTokenTTL)
	require.NoError(t, err)
	_, err = svc.Refresh(orphan)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRefreshDoesNotRotate(t *testing.T) {
	svc, db := newTestService()
	u := seedUser(t, db, "a@x.com", "correct")
	res, err := svc.Login("a@x.com", "correct")
	require.NoError(t, err)

	access1, err := svc.Refresh(res.RefreshToken)
	require.NoError(t, err)
	userID, err := svc.ValidateAccess(access1)
	require.NoError(t, err)
	require.Equal(t, u.ID, userID)

	// same refresh token is still accepted afterwards
	_, err = svc.Refresh(res.RefreshToken)
	require.NoError(t, err)
}

func TestSigningKeyIsolation(t *testing.T) {
	svc, db := newTestService()
	u := seedUser(t, db, "a@x.com", "correct")

	// refresh-signed token must fail the access check
	refreshSigned, err := signRefreshToken(testRefreshSecret, u.ID, refreshTokenTTL)
	require.NoError(t, err)
	_, err = svc.ValidateAccess(refreshSigned)
	require.ErrorIs(t, err, ErrForbidden)

	// access-signed value must fail refresh even when a record exists
	accessSigned, err := signAccessToken(testAccessSecret, u.ID, u.Email, accessTokenTTL)
	require.NoError(t, err)
	require.NoError(t, db.InsertRefreshToken(&RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Token:     accessSigned,
		Kind:      TokenKindRefresh,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
		CreatedAt: time.Now(),
	}))
	_, err = svc.Refresh(accessSigned)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestExpiredAccessTokenForbidden(t *testing.T) {
	svc, _ := newTestService()

	expired, err := signAccessToken(testAccessSecret, 1, "a@x.com", -time.Second)
	require.NoError(t, err)
	_, err = svc.ValidateAccess(expired)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, db := newTestService()
	seedUser(t, db, "a@x.com", "correct")
	res, err := svc.Login("a@x.com", "correct")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(res.RefreshToken))
	require.NoError(t, svc.Logout(res.RefreshToken))

	// record is gone, so refresh now fails
	_, err = svc.Refresh(res.RefreshToken)
	require.ErrorIs(t, err, ErrForbidden)

	// empty value is a no-op
	require.NoError(t, svc.Logout(""))
}

func TestReaperRemovesExpiredRecords(t *testing.T) {
	db := NewMemoryDB()
	require.NoError(t, db.InsertRefreshToken(&RefreshToken{
		ID:        uuid.NewString(),
		UserID:    1,
		Token:     "dead",
		Kind:      TokenKindRefresh,
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, db.InsertRefreshToken(&RefreshToken{
		ID:        uuid.NewString(),
		UserID:    2,
		Token:     "live",
		Kind:      TokenKindRefresh,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}))

	r := StartReaper(db, 10*time.Millisecond)
	defer r.Stop()

	require.Eventually(t, func() bool {
		rec, err := db.GetRefreshToken("dead", TokenKindRefresh)
		return err == nil && rec == nil
	}, time.Second, 10*time.Millisecond)

	live, err := db.GetRefreshToken("live", TokenKindRefresh)
	require.NoError(t, err)
	require.NotNil(t, live)
}
