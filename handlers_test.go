package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *MemDB) {
	t.Helper()
	db := NewMemoryDB()
	return &App{
		DB:     db,
		Tokens: NewTokenService(db, testAccessSecret, testRefreshSecret),
	}, db
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func sessionCookieFrom(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	return nil
}

func TestLoginEndpoint(t *testing.T) {
	app, db := newTestApp(t)
	seedUser(t, db, "a@x.com", "correct")
	router := app.Routes()

	rec := postJSON(t, router, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "correct"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.NotEmpty(t, body["refreshToken"])
	user := body["user"].(map[string]interface{})
	require.Equal(t, "a@x.com", user["email"])
	_, leaked := user["password"]
	require.False(t, leaked)

	cookie := sessionCookieFrom(rec)
	require.NotNil(t, cookie)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)

	// immediate second login returns the same refresh token
	rec2 := postJSON(t, router, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "correct"})
	require.Equal(t, http.StatusOK, rec2.Code)
	require.Equal(t, body["refreshToken"], decodeBody(t, rec2)["refreshToken"])
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	app, db := newTestApp(t)
	seedUser(t, db, "a@x.com", "correct")
	router := app.Routes()

	rec := postJSON(t, router, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, router, "/api/auth/login", map[string]string{"email": "ghost@x.com", "password": "correct"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	router := app.Routes()

	rec := postJSON(t, router, "/api/auth/register", map[string]string{"email": "new@x.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	require.NotEmpty(t, body["accessToken"])
	require.NotEmpty(t, body["refreshToken"])

	// duplicate email conflicts
	rec = postJSON(t, router, "/api/auth/register", map[string]string{"email": "new@x.com", "password": "pw"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestProtectedEndpoint(t *testing.T) {
	app, db := newTestApp(t)
	u := seedUser(t, db, "a@x.com", "correct")
	router := app.Routes()

	// no cookie
	req := httptest.NewRequest("GET", "/api/auth/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// expired token
	expired, err := signAccessToken(testAccessSecret, u.ID, u.Email, -time.Second)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/api/auth/protected", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: expired})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// token for a user that no longer exists
	ghost, err := signAccessToken(testAccessSecret, 9999, "", accessTokenTTL)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/api/auth/protected", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: ghost})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// valid token
	valid, err := signAccessToken(testAccessSecret, u.ID, u.Email, accessTokenTTL)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/api/auth/protected", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: valid})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Access granted", body["message"])
}

func TestValidateEndpoint(t *testing.T) {
	app, db := newTestApp(t)
	u := seedUser(t, db, "a@x.com", "correct")
	router := app.Routes()

	req := httptest.NewRequest("GET", "/api/auth/validate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	valid, err := signAccessToken(testAccessSecret, u.ID, u.Email, accessTokenTTL)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/api/auth/validate", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, u.ID, decodeBody(t, rec)["userId"])

	// a refresh-signed token must not pass the access check
	crossSigned, err := signRefreshToken(testRefreshSecret, u.ID, refreshTokenTTL)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/api/auth/validate", nil)
	req.Header.Set("Authorization", "Bearer "+crossSigned)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	app, db := newTestApp(t)
	seedUser(t, db, "a@x.com", "correct")
	router := app.Routes()

	// missing field
	rec := postJSON(t, router, "/api/auth/refresh", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown token, even if well formed
	rec = postJSON(t, router, "/api/auth/refresh", map[string]string{"refreshToken": "nope"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	login := postJSON(t, router, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "correct"})
	refresh := decodeBody(t, login)["refreshToken"].(string)

	rec = postJSON(t, router, "/api/auth/refresh", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decodeBody(t, rec)["accessToken"])

	// refresh does not rotate: same value works again
	rec = postJSON(t, router, "/api/auth/refresh", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutEndpointIdempotent(t *testing.T) {
	app, db := newTestApp(t)
	seedUser(t, db, "a@x.com", "correct")
	router := app.Routes()

	login := postJSON(t, router, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "correct"})
	refresh := decodeBody(t, login)["refreshToken"].(string)

	rec := postJSON(t, router, "/api/auth/logout", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookieFrom(rec)
	require.NotNil(t, cookie)
	require.Empty(t, cookie.Value)

	// second logout with the same token still succeeds
	rec = postJSON(t, router, "/api/auth/logout", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, rec.Code)

	// and one with no body at all
	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// logged-out refresh token is no longer accepted
	rec = postJSON(t, router, "/api/auth/refresh", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusForbidden, rec.Code)
}
