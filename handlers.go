package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// sessionCookie carries the access token between requests.
const sessionCookie = "rewardAuthToken"

type creds struct{ Email, Password string }

// publicUser shapes a user for responses with the password stripped.
func publicUser(u *User) map[string]interface{} {
	return map[string]interface{}{
		"id":            u.ID,
		"email":         u.Email,
		"option":        u.Option,
		"showCompleted": u.ShowCompleted,
		"createdAt":     u.CreatedAt,
	}
}

func (a *App) setSessionCookie(w http.ResponseWriter, accessToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}

	hashed, err := hashPassword(c.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
		return
	}
	if _, err := a.DB.CreateUser(c.Email, hashed); err != nil {
		writeError(w, http.StatusConflict, "USER_EXISTS", "User with this email already exists")
		return
	}
	res, err := a.Tokens.Login(c.Email, c.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue tokens")
		return
	}
	a.setSessionCookie(w, res.AccessToken)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Registration successful!",
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
		"user":         publicUser(res.User),
	})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	res, err := a.Tokens.Login(c.Email, c.Password)
	if errors.Is(err, ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}
	a.setSessionCookie(w, res.AccessToken)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Login successful!",
		"refreshToken": res.RefreshToken,
		"user":         publicUser(res.User),
	})
}

func (a *App) HandleProtected(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "NO_TOKEN", "No token provided")
		return
	}
	user, err := a.Tokens.CurrentUser(cookie.Value)
	if errors.Is(err, ErrForbidden) {
		writeError(w, http.StatusForbidden, "INVALID_TOKEN", "Invalid or expired token")
		return
	}
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Access granted",
		"user":    publicUser(user),
	})
}

// HandleValidate checks an access token passed as a Bearer header or
// the session cookie and returns the owning user id.
func (a *App) HandleValidate(w http.ResponseWriter, r *http.Request) {
	tokenStr := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		tokenStr = strings.TrimPrefix(auth, "Bearer ")
	} else if cookie, err := r.Cookie(sessionCookie); err == nil {
		tokenStr = cookie.Value
	}
	if tokenStr == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}
	userID, err := a.Tokens.ValidateAccess(tokenStr)
	if err != nil {
		writeError(w, http.StatusForbidden, "INVALID_TOKEN", "Token is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  true,
		"userId": userID,
	})
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct{ RefreshToken string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}
	access, err := a.Tokens.Refresh(in.RefreshToken)
	if errors.Is(err, ErrForbidden) {
		writeError(w, http.StatusForbidden, "INVALID_TOKEN", "Invalid or expired refresh token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var in struct{ RefreshToken string }
	// a missing or empty body is fine; logout is idempotent
	_ = json.NewDecoder(r.Body).Decode(&in)
	if err := a.Tokens.Logout(in.RefreshToken); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Logout failed")
		return
	}
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
