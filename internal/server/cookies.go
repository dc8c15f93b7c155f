package server

import (
	"net/http"
	"time"
)

const (
	// CookieName is the name of the session cookie
	CookieName = "foneai_session"
	// SessionHeader carries the session id for clients without cookies.
	SessionHeader = "X-Session-Id"
)

// SetSessionCookie sets an HTTP-only session cookie. Secure cookies use
// SameSite=None so a widget embedded on another origin keeps its session.
func SetSessionCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration, secure bool) {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}
	if secure {
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}
	http.SetCookie(w, cookie)
}

// GetSessionCookie reads the session ID from the cookie
func GetSessionCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// requestSessionID retrieves the session ID from cookie or header
func requestSessionID(r *http.Request) string {
	if sid, err := GetSessionCookie(r); err == nil && sid != "" {
		return sid
	}
	return r.Header.Get(SessionHeader)
}
