package utils

import (
	"net/http"
	"time"
)

// RefreshCookieName is the only place the refresh token travels.
const RefreshCookieName = "refresh_token"

// CookieOptions carries the deployment-specific cookie attributes.
type CookieOptions struct {
	Secure bool
	Domain string
}

// SetRefreshCookie writes the refresh token cookie: HttpOnly, SameSite=Strict,
// Path=/ and a Max-Age equal to the refresh lifetime.
//
// Example:
//
//	utils.SetRefreshCookie(w, pair.RefreshToken, 7*24*time.Hour, opts)
func SetRefreshCookie(w http.ResponseWriter, value string, lifetime time.Duration, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(lifetime / time.Second),
		Expires:  time.Now().Add(lifetime),
	})
}

// ClearRefreshCookie instructs the browser to drop the refresh cookie.
func ClearRefreshCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// RefreshTokenFromRequest reads the refresh token from the cookie only.
// Returns "" when the cookie is absent.
func RefreshTokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
