package api

import (
	"net/http"
	"time"

	"streamhub/internal/auth"
	"streamhub/internal/constants"
)

// credentialCookies writes the access and refresh tokens as http-only
// cookies. secure is on in production.
type credentialCookies struct {
	secure bool
}

func (c credentialCookies) set(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, c.cookie(constants.AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, c.cookie(constants.RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt))
}

func (c credentialCookies) clear(w http.ResponseWriter) {
	for _, name := range []string{constants.AccessTokenCookie, constants.RefreshTokenCookie} {
		cookie := c.cookie(name, "", time.Unix(0, 0))
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (c credentialCookies) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
