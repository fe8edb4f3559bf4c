// internal/auth/identity.go
package auth

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// CookieName holds the identity token.
const CookieName = "auth_token"

// EnsureIdentity returns the player id carried by the request's identity
// cookie. A missing or invalid cookie gets a fresh guest id and a new
// cookie is set on w, so it must run before the response is written.
func EnsureIdentity(w http.ResponseWriter, r *http.Request, issuer *Issuer) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if playerID, err := issuer.Verify(c.Value); err == nil {
			return playerID, nil
		}
	}

	playerID := uuid.NewString()
	token, err := issuer.Issue(playerID)
	if err != nil {
		return "", fmt.Errorf("failed to create guest token: %w", err)
	}
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if issuer.ttl > 0 {
		cookie.MaxAge = int(issuer.ttl.Seconds())
	}
	http.SetCookie(w, cookie)
	return playerID, nil
}
