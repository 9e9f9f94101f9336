package techmate

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

/* ==================== ACCESS TOKEN INSPECTION ==================== */

// AccessTokenExpiresAt reports the expiry of the cached access token as
// claimed by the token itself. The signature is not verified; the server
// remains the authority and a stale answer only costs one extra round trip
// through the refresh path.
func (c *Client) AccessTokenExpiresAt() (time.Time, bool) {
	return tokenExpiry(c.AccessToken())
}

func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// accessExpired reports whether the cached access token is expired or inside
// the configured skew window. Tokens without a readable exp claim are treated
// as live and left to the 401 path.
func (c *Client) accessExpired() bool {
	exp, ok := c.AccessTokenExpiresAt()
	if !ok {
		return false
	}
	return !time.Now().Add(c.config.Gateway.ExpirySkew).Before(exp)
}
