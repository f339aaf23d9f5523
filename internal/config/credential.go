package config

import (
	"fmt"
	"log/slog"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

// Credential is what can be read from a bearer token without its key.
// Tokens are issued and verified by the backend; this is for diagnostics.
type Credential struct {
	Subject   string     `json:"subject"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token carries an expiry before now.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// InspectCredential decodes token claims without verifying the signature.
func InspectCredential(token string) (Credential, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return Credential{}, fmt.Errorf("inspect token: %w", err)
	}

	var cred Credential
	if sub, ok := claims["sub"].(string); ok {
		cred.Subject = sub
	}
	if role, ok := claims["role"].(string); ok {
		cred.Role = role
	}
	if exp, ok := claims["exp"].(float64); ok {
		t := time.Unix(int64(exp), 0).UTC()
		cred.ExpiresAt = &t
	}
	return cred, nil
}

// LogCredential logs what the token says about itself. An unreadable or
// expired token is a warning: the backend has the final word.
func LogCredential(token string, now time.Time) {
	if token == "" {
		slog.Warn("no token configured")
		return
	}
	cred, err := InspectCredential(token)
	if err != nil {
		slog.Warn("token is not a readable JWT", "error", err)
		return
	}
	attrs := []any{"subject", cred.Subject, "role", cred.Role}
	if cred.ExpiresAt != nil {
		attrs = append(attrs, "expires_at", cred.ExpiresAt.Format(time.RFC3339))
	}
	if cred.Expired(now) {
		slog.Warn("token expired", attrs...)
		return
	}
	slog.Debug("token", attrs...)
}
