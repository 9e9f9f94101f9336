package techmate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

/*
====================================
LOGIN / REGISTER / LOGOUT
====================================
*/

// Login authenticates the user and establishes the session: the token pair
// and user snapshot are stored together or not at all. Bad credentials match
// [ErrInvalidCredentials].
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var payload authPayload
	if err := c.do(ctx, http.MethodPost, "/auth/login/", nil, body, contentTypeJSON, &payload); err != nil {
		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, err, map[string]string{"username": username})
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, err
	}

	if err := c.adoptSession(ctx, payload.Tokens.Access, payload.Tokens.Refresh, &payload.User); err != nil {
		return nil, err
	}
	c.metricInc(MetricLoginSuccess)
	c.emitAudit(ctx, auditEventLoginSuccess, true, nil, map[string]string{"username": username})
	return c.snapshotUser(), nil
}

// Register creates an account and logs the new user straight in, matching
// the signup flow. Input failing client-side validation returns a
// *ValidationError without touching the network.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := c.validateInput(req); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var payload authPayload
	if err := c.do(ctx, http.MethodPost, "/auth/register/", nil, body, contentTypeJSON, &payload); err != nil {
		c.metricInc(MetricRegisterFailure)
		c.emitAudit(ctx, auditEventRegisterFailure, false, err, map[string]string{"username": req.Username})
		return nil, err
	}

	if err := c.adoptSession(ctx, payload.Tokens.Access, payload.Tokens.Refresh, &payload.User); err != nil {
		return nil, err
	}
	c.metricInc(MetricRegisterSuccess)
	c.emitAudit(ctx, auditEventRegisterSuccess, true, nil, map[string]string{"username": req.Username})
	return c.snapshotUser(), nil
}

// Logout clears the session locally. The server holds no session state for
// this client beyond the tokens themselves, so there is nothing to call.
// Idempotent: logging out while logged out is a no-op.
func (c *Client) Logout(ctx context.Context) {
	if c.IsAuthenticated() {
		c.metricInc(MetricLogout)
		c.emitAudit(ctx, auditEventLogout, true, nil, nil)
	}
	c.clearSession(ctx)
}

/*
====================================
SESSION RESTORE
====================================
*/

// Restore loads a persisted session and validates it against the server,
// reporting whether the client ended up authenticated. The loading flag is
// held for the whole call so gate decisions made meanwhile resolve to
// [OutcomeLoading] instead of a premature redirect. A cached session that
// fails validation for any reason is discarded silently: the caller sees
// logged-out, never an error.
func (c *Client) Restore(ctx context.Context) bool {
	c.loading.Store(true)
	defer c.loading.Store(false)

	cached, err := c.store.Load(ctx)
	if err != nil {
		logf("session store load failed: %v", err)
		return false
	}
	if cached == nil {
		return false
	}

	var user User
	if err := json.Unmarshal(cached.User, &user); err != nil {
		c.metricInc(MetricRestoreInvalid)
		c.emitAudit(ctx, auditEventRestoreInvalid, false, err, nil)
		c.clearSession(ctx)
		return false
	}

	// Adopt the cached triple optimistically so the validation request can
	// ride the normal gateway path, refresh included.
	c.mu.Lock()
	c.access = cached.AccessToken
	c.refresh = cached.RefreshToken
	c.user = &user
	c.mu.Unlock()

	var fresh User
	if err := c.do(ctx, http.MethodGet, "/auth/me/", nil, nil, "", &fresh); err != nil {
		c.metricInc(MetricRestoreInvalid)
		c.emitAudit(ctx, auditEventRestoreInvalid, false, err, nil)
		c.clearSession(ctx)
		return false
	}

	if err := c.UpdateUser(ctx, &fresh); err != nil {
		logf("persisting restored user failed: %v", err)
	}
	c.metricInc(MetricSessionRestored)
	c.emitAudit(ctx, auditEventSessionRestored, true, nil, nil)
	return true
}

/*
====================================
PROFILE AND PASSWORDS
====================================
*/

// FetchCurrentUser re-reads the authoritative user record and refreshes the
// cached snapshot.
func (c *Client) FetchCurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/me/", nil, nil, "", &user); err != nil {
		return nil, err
	}
	if err := c.UpdateUser(ctx, &user); err != nil {
		return nil, err
	}
	return c.snapshotUser(), nil
}

// UpdateProfile applies a partial profile edit and refreshes the cached
// snapshot from the server's response. Tokens are untouched.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return nil, err
	}
	var user User
	if err := c.do(ctx, http.MethodPatch, "/auth/profile/", nil, body, contentTypeJSON, &user); err != nil {
		return nil, err
	}
	if err := c.UpdateUser(ctx, &user); err != nil {
		return nil, err
	}
	return c.snapshotUser(), nil
}

// ChangePassword rotates the password of the logged-in user. The session
// remains valid; outstanding tokens are not revoked by the server.
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := c.validateInput(req); err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/auth/change-password/", nil, body, contentTypeJSON, nil)
}

// RequestPasswordReset asks the server to email a reset link. The server
// answers success whether or not the address exists; so does this method.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	if err := c.validate.Var(email, "required,email"); err != nil {
		return &ValidationError{Fields: map[string]string{"email": "enter a valid email address"}}
	}
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/auth/password-reset/", nil, body, contentTypeJSON, nil)
}

// ConfirmPasswordReset completes a reset started by [Client.RequestPasswordReset]
// using the uid and token from the emailed link.
func (c *Client) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirmRequest) error {
	if err := c.validateInput(req); err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/auth/password-reset-confirm/", nil, body, contentTypeJSON, nil)
}
