package techmate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const contentTypeJSON = "application/json"

// errServerStatus marks a 5xx response for breaker accounting. The response
// itself is still delivered to the caller as an *APIError.
var errServerStatus = errors.New("server status")

// httpResult is one HTTP attempt after the body has been drained.
type httpResult struct {
	status int
	header http.Header
	body   []byte
}

/*
====================================
DISPATCH
====================================
*/

// do dispatches one authorized request through the gateway: bearer attach,
// request ID, optional proactive refresh, and at most one refresh-and-retry
// after a 401. out may be nil, a *[]byte for raw payloads, or a JSON target.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	requestID := uuid.NewString()

	if c.config.Gateway.ProactiveRefresh && c.RefreshToken() != "" && c.accessExpired() {
		if _, err := c.refreshAccess(ctx, c.AccessToken()); err != nil {
			return err
		}
	}

	token := c.AccessToken()
	res, err := c.send(ctx, method, path, query, body, contentType, token, requestID)
	if err != nil {
		return err
	}

	// retried is local to this call on purpose: two concurrent requests each
	// get their own single retry, and nothing is shared between them.
	if res.status == http.StatusUnauthorized && token != "" {
		access, rerr := c.refreshAccess(ctx, token)
		if rerr != nil {
			return rerr
		}
		c.metricInc(MetricRequestRetried)
		c.emitAudit(ctx, auditEventRequestRetried, true, nil, map[string]string{
			"method": method,
			"path":   path,
		})
		res, err = c.send(ctx, method, path, query, body, contentType, access, requestID)
		if err != nil {
			return err
		}
	}

	return c.decode(res, out)
}

// send performs a single HTTP attempt. An empty token dispatches the request
// without an Authorization header.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, contentType, token, requestID string) (httpResult, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	attempt := func() (httpResult, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return httpResult{}, err
		}
		req.Header.Set("User-Agent", c.config.HTTP.UserAgent)
		if c.config.HTTP.RequestIDHeader != "" && requestID != "" {
			req.Header.Set(c.config.HTTP.RequestIDHeader, requestID)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		start := time.Now()
		resp, err := c.httpc.Do(req)
		if c.metrics.Enabled() {
			c.metrics.Observe(MetricRequestLatency, time.Since(start))
		}
		if err != nil {
			return httpResult{}, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return httpResult{}, err
		}
		return httpResult{status: resp.StatusCode, header: resp.Header, body: data}, nil
	}

	if c.breaker == nil {
		return attempt()
	}

	v, err := c.breaker.Execute(func() (any, error) {
		res, err := attempt()
		if err != nil {
			return httpResult{}, err
		}
		if res.status >= http.StatusInternalServerError {
			return res, errServerStatus
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metricInc(MetricBreakerRejected)
		return httpResult{}, fmt.Errorf("%w: %w", ErrRequestRejected, err)
	}
	if err != nil && !errors.Is(err, errServerStatus) {
		return httpResult{}, err
	}
	return v.(httpResult), nil
}

// decode maps the final attempt onto the caller's result. Non-2xx responses
// become *APIError; a 403 against an unapproved instructor snapshot
// additionally matches [ErrApprovalPending].
func (c *Client) decode(res httpResult, out any) error {
	if res.status >= 200 && res.status < 300 {
		switch target := out.(type) {
		case nil:
			return nil
		case *[]byte:
			*target = res.body
			return nil
		default:
			if len(res.body) == 0 {
				return nil
			}
			return json.Unmarshal(res.body, out)
		}
	}

	apiErr := parseAPIError(res.status, res.body)
	if res.status == http.StatusForbidden && c.pendingInstructor() {
		return fmt.Errorf("%w: %w", ErrApprovalPending, apiErr)
	}
	return apiErr
}

// pendingInstructor reports whether the cached snapshot is an instructor the
// platform has not approved yet.
func (c *Client) pendingInstructor() bool {
	u := c.snapshotUser()
	return u != nil && u.Profile.Role == RoleInstructor && !u.Profile.IsApprovedInstructor
}

/*
====================================
TOKEN REFRESH
====================================
*/

// refreshAccess exchanges the refresh token for a new access token. used is
// the access token the caller just got a 401 with. Any number of concurrent
// 401s collapse onto one refresh call; every failure path tears the session
// down and matches [ErrSessionExpired].
func (c *Client) refreshAccess(ctx context.Context, used string) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		// A flight that finished while this caller queued already rotated
		// the pair; reuse it instead of burning the refresh token again.
		if cur := c.AccessToken(); cur != "" && cur != used {
			return cur, nil
		}

		refresh := c.RefreshToken()
		if refresh == "" {
			err := fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
			c.metricInc(MetricRefreshFailure)
			c.emitAudit(ctx, auditEventRefreshFailure, false, ErrNoRefreshToken, nil)
			c.teardown(ctx, err)
			return nil, err
		}

		payload, merr := json.Marshal(map[string]string{"refresh": refresh})
		if merr != nil {
			return nil, merr
		}
		res, err := c.send(ctx, http.MethodPost, c.config.Gateway.RefreshPath, nil, payload, contentTypeJSON, "", "")
		if err != nil {
			joined := fmt.Errorf("%w: %w", ErrSessionExpired, err)
			c.metricInc(MetricRefreshFailure)
			c.emitAudit(ctx, auditEventRefreshFailure, false, err, nil)
			c.teardown(ctx, joined)
			return nil, joined
		}
		if res.status < 200 || res.status >= 300 {
			apiErr := parseAPIError(res.status, res.body)
			joined := fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
			c.metricInc(MetricRefreshFailure)
			c.emitAudit(ctx, auditEventRefreshFailure, false, apiErr, nil)
			c.teardown(ctx, joined)
			return nil, joined
		}

		var pair TokenPair
		if err := json.Unmarshal(res.body, &pair); err != nil || pair.Access == "" {
			joined := fmt.Errorf("%w: malformed refresh response", ErrSessionExpired)
			c.metricInc(MetricRefreshFailure)
			c.emitAudit(ctx, auditEventRefreshFailure, false, joined, nil)
			c.teardown(ctx, joined)
			return nil, joined
		}

		if err := c.swapTokens(ctx, pair.Access, pair.Refresh); err != nil {
			logf("persisting refreshed tokens failed: %v", err)
		}
		c.metricInc(MetricRefreshSuccess)
		c.emitAudit(ctx, auditEventRefreshSuccess, true, nil, nil)
		return pair.Access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

/*
====================================
ERROR AND BODY HELPERS
====================================
*/

// parseAPIError turns a non-2xx body into an *APIError. The backend answers
// with {"detail": ...} or {"error": ...} for single messages and
// {"field": ["msg", ...]} maps for validation failures.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	for key, val := range raw {
		var msg string
		if err := json.Unmarshal(val, &msg); err == nil {
			if key == "detail" || key == "error" {
				apiErr.Message = msg
			} else {
				apiErr.addField(key, msg)
			}
			continue
		}
		var msgs []string
		if err := json.Unmarshal(val, &msgs); err == nil {
			if key == "non_field_errors" && apiErr.Message == "" && len(msgs) > 0 {
				apiErr.Message = msgs[0]
			}
			for _, m := range msgs {
				apiErr.addField(key, m)
			}
		}
	}
	return apiErr
}

func (e *APIError) addField(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// multipartBody encodes fields and file parts for the authoring endpoints.
// Field order is fixed so request bodies are reproducible in tests.
func multipartBody(fields map[string]string, files map[string]*FileUpload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, fields[name]); err != nil {
			return nil, "", err
		}
	}

	fileNames := make([]string, 0, len(files))
	for name := range files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)
	for _, name := range fileNames {
		f := files[name]
		if f == nil {
			continue
		}
		part, err := w.CreateFormFile(name, f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
