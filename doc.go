// Package techmate is a Go client for the TechMate tutorial platform: JWT
// session management with silent token refresh, typed catalog, progress, and
// certificate operations, and a pure role-based access gate.
//
// The package is designed for long-lived interactive processes: Client
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Session model
//
// A session is the triple of access token, refresh token, and cached user
// snapshot. The triple moves atomically: it is stored together on login and
// erased together on logout or teardown, so observers never see a partial
// session. Sessions persist across restarts through a [session.Store]; a
// persisted session missing any part of the triple reads back as logged out.
//
// # Gateway contract
//
// Every request dispatched through the client attaches the current access
// token. A 401 answer triggers exactly one silent refresh followed by one
// retry of the original request; concurrent 401s collapse onto a single
// refresh call. When the refresh itself is rejected the session is torn
// down, the configured session-expired handler runs, and the error matches
// [ErrSessionExpired]. All other failures pass through untouched.
//
// # Access gate
//
// [Decide] is pure: outcome is a function of the gate input alone, with no
// I/O and no clock. [Client.Gate] feeds it the live session snapshot.
package techmate
