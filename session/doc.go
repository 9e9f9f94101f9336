// Package session provides durable persistence for the client-side session
// triple: access token, refresh token, and the serialized user snapshot.
//
// # The completeness invariant
//
// The three pieces are stored as three independent keyed entries but are only
// meaningful together. A store that finds any of them missing on load must
// report the whole session as absent; callers then fall back to the
// unauthenticated state. Save and Clear always act on all three at once.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT decode the user snapshot,
// talk to the TechMate API, or decide authentication state — those
// responsibilities belong to the Client.
package session
