package techmate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testAccess  = "access-token-1"
	testRefresh = "refresh-token-1"
)

func testUser() User {
	return User{
		ID:       7,
		Username: "alice",
		Email:    "alice@example.com",
		Profile: Profile{
			Name: "Alice",
			Role: RoleStudent,
		},
	}
}

func testInstructor(approved bool) User {
	u := testUser()
	u.Username = "ivy"
	u.Profile.Role = RoleInstructor
	u.Profile.IsApprovedInstructor = approved
	return u
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encoding test response: %v", err)
	}
}

// newTestClient spins up a backend from handler and builds a client against
// it. Server and client are torn down with the test.
func newTestClient(t *testing.T, handler http.Handler, build ...func(*Builder)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b := New(srv.URL)
	for _, fn := range build {
		fn(b)
	}
	client, err := b.Build()
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// seedSession installs a live session directly, skipping the login round
// trip.
func seedSession(t *testing.T, c *Client, user User, access, refresh string) {
	t.Helper()
	if err := c.adoptSession(context.Background(), access, refresh, &user); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
}

// mintToken signs a throwaway HS256 token with the given expiry. Only the
// exp claim matters; the client never verifies signatures.
func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"sub": "7",
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func loginHandler(t *testing.T, user User, access, refresh string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login/" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		writeJSON(t, w, http.StatusOK, authPayload{
			User:   user,
			Tokens: TokenPair{Access: access, Refresh: refresh},
		})
	}
}
