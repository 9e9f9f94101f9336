package session

// Session is the durable triple held for an authenticated user: the short-lived
// bearer access token, the longer-lived refresh token used to mint replacements,
// and the cached user snapshot exactly as the server returned it.
//
// The user snapshot is opaque bytes at this layer; the Client owns its shape.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         []byte
}

// Complete reports whether all three pieces are present. A partial session is
// never adopted; it is indistinguishable from being logged out.
func (s *Session) Complete() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != "" && len(s.User) > 0
}

// Clone returns a deep copy so callers can mutate the result without
// aliasing the stored snapshot.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
	if len(s.User) > 0 {
		out.User = make([]byte, len(s.User))
		copy(out.User, s.User)
	}
	return out
}
