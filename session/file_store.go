package session

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// fileEnvelope mirrors the three keyed entries a browser client keeps in
// local storage. Marshalled as one document so a crash mid-write can never
// leave the entries mutually inconsistent.
type fileEnvelope struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	User         json.RawMessage `json:"user"`
}

// FileStore persists the session as a JSON file with owner-only permissions.
// Writes go through a temp file and rename so readers never observe a torn
// session.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The parent
// directory must exist; the file itself is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the session file. A missing file, unreadable JSON, or an
// incomplete triple all yield (nil, nil): the caller is logged out.
func (f *FileStore) Load(_ context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Corrupt file: treat as logged out rather than failing restore.
		_ = os.Remove(f.path)
		return nil, nil
	}

	s := &Session{
		AccessToken:  env.AccessToken,
		RefreshToken: env.RefreshToken,
		User:         env.User,
	}
	if !s.Complete() {
		_ = os.Remove(f.path)
		return nil, nil
	}
	return s, nil
}

// Save writes the full triple atomically.
func (f *FileStore) Save(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(fileEnvelope{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		User:         s.User,
	})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".techmate-session-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}

// Clear removes the session file. Removing an absent file is not an error.
func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
