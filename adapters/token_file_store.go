package adapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bambu-display/application"
)

const tokenFileMode = 0o600

// FileTokenStore keeps the auth token in a JSON file readable only by the
// owner. Files holding a bare token string are accepted on Load.
type FileTokenStore struct {
	path string

	mu sync.Mutex
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Load() (application.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return application.AuthToken{}, application.ErrTokenNotFound
	}
	if err != nil {
		return application.AuthToken{}, fmt.Errorf("read token file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return application.AuthToken{}, application.ErrTokenNotFound
	}

	if !strings.HasPrefix(trimmed, "{") {
		return application.AuthToken{Token: trimmed}, nil
	}

	var token application.AuthToken
	if err := json.Unmarshal([]byte(trimmed), &token); err != nil {
		return application.AuthToken{}, fmt.Errorf("decode token file: %w", err)
	}
	if token.IsZero() {
		return application.AuthToken{}, application.ErrTokenNotFound
	}
	return token, nil
}

// Save replaces the token file atomically.
func (s *FileTokenStore) Save(token application.AuthToken) error {
	if token.IsZero() {
		return fmt.Errorf("refusing to save empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(tokenFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

var _ application.TokenStore = &FileTokenStore{}
