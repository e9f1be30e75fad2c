// Package settings persists the host's access settings.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// FileName is the settings file inside the config directory.
const FileName = "settings.yaml"

var ErrEmptyPassword = errors.New("password must not be empty")

// Settings are the persisted host options.
type Settings struct {
	// HiddenAccess gates every connection behind the password instead of a
	// confirmation prompt.
	HiddenAccess bool `yaml:"hidden_access"`

	// RandomID picks a fresh room id per launch rather than the one derived
	// from the machine id.
	RandomID bool `yaml:"random_id"`

	PasswordHash string `yaml:"password_hash,omitempty"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{RandomID: true}
}

// Store reads and writes one settings file.
type Store struct {
	path string

	mu      sync.Mutex
	current Settings
}

// Open loads the settings in dir, falling back to defaults if the file does
// not exist yet.
func Open(dir string) (*Store, error) {
	s := &Store{path: filepath.Join(dir, FileName), current: Default()}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.current); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return s, nil
}

// Path is the backing file.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies f and saves the result.
func (s *Store) Update(f func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	f(&next)
	if err := s.save(next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// SetPassword stores a bcrypt hash of password.
func (s *Store) SetPassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.Update(func(st *Settings) { st.PasswordHash = string(hash) })
}

// ClearPassword removes the stored hash. Hidden access then rejects every
// attempt until a new password is set.
func (s *Store) ClearPassword() error {
	return s.Update(func(st *Settings) { st.PasswordHash = "" })
}

// HasPassword reports whether a password is set.
func (s *Store) HasPassword() bool {
	return s.Get().PasswordHash != ""
}

// VerifyPassword checks password against the stored hash. With no hash set
// every password is rejected.
func (s *Store) VerifyPassword(password string) bool {
	hash := s.Get().PasswordHash
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *Store) save(st Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
