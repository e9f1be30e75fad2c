// Package addressbook remembers the hosts a controller has connected to,
// with their passwords sealed at rest.
package addressbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"filippo.io/age"
	"github.com/BioHazard786/deskwarp/internal/room"
	"gopkg.in/yaml.v3"
)

// FileName is the book inside the config directory.
const FileName = "addressbook.yaml"

var ErrNotFound = errors.New("no such address book entry")

// Entry is one remembered host. Password holds the sealed form.
type Entry struct {
	ID       room.ID `yaml:"id"`
	Name     string  `yaml:"name"`
	Password string  `yaml:"password,omitempty"`
}

// HasPassword reports whether a password is saved for the entry.
func (e Entry) HasPassword() bool { return e.Password != "" }

// DefaultName is the name given to a host added without one.
func DefaultName(id room.ID) string { return "Device " + string(id) }

type file struct {
	Entries []Entry `yaml:"entries"`
}

// Book is a YAML-backed address book.
type Book struct {
	path     string
	identity *age.X25519Identity

	mu      sync.Mutex
	entries []Entry
}

// Open loads the book in dir. The sealing key beside it is created on first
// use.
func Open(dir string) (*Book, error) {
	identity, err := loadIdentity(dir)
	if err != nil {
		return nil, err
	}

	b := &Book{path: filepath.Join(dir, FileName), identity: identity}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read address book: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse address book %s: %w", b.path, err)
	}
	b.entries = f.Entries
	return b, nil
}

// List returns the entries sorted by name.
func (b *Book) List() []Entry {
	b.mu.Lock()
	entries := append([]Entry(nil), b.entries...)
	b.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Get returns the entry for id.
func (b *Book) Get(id room.ID) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.index(id); i >= 0 {
		return b.entries[i], true
	}
	return Entry{}, false
}

// Add records id under its default name. Adding a known id is a no-op and
// reports false.
func (b *Book) Add(id room.ID) (bool, error) {
	if err := room.Validate(string(id)); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index(id) >= 0 {
		return false, nil
	}
	b.entries = append(b.entries, Entry{ID: id, Name: DefaultName(id)})
	return true, b.save()
}

// Remove deletes the entry for id.
func (b *Book) Remove(id room.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return ErrNotFound
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return b.save()
}

// Rename sets the display name for id.
func (b *Book) Rename(id room.ID, name string) error {
	if name == "" {
		name = DefaultName(id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return ErrNotFound
	}
	b.entries[i].Name = name
	return b.save()
}

// SavePassword seals password for id, adding the entry if it is missing.
func (b *Book) SavePassword(id room.ID, password string) error {
	if err := room.Validate(string(id)); err != nil {
		return err
	}
	sealed, err := seal(password, b.identity.Recipient())
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		b.entries = append(b.entries, Entry{ID: id, Name: DefaultName(id)})
		i = len(b.entries) - 1
	}
	b.entries[i].Password = sealed
	return b.save()
}

// GetPassword returns the saved password for id. ok is false when there is
// none.
func (b *Book) GetPassword(id room.ID) (password string, ok bool, err error) {
	entry, found := b.Get(id)
	if !found || !entry.HasPassword() {
		return "", false, nil
	}
	password, err = unseal(entry.Password, b.identity)
	if err != nil {
		return "", false, fmt.Errorf("unseal password for %s: %w", id, err)
	}
	return password, true, nil
}

func (b *Book) index(id room.ID) int {
	for i, e := range b.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (b *Book) save() error {
	data, err := yaml.Marshal(file{Entries: b.entries})
	if err != nil {
		return fmt.Errorf("encode address book: %w", err)
	}
	if err := os.WriteFile(b.path, data, 0o600); err != nil {
		return fmt.Errorf("write address book: %w", err)
	}
	return nil
}
