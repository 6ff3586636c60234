package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
)

// DefaultFile is the project-local settings file, relative to the working
// directory.
const DefaultFile = ".minion"

var (
	ErrRead  = errors.New("failed to read config file")
	ErrWrite = errors.New("failed to write config file")
	// ErrEntry rejects a key or value that would not survive Save and Load.
	ErrEntry = errors.New("invalid config entry")
)

// Store holds KEY=VALUE settings persisted between invocations. It is loaded
// once per command, mutated in memory and saved in full.
type Store struct {
	fs     afero.Fs
	path   string
	values map[string]string
}

// Load reads the store at path. A missing file yields an empty store.
func Load(fs afero.Fs, path string) (*Store, error) {
	s := &Store{fs: fs, path: path, values: make(map[string]string)}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("%w %s: %w", ErrRead, path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w %s: invalid UTF-8", ErrRead, path)
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		s.values[key] = strings.TrimSpace(value)
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value stored for key.
func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key in memory. Nothing is written until Save.
// Key and value are trimmed as Load would trim them; line breaks, and an
// '=' in the key, are rejected.
func (s *Store) Set(key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrEntry)
	case strings.ContainsAny(key, "=\r\n"):
		return fmt.Errorf("%w: key %q", ErrEntry, key)
	case strings.ContainsAny(value, "\r\n"):
		return fmt.Errorf("%w: value of %s spans lines", ErrEntry, key)
	}
	s.values[key] = value
	return nil
}

// Keys returns every key in ascending byte order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bytes serializes the store: one KEY=VALUE line per entry, keys sorted.
func (s *Store) Bytes() []byte {
	var buf bytes.Buffer
	for _, k := range s.Keys() {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(s.values[k])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Save rewrites the whole file. Content goes to a temporary file in the same
// directory first and is renamed over the target.
func (s *Store) Save() error {
	dir := filepath.Dir(s.path)
	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrWrite, s.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(s.Bytes()); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("%w %s: %w", ErrWrite, s.path, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("%w %s: %w", ErrWrite, s.path, err)
	}
	if err := s.fs.Chmod(tmpName, 0o644); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("%w %s: %w", ErrWrite, s.path, err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("%w %s: %w", ErrWrite, s.path, err)
	}
	return nil
}
