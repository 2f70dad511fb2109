// Package config implements the persisted JSON configuration store and the
// Section/Manager abstraction it is organized around.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// envelope is the on-disk shape: a revision counter and save timestamp
// alongside the section data. Load does not consult either field when
// deciding whether to trust a file; it falls back to the backup only when
// the primary fails to decode.
type envelope struct {
	Revision  int                                `json:"revision"`
	UpdatedAt time.Time                          `json:"updated_at"`
	Sections  map[string]map[string]interface{}  `json:"sections"`
}

// FileStore persists section data to a single JSON file. Unlike a
// one-shot CLI config read once at startup, this store backs a
// long-running server that writes its sections back on every shutdown, so
// a write landing mid-crash must not cost the last-known-good config. Every Save keeps the file it's about to replace
// as a ".bak" sibling first, and Load falls back to that sibling if the
// primary file exists but fails to decode. Save is also a no-op when
// nothing has changed since the last Load/Save, since the composition
// root's shutdown path calls SaveAll unconditionally regardless of
// whether any section actually differs from what's already on disk.
type FileStore struct {
	path string
	bak  string

	mu       sync.RWMutex
	data     map[string]map[string]interface{}
	revision int
	updated  time.Time
	modified bool
}

// NewFileStore opens (or initializes) a file-backed store at path. If path
// is empty, it defaults to ./data/config.json. A missing file is not an
// error — an empty store is used until the first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = filepath.Join("data", "config.json")
	}

	s := &FileStore{
		path: path,
		bak:  path + ".bak",
		data: make(map[string]map[string]interface{}),
	}

	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return s, nil
}

// Load reads the primary file, falling back to the backup sibling if the
// primary exists but won't decode. A missing primary (first run) is not an
// error.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := readEnvelope(s.path)
	switch {
	case err == nil:
		s.applyEnvelopeLocked(env)
		return nil
	case os.IsNotExist(err):
		s.data = make(map[string]map[string]interface{})
		s.revision = 0
		s.modified = false
		return nil
	}

	if bakEnv, bakErr := readEnvelope(s.bak); bakErr == nil {
		s.applyEnvelopeLocked(bakEnv)
		return nil
	}
	return err
}

func (s *FileStore) applyEnvelopeLocked(env envelope) {
	s.revision = env.Revision
	s.updated = env.UpdatedAt
	if env.Sections != nil {
		s.data = env.Sections
	} else {
		s.data = make(map[string]map[string]interface{})
	}
	s.modified = false
}

func readEnvelope(path string) (envelope, error) {
	var env envelope
	f, err := os.Open(path)
	if err != nil {
		return env, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&env); err != nil {
		return env, fmt.Errorf("decode %s: %w", path, err)
	}
	return env, nil
}

// Save writes the current sections to disk, bumping the revision counter
// and backing up the previous file first. A no-op if nothing has changed
// since the last Load/Save.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.modified {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.bak); err != nil {
			return fmt.Errorf("back up previous config: %w", err)
		}
	}

	s.revision++
	s.updated = time.Now()

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	env := envelope{Revision: s.revision, UpdatedAt: s.updated, Sections: s.data}
	if err := enc.Encode(env); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encode config: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp config file: %w", err)
	}

	s.modified = false
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o640)
}

// GetSection returns a copy of sectionID's persisted data, or an empty map
// if the section has never been saved.
func (s *FileStore) GetSection(sectionID string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if data, ok := s.data[sectionID]; ok {
		return copySection(data), nil
	}
	return make(map[string]interface{}), nil
}

// SetSection stages sectionID's data for the next Save; it does not touch
// disk itself.
func (s *FileStore) SetSection(sectionID string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Staging data equal to what is already held leaves the store
	// unmodified. Comparing JSON encodings lets a float64 decoded from disk
	// match the int a section reports for the same value.
	if existing, ok := s.data[sectionID]; ok {
		prev, errPrev := json.Marshal(existing)
		next, errNext := json.Marshal(data)
		if errPrev == nil && errNext == nil && string(prev) == string(next) {
			return nil
		}
	}

	s.data[sectionID] = copySection(data)
	s.modified = true
	return nil
}

// GetAll returns a copy of every section's persisted data.
func (s *FileStore) GetAll() (map[string]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]interface{}, len(s.data))
	for id, section := range s.data {
		out[id] = copySection(section)
	}
	return out, nil
}

// SetAll replaces every section's staged data in one step.
func (s *FileStore) SetAll(data map[string]map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]interface{}, len(data))
	for id, section := range data {
		out[id] = copySection(section)
	}
	s.data = out
	s.modified = true
	return nil
}

// IsModified reports whether Save has unwritten changes to persist.
func (s *FileStore) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Path returns the file path backing this store.
func (s *FileStore) Path() string { return s.path }

// Revision returns the number of times this store has been successfully
// saved to disk across its lifetime, including saves from a prior process
// if the file already existed.
func (s *FileStore) Revision() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func copySection(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
