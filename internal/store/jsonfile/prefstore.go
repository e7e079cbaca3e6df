package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hay-kot/parley/internal/core/prefs"
)

// PrefFile is the root JSON structure stored on disk for preferences.
type PrefFile struct {
	Entries map[string]prefs.Entry `json:"entries"`
}

// PrefStore implements prefs.Store using a JSON file for persistence.
type PrefStore struct {
	path string
	mu   sync.RWMutex
}

var _ prefs.Store = (*PrefStore)(nil)

// NewPrefStore creates a preference store at path.
func NewPrefStore(path string) *PrefStore {
	return &PrefStore{path: path}
}

func (s *PrefStore) lockPath() string {
	return s.path + ".lock"
}

// Get returns an entry by key. Returns prefs.ErrKeyNotFound if absent.
func (s *PrefStore) Get(ctx context.Context, key string) (prefs.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		entry prefs.Entry
		found bool
	)

	err := withFileLock(s.lockPath(), syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		entry, found = file.Entries[key]
		return nil
	})
	if err != nil {
		return prefs.Entry{}, err
	}
	if !found {
		return prefs.Entry{}, prefs.ErrKeyNotFound
	}

	return entry, nil
}

// Set creates or updates an entry. CreatedAt survives updates.
func (s *PrefStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.lockPath(), syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		now := time.Now()
		entry, exists := file.Entries[key]
		if exists {
			entry.Value = value
			entry.UpdatedAt = now
		} else {
			entry = prefs.Entry{Key: key, Value: value, CreatedAt: now, UpdatedAt: now}
		}

		file.Entries[key] = entry
		return s.save(file)
	})
}

// Delete removes an entry. Returns prefs.ErrKeyNotFound if absent.
func (s *PrefStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notFound bool

	err := withFileLock(s.lockPath(), syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		if _, ok := file.Entries[key]; !ok {
			notFound = true
			return nil
		}

		delete(file.Entries, key)
		return s.save(file)
	})
	if err != nil {
		return err
	}
	if notFound {
		return prefs.ErrKeyNotFound
	}

	return nil
}

// List returns all entries whose key starts with prefix, sorted by key.
func (s *PrefStore) List(ctx context.Context, prefix string) ([]prefs.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []prefs.Entry

	err := withFileLock(s.lockPath(), syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		for _, entry := range file.Entries {
			if prefix == "" || strings.HasPrefix(entry.Key, prefix) {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// load reads the file from disk. A missing or empty file is an empty store.
func (s *PrefStore) load() (PrefFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return PrefFile{Entries: make(map[string]prefs.Entry)}, nil
		}
		return PrefFile{}, err
	}

	if len(data) == 0 {
		return PrefFile{Entries: make(map[string]prefs.Entry)}, nil
	}

	var file PrefFile
	if err := json.Unmarshal(data, &file); err != nil {
		return PrefFile{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if file.Entries == nil {
		file.Entries = make(map[string]prefs.Entry)
	}

	return file, nil
}

func (s *PrefStore) save(file PrefFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}
