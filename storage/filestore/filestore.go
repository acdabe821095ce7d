// Package filestore persists session storage as a single JSON document on
// an afero filesystem.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	session "github.com/goliatone/go-auth-session"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/afero"
)

// Store keeps all keys in memory and rewrites the file on every change.
type Store struct {
	fs   afero.Fs
	path string
	perm os.FileMode

	mu     sync.RWMutex
	values map[string]string
	loaded bool
}

var _ session.Storage = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithFileMode sets the permissions of the written file. Defaults to 0600.
func WithFileMode(perm os.FileMode) Option {
	return func(s *Store) {
		if perm != 0 {
			s.perm = perm
		}
	}
}

// New returns a Store backed by path on fs. The file is read lazily.
func New(fs afero.Fs, path string, opts ...Option) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &Store{
		fs:     fs,
		path:   path,
		perm:   0o600,
		values: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return "", err
	}

	v, ok := s.values[key]
	if !ok {
		return "", session.ErrStorageKeyNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	s.values[key] = value
	return s.saveLocked()
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	changed := false
	for _, k := range keys {
		if _, ok := s.values[k]; ok {
			delete(s.values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveLocked()
}

// loadLocked reads the file once. A missing file is an empty store, a
// corrupt one is reset so a bad write never locks the user out.
func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}

	raw, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read session file").
			WithMetadata(map[string]any{"path": s.path})
	}

	values := make(map[string]string)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &values); err != nil {
			values = make(map[string]string)
		}
	}

	s.values = values
	s.loaded = true
	return nil
}

// saveLocked writes to a temp file and renames it over the target.
func (s *Store) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o700); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session directory")
		}
	}

	payload, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session file")
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, payload, s.perm); err != nil {
		_ = s.fs.Remove(tmp)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write session file")
	}

	if err := s.fs.Rename(tmp, s.path); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace session file")
	}
	return nil
}
