// Package file stores the relay directory cache on local disk.
//
// Layout under the base directory:
//
//	relays -> .relays-123456      symlink to the current generation
//	.relays-123456/relays.json    serialized directory
//	.relays-123456/relays.etag    validator for relays.json
//
// A new body and validator are written into a fresh generation directory and
// published by renaming a symlink over "relays", so readers always see a
// matching pair.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrSnakeDoc/mlvd/internal/store"
)

const (
	currentLink   = "relays"
	genPrefix     = ".relays-"
	BodyFileName  = "relays.json"
	ETagFileName  = "relays.etag"
	dirPerm       = 0o755
	filePerm      = 0o644
	tempLinkExtra = ".link"

	// unlinked generations older than this are leftovers of overlapping or
	// interrupted saves
	staleAfter = time.Minute
)

// Store is a store.Store backed by files under a base directory.
type Store struct {
	baseDir string
}

var _ store.Store = (*Store)(nil)

// New creates a file store rooted at baseDir. The directory is created on
// first Save.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the directory the store writes into.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// BodyPath returns the path of the current body file, following the
// generation link.
func (s *Store) BodyPath() string {
	return filepath.Join(s.baseDir, currentLink, BodyFileName)
}

func (s *Store) linkPath() string {
	return filepath.Join(s.baseDir, currentLink)
}

// generation resolves the current generation directory.
func (s *Store) generation() (string, error) {
	target, err := os.Readlink(s.linkPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve %s: %w", s.linkPath(), err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.baseDir, target)
	}
	return target, nil
}

// Load reads body and validator from the current generation. A missing
// validator file is read as an empty validator.
func (s *Store) Load(_ context.Context) (store.Entry, error) {
	gen, err := s.generation()
	if err != nil {
		return store.Entry{}, err
	}

	bodyPath := filepath.Join(gen, BodyFileName)
	info, err := os.Stat(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.Entry{}, store.ErrNotFound
		}
		return store.Entry{}, fmt.Errorf("failed to stat %s: %w", bodyPath, err)
	}
	body, err := os.ReadFile(bodyPath)
	if err != nil {
		// a concurrent Save may have pruned this generation after Stat
		if errors.Is(err, fs.ErrNotExist) {
			return store.Entry{}, store.ErrNotFound
		}
		return store.Entry{}, fmt.Errorf("failed to read %s: %w", bodyPath, err)
	}

	etagPath := filepath.Join(gen, ETagFileName)
	etag, err := os.ReadFile(etagPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return store.Entry{}, fmt.Errorf("failed to read %s: %w", etagPath, err)
	}

	return store.Entry{
		Body:    body,
		ETag:    string(etag),
		ModTime: info.ModTime(),
	}, nil
}

// Save writes a new generation and atomically makes it current.
func (s *Store) Save(_ context.Context, e store.Entry) error {
	if err := os.MkdirAll(s.baseDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.baseDir, err)
	}

	gen, err := os.MkdirTemp(s.baseDir, genPrefix)
	if err != nil {
		return fmt.Errorf("failed to create generation in %s: %w", s.baseDir, err)
	}
	if err := os.Chmod(gen, dirPerm); err != nil {
		_ = os.RemoveAll(gen)
		return fmt.Errorf("failed to chmod %s: %w", gen, err)
	}

	if err := writeGeneration(gen, e); err != nil {
		_ = os.RemoveAll(gen)
		return err
	}

	previous, prevErr := s.generation()

	tmpLink := gen + tempLinkExtra
	if err := os.Symlink(filepath.Base(gen), tmpLink); err != nil {
		_ = os.RemoveAll(gen)
		return fmt.Errorf("failed to link %s: %w", gen, err)
	}
	if err := os.Rename(tmpLink, s.linkPath()); err != nil {
		_ = os.Remove(tmpLink)
		_ = os.RemoveAll(gen)
		return fmt.Errorf("failed to publish %s: %w", s.linkPath(), err)
	}

	if prevErr != nil {
		previous = ""
	}
	s.prune(previous)
	return nil
}

// prune removes the generation replaced by this Save and any other
// generation older than staleAfter, keeping the one currently linked.
// Younger unlinked generations may belong to a Save still in progress.
func (s *Store) prune(previous string) {
	current, err := s.generation()
	if err != nil {
		return
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), genPrefix) {
			continue
		}
		path := filepath.Join(s.baseDir, e.Name())
		if path == current {
			continue
		}
		if path != previous {
			info, err := e.Info()
			if err != nil || time.Since(info.ModTime()) < staleAfter {
				continue
			}
		}
		_ = os.RemoveAll(path)
	}
}

func writeGeneration(gen string, e store.Entry) error {
	bodyPath := filepath.Join(gen, BodyFileName)
	if err := writeSynced(bodyPath, e.Body); err != nil {
		return err
	}
	if err := writeSynced(filepath.Join(gen, ETagFileName), []byte(e.ETag)); err != nil {
		return err
	}
	if !e.ModTime.IsZero() {
		if err := os.Chtimes(bodyPath, e.ModTime, e.ModTime); err != nil {
			return fmt.Errorf("failed to set modification time of %s: %w", bodyPath, err)
		}
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// Touch sets the modification time of the current body without rewriting it.
func (s *Store) Touch(_ context.Context, t time.Time) error {
	gen, err := s.generation()
	if err != nil {
		return err
	}
	bodyPath := filepath.Join(gen, BodyFileName)
	if err := os.Chtimes(bodyPath, t, t); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to set modification time of %s: %w", bodyPath, err)
	}
	return nil
}
