package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/kernel"
)

func (s *Store) objectPath(key ir.Key) string {
	shard := "xx"
	if len(key) >= 2 {
		shard = string(key[:2])
	}
	return filepath.Join(s.dir, "objects", shard, string(key)+".prog")
}

func (s *Store) lockPath(key ir.Key) string {
	return filepath.Join(s.dir, "locks", string(key)+".lock")
}

// Has reports whether an artifact for key is present.
func (s *Store) Has(key ir.Key) bool {
	_, err := os.Stat(s.objectPath(key))
	return err == nil
}

// Load reads and validates the artifact for key. A missing artifact is
// ErrNotFound; a corrupt one is any other error.
func (s *Store) Load(key ir.Key) (*kernel.Program, error) {
	data, err := os.ReadFile(s.objectPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", key.Short(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key.Short(), err)
	}
	p, err := kernel.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", key.Short(), err)
	}
	return p, nil
}

// GetOrCreate returns the stored program for key, building and storing it
// if absent. loaded reports whether the program came from disk.
//
// Concurrent callers for one key, in this or any other process, serialize
// on the key's lock file: the first runs build, the rest load its result.
// A corrupt artifact is rebuilt and replaced. A build error is returned
// and nothing is stored.
func (s *Store) GetOrCreate(ctx context.Context, key ir.Key, build func() (*kernel.Program, error)) (p *kernel.Program, loaded bool, err error) {
	if p, err := s.Load(key); err == nil {
		return p, true, nil
	}

	unlock, err := lockFile(ctx, s.lockPath(key))
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", key.Short(), err)
	}
	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlock %s: %w", key.Short(), uerr)
		}
	}()

	// Another process may have finished while we waited for the lock.
	if p, err := s.Load(key); err == nil {
		return p, true, nil
	}

	p, err = build()
	if err != nil {
		return nil, false, err
	}
	data, err := kernel.Encode(p)
	if err != nil {
		return nil, false, err
	}
	if err := writeAtomic(s.objectPath(key), data); err != nil {
		return nil, false, fmt.Errorf("write artifact %s: %w", key.Short(), err)
	}
	if err := s.writeManifest(ctx, key, p, len(data)); err != nil {
		return nil, false, err
	}
	return p, false, nil
}

// writeAtomic writes data to path via a synced temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
