//go:build !unix

package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

const lockPoll = 5 * time.Millisecond

// lockFile creates path exclusively, polling until ctx is done. The
// returned func removes it. A crashed holder leaves the file behind and
// must be cleaned up by hand.
func lockFile(ctx context.Context, path string) (func() error, error) {
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() error { return os.Remove(path) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}
