package filewatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ErrModified is the cause of contexts canceled by UntilModifyContext
// because a watched file changed.
var ErrModified = errors.New("filewatch: watched file is modified")

// UntilModifyContext returns a context that is canceled
// when one of target files is modified (= written, created, removed, or renamed).
//
// Parent directories are watched instead of the files themselves,
// so an editor replacing the file by rename is also noticed.
// Chmod-only events are ignored.
//
// # Args
//
// - ctx: context.Context
//
// - targetFilePath ...string: file pathes to be watched. Empty strings are skipped.
//
// # Returns
//
// - context.Context: canceled when one of target files is modified.
// context.Cause(ctx) wraps ErrModified in that case.
//
// - func(): cancel function. It also stops watching.
//
// - error: error caused when it fails to start watching files.
//
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModifyContext(ctx context.Context, targetFilePath ...string) (context.Context, func(), error) {
	targets := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, f := range targetFilePath {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, nil, err
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return nil, nil, err
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				name, err := filepath.Abs(event.Name)
				if err != nil {
					continue
				}
				if _, ok := targets[name]; !ok {
					continue
				}
				cancel(fmt.Errorf("%w: %s (%s)", ErrModified, event.Name, event.Op.String()))
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(err)
				return
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
