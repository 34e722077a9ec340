package sessionstore

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watch calls fn whenever the file is rewritten with content this backend did not
// write itself. It blocks until ctx is done.
func (f *FileBackend) Watch(ctx context.Context, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()

	// Watch the directory: the file is replaced by rename on every save.
	if err := w.Add(filepath.Dir(f.Path)); err != nil {
		return errors.Wrap(err, "watch session dir")
	}
	target := filepath.Clean(f.Path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if f.changedExternally() {
				fn()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "watch session file")
		}
	}
}

func (f *FileBackend) changedExternally() bool {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	if sum == f.lastSum {
		return false
	}
	f.lastSum = sum
	return true
}
