package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Follower tails files and delivers each line appended to them.
//
// It watches the parent directories rather than the files so that a file
// created, rotated or replaced after Follow starts is picked up. A file
// that shrinks is read again from the start.
type Follower struct {
	opts  Options
	files map[string]*followed
}

type followed struct {
	path   string
	offset int64
	tail   tail
}

// NewFollower returns a Follower for paths. Unless opts.FromStart is set,
// content present at this point is skipped.
func NewFollower(opts Options, paths ...string) (*Follower, error) {
	opts = opts.withDefaults()
	f := &Follower{opts: opts, files: make(map[string]*followed, len(paths))}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		fl := &followed{path: abs, tail: tail{source: p, opts: opts}}
		if !opts.FromStart {
			if st, err := os.Stat(abs); err == nil {
				fl.offset = st.Size()
			}
		}
		f.files[abs] = fl
	}
	return f, nil
}

// Follow delivers lines until ctx is cancelled or fn fails. It returns nil
// on cancellation.
func (f *Follower) Follow(ctx context.Context, fn LineFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("feed watcher: %w", err)
	}
	defer w.Close()

	dirs := map[string]bool{}
	for path := range f.files {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("feed watcher add %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	for _, fl := range f.files {
		if err := f.drain(fl, fn); err != nil {
			return err
		}
	}

	var rescan <-chan time.Time
	if f.opts.RescanInterval > 0 {
		ticker := time.NewTicker(f.opts.RescanInterval)
		defer ticker.Stop()
		rescan = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			fl, tracked := f.files[ev.Name]
			if !tracked {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				f.opts.Logger.Debug("followed file went away", zap.String("path", fl.path))
				fl.offset = 0
				fl.tail.reset()
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := f.drain(fl, fn); err != nil {
					return err
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.opts.Logger.Warn("feed watcher error", zap.Error(err))
		case <-rescan:
			for _, fl := range f.files {
				if err := f.drain(fl, fn); err != nil {
					return err
				}
			}
		}
	}
}

// drain reads fl from its offset to EOF. A missing file is not an error.
func (f *Follower) drain(fl *followed, fn LineFunc) error {
	file, err := os.Open(fl.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", fl.path, err)
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", fl.path, err)
	}
	if st.Size() < fl.offset {
		f.opts.Logger.Info("followed file truncated", zap.String("path", fl.path))
		fl.offset = 0
		fl.tail.reset()
	}
	if st.Size() == fl.offset {
		return nil
	}
	if _, err := file.Seek(fl.offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", fl.path, err)
	}

	buf := make([]byte, 64<<10)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			fl.offset += int64(n)
			if ferr := fl.tail.feed(buf[:n], fn); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", fl.path, err)
		}
	}
}
