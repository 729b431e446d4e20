// Package feed reads newline-delimited event JSON from files and streams,
// and follows growing files with fsnotify.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// LineFunc receives one non-blank line. The slice is only valid during the
// call. Returning an error stops reading.
type LineFunc func(source string, line []byte) error

// Options control line reading and following.
type Options struct {
	// MaxLineBytes bounds one line. Longer lines are skipped and logged.
	MaxLineBytes int

	// FromStart delivers a followed file's existing content first.
	FromStart bool

	// RescanInterval is the period of the fallback check for truncation
	// and missed notifications. 0 disables it.
	RescanInterval time.Duration

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = 1 << 20
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ReadLines calls fn for every non-blank line of r until EOF.
func ReadLines(ctx context.Context, source string, r io.Reader, opts Options, fn LineFunc) error {
	opts = opts.withDefaults()
	t := &tail{source: source, opts: opts}
	br := bufio.NewReaderSize(r, 64<<10)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			if ferr := t.feed(chunk, fn); ferr != nil {
				return ferr
			}
		}
		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return t.flush(fn)
		default:
			return fmt.Errorf("read %s: %w", source, err)
		}
	}
}

// tail accumulates bytes into lines.
type tail struct {
	source   string
	opts     Options
	partial  []byte
	skipping bool
	lineNo   int
}

// feed consumes chunk. Complete lines go to fn; a trailing partial line is
// kept for the next call.
func (t *tail) feed(chunk []byte, fn LineFunc) error {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			t.append(chunk)
			return nil
		}
		t.append(chunk[:i])
		chunk = chunk[i+1:]
		if err := t.emit(fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *tail) append(b []byte) {
	if t.skipping {
		return
	}
	if len(t.partial)+len(b) > t.opts.MaxLineBytes {
		t.skipping = true
		t.partial = t.partial[:0]
		return
	}
	t.partial = append(t.partial, b...)
}

func (t *tail) emit(fn LineFunc) error {
	t.lineNo++
	line := bytes.TrimSpace(t.partial)
	skipped := t.skipping
	t.partial = t.partial[:0]
	t.skipping = false

	if skipped {
		t.opts.Logger.Warn("skipping oversized line",
			zap.String("source", t.source),
			zap.Int("line", t.lineNo),
			zap.Int("max_line_bytes", t.opts.MaxLineBytes))
		return nil
	}
	if len(line) == 0 {
		return nil
	}
	return fn(t.source, line)
}

// flush delivers a final line without a trailing newline.
func (t *tail) flush(fn LineFunc) error {
	if len(t.partial) == 0 && !t.skipping {
		return nil
	}
	return t.emit(fn)
}

func (t *tail) reset() {
	t.partial = t.partial[:0]
	t.skipping = false
	t.lineNo = 0
}
