// Package logtail provides a mobly.Service that follows a device log file
// and appends everything written to it to a file in the session's log
// directory.
//
// Pausing releases the file watcher and remembers how far the source was
// copied; resuming catches up from there, so nothing written while the
// device was disconnected is lost.
package logtail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"

	"github.com/hanx-github/mobly"
)

// DefaultStopGrace is how long the follower is given to exit on Stop or Pause
const DefaultStopGrace = 100 * time.Millisecond

// DestPrefix prefixes the default destination file name
const DestPrefix = "logtail,"

var (
	// ErrNoSource indicates no source file was configured
	ErrNoSource = errors.New("logtail: source not configured")

	// ErrNoDest indicates no destination was configured and the owner has no log path
	ErrNoDest = errors.New("logtail: destination not configured")

	// ErrAlreadyStarted indicates Start was called on a running tailer
	ErrAlreadyStarted = errors.New("logtail: already started")

	// ErrNotRunning indicates Pause was called on a tailer that is not running
	ErrNotRunning = errors.New("logtail: not running")

	// ErrNotPaused indicates Resume was called on a tailer that is not paused
	ErrNotPaused = errors.New("logtail: not paused")
)

// Config configures a Tailer
type Config struct {
	// Source is the file to follow
	Source string
	// Dest is the file copied output is appended to. Defaults to
	// <owner log path>/logtail,<source base name>.
	Dest string
	// FromStart copies the existing content of Source on Start instead of
	// only what is written afterwards
	FromStart bool
	// StopGrace overrides DefaultStopGrace
	StopGrace time.Duration
}

// LogPather is implemented by owners that provide a log directory, such as
// *mobly.Session
type LogPather interface {
	LogPath() string
}

type state int

const (
	stateStopped state = iota
	stateRunning
	statePaused
)

// Tailer follows a source file into a destination file
type Tailer struct {
	owner any

	mu      sync.Mutex
	cfg     Config
	state   state
	offset  int64
	copied  int64
	lastErr error
	out     *os.File
	sctx    *stopper.Context
}

var _ mobly.Service = (*Tailer)(nil)

// New is a mobly.Factory for Tailers. configs may be a Config, a *Config or
// nil, in which case Start must be given one.
func New(owner, configs any) (mobly.Service, error) {
	t := &Tailer{owner: owner}
	if configs != nil {
		cfg, err := toConfig(configs)
		if err != nil {
			return nil, err
		}
		t.cfg = cfg
	}
	return t, nil
}

// Start begins following the source. A paused tailer may be started again,
// which discards the paused position.
func (t *Tailer) Start(ctx context.Context, configs any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == stateRunning {
		return ErrAlreadyStarted
	}

	cfg := t.cfg
	if configs != nil {
		var err error
		if cfg, err = toConfig(configs); err != nil {
			return err
		}
	}
	cfg, err := t.resolve(cfg)
	if err != nil {
		return err
	}
	t.cfg = cfg

	var offset int64
	if !cfg.FromStart {
		fi, err := os.Stat(cfg.Source)
		switch {
		case err == nil:
			offset = fi.Size()
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("logtail: stat source: %w", err)
		}
	}

	return t.launchLocked(ctx, offset)
}

// Stop copies what is pending and stops following. Stopping a paused
// tailer only forgets its position.
func (t *Tailer) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.state == statePaused {
		t.state = stateStopped
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	return t.halt(stateStopped)
}

// Pause copies what is pending, releases the watcher and keeps the position
func (t *Tailer) Pause(ctx context.Context) error {
	return t.halt(statePaused)
}

// Resume follows the source again, starting with everything written since
// Pause
func (t *Tailer) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != statePaused {
		return ErrNotPaused
	}
	return t.launchLocked(ctx, t.offset)
}

// IsAlive reports whether the tailer is following its source. A paused
// tailer is not alive.
func (t *Tailer) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateRunning
}

// Dest returns the resolved destination file
func (t *Tailer) Dest() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Dest
}

// Copied returns the number of bytes copied since construction
func (t *Tailer) Copied() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copied
}

// Err returns the last error met while following, if any
func (t *Tailer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Tailer) resolve(cfg Config) (Config, error) {
	if cfg.Source == "" {
		return cfg, ErrNoSource
	}
	src, err := filepath.Abs(cfg.Source)
	if err != nil {
		return cfg, fmt.Errorf("logtail: resolving source: %w", err)
	}
	cfg.Source = src

	if cfg.Dest == "" {
		lp, ok := t.owner.(LogPather)
		if !ok || lp.LogPath() == "" {
			return cfg, ErrNoDest
		}
		cfg.Dest = filepath.Join(lp.LogPath(), DestPrefix+filepath.Base(src))
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	return cfg, nil
}

func (t *Tailer) launchLocked(ctx context.Context, offset int64) error {
	if err := os.MkdirAll(filepath.Dir(t.cfg.Dest), mobly.DirMode); err != nil {
		return fmt.Errorf("logtail: creating dest dir: %w", err)
	}
	out, err := os.OpenFile(t.cfg.Dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, mobly.FileMode)
	if err != nil {
		return fmt.Errorf("logtail: opening dest: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("logtail: creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(t.cfg.Source)); err != nil {
		_ = watcher.Close()
		_ = out.Close()
		return fmt.Errorf("logtail: watching source dir: %w", err)
	}

	// The follower outlives the Start call, so only values are inherited.
	sctx := stopper.WithContext(context.WithoutCancel(ctx))
	sctx.Defer(func() {
		_ = watcher.Close()
	})

	t.out = out
	t.sctx = sctx
	t.offset = offset
	t.state = stateRunning
	t.lastErr = nil

	// Catch up before waiting for events
	if err := t.syncLocked(); err != nil {
		t.lastErr = err
	}

	source := t.cfg.Source
	sctx.Go(func(sctx *stopper.Context) error {
		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Name != source || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t.sync()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil {
					t.setErr(err)
				}
			}
		}
		return nil
	})

	return nil
}

// halt stops the follower and moves to next. The lock is released while
// waiting for the follower since it takes the lock itself.
func (t *Tailer) halt(next state) error {
	t.mu.Lock()
	if t.state != stateRunning {
		t.mu.Unlock()
		return ErrNotRunning
	}
	syncErr := t.syncLocked()
	sctx, out, grace := t.sctx, t.out, t.cfg.StopGrace
	t.state = next
	t.sctx = nil
	t.out = nil
	t.mu.Unlock()

	sctx.Stop(grace)
	waitErr := sctx.Wait()
	closeErr := out.Close()

	return errors.Join(syncErr, waitErr, closeErr)
}

func (t *Tailer) sync() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateRunning {
		return
	}
	if err := t.syncLocked(); err != nil {
		t.lastErr = err
	}
}

// syncLocked appends everything past offset to the destination. A source
// shorter than offset was truncated and is copied from the beginning.
func (t *Tailer) syncLocked() error {
	f, err := os.Open(t.cfg.Source)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("logtail: opening source: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("logtail: stat source: %w", err)
	}
	if fi.Size() < t.offset {
		t.offset = 0
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return fmt.Errorf("logtail: seeking source: %w", err)
	}

	n, err := io.Copy(t.out, f)
	t.offset += n
	t.copied += n
	if err != nil {
		return fmt.Errorf("logtail: copying source: %w", err)
	}
	return nil
}

func (t *Tailer) setErr(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}

func toConfig(configs any) (Config, error) {
	switch c := configs.(type) {
	case Config:
		return c, nil
	case *Config:
		if c == nil {
			return Config{}, ErrNoSource
		}
		return *c, nil
	default:
		return Config{}, fmt.Errorf("logtail: unsupported configs type %T", configs)
	}
}
