package logtail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanx-github/mobly"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func appendTo(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func destContains(t *testing.T, path, want string) func() bool {
	return func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == want
	}
}

func newTailer(t *testing.T, owner any, cfg Config) *Tailer {
	t.Helper()
	svc, err := New(owner, cfg)
	require.NoError(t, err)
	tailer, ok := svc.(*Tailer)
	require.True(t, ok)
	return tailer
}

func TestNew(t *testing.T) {
	t.Run("nil configs", func(t *testing.T) {
		svc, err := New(nil, nil)
		require.NoError(t, err)
		assert.False(t, svc.IsAlive())
	})

	t.Run("pointer configs", func(t *testing.T) {
		_, err := New(nil, &Config{Source: "/tmp/x"})
		require.NoError(t, err)
	})

	t.Run("unsupported configs", func(t *testing.T) {
		_, err := New(nil, "device.log")
		require.Error(t, err)
	})
}

func TestStartValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("no source", func(t *testing.T) {
		tailer := newTailer(t, nil, Config{})
		require.ErrorIs(t, tailer.Start(ctx, nil), ErrNoSource)
	})

	t.Run("no dest and no owner log path", func(t *testing.T) {
		tailer := newTailer(t, nil, Config{Source: filepath.Join(t.TempDir(), "device.log")})
		require.ErrorIs(t, tailer.Start(ctx, nil), ErrNoDest)
		assert.False(t, tailer.IsAlive())
	})
}

func TestFollow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "device.log")
	dest := filepath.Join(dir, "out", "device.txt")
	appendTo(t, src, "old line\n")

	tailer := newTailer(t, nil, Config{Source: src, Dest: dest})
	require.NoError(t, tailer.Start(ctx, nil))
	t.Cleanup(func() { _ = tailer.Stop(ctx) })

	assert.True(t, tailer.IsAlive())
	require.ErrorIs(t, tailer.Start(ctx, nil), ErrAlreadyStarted)

	appendTo(t, src, "line 1\n")
	require.Eventually(t, destContains(t, dest, "line 1\n"), waitFor, tick)

	appendTo(t, src, "line 2\n")
	require.Eventually(t, destContains(t, dest, "line 1\nline 2\n"), waitFor, tick)

	require.NoError(t, tailer.Stop(ctx))
	assert.False(t, tailer.IsAlive())
	assert.Equal(t, int64(len("line 1\nline 2\n")), tailer.Copied())
	assert.NoError(t, tailer.Err())
}

func TestFollowFromStart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "device.log")
	dest := filepath.Join(dir, "device.txt")
	appendTo(t, src, "boot\n")

	tailer := newTailer(t, nil, Config{Source: src, Dest: dest, FromStart: true})
	require.NoError(t, tailer.Start(ctx, nil))
	defer func() { _ = tailer.Stop(ctx) }()

	require.Eventually(t, destContains(t, dest, "boot\n"), waitFor, tick)
}

func TestStopFlushesPending(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "device.log")
	dest := filepath.Join(dir, "device.txt")

	tailer := newTailer(t, nil, Config{Source: src, Dest: dest})
	require.NoError(t, tailer.Start(ctx, nil))
	appendTo(t, src, "last words\n")
	require.NoError(t, tailer.Stop(ctx))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "last words\n", string(data))
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "device.log")
	dest := filepath.Join(dir, "device.txt")

	tailer := newTailer(t, nil, Config{Source: src, Dest: dest})
	require.ErrorIs(t, tailer.Resume(ctx), ErrNotPaused)
	require.ErrorIs(t, tailer.Pause(ctx), ErrNotRunning)

	require.NoError(t, tailer.Start(ctx, nil))
	appendTo(t, src, "before\n")
	require.Eventually(t, destContains(t, dest, "before\n"), waitFor, tick)

	require.NoError(t, tailer.Pause(ctx))
	assert.False(t, tailer.IsAlive())

	appendTo(t, src, "while disconnected\n")
	time.Sleep(50 * time.Millisecond)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "before\n", string(data))

	require.NoError(t, tailer.Resume(ctx))
	assert.True(t, tailer.IsAlive())
	require.Eventually(t, destContains(t, dest, "before\nwhile disconnected\n"), waitFor, tick)

	require.NoError(t, tailer.Stop(ctx))
}

func TestStopWhilePaused(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tailer := newTailer(t, nil, Config{
		Source: filepath.Join(dir, "device.log"),
		Dest:   filepath.Join(dir, "device.txt"),
	})

	require.NoError(t, tailer.Start(ctx, nil))
	require.NoError(t, tailer.Pause(ctx))
	require.NoError(t, tailer.Stop(ctx))
	require.ErrorIs(t, tailer.Resume(ctx), ErrNotPaused)
	require.ErrorIs(t, tailer.Stop(ctx), ErrNotRunning)
}

func TestTruncatedSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "device.log")
	dest := filepath.Join(dir, "device.txt")
	appendTo(t, src, "a long line that will be rotated away\n")

	tailer := newTailer(t, nil, Config{Source: src, Dest: dest})
	require.NoError(t, tailer.Start(ctx, nil))
	defer func() { _ = tailer.Stop(ctx) }()

	require.NoError(t, os.WriteFile(src, []byte("new\n"), 0o644))
	require.Eventually(t, destContains(t, dest, "new\n"), waitFor, tick)
}

func TestWithSession(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "device.log")

	session, err := mobly.NewSession("emulator-5554")
	require.NoError(t, err)
	require.NoError(t, session.SetLogPath(filepath.Join(dir, "logs")))

	require.NoError(t, session.Services().Register(ctx, "logcat", New,
		mobly.WithConfigs(Config{Source: src}),
	))
	tailer, ok := mobly.Lookup[*Tailer](session.Services(), "logcat")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "logs", "logtail,device.log"), tailer.Dest())

	appendTo(t, src, "I/ActivityManager: start\n")
	require.Eventually(t, destContains(t, tailer.Dest(), "I/ActivityManager: start\n"), waitFor, tick)

	err = session.HandleTemporaryDisconnect(ctx, func(ctx context.Context) error {
		assert.False(t, session.Services().IsAnyAlive())
		appendTo(t, src, "I/ActivityManager: replug\n")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, tailer.IsAlive())
	require.Eventually(t, destContains(t, tailer.Dest(),
		"I/ActivityManager: start\nI/ActivityManager: replug\n"), waitFor, tick)

	err = session.HandleFullReset(ctx, func(ctx context.Context) error {
		assert.False(t, session.Services().IsAnyAlive())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, tailer.IsAlive())

	session.Close(ctx)
	assert.False(t, tailer.IsAlive())
	assert.Equal(t, 0, session.Recorder().(*mobly.Recorder).Count())
}
