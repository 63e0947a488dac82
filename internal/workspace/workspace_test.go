package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, isolation Isolation) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := DefaultConfig()
	cfg.Root = t.TempDir()
	cfg.Isolation = isolation

	m, err := New(cfg, logger)
	require.NoError(t, err)
	return m
}

func TestNew_RejectsBadLayout(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.Root = "" }},
		{"script name with directory", func(c *Config) { c.ScriptName = "sub/script.py" }},
		{"output dir escapes root", func(c *Config) { c.OutputDir = ".." }},
		{"script and outputs collide", func(c *Config) { c.OutputDir = c.ScriptName }},
		{"unknown isolation", func(c *Config) { c.Isolation = "per-user" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Root = t.TempDir()
			tt.mutate(&cfg)

			_, err := New(cfg, logger)
			assert.Error(t, err)
		})
	}
}

func TestPrepare_WritesScriptAndEmptyOutputDir(t *testing.T) {
	for _, isolation := range []Isolation{IsolationPerRequest, IsolationShared} {
		t.Run(string(isolation), func(t *testing.T) {
			m := newTestManager(t, isolation)

			ws, err := m.Prepare(context.Background(), "print('hi')\n")
			require.NoError(t, err)
			defer ws.Release()

			code, err := os.ReadFile(ws.ScriptPath)
			require.NoError(t, err)
			assert.Equal(t, "print('hi')\n", string(code))

			entries, err := os.ReadDir(ws.OutputDir)
			require.NoError(t, err)
			assert.Empty(t, entries)

			assert.Equal(t, ws.Dir, filepath.Dir(ws.ScriptPath))
			assert.Equal(t, ws.Dir, filepath.Dir(ws.OutputDir))
		})
	}
}

func TestPrepare_PerRequestWorkspacesAreDistinct(t *testing.T) {
	m := newTestManager(t, IsolationPerRequest)

	a, err := m.Prepare(context.Background(), "a")
	require.NoError(t, err)
	defer a.Release()
	b, err := m.Prepare(context.Background(), "b")
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Dir, b.Dir)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRelease_PerRequestRemovesDirectory(t *testing.T) {
	m := newTestManager(t, IsolationPerRequest)

	ws, err := m.Prepare(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.OutputDir, "out.txt"), []byte("data"), 0o644))

	require.NoError(t, ws.Release())
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err), "workspace dir should be gone after Release")

	// Second Release is a no-op.
	assert.NoError(t, ws.Release())
}

func TestPrepare_SharedClearsPreviousOutputs(t *testing.T) {
	m := newTestManager(t, IsolationShared)

	first, err := m.Prepare(context.Background(), "first")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(first.OutputDir, "stale.txt"), []byte("old"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(first.OutputDir, "nested"), 0o755))
	require.NoError(t, first.Release())

	second, err := m.Prepare(context.Background(), "second")
	require.NoError(t, err)
	defer second.Release()

	files, err := second.Harvest()
	require.NoError(t, err)
	assert.Nil(t, files)

	entries, err := os.ReadDir(second.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrepare_SharedIsSingleFlight(t *testing.T) {
	m := newTestManager(t, IsolationShared)

	held, err := m.Prepare(context.Background(), "held")
	require.NoError(t, err)

	// A second Prepare must wait until the first workspace is released.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Prepare(ctx, "blocked")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws, err := m.Prepare(context.Background(), "next")
		if assert.NoError(t, err) {
			ws.Release()
		}
	}()

	require.NoError(t, held.Release())
	wg.Wait()
}

func TestPrepare_SharedWaitIsBounded(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := DefaultConfig()
	cfg.Root = t.TempDir()
	cfg.Isolation = IsolationShared
	cfg.SlotWait = 100 * time.Millisecond
	m, err := New(cfg, logger)
	require.NoError(t, err)

	held, err := m.Prepare(context.Background(), "held")
	require.NoError(t, err)
	defer held.Release()

	// No caller deadline: the slot wait alone ends the queueing.
	start := time.Now()
	_, err = m.Prepare(context.Background(), "queued")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHarvest_ReturnsRegularFilesSortedByName(t *testing.T) {
	m := newTestManager(t, IsolationPerRequest)
	ws, err := m.Prepare(context.Background(), "x")
	require.NoError(t, err)
	defer ws.Release()

	binary := []byte{0x00, 0xff, 0x10, 0x80}
	require.NoError(t, os.WriteFile(filepath.Join(ws.OutputDir, "b.bin"), binary, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws.OutputDir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(ws.OutputDir, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.OutputDir, "subdir", "hidden.txt"), []byte("no"), 0o644))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink("/etc/hostname", filepath.Join(ws.OutputDir, "link")))
	}

	files, err := ws.Harvest()
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "a.txt", files[0].Filename)
	assert.Equal(t, []byte("hello"), files[0].Content)
	assert.Equal(t, "b.bin", files[1].Filename)
	assert.Equal(t, binary, files[1].Content)
}

func TestHarvest_NoFilesIsNil(t *testing.T) {
	m := newTestManager(t, IsolationPerRequest)
	ws, err := m.Prepare(context.Background(), "x")
	require.NoError(t, err)
	defer ws.Release()

	files, err := ws.Harvest()
	assert.NoError(t, err)
	assert.Nil(t, files)
}

func TestHarvest_MissingOutputDirIsNotAnError(t *testing.T) {
	m := newTestManager(t, IsolationPerRequest)
	ws, err := m.Prepare(context.Background(), "x")
	require.NoError(t, err)
	defer ws.Release()

	require.NoError(t, os.RemoveAll(ws.OutputDir))

	files, err := ws.Harvest()
	assert.NoError(t, err)
	assert.Nil(t, files)
}

func TestHarvest_UnreadableFileDegrades(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for this user")
	}

	m := newTestManager(t, IsolationPerRequest)
	ws, err := m.Prepare(context.Background(), "x")
	require.NoError(t, err)
	defer ws.Release()

	require.NoError(t, os.WriteFile(filepath.Join(ws.OutputDir, "ok.txt"), []byte("fine"), 0o644))
	locked := filepath.Join(ws.OutputDir, "locked.txt")
	require.NoError(t, os.WriteFile(locked, []byte("secret"), 0o644))
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o644) })

	files, err := ws.Harvest()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked.txt")
	require.Len(t, files, 1)
	assert.Equal(t, "ok.txt", files[0].Filename)
}
