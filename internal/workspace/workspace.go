// Package workspace manages the on-disk location used to pass code into a
// child process and to collect the files it writes back out.
//
// TWO ISOLATION MODES:
//
//	per-request (default): every run gets its own directory <root>/<xid>/ that is
//	                       removed on Release. Concurrent runs cannot see each
//	                       other's script or outputs.
//	shared:                 the classic fixed layout <root>/<script> and
//	                       <root>/<outputs>. Because the paths are shared, the
//	                       Manager lets only one workspace exist at a time
//	                       (single-flight per instance). A request waits at
//	                       most Config.SlotWait for its turn, so a queue
//	                       never outlasts the HTTP write deadline.
//
// In both modes the output directory is empty when the script starts.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/script-executor/internal/model"
)

// Isolation selects how workspaces are laid out on disk.
type Isolation string

const (
	IsolationPerRequest Isolation = "per-request"
	IsolationShared     Isolation = "shared"
)

// Config holds the workspace layout.
type Config struct {
	// Root is the execution directory. In shared mode it is also the child's
	// working directory.
	Root string
	// ScriptName is the file the submitted code is written to.
	ScriptName string
	// OutputDir is the name of the subdirectory harvested after each run.
	OutputDir string
	Isolation Isolation
	// SlotWait bounds how long Prepare queues for the shared layout. Zero
	// waits as long as the caller's context allows.
	SlotWait time.Duration
}

// DefaultConfig mirrors the layout of the executor container image.
func DefaultConfig() Config {
	return Config{
		Root:       "/app",
		ScriptName: "user_script.py",
		OutputDir:  "outputs",
		Isolation:  IsolationPerRequest,
		SlotWait:   10 * time.Second,
	}
}

// Manager prepares and hands out workspaces.
type Manager struct {
	config Config
	logger *slog.Logger
	// slot is a one-element semaphore guarding the shared layout. A channel
	// (not a sync.Mutex) so that waiting for it respects context cancellation.
	slot chan struct{}
}

// New validates the layout and returns a Manager. The root directory is
// created if it does not exist.
func New(cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.Root == "" {
		return nil, errors.New("workspace: root directory is required")
	}
	for name, v := range map[string]string{"script name": cfg.ScriptName, "output dir": cfg.OutputDir} {
		if v == "" || v != filepath.Base(v) || v == "." || v == ".." {
			return nil, fmt.Errorf("workspace: %s %q must be a plain file name", name, v)
		}
	}
	if cfg.ScriptName == cfg.OutputDir {
		return nil, errors.New("workspace: script name and output dir must differ")
	}
	switch cfg.Isolation {
	case IsolationPerRequest, IsolationShared:
	default:
		return nil, fmt.Errorf("workspace: unknown isolation mode %q", cfg.Isolation)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolving root: %w", err)
	}
	cfg.Root = root
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: creating root: %w", err)
	}

	return &Manager{
		config: cfg,
		logger: logger,
		slot:   make(chan struct{}, 1),
	}, nil
}

// Config returns the resolved layout.
func (m *Manager) Config() Config {
	return m.config
}

// Prepare returns a workspace whose output directory exists and is empty and
// whose script file contains code verbatim. The caller must call Release.
func (m *Manager) Prepare(ctx context.Context, code string) (*Workspace, error) {
	if m.config.Isolation == IsolationShared {
		return m.prepareShared(ctx, code)
	}
	return m.preparePerRequest(code)
}

func (m *Manager) preparePerRequest(code string) (*Workspace, error) {
	id := xid.New().String()
	dir := filepath.Join(m.config.Root, id)

	ws := m.newWorkspace(id, dir)
	ws.release = func() error {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("workspace: removing %s: %w", dir, err)
		}
		return nil
	}

	if err := os.MkdirAll(ws.OutputDir, 0o755); err != nil {
		_ = ws.Release()
		return nil, fmt.Errorf("workspace: creating output dir: %w", err)
	}
	if err := os.WriteFile(ws.ScriptPath, []byte(code), 0o644); err != nil {
		_ = ws.Release()
		return nil, fmt.Errorf("workspace: writing script: %w", err)
	}

	m.logger.Debug("workspace prepared", slog.String("id", id), slog.String("dir", dir))
	return ws, nil
}

func (m *Manager) prepareShared(ctx context.Context, code string) (*Workspace, error) {
	if m.config.SlotWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.SlotWait)
		defer cancel()
	}

	select {
	case m.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("workspace: waiting for shared workspace: %w", ctx.Err())
	}

	ws := m.newWorkspace("shared", m.config.Root)
	ws.release = func() error {
		<-m.slot
		return nil
	}

	if err := resetDir(ws.OutputDir); err != nil {
		_ = ws.Release()
		return nil, err
	}
	if err := os.WriteFile(ws.ScriptPath, []byte(code), 0o644); err != nil {
		_ = ws.Release()
		return nil, fmt.Errorf("workspace: writing script: %w", err)
	}

	m.logger.Debug("shared workspace prepared", slog.String("dir", ws.Dir))
	return ws, nil
}

func (m *Manager) newWorkspace(id, dir string) *Workspace {
	return &Workspace{
		ID:         id,
		Dir:        dir,
		ScriptPath: filepath.Join(dir, m.config.ScriptName),
		OutputDir:  filepath.Join(dir, m.config.OutputDir),
		logger:     m.logger,
	}
}

// resetDir makes sure dir exists and holds nothing left over from a previous run.
func resetDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("workspace: creating output dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("workspace: listing output dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("workspace: clearing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Workspace is one prepared execution location.
type Workspace struct {
	ID         string
	Dir        string // working directory of the child process
	ScriptPath string
	OutputDir  string

	logger   *slog.Logger
	release  func() error
	released sync.Once
}

// Harvest reads every regular file in the output directory, ordered by name.
//
// Directories, symlinks and other special entries are skipped. A file that
// cannot be read does not stop the harvest: the remaining files are still
// returned, together with an error describing every failure.
func (w *Workspace) Harvest() ([]model.OutputFile, error) {
	entries, err := os.ReadDir(w.OutputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// The script removed its own output directory: nothing to return.
			return nil, nil
		}
		return nil, fmt.Errorf("listing output dir: %w", err)
	}

	var (
		files []model.OutputFile
		errs  []error
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(w.OutputDir, e.Name()))
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", e.Name(), err))
			continue
		}
		files = append(files, model.OutputFile{Filename: e.Name(), Content: content})
		w.logger.Debug("retrieved output file",
			slog.String("file", e.Name()),
			slog.Int("bytes", len(content)),
		)
	}

	return files, errors.Join(errs...)
}

// Release frees the workspace. It is safe to call more than once.
func (w *Workspace) Release() error {
	var err error
	w.released.Do(func() {
		if w.release != nil {
			err = w.release()
		}
	})
	return err
}
