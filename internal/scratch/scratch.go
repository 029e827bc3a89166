// Package scratch manages the process-wide temporary-file area used for
// in-flight downloads.
package scratch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/italolelis/media_analyzer/internal/logctx"
)

const dirPerm = 0755

// Manager materializes byte payloads into a dedicated scratch directory and
// guarantees their removal.
type Manager struct {
	dir string
}

// NewManager creates a manager rooted at dir. An empty dir falls back to a
// subdirectory of the system temp directory. The directory itself is created
// lazily on first use.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "media-analyzer")
	}

	return &Manager{dir: dir}
}

// Dir returns the scratch directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// Materialize writes data to a file named filename inside the scratch
// directory and returns its full path. Callers are expected to pick
// collision-resistant filenames; concurrent writers never share a name.
func (m *Manager) Materialize(data []byte, filename string) (string, error) {
	if err := os.MkdirAll(m.dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}

	path := filepath.Join(m.dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}

	return path, nil
}

// Release deletes the file at path. It is a no-op for an empty path or an
// already-deleted file, and never surfaces an error to the caller; deletion
// failures are only logged.
func (m *Manager) Release(ctx context.Context, path string) {
	if path == "" {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			logger.Debug("scratch file already gone", "path", path)

			return
		}

		logger.Error("failed to release scratch file", "path", path, "err", err)

		return
	}

	logger.Debug("released scratch file", "path", path)
}

// ReleaseAll sweeps every file out of the scratch directory. This is an
// administrative operation, not part of the per-request flow.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read scratch directory: %w", err)
	}

	var removed int

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to remove scratch file during sweep", "path", path, "err", err)

			continue
		}

		removed++
	}

	logger.Info("swept scratch directory", "dir", m.dir, "removed", removed)

	return nil
}
