package backend

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cohesix/cohesix-go/pkg/log"
	"github.com/cohesix/cohesix-go/pkg/metrics"
	"github.com/cohesix/cohesix-go/pkg/paths"
)

// Filesystem serves a namespace mounted at a host directory. Every
// namespace path is validated and resolved strictly under the root.
type Filesystem struct {
	root   string
	limits paths.Limits
	name   string
	logger zerolog.Logger
}

// NewFilesystem opens a filesystem backend rooted at root. The directory
// must already exist.
func NewFilesystem(root string, limits paths.Limits) (*Filesystem, error) {
	return newFilesystem(root, limits, "fs")
}

func newFilesystem(root string, limits paths.Limits, name string) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mount root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, Errorf("mount root %s is not a directory", root)
	}
	return &Filesystem{
		root:   abs,
		limits: limits,
		name:   name,
		logger: log.WithBackend(name),
	}, nil
}

// Root returns the host directory the namespace is mounted at.
func (f *Filesystem) Root() string {
	return f.root
}

// Close is a no-op; the filesystem backend holds no transport state.
func (f *Filesystem) Close() error {
	return nil
}

// resolve maps a namespace path onto the host, refusing any path that
// would land outside the mount root.
func (f *Filesystem) resolve(path string) (string, error) {
	resolved, err := paths.Resolve(f.root, path, f.limits)
	if err != nil {
		var perr *paths.PathError
		if errors.As(err, &perr) && perr.Reason == "path escapes mount root" {
			return "", Errorf("path escapes mount root")
		}
		return "", err
	}
	return resolved, nil
}

func (f *Filesystem) List(path string) ([]string, error) {
	metrics.BackendOps.WithLabelValues(f.name, "list").Inc()
	resolved, err := f.resolve(path)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(f.name, "list").Inc()
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		metrics.BackendErrors.WithLabelValues(f.name, "list").Inc()
		return nil, Errorf("%s is not a directory", path)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(f.name, "list").Inc()
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (f *Filesystem) ReadFile(path string, maxBytes int) ([]byte, error) {
	metrics.BackendOps.WithLabelValues(f.name, "read").Inc()
	payload, err := f.readFile(path, maxBytes)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(f.name, "read").Inc()
		return nil, err
	}
	metrics.BackendBytes.WithLabelValues(f.name, "in").Add(float64(len(payload)))
	return payload, nil
}

func (f *Filesystem) readFile(path string, maxBytes int) ([]byte, error) {
	resolved, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return nil, Errorf("%s is not a file", path)
	}
	file, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	// Read one byte past the cap to detect overflow without loading an
	// unbounded file.
	payload, err := io.ReadAll(io.LimitReader(file, int64(maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(payload) > maxBytes {
		return nil, Errorf("read %s exceeds max bytes %d", path, maxBytes)
	}
	return payload, nil
}

func (f *Filesystem) WriteAppend(path string, payload []byte) (int, error) {
	metrics.BackendOps.WithLabelValues(f.name, "write").Inc()
	resolved, err := f.resolve(path)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(f.name, "write").Inc()
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		metrics.BackendErrors.WithLabelValues(f.name, "write").Inc()
		return 0, fmt.Errorf("failed to create parent of %s: %w", path, err)
	}
	file, err := os.OpenFile(resolved, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(f.name, "write").Inc()
		return 0, fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	defer file.Close()
	n, err := file.Write(payload)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(f.name, "write").Inc()
		return n, fmt.Errorf("failed to append to %s: %w", path, err)
	}
	metrics.BackendBytes.WithLabelValues(f.name, "out").Add(float64(n))
	f.logger.Debug().Str("path", path).Int("bytes", n).Msg("appended")
	return n, nil
}
