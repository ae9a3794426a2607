// Package materializer writes submissions into per-execution scratch directories.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	appErr "codeexec/pkg/errors"
	"codeexec/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	dirPerm  = 0755
	filePerm = 0644

	createAttempts = 3
	dirPrefix      = "exec-"
)

// ScratchFile is the source file of one execution and the directory holding
// every artifact derived from it. It is owned by exactly one execution.
type ScratchFile struct {
	ID        string
	Dir       string
	Path      string
	CreatedAt time.Time
}

// Sibling returns the path of a file next to the source sharing its base name.
func (s *ScratchFile) Sibling(ext string) string {
	return filepath.Join(s.Dir, s.ID+ext)
}

// Attach writes an auxiliary file into the scratch directory.
func (s *ScratchFile) Attach(name, content string) (string, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return "", appErr.ValidationError("name", "must be a plain file name")
	}
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "write scratch file failed")
	}
	return path, nil
}

// Materializer creates and releases scratch files under one root directory.
type Materializer struct {
	root string
	now  func() time.Time
}

// New creates the root directory if needed.
func New(root string) (*Materializer, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "codeexec")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &Materializer{root: root, now: time.Now}, nil
}

// Root returns the scratch root directory.
func (m *Materializer) Root() string {
	return m.root
}

// Materialize writes sourceText to a uniquely named file.
func (m *Materializer) Materialize(ctx context.Context, sourceText, extension string) (*ScratchFile, error) {
	if extension != "" && !strings.HasPrefix(extension, ".") {
		return nil, appErr.ValidationError("extension", "must start with a dot")
	}

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		createdAt := m.now()
		id := newScratchID(createdAt)
		dir := filepath.Join(m.root, dirPrefix+id)
		// Mkdir fails on an existing name, so a directory is never shared.
		if err := os.Mkdir(dir, dirPerm); err != nil {
			lastErr = err
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			break
		}
		sf := &ScratchFile{
			ID:        id,
			Dir:       dir,
			Path:      filepath.Join(dir, id+extension),
			CreatedAt: createdAt,
		}
		if err := os.WriteFile(sf.Path, []byte(sourceText), filePerm); err != nil {
			m.Release(ctx, sf)
			return nil, appErr.Wrapf(err, appErr.InternalServerError, "write scratch file failed")
		}
		return sf, nil
	}
	return nil, appErr.Wrapf(lastErr, appErr.InternalServerError, "create scratch directory failed")
}

// Release deletes the scratch file and everything derived from it. Failures
// are logged and never returned.
func (m *Materializer) Release(ctx context.Context, sf *ScratchFile) {
	if sf == nil || sf.Dir == "" {
		return
	}
	if !m.owns(sf.Dir) {
		logger.Error(ctx, "refusing to release path outside scratch root",
			zap.String("dir", sf.Dir),
			zap.String("root", m.root),
		)
		return
	}
	if err := os.RemoveAll(sf.Dir); err != nil {
		logger.Warn(ctx, "scratch cleanup failed",
			zap.Int("code", int(appErr.CleanupFailure)),
			zap.String("dir", sf.Dir),
			zap.Error(err),
		)
	}
}

// Sweep removes scratch directories older than maxAge, left behind by a
// previous process that exited before releasing them.
func (m *Materializer) Sweep(ctx context.Context, maxAge time.Duration) int {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		logger.Warn(ctx, "scratch sweep failed", zap.String("root", m.root), zap.Error(err))
		return 0
	}
	cutoff := m.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			logger.Warn(ctx, "scratch sweep remove failed", zap.String("dir", entry.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}

func (m *Materializer) owns(dir string) bool {
	rel, err := filepath.Rel(m.root, dir)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

// newScratchID combines a nanosecond timestamp with a random suffix.
func newScratchID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", t.UnixNano(), suffix)
}
