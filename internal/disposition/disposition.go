package disposition

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
)

const (
	ActionMove  = "move"
	ActionErase = "erase"
	ActionNone  = "none"

	originalDir = "original"
)

// Layout decides where processed files go and what happens to the source
type Layout struct {
	outputDir string
	action    string
	structure config.OutputStructure
	log       *zap.Logger
}

func New(outputDir, action string, structure config.OutputStructure, log *zap.Logger) *Layout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Layout{
		outputDir: outputDir,
		action:    action,
		structure: structure,
		log:       log.Named("disposition"),
	}
}

// OutputPath returns <output>/[true|false]/[camera]/<file> for the annotated image
func (l *Layout) OutputPath(camera, filename string, valid bool) string {
	parts := []string{l.outputDir}
	if l.structure.OrganizeByResult {
		parts = append(parts, fmt.Sprint(valid))
	}
	if l.structure.OrganizeByCamera {
		parts = append(parts, camera)
	}
	return filepath.Join(append(parts, filename)...)
}

// OriginalDir is where moved sources land
func (l *Layout) OriginalDir(camera string) string {
	if !l.structure.SaveOriginal {
		return l.outputDir
	}
	if l.structure.OriginalByCamera {
		return filepath.Join(l.outputDir, originalDir, camera)
	}
	return filepath.Join(l.outputDir, originalDir)
}

// Dispose applies the configured input action to a processed source file.
// It returns the new location for moved files.
func (l *Layout) Dispose(src, camera string) (string, error) {
	switch l.action {
	case ActionNone, "":
		return src, nil
	case ActionErase:
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("erase %s: %w", src, err)
		}
		l.log.Debug("source_erased", zap.String("path", src))
		return "", nil
	case ActionMove:
		dir := l.OriginalDir(camera)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
		dst := UniquePath(filepath.Join(dir, filepath.Base(src)))
		if err := move(src, dst); err != nil {
			return "", fmt.Errorf("move %s: %w", src, err)
		}
		l.log.Debug("source_moved", zap.String("from", src), zap.String("to", dst))
		return dst, nil
	}
	return "", fmt.Errorf("unknown input action %q", l.action)
}

// UniquePath appends _1, _2, ... to the file stem until the path is free
func UniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

// move renames, falling back to copy and remove across file systems
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
