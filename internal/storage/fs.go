package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
)

// DefaultExtension is the document extension indexed when none is configured.
const DefaultExtension = ".md"

// FS implements Provider backed by the local file system.
type FS struct {
	root      string // absolute path to vault directory
	extension string
	ignore    []string
	logger    *slog.Logger
}

// Option configures an FS.
type Option func(*FS)

// WithExtension sets the file extension of qualifying documents.
func WithExtension(ext string) Option {
	return func(f *FS) {
		if ext == "" {
			return
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extension = ext
	}
}

// WithIgnore excludes relative paths matching any of the doublestar patterns.
func WithIgnore(patterns ...string) Option {
	return func(f *FS) { f.ignore = append(f.ignore, patterns...) }
}

// WithLogger sets the logger used to report files List had to skip.
func WithLogger(l *slog.Logger) Option {
	return func(f *FS) {
		if l != nil {
			f.logger = l
		}
	}
}

// ValidatePattern reports whether a glob is usable with WithIgnore.
func ValidatePattern(pattern string) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("storage: invalid ignore pattern %q", pattern)
	}
	return nil
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, extension: DefaultExtension, logger: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	for _, p := range f.ignore {
		if err := ValidatePattern(p); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	// Ensure the resolved path is still under root.
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// Rel converts an absolute path under the root into a slash-separated relative path.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel %s: %w", abs, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path outside vault root: %s", abs)
	}
	return filepath.ToSlash(rel), nil
}

// Qualifies reports whether rel has the document extension, does not live in
// a hidden directory and matches no ignore pattern.
func (f *FS) Qualifies(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." || !strings.HasSuffix(rel, f.extension) {
		return false
	}
	if InHiddenDir(rel) {
		return false
	}
	return !f.ignored(rel)
}

func (f *FS) ignored(rel string) bool {
	for _, p := range f.ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// InHiddenDir reports whether any directory component of the slash path rel
// starts with a dot.
func InHiddenDir(rel string) bool {
	dir := path.Dir(rel)
	if dir == "." {
		return false
	}
	for _, part := range strings.Split(dir, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// List walks dir (relative to root) and returns metadata for every qualifying
// document. Hidden directories are not descended into. Entries that cannot be
// read (dangling links, permission errors, files removed mid-walk) are logged
// and left out; only a failure on dir itself is returned.
func (f *FS) List(dir string) ([]models.DocumentMeta, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.DocumentMeta
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base {
				return walkErr
			}
			f.skip(p, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := f.Rel(p)
		if err != nil || !f.Qualifies(rel) {
			return nil
		}
		meta, err := f.stat(p, rel, d)
		if err != nil {
			f.skip(p, err)
			return nil
		}
		out = append(out, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

func (f *FS) stat(p, rel string, d fs.DirEntry) (models.DocumentMeta, error) {
	info, err := d.Info()
	if err != nil {
		return models.DocumentMeta{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return models.DocumentMeta{}, err
	}
	return models.DocumentMeta{
		Path:      rel,
		Checksum:  checksum.Sum(data),
		UpdatedAt: info.ModTime(),
	}, nil
}

func (f *FS) skip(p string, err error) {
	f.logger.Warn("storage: skipping unreadable entry",
		slog.String("path", p),
		slog.String("error", err.Error()))
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// IsNotExist reports whether err comes from reading a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ansuz-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
