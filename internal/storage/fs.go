package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// FS implements Provider on the local file system below a single uploads root.
type FS struct {
	root   string
	rename func(oldpath, newpath string) error
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
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
	return &FS{root: abs}, nil
}

// Root returns the absolute uploads root.
func (f *FS) Root() string {
	return f.root
}

// Abs resolves a relative blob path to an absolute one, rejecting traversal.
func (f *FS) Abs(rel string) (string, error) {
	return f.safePath(rel)
}

func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes uploads root: %s", rel)
	}
	return abs, nil
}

// List returns every regular file under dir (relative to root), skipping
// in-flight temp files.
func (f *FS) List(dir string) ([]FileInfo, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && p == base {
				return filepath.SkipDir
			}
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, FileInfo{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a blob.
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

// Exists reports whether a regular file is present at path.
func (f *FS) Exists(path string) (bool, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

// Write atomically writes content: tmp file, fsync, rename.
func (f *FS) Write(path string, content []byte) error {
	_, err := f.write(path, func(w io.Writer) (int64, error) {
		n, err := w.Write(content)
		return int64(n), err
	})
	return err
}

// WriteStream atomically copies r into path and returns the number of bytes written.
func (f *FS) WriteStream(path string, r io.Reader) (int64, error) {
	return f.write(path, func(w io.Writer) (int64, error) {
		return io.Copy(w, r)
	})
}

func (f *FS) write(path string, fill func(io.Writer) (int64, error)) (int64, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := fill(tmp)
	if err != nil {
		return 0, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return 0, fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return n, nil
}

// Delete removes a blob. A missing file is reported as AlreadyAbsent with a nil
// error; any other failure is reported as Failed together with the cause.
func (f *FS) Delete(path string) (DeleteResult, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return Failed, err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return AlreadyAbsent, nil
		}
		return Failed, fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return Deleted, nil
}

// Move renames a blob, creating the destination directory when needed.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	rename := f.rename
	if rename == nil {
		rename = os.Rename
	}
	err = rename(absOld, absNew)
	if errors.Is(err, syscall.EXDEV) {
		err = f.copyAndRemove(absOld, newPath)
	}
	if err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// copyAndRemove moves a file across devices, where rename cannot.
func (f *FS) copyAndRemove(absOld, newPath string) error {
	src, err := os.Open(absOld)
	if err != nil {
		return err
	}
	_, err = f.WriteStream(newPath, src)
	_ = src.Close()
	if err != nil {
		return err
	}
	return os.Remove(absOld)
}

// RemoveDirIfEmpty deletes dir when it holds no entries. A missing or
// non-empty directory is not an error.
func (f *FS) RemoveDirIfEmpty(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if abs == f.root {
		return nil
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("storage: read dir %s: %w", dir, err)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove dir %s: %w", dir, err)
	}
	return nil
}

// FileInfo describes a stored blob.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

const tmpPrefix = ".tirelire-tmp-"
