package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem is the set of file operations a session performs on its
// output paths. The transfer engine writes piece data on its own.
type FileSystem interface {
	Stat(path string) (os.FileInfo, error)
	Remove(path string) error
	Rename(from, to string) error
	Touch(path string) error
}

// OSFileSystem implements the FileSystem interface using OS file operations
type OSFileSystem struct{}

// NewOSFileSystem creates a new OS filesystem
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (o *OSFileSystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (o *OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}

func (o *OSFileSystem) Rename(from, to string) error {
	return os.Rename(from, to)
}

// Touch creates an empty file and its parent directories. Existing content
// is left alone.
func (o *OSFileSystem) Touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	return f.Close()
}

// FileExists reports whether path names an existing regular file. A
// directory in its place is an error.
func FileExists(fsys FileSystem, path string) (bool, error) {
	info, err := fsys.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if info.IsDir() {
		return false, &fs.PathError{Op: "stat", Path: path, Err: ErrIsDirectory}
	}

	return true, nil
}

var ErrIsDirectory = errors.New("is a directory")
