package filesystem_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/NamanBalaji/tfetch/internal/filesystem"
)

func TestTouch(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "subdir", "empty.txt")

	if err := fs.Touch(filePath); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		t.Fatalf("Expected file to exist after Touch: %v", err)
	}

	if info.Size() != 0 {
		t.Errorf("Expected empty file, got %d bytes", info.Size())
	}
}

func TestTouchKeepsContent(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	filePath := filepath.Join(t.TempDir(), "data.bin")

	if err := os.WriteFile(filePath, []byte("keep"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if err := fs.Touch(filePath); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	got, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(got) != "keep" {
		t.Errorf("Touch changed content to %q", got)
	}
}

func TestRemove(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	filePath := filepath.Join(t.TempDir(), "testfile.txt")

	if err := os.WriteFile(filePath, []byte("to be deleted"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if err := fs.Remove(filePath); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Errorf("Expected file to be deleted, stat err = %v", err)
	}
}

func TestRename(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	dir := t.TempDir()
	from := filepath.Join(dir, "from.bin")
	to := filepath.Join(dir, "to.bin")

	if err := os.WriteFile(from, []byte("data"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if err := fs.Rename(from, to); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	if _, err := os.Stat(from); !os.IsNotExist(err) {
		t.Errorf("Expected source to be gone, stat err = %v", err)
	}

	got, err := os.ReadFile(to)
	if err != nil || string(got) != "data" {
		t.Errorf("Expected moved content, got %q, %v", got, err)
	}
}

func TestFileExists(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "present.txt")

	if err := os.WriteFile(filePath, nil, 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		want    bool
		wantDir bool
	}{
		{"present", filePath, true, false},
		{"missing", filepath.Join(tempDir, "missing.txt"), false, false},
		{"missing parent", filepath.Join(tempDir, "nope", "missing.txt"), false, false},
		{"directory", tempDir, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := filesystem.FileExists(fs, tt.path)
			if tt.wantDir {
				if !errors.Is(err, filesystem.ErrIsDirectory) {
					t.Fatalf("Expected ErrIsDirectory, got %v", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("FileExists failed: %v", err)
			}

			if got != tt.want {
				t.Errorf("FileExists(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
