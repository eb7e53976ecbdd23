package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic_Memory(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := WriteFileAtomic(m, "calib/projector.json", []byte("[1]"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if !m.Exists("calib") {
		t.Error("parent directory not created")
	}
	if m.Exists("calib/projector.json.tmp") {
		t.Error("temp file left behind")
	}
	got, err := m.ReadFile("calib/projector.json")
	if err != nil || string(got) != "[1]" {
		t.Fatalf("ReadFile = %q, %v", got, err)
	}
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	m := NewMemoryFileSystem()
	if _, err := m.ReadFile("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile err = %v", err)
	}
	if err := m.Rename("nope", "other"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Rename err = %v", err)
	}
	if err := m.Remove("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Remove err = %v", err)
	}
}

func TestWriteFileAtomic_OS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "c.json")
	var fsys OSFileSystem
	if err := WriteFileAtomic(fsys, path, []byte("[2]"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if !fsys.Exists(path) || fsys.Exists(path+".tmp") {
		t.Error("unexpected files after atomic write")
	}
	data, err := fsys.ReadFile(path)
	if err != nil || string(data) != "[2]" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
}
