package scan

import (
	"os"
	"path/filepath"
	"testing"

	"mark/internal/safeio"
	"mark/internal/types"
)

func mustWrite(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func newFS(t *testing.T, root string) *safeio.SafeFS {
	t.Helper()
	fs, err := safeio.NewSafeFS(root)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	return fs
}

func TestScanOrderIsLexicographic(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, root, "b/train.py", []byte("import torch\n"))
	mustWrite(t, root, "a/predict.py", []byte("import onnx\n"))
	mustWrite(t, root, "main.py", []byte("print()\n"))
	fs := newFS(t, root)

	var got []string
	warnings, err := Scan(fs, ".", Filters{}, func(f types.SourceFile) {
		got = append(got, f.Path)
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	want := []string{"a/predict.py", "b/train.py", "main.py"}
	if len(got) != len(want) {
		t.Fatalf("files: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d]=%s want %s (all=%v)", i, got[i], want[i], got)
		}
	}
}

func TestScanSkipsVendorAndDefaultExcludes(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, root, "src/train.py", []byte("import torch\n"))
	mustWrite(t, root, "vendor/dep.py", []byte("import torch\n"))
	mustWrite(t, root, "tests/test_train.py", []byte("import torch\n"))
	fs := newFS(t, root)

	files, _, err := Files(fs, ".", DefaultFilters())
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0].Path != "src/train.py" {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestScanAllowedExtensions(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, root, "train.py", []byte("import torch\n"))
	mustWrite(t, root, "README.md", []byte("# readme\n"))
	fs := newFS(t, root)

	files, _, err := Files(fs, ".", Filters{AllowedExts: []string{"py"}})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0].Path != "train.py" {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestScanMaxFileSize(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, root, "big.py", []byte("import torch\nimport sklearn\n"))
	mustWrite(t, root, "small.py", []byte("x\n"))
	fs := newFS(t, root)

	files, _, err := Files(fs, ".", Filters{MaxFileSize: 4})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0].Path != "small.py" {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestScanUndecodableFileIsWarning(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, root, "blob.py", []byte{0xff, 0xfe, 0x00, 0x41})
	mustWrite(t, root, "ok.py", []byte("import torch\n"))
	fs := newFS(t, root)

	files, warnings, err := Files(fs, ".", Filters{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0].Path != "ok.py" {
		t.Fatalf("unexpected files: %+v", files)
	}
	if len(warnings) != 1 || warnings[0].Path != "blob.py" {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
}

func TestScanIncludeGlobs(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, root, "src/train.py", []byte("import torch\n"))
	mustWrite(t, root, "tools/gen.py", []byte("import os\n"))
	fs := newFS(t, root)

	files, _, err := Files(fs, ".", Filters{IncludeGlobs: []string{"src/**"}})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0].Path != "src/train.py" {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestProjects(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, root, "repos/owner2/api-server/app.py", []byte("x\n"))
	mustWrite(t, root, "repos/owner1/trainer/train.py", []byte("x\n"))
	mustWrite(t, root, "repos/stray.txt", []byte("x\n"))
	fs := newFS(t, root)

	projects, err := Projects(fs, "repos")
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("projects: got %+v", projects)
	}
	if projects[0].ID != "owner1/trainer" || projects[1].ID != "owner2/api-server" {
		t.Fatalf("unexpected order: %+v", projects)
	}
}

func TestScanWarnsOnUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	mustWrite(t, root, "src/train.py", []byte("import torch\n"))
	mustWrite(t, root, "locked/hidden.py", []byte("import torch\n"))
	if err := os.Chmod(filepath.Join(root, "locked"), 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(root, "locked"), 0o755) })
	fs := newFS(t, root)

	files, warnings, err := Files(fs, ".", Filters{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0].Path != "src/train.py" {
		t.Fatalf("files: %+v", files)
	}
	found := false
	for _, w := range warnings {
		if w.Path == "locked" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no warning for unreadable directory: %+v", warnings)
	}
}
