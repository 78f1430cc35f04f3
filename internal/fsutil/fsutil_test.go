package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListDirectoryOrdersDirsFirst(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "zeta-dir"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "alpha.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "beta.txt"), []byte("xy"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := ListDirectory(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if !entries[0].IsDir || entries[0].Name != "zeta-dir" {
		t.Errorf("first = %+v, want the directory", entries[0])
	}
	if entries[1].Name != "alpha.txt" || entries[2].Name != "beta.txt" {
		t.Errorf("files = [%s %s], want name order", entries[1].Name, entries[2].Name)
	}
	if entries[2].Size != 2 {
		t.Errorf("size = %d, want 2", entries[2].Size)
	}
}

func TestListDirectoryMissing(t *testing.T) {
	if _, err := ListDirectory("/no/such/dir"); err == nil {
		t.Error("listing a missing dir should fail")
	}
}

func TestCreateSandboxDirs(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "sandbox", "source")
	dest := filepath.Join(root, "sandbox", "dest")

	if err := CreateSandboxDirs(source, dest); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, p := range []string{source, dest} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", p)
		}
	}
}

func TestEnsureSafeToDelete(t *testing.T) {
	for _, p := range []string{"/", "/home", "/etc", "/Users", "relative/path", "/usr/.."} {
		if err := EnsureSafeToDelete(p); err == nil {
			t.Errorf("EnsureSafeToDelete(%q) = nil, want refusal", p)
		}
	}

	if err := EnsureSafeToDelete("/backup/data/job1"); err != nil {
		t.Errorf("EnsureSafeToDelete(/backup/data/job1) = %v, want nil", err)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		if err := EnsureSafeToDelete(home); err == nil {
			t.Error("deleting the home directory should be refused")
		}
	}
}

func TestRemoveBackupData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backup-data")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := RemoveBackupData(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory still exists")
	}

	if err := RemoveBackupData("/etc"); err == nil {
		t.Error("removing /etc should be refused")
	}
}

func TestAtomicWrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nested", "state.json")

	if err := AtomicWrite(dst, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("content = %q", data)
	}

	// Overwrite works and leaves no temp file behind.
	if err := AtomicWrite(dst, []byte("v2")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := os.Stat(dst + ".amber.tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestIsHidden(t *testing.T) {
	if !IsHidden(".DS_Store") {
		t.Error(".DS_Store should be hidden")
	}
	if IsHidden("Documents") {
		t.Error("Documents should not be hidden")
	}
}
