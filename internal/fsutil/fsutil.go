package fsutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Entry is one directory listing row for the path picker UI.
type Entry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsDir    bool      `json:"isDir"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ListDirectory lists a directory, directories first, then by name.
func ListDirectory(path string) ([]Entry, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:     d.Name(),
			Path:     filepath.Join(path, d.Name()),
			IsDir:    d.IsDir(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})

	return entries, nil
}

// CreateSandboxDirs creates the source and destination directories for
// a sandboxed trial job.
func CreateSandboxDirs(source, dest string) error {
	if err := os.MkdirAll(source, 0755); err != nil {
		return fmt.Errorf("failed to create source dir: %w", err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create dest dir: %w", err)
	}
	return nil
}

// OpenPath opens a path with the OS default handler.
func OpenPath(path string) error {
	return shellOpen(path)
}

// RevealInFileManager shows a path in the OS file manager. On Linux
// there is no portable "reveal" verb, so the containing directory is
// opened instead.
func RevealInFileManager(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", "-R", path).Start()
	default:
		return shellOpen(filepath.Dir(path))
	}
}

func shellOpen(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("explorer", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}

// dangerousPrefixes are roots that must never be removed as backup
// data, whatever a job's destination claims.
var dangerousPrefixes = []string{
	"/", "/home", "/root", "/etc", "/usr", "/var", "/bin", "/sbin", "/lib",
	"/boot", "/dev", "/proc", "/sys", "/tmp",
	"/Users", "/System", "/Library", "/Applications", "/Volumes",
}

// EnsureSafeToDelete refuses deletion of system roots and anything
// that is not an absolute, cleaned path.
func EnsureSafeToDelete(path string) error {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		return fmt.Errorf("refusing to delete relative path %q", path)
	}

	for _, prefix := range dangerousPrefixes {
		if clean == prefix {
			return fmt.Errorf("refusing to delete system path %q", clean)
		}
	}

	home, err := os.UserHomeDir()
	if err == nil && clean == filepath.Clean(home) {
		return fmt.Errorf("refusing to delete home directory %q", clean)
	}

	return nil
}

// RemoveBackupData deletes a job's backup destination after the safety
// check passes.
func RemoveBackupData(path string) error {
	if err := EnsureSafeToDelete(path); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// AtomicWrite writes data via a temp file and rename so readers never
// see a partial file.
func AtomicWrite(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	tmp := dst + ".amber.tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

// IsHidden reports whether a file name is dot-hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
