// Package images implements the filesystem-backed image store. Files live
// under a single upload root with one folder per user plus a shared avatar
// folder; avatar files are addressed by a fixed per-user base name
// regardless of their extension.
package images

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrExtensionNotAllowed is returned when a file's extension is not on the allow-list.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")

	// ErrUnsafeName is returned for names with path components or traversal attempts.
	ErrUnsafeName = errors.New("unsafe file name")

	// ErrNotFound is returned when the addressed file does not exist.
	ErrNotFound = errors.New("image not found")
)

// AvatarFolder is the shared folder holding one avatar file per user.
const AvatarFolder = "avatars"

// UserFolder returns the image folder name for a user.
func UserFolder(userId string) string {
	return "user_" + userId
}

// AvatarBase returns the fixed avatar base name for a user. The stored avatar
// is this base plus whatever extension the upload carried.
func AvatarBase(userId string) string {
	return "user_" + userId
}

// Store holds the upload root and the extension allow-list.
type Store struct {
	root    string
	allowed map[string]struct{}
}

// NewStore creates the upload root if necessary and returns a Store
// accepting the given extensions (without leading dot, case-insensitive).
func NewStore(root string, allowedExtensions []string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload root %s: %w", root, err)
	}

	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}

	return &Store{root: root, allowed: allowed}, nil
}

// IsFilenameSafe reports whether name is a plain file name that cannot
// escape its folder. Pure function, no I/O.
func IsFilenameSafe(name string) bool {
	if name == "" || name == "." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return true
}

// GetBasename returns the file name portion of a path.
func GetBasename(path string) string {
	return filepath.Base(path)
}

// GetExtension returns the extension of a path including the leading dot.
func GetExtension(path string) string {
	return filepath.Ext(path)
}

// GetPath returns the full path of a file within the store. The name must
// already have passed IsFilenameSafe.
func (s *Store) GetPath(folder, name string) string {
	return filepath.Join(s.root, folder, name)
}

// Save writes the file into the given folder under the requested name.
// The extension is checked against the allow-list. On a name collision the
// name gets a numeric suffix, first free integer starting at 1, rather than
// overwriting the existing file. Returns the path the file was stored under.
func (s *Store) Save(r io.Reader, folder, name string) (string, error) {
	if !IsFilenameSafe(name) {
		return "", ErrUnsafeName
	}

	ext := GetExtension(name)
	if _, ok := s.allowed[strings.ToLower(strings.TrimPrefix(ext, "."))]; !ok {
		return "", fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}

	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create folder %s: %w", dir, err)
	}

	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; ; n++ {
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err == nil {
			if _, err := io.Copy(f, r); err != nil {
				f.Close()
				os.Remove(path)
				return "", fmt.Errorf("write %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return "", fmt.Errorf("close %s: %w", path, err)
			}
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		candidate = fmt.Sprintf("%s(%d)%s", stem, n, ext)
	}
}

// FindAnyFormat searches the folder for a file whose stem equals base,
// regardless of extension. It returns the full path of the first match.
func (s *Store) FindAnyFormat(folder, base string) (string, bool) {
	entries, err := os.ReadDir(filepath.Join(s.root, folder))
	if err != nil {
		return "", false
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == base {
			return filepath.Join(s.root, folder, name), true
		}
	}

	return "", false
}

// Delete removes the named file from the folder. It returns ErrNotFound when
// the file does not exist and wraps any other I/O failure.
func (s *Store) Delete(folder, name string) error {
	if !IsFilenameSafe(name) {
		return ErrUnsafeName
	}

	path := filepath.Join(s.root, folder, name)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
