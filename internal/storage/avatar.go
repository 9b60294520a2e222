// Package storage spools uploaded avatar files to local disk.  Handing the
// files to an object store is an external concern; the service only keeps
// the local copy and records the generated object name on the profile.
package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/charaka/user-auth-service/internal/utils"
)

// AvatarStore saves avatar uploads under root/users/<random>/<filename>.
type AvatarStore struct {
	Root string
}

func NewAvatarStore(root string) *AvatarStore {
	if root == "" {
		root = "uploads"
	}
	return &AvatarStore{Root: root}
}

// Save writes the uploaded file and returns the stored object name
// (relative to the store root).  The random subfolder keeps concurrent
// uploads of identically named files apart.
func (s *AvatarStore) Save(fh *multipart.FileHeader) (string, error) {
	name := filepath.Base(fh.Filename)
	if name == "" || name == "." || strings.ContainsAny(name, "\\/") {
		return "", fmt.Errorf("invalid file name")
	}
	sub, err := utils.NewTempPassword(6) // 6 random letters
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.Root, "users", sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return filepath.ToSlash(filepath.Join("users", sub, name)), nil
}
