// Package blob stores binary attachments such as prescription photos.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store uploads bytes under a relative path and returns a URL the record can
// keep. Delete takes that URL back.
type Store interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, rawURL string) error
}

var ErrOutsideRoot = errors.New("blob: path outside store root")

// FS keeps blobs as files under a root directory and hands out file:// URLs.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FS{root: abs}, nil
}

func (s *FS) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	// Write to a temp file first so a reader never sees half a photo.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store blob: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String(), nil
}

// Delete removes the blob at rawURL. A missing file is not an error.
func (s *FS) Delete(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return fmt.Errorf("blob: not a file url: %q", rawURL)
	}
	full := filepath.FromSlash(u.Path)
	if !s.contains(full) {
		return ErrOutsideRoot
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *FS) resolve(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	if clean == "/" {
		return "", fmt.Errorf("blob: empty name")
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if !s.contains(full) {
		return "", ErrOutsideRoot
	}
	return full, nil
}

func (s *FS) contains(full string) bool {
	rel, err := filepath.Rel(s.root, full)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
