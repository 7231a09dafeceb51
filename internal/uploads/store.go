// Package uploads stores report screenshots on the local filesystem.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const screenshotDir = "screenshots"

var ErrInvalidPath = errors.New("invalid upload path")

// Store writes files below a root directory supplied per call, since the
// upload path is a runtime setting.
type Store struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		logger: logger.With().Str("component", "uploads").Logger(),
		now:    time.Now,
	}
}

// Save copies src to <root>/screenshots/YYYY/MM/DD/<random><ext> and returns the
// slash-separated path relative to root.
func (s *Store) Save(root, filename string, src io.Reader) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("%w: upload path is not configured", ErrInvalidPath)
	}

	now := s.now().UTC()
	rel := path.Join(
		screenshotDir,
		now.Format("2006"),
		now.Format("01"),
		now.Format("02"),
		strings.ReplaceAll(uuid.NewString(), "-", "")+extension(filename),
	)
	dest := filepath.Join(root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	s.logger.Info().Str("path", rel).Int64("bytes", n).Msg("Upload stored")
	return rel, nil
}

// Resolve maps a stored relative path back to a file below root.
// Paths that would escape root are rejected.
func (s *Store) Resolve(root, rel string) (string, error) {
	if root == "" || rel == "" {
		return "", ErrInvalidPath
	}
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || clean != strings.TrimPrefix(rel, "/") || !strings.HasPrefix(clean, screenshotDir+"/") {
		return "", ErrInvalidPath
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// Remove deletes a stored file. A file that is already gone is not an error.
func (s *Store) Remove(root, rel string) error {
	full, err := s.Resolve(root, rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	s.logger.Info().Str("path", rel).Msg("Upload removed")
	return nil
}

// extension keeps a short alphanumeric extension from the client's filename.
func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
