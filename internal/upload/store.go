package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store keeps uploaded files in one flat directory keyed by sanitized name.
// Saving an existing name overwrites the previous file.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir failed: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}
	return &Store{dir: abs}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path a sanitized name is stored at.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Save writes r to the store and returns the absolute path of the file.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	path := s.Path(name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file %s failed: %w", name, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("write file %s failed: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close file %s failed: %w", name, err)
	}
	return path, nil
}

func (s *Store) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("read file %s failed: %w", name, err)
	}
	return data, nil
}

// Remove deletes a stored file. A missing file yields an error wrapping
// os.ErrNotExist.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		return fmt.Errorf("remove file %s failed: %w", name, err)
	}
	return nil
}
