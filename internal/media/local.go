package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that LocalStore implements Store.
var _ Store = (*LocalStore)(nil)

// LocalStore implements the Store interface using local disk.
// Objects live under baseDir with their key as the relative path and are
// served back through the API's own /media endpoint.
type LocalStore struct {
	baseDir string
	baseURL string
}

// NewLocalStore creates a new LocalStore instance.
// The baseDir parameter specifies where objects are stored; it is created if
// it doesn't exist. The baseURL parameter is the externally reachable base of
// the API, used to build object URLs.
func NewLocalStore(baseDir, baseURL string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "lookfit-media")
	}

	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}

	return &LocalStore{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// BaseDir returns the storage directory path.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Put stores the bytes under a freshly minted key.
func (s *LocalStore) Put(ctx context.Context, kind Kind, data []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	key := newKey(kind)
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create media subdirectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write media object: %w", err)
	}

	return key, nil
}

// Get reads the bytes stored under the key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	data, err := os.ReadFile(path) // #nosec G304 - keys are minted by this package
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read media object: %w", err)
	}
	return data, nil
}

// URL returns the object's URL on the API's media endpoint.
func (s *LocalStore) URL(key string) string {
	return fmt.Sprintf("%s/media/%s", s.baseURL, key)
}
