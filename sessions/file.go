package sessions

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// FileStore persists entries as individual files under a directory, one file
// per key, written atomically via rename. Files carry 0600 permissions; the
// directory is created with 0700 on first use. Values are stored base64
// armored since they are ciphertext.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("[sessions.NewFileStore] dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[sessions.NewFileStore] creating directory")
	}
	return &FileStore{dir: dir}, nil
}

// Get implements Store.
func (f *FileStore) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	armored, err := os.ReadFile(f.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "[FileStore.Get] reading %q", key)
	}
	value, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(armored)))
	if err != nil {
		return nil, errors.Wrapf(err, "[FileStore.Get] decoding %q", key)
	}
	return value, nil
}

// Put implements Store.
func (f *FileStore) Put(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.pathFor(key)
	tmp := path + ".tmp"
	armored := base64.StdEncoding.EncodeToString(value)
	if err := os.WriteFile(tmp, []byte(armored), 0o600); err != nil {
		return errors.Wrapf(err, "[FileStore.Put] writing %q", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "[FileStore.Put] committing %q", key)
	}
	return nil
}

// Delete implements Store.
func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "[FileStore.Delete] removing %q", key)
	}
	return nil
}

func (f *FileStore) pathFor(key string) string {
	// keys are fixed identifiers, but guard against separators anyway
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(f.dir, safe+".entry")
}
