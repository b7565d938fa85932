package addressbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sispop-dev/storage/pkg/identity"
)

const (
	currentVersion = 1

	backupFileSuffix = ".bak"
	lockFileSuffix   = ".lock"
)

// storage reads and writes the book file. Writes go to a temp file in the
// same directory which is synced and renamed over the target. A lock file
// serializes access between processes.
type storage struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

func newStorage(path string) *storage {
	return &storage{path: path, lockPath: path + lockFileSuffix}
}

// load returns an empty book when the file is missing or empty. A file that
// does not parse is moved aside to path.bak and an empty book is returned.
func (s *storage) load() (*bookFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	raw, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		return emptyBookFile(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read address book: %w", err)
	case len(raw) == 0:
		return emptyBookFile(), nil
	}

	var book bookFile
	if err := json.Unmarshal(raw, &book); err != nil {
		if bErr := os.Rename(s.path, s.path+backupFileSuffix); bErr != nil {
			return nil, fmt.Errorf("corrupt address book (%v) and backup failed: %w", err, bErr)
		}
		return emptyBookFile(), nil
	}
	if book.Peers == nil {
		book.Peers = make(map[identity.PublicKey]*PeerEntry)
	}
	for pk, entry := range book.Peers {
		if entry == nil {
			delete(book.Peers, pk)
			continue
		}
		entry.PublicKey = pk
	}
	return &book, nil
}

func (s *storage) save(book *bookFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	raw, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal address book: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(raw)
	if err == nil {
		err = tmp.Sync()
	}
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err == nil {
		err = os.Rename(tmpPath, s.path)
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write address book: %w", err)
	}
	return nil
}

// lock takes the inter-process lock, creating the directory if needed.
func (s *storage) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create address book directory: %w", err)
	}
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}
	return func() {
		_ = unlockFile(f)
		f.Close()
	}, nil
}
