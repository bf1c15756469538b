package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// Store persists a ledger between runs.
type Store interface {
	Load() (*Ledger, error)
	Save(l *Ledger) error
}

// FileStore keeps the ledger as a JSON document in the database directory.
type FileStore struct {
	path string
}

type ledgerFile struct {
	Packages []models.Package `json:"packages"`
}

// NewFileStore creates a store writing dbDir/installed.json
func NewFileStore(dbDir string) *FileStore {
	return &FileStore{path: filepath.Join(dbDir, "installed.json")}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the ledger. A missing file means nothing is installed.
func (s *FileStore) Load() (*Ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.WithField("path", s.path).Debug("No installed database, starting empty")
			return New(), nil
		}
		return nil, models.NewError(models.ErrIO, nil, "failed to read installed database: %v", err)
	}

	var lf ledgerFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, models.NewError(models.ErrParse, nil, "failed to parse %s: %v", s.path, err)
	}

	l := New()
	for _, pkg := range lf.Packages {
		if err := l.Register(pkg); err != nil {
			return nil, fmt.Errorf("installed database is inconsistent: %w", err)
		}
	}
	return l, nil
}

// Save atomically replaces the stored ledger.
func (s *FileStore) Save(l *Ledger) error {
	data, err := json.MarshalIndent(ledgerFile{Packages: l.List()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode installed database: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0644); err != nil {
		return models.NewError(models.ErrIO, nil, "failed to write installed database: %v", err)
	}
	return nil
}

// Lock is an exclusive lock file guarding the ledger against a second
// process executing a transaction.
type Lock struct {
	path string
}

// AcquireLock creates dbDir/lock. It fails when the file already exists.
func AcquireLock(dbDir string) (*Lock, error) {
	if err := utils.EnsureDir(dbDir); err != nil {
		return nil, models.NewError(models.ErrIO, nil, "failed to create %s: %v", dbDir, err)
	}

	path := filepath.Join(dbDir, "lock")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, models.NewError(models.ErrIO, nil,
				"another transaction is in progress (remove %s if it is stale)", path)
		}
		return nil, models.NewError(models.ErrIO, nil, "failed to create lock: %v", err)
	}
	defer f.Close()

	f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
