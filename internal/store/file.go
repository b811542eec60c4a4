package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/medication"
)

// FilePerm is the mode of the saved document: owner read/write only.
const FilePerm os.FileMode = 0o600

// FileStore keeps the document in a single JSON or YAML file.
type FileStore struct {
	path   string
	format Format
	logger *zap.Logger
}

// NewFileStore returns a store for path. The format follows the extension.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   path,
		format: FormatFor(path),
		logger: logger.Named("store"),
	}
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Load reads and decodes the document. A file that cannot be parsed is copied
// to <path>.corrupted and reported as a persistence error; it is never
// replaced by an empty document.
func (s *FileStore) Load(ctx context.Context) (*medication.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", s.path, ErrNoDocument)
		}
		return nil, apperr.Persistence("load", fmt.Errorf("read %s: %w", s.path, err))
	}

	doc, migrated, err := Decode(data, s.format, s.logger)
	if err != nil {
		backup := s.path + ".corrupted"
		if werr := os.WriteFile(backup, data, FilePerm); werr != nil {
			s.logger.Error("backup of unreadable document failed", zap.String("backup", backup), zap.Error(werr))
		} else {
			s.logger.Warn("document is unreadable, backup written", zap.String("backup", backup))
		}
		return nil, apperr.Persistence("load", fmt.Errorf("parse %s: %w", s.path, err))
	}
	if migrated {
		s.logger.Info("legacy document format detected, it will be rewritten on next save", zap.String("path", s.path))
	}
	return doc, nil
}

// Save writes the whole document atomically.
func (s *FileStore) Save(ctx context.Context, doc *medication.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(doc, s.format)
	if err != nil {
		return apperr.Persistence("save", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return apperr.Persistence("save", err)
	}
	s.logger.Debug("document saved",
		zap.String("path", s.path),
		zap.Int("active", len(doc.Medications)),
		zap.Int("archived", len(doc.Archived)))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(FilePerm); err != nil && runtime.GOOS != "windows" {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	committed = true

	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, FilePerm); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	return nil
}
