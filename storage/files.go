package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"alcove-api/domain"
)

// Persisted file names inside the data directory. The tmp file exists only
// during a write-then-rename sequence and must never survive one.
const (
	primaryFile = "dashboard.json"
	backupFile  = "dashboard.backup.json"
	tmpFile     = "dashboard.json.tmp"
)

type readErrKind int

const (
	readErrNotFound readErrKind = iota
	readErrCorrupt
	readErrFatal
)

// readError tags a failed document read so the recovery cascade can branch
// on kind instead of on error text.
type readError struct {
	kind readErrKind
	err  error
}

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// readDocument reads and normalizes one candidate file. Absence and broken
// JSON come back tagged; any other read failure is tagged fatal but the
// caller still treats it as recoverable, per the load contract.
func readDocument(path string) (*domain.Document, *readError) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &readError{kind: readErrNotFound, err: err}
		}
		return nil, &readError{kind: readErrFatal, err: err}
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &readError{kind: readErrCorrupt, err: err}
	}
	return Normalize(raw), nil
}

// persistDocument writes doc to the primary path without ever exposing a
// partial file: rotate the current primary to the backup path, stage the new
// content in a tmp file in the same directory, fsync it, then atomically
// rename over the primary and fsync the directory. I/O failures propagate
// unmodified; there are no retries here.
func persistDocument(dir string, doc *domain.Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	primary := filepath.Join(dir, primaryFile)
	current, err := os.ReadFile(primary)
	switch {
	case err == nil:
		if err := os.WriteFile(filepath.Join(dir, backupFile), current, 0o644); err != nil {
			return err
		}
	case errors.Is(err, os.ErrNotExist):
		// First run, nothing to rotate.
	default:
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := filepath.Join(dir, tmpFile)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := syncFile(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, primary); err != nil {
		return err
	}
	return syncDir(dir)
}

// readCascade resolves a document through primary -> backup -> fresh
// default. It never fails for corruption reasons; recovered reports whether
// the primary could not be used, so the caller knows a self-heal write is
// due. The cascade itself performs no writes.
func readCascade(dir string, logger *log.Logger) (doc *domain.Document, recovered bool) {
	primary := filepath.Join(dir, primaryFile)
	if doc, rerr := readDocument(primary); rerr == nil {
		return doc, false
	} else if rerr.kind != readErrNotFound && logger != nil {
		logger.WithError(rerr.err).Warnf("primary document unusable, trying backup: %s", primary)
	}

	backup := filepath.Join(dir, backupFile)
	if doc, rerr := readDocument(backup); rerr == nil {
		if logger != nil {
			logger.Warnf("recovered document from backup: %s", backup)
		}
		return doc, true
	} else if rerr.kind != readErrNotFound && logger != nil {
		logger.WithError(rerr.err).Warnf("backup document unusable: %s", backup)
	}

	return domain.NewDocument(), true
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
