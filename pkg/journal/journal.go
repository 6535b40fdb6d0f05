// Package journal implements the change journal: an append-only record of
// destructive side effects with pre-mutation file snapshots and rollback,
// bounded by a FIFO-evicted record count (spec §4.10). Grounded on
// original_source/src/context/change_tracker.py; re-expressed in English
// and in the teacher's mutex-guarded-singleton idiom
// (pkg/session/manager.go).
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ChangeType classifies one journaled effect.
type ChangeType string

const (
	TypeFileWrite  ChangeType = "file_write"
	TypeFileModify ChangeType = "file_modify"
	TypeFileDelete ChangeType = "file_delete"
	TypeCommand    ChangeType = "command"
)

// Record is one journaled effect (spec §3's ChangeRecord).
type Record struct {
	ChangeID          string     `json:"change_id"`
	ChangeType        ChangeType `json:"change_type"`
	Timestamp         time.Time  `json:"timestamp"`
	Description       string     `json:"description"`
	FilePath          string     `json:"file_path,omitempty"`
	BackupPath        string     `json:"backup_path,omitempty"`
	Command           string     `json:"command,omitempty"`
	RollbackAvailable bool       `json:"rollback_available"`
	RolledBack        bool       `json:"rolled_back"`
}

var (
	// ErrRecordNotFound is returned when rolling back an unknown change id.
	ErrRecordNotFound = errors.New("change record not found")
	// ErrAlreadyRolledBack is returned rolling back a record twice.
	ErrAlreadyRolledBack = errors.New("change already rolled back")
	// ErrRollbackUnsupported is returned rolling back a non-rollbackable record.
	ErrRollbackUnsupported = errors.New("change does not support rollback")
)

const defaultMaxRecords = 100

// Journal is a process-wide singleton guarding an append-only record list
// and a directory of backup blobs. All mutation serializes through its
// public API; readers see committed state only (spec §5).
type Journal struct {
	mu         sync.Mutex
	basePath   string // directory holding index.json and backups/
	maxRecords int
	records    []Record
	nextID     int
}

// Open loads (or initializes) a journal rooted at basePath. A corrupt
// index.json starts the journal empty rather than failing (spec §8
// boundary behavior) — initialization-time I/O errors other than
// corruption still propagate, per spec §7's "Fatal" category.
func Open(basePath string) (*Journal, error) {
	j := &Journal{basePath: basePath, maxRecords: defaultMaxRecords, nextID: 1}
	if err := os.MkdirAll(filepath.Join(basePath, "backups"), 0o755); err != nil {
		return nil, fmt.Errorf("journal: creating backup dir: %w", err)
	}

	data, err := os.ReadFile(j.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: reading index: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		// Corrupt index: start empty, not fatal.
		return j, nil
	}
	j.records = records
	for _, r := range records {
		if id := idNumber(r.ChangeID); id >= j.nextID {
			j.nextID = id + 1
		}
	}
	return j, nil
}

func idNumber(changeID string) int {
	var n int
	_, _ = fmt.Sscanf(changeID, "chg-%d", &n)
	return n
}

func (j *Journal) indexPath() string {
	return filepath.Join(j.basePath, "index.json")
}

func (j *Journal) backupPath(changeID string) string {
	return filepath.Join(j.basePath, "backups", changeID)
}

// persist rewrites the index document as a whole (spec §4.10: "the index is
// rewritten as a whole document on every change"). Caller must hold j.mu.
func (j *Journal) persist() error {
	data, err := json.MarshalIndent(j.records, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal index: %w", err)
	}
	return os.WriteFile(j.indexPath(), data, 0o644)
}

func (j *Journal) newID() string {
	id := fmt.Sprintf("chg-%04d", j.nextID)
	j.nextID++
	return id
}

// SnapshotFile records the pre-mutation state of path. If the file exists
// it is copied to a backup blob and a rollbackable file_modify record is
// appended; if it does not exist, a non-rollbackable file_write record is
// appended (rollback for file_write means deleting the new file).
func (j *Journal) SnapshotFile(path, description string) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.newID()
	rec := Record{
		ChangeID:    id,
		Timestamp:   time.Now(),
		Description: description,
		FilePath:    path,
	}

	if _, err := os.Stat(path); err == nil {
		backup := j.backupPath(id)
		if err := copyFile(path, backup); err != nil {
			return Record{}, fmt.Errorf("journal: snapshot %s: %w", path, err)
		}
		rec.ChangeType = TypeFileModify
		rec.BackupPath = backup
		rec.RollbackAvailable = true
	} else {
		rec.ChangeType = TypeFileWrite
		rec.RollbackAvailable = false
	}

	j.append(rec)
	return rec, j.persist()
}

// RecordDelete copies path to a backup blob and appends a file_delete
// record. The caller is responsible for performing the actual deletion
// after this call returns successfully.
func (j *Journal) RecordDelete(path, description string) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.newID()
	backup := j.backupPath(id)
	if err := copyFile(path, backup); err != nil {
		return Record{}, fmt.Errorf("journal: backup before delete %s: %w", path, err)
	}

	rec := Record{
		ChangeID:          id,
		ChangeType:        TypeFileDelete,
		Timestamp:         time.Now(),
		Description:       description,
		FilePath:          path,
		BackupPath:        backup,
		RollbackAvailable: true,
	}
	j.append(rec)
	return rec, j.persist()
}

// RecordCommand appends a metadata-only record for an executed shell
// command. Commands are never rollbackable.
func (j *Journal) RecordCommand(command, description string) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := Record{
		ChangeID:    j.newID(),
		ChangeType:  TypeCommand,
		Timestamp:   time.Now(),
		Description: description,
		Command:     command,
	}
	j.append(rec)
	return rec, j.persist()
}

// append adds rec and enforces the FIFO eviction bound. Caller must hold j.mu.
func (j *Journal) append(rec Record) {
	j.records = append(j.records, rec)
	j.enforceLimit()
}

func (j *Journal) enforceLimit() {
	for len(j.records) > j.maxRecords {
		evicted := j.records[0]
		j.records = j.records[1:]
		if evicted.BackupPath != "" {
			_ = os.Remove(evicted.BackupPath)
		}
	}
}

// Rollback reverses the effect of change id. file_modify restores the
// backup over the target; file_delete restores the backup to the target
// path; file_write deletes the target (it was newly created). Commands are
// never rollbackable. Idempotent: a rolled-back record refuses a second
// rollback.
func (j *Journal) Rollback(changeID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	idx := -1
	for i, r := range j.records {
		if r.ChangeID == changeID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrRecordNotFound
	}
	rec := &j.records[idx]
	if rec.RolledBack {
		return ErrAlreadyRolledBack
	}
	if !rec.RollbackAvailable && rec.ChangeType != TypeFileWrite {
		return ErrRollbackUnsupported
	}

	var err error
	switch rec.ChangeType {
	case TypeFileModify, TypeFileDelete:
		err = copyFile(rec.BackupPath, rec.FilePath)
	case TypeFileWrite:
		err = os.Remove(rec.FilePath)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	default:
		return ErrRollbackUnsupported
	}
	if err != nil {
		return fmt.Errorf("journal: rollback %s: %w", changeID, err)
	}

	rec.RolledBack = true
	return j.persist()
}

// List returns all records, most-recent-first.
func (j *Journal) List() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Record, len(j.records))
	for i, r := range j.records {
		out[len(j.records)-1-i] = r
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
