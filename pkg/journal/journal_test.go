package journal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/journal"
)

func TestSnapshotAndRollbackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(filepath.Join(dir, "journal"))
	require.NoError(t, err)

	target := filepath.Join(dir, "a.env")
	require.NoError(t, os.WriteFile(target, []byte("X=1"), 0o644))

	rec, err := j.SnapshotFile(target, "modify a.env")
	require.NoError(t, err)
	assert.True(t, rec.RollbackAvailable)

	require.NoError(t, os.WriteFile(target, []byte("X=2"), 0o644))

	require.NoError(t, j.Rollback(rec.ChangeID))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "X=1", string(data))

	err = j.Rollback(rec.ChangeID)
	assert.ErrorIs(t, err, journal.ErrAlreadyRolledBack)
}

func TestSnapshotNewFileIsFileWrite(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(filepath.Join(dir, "journal"))
	require.NoError(t, err)

	target := filepath.Join(dir, "new.txt")
	rec, err := j.SnapshotFile(target, "create new.txt")
	require.NoError(t, err)
	assert.Equal(t, journal.TypeFileWrite, rec.ChangeType)
	assert.False(t, rec.RollbackAvailable)

	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))
	require.NoError(t, j.Rollback(rec.ChangeID))

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestRollbackUnknownRecord(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(filepath.Join(dir, "journal"))
	require.NoError(t, err)

	err = j.Rollback("chg-9999")
	assert.ErrorIs(t, err, journal.ErrRecordNotFound)
}

func TestCommandRecordNotRollbackable(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(filepath.Join(dir, "journal"))
	require.NoError(t, err)

	rec, err := j.RecordCommand("rm -rf /tmp/x", "cleanup")
	require.NoError(t, err)
	assert.False(t, rec.RollbackAvailable)

	err = j.Rollback(rec.ChangeID)
	assert.ErrorIs(t, err, journal.ErrRollbackUnsupported)
}

func TestEvictionRemovesBackupBlob(t *testing.T) {
	dir := t.TempDir()
	jDir := filepath.Join(dir, "journal")
	j, err := journal.Open(jDir)
	require.NoError(t, err)

	// Take 101 snapshots against the default bound of 100 so the first
	// record, and its backup blob, is evicted.
	var firstBackup string
	for i := 0; i < 101; i++ {
		target := filepath.Join(dir, "f.txt")
		require.NoError(t, os.WriteFile(target, []byte("v"), 0o644))
		rec, err := j.SnapshotFile(target, "iter")
		require.NoError(t, err)
		if i == 0 {
			firstBackup = rec.BackupPath
		}
	}

	records := j.List()
	assert.LessOrEqual(t, len(records), 100)
	if firstBackup != "" {
		_, err := os.Stat(firstBackup)
		assert.True(t, os.IsNotExist(err), "evicted backup blob should be deleted")
	}
}

func TestOpenOverCorruptIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte("{not json"), 0o644))

	j, err := journal.Open(dir)
	require.NoError(t, err)
	assert.Empty(t, j.List())
}
