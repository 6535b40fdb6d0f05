package system_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/journal"
	"github.com/opsai/opsai/pkg/worker"
	"github.com/opsai/opsai/pkg/worker/system"
)

func newTestWorker(t *testing.T) *system.Worker {
	t.Helper()
	j, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	return system.New(j)
}

func TestListFilesReportsEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	w := newTestWorker(t)
	result := w.Execute(context.Background(), "list_files", worker.Args{"path": worker.String(dir)})
	require.True(t, result.Success)
	assert.Len(t, result.Data, 2)
}

func TestWriteFileJournalsAndWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	w := newTestWorker(t)
	result := w.Execute(context.Background(), "write_file", worker.Args{
		"path":    worker.String(path),
		"content": worker.String("hello world"),
	})
	require.True(t, result.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestWriteFileDryRunDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	w := newTestWorker(t)
	result := w.Execute(context.Background(), "write_file", worker.Args{
		"path":    worker.String(path),
		"content": worker.String("hello"),
		"dry_run": worker.Bool(true),
	})
	require.True(t, result.Success)
	assert.True(t, result.Simulated)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteFilesAcceptsSingularPathFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w := newTestWorker(t)
	result := w.Execute(context.Background(), "delete_files", worker.Args{
		"path": worker.String(path),
	})
	require.True(t, result.Success)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteFilesEmptyListErrors(t *testing.T) {
	w := newTestWorker(t)
	result := w.Execute(context.Background(), "delete_files", worker.Args{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "files list cannot be empty")
}

func TestReplaceInFileNoMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	w := newTestWorker(t)
	result := w.Execute(context.Background(), "replace_in_file", worker.Args{
		"path": worker.String(path),
		"old":  worker.String("nowhere"),
		"new":  worker.String("x"),
	})
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "No matches found")
}

func TestReplaceInFileReplacesAndJournals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	w := newTestWorker(t)
	result := w.Execute(context.Background(), "replace_in_file", worker.Args{
		"path": worker.String(path),
		"old":  worker.String("world"),
		"new":  worker.String("there"),
	})
	require.True(t, result.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(data))
}

func TestUnknownAction(t *testing.T) {
	w := newTestWorker(t)
	result := w.Execute(context.Background(), "bogus", worker.Args{})
	assert.Contains(t, result.Message, "Unknown action")
}
