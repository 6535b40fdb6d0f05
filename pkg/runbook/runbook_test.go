package runbook_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/runbook"
)

func writeRunbook(t *testing.T, dir, filename, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
}

func TestLoadMissingDirReturnsEmptyLibrary(t *testing.T) {
	lib, err := runbook.Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, lib.List())
	assert.Empty(t, lib.Match("anything"))
}

func TestLoadSkipsUnparsableFilesAndDefaultsName(t *testing.T) {
	dir := t.TempDir()
	writeRunbook(t, dir, "disk-full.yaml", `
description: Disk space exhaustion
keywords: [disk, space, full]
steps:
  - description: Check usage
    command: df -h
    risk: safe
`)
	writeRunbook(t, dir, "broken.yaml", "not: valid: yaml: [")
	writeRunbook(t, dir, "notes.txt", "ignored, wrong extension")

	lib, err := runbook.Load(dir)
	require.NoError(t, err)

	all := lib.List()
	require.Len(t, all, 1)
	assert.Equal(t, "disk-full", all[0].Name)
	assert.Len(t, all[0].Steps, 1)
}

func TestMatchScoresByKeywordOverlap(t *testing.T) {
	dir := t.TempDir()
	writeRunbook(t, dir, "disk.yaml", `
name: disk-full
description: Disk space exhaustion
keywords: [disk, space]
steps:
  - description: Check usage
    command: df -h
`)
	writeRunbook(t, dir, "memory.yaml", `
name: oom
description: Out of memory
keywords: [memory, oom, kill]
steps:
  - description: Check dmesg
    command: dmesg | tail
`)
	writeRunbook(t, dir, "network.yaml", `
name: net
description: Network issues
keywords: [network, dns]
steps:
  - description: Check connectivity
    command: ping -c1 8.8.8.8
`)

	lib, err := runbook.Load(dir)
	require.NoError(t, err)

	matches := lib.Match("the server is out of memory and getting oom killed")
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Title, "oom")
	assert.Contains(t, matches[0].Body, "Command: `dmesg | tail`")

	none := lib.Match("unrelated request about something else entirely")
	assert.Empty(t, none)
}

func TestGetReturnsFalseForUnknownName(t *testing.T) {
	lib, err := runbook.Load(t.TempDir())
	require.NoError(t, err)
	_, ok := lib.Get("nope")
	assert.False(t, ok)
}
