package memory_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/memory"
)

func TestRememberAndRecall(t *testing.T) {
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	require.NoError(t, store.Remember("env.db", "postgres", memory.CategoryFact))

	v, ok := store.Recall("env.db")
	require.True(t, ok)
	assert.Equal(t, "postgres", v)

	entries := store.ListAll()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].HitCount)
}

func TestRecallMissingKey(t *testing.T) {
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	_, ok := store.Recall("nope")
	assert.False(t, ok)
}

func TestContextPromptRanking(t *testing.T) {
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	require.NoError(t, store.Remember("env.db", "postgres", memory.CategoryFact))
	for i := 0; i < 5; i++ {
		_, _ = store.Recall("env.db")
	}

	require.NoError(t, store.Remember("pref.editor", "vim", memory.CategoryPreference))

	require.NoError(t, store.Remember("note.port", "6380", memory.CategoryNote))

	prompt := store.GetContextPrompt(2)
	lines := 0
	for _, c := range prompt {
		if c == '\n' {
			lines++
		}
	}
	// header + 2 bullets = 3 newlines
	assert.Equal(t, 3, lines)
	assert.Contains(t, prompt, "postgres")
	assert.Contains(t, prompt, "6380")
	assert.NotContains(t, prompt, "vim")
}

func TestRememberPreservesHitCountOnUpdate(t *testing.T) {
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	require.NoError(t, store.Remember("k", "v1", memory.CategoryFact))
	_, _ = store.Recall("k")
	require.NoError(t, store.Remember("k", "v2", memory.CategoryFact))

	entries := store.ListAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "v2", entries[0].Value)
	assert.Equal(t, 1, entries[0].HitCount)
}

func TestEmptyStoreContextPrompt(t *testing.T) {
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)
	assert.Equal(t, "", store.GetContextPrompt(5))
}
