package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models", "classification")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, FileExists(dir))
	require.NoError(t, EnsureDir(dir))
}

func TestWriteFile(t *testing.T) {
	assert.False(t, FileExists(filepath.Join(t.TempDir(), "missing.txt")))

	path := WriteFile(t, filepath.Join("nested", "labels.txt"), []byte("pizza\n"))
	assert.True(t, FileExists(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pizza\n", string(data))
}
