package downloadmodule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieStoreRotatesAcrossAttempts(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "c.txt"),
	}
	for _, p := range paths {
		require.NoError(t, os.WriteFile(p, []byte("#"), 0o600))
	}

	store := NewCookieStore(paths)
	assert.Equal(t, paths[0], store.FileFor(1))
	assert.Equal(t, paths[1], store.FileFor(2))
	assert.Equal(t, paths[2], store.FileFor(3))
	assert.Equal(t, paths[0], store.FileFor(4), "rotation wraps around")
}

func TestCookieStoreSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(existing, []byte("#"), 0o600))

	store := NewCookieStore([]string{filepath.Join(dir, "missing.txt"), existing})
	assert.Equal(t, 1, store.Available())
	assert.Equal(t, existing, store.FileFor(1))
	assert.Equal(t, existing, store.FileFor(2))
}

func TestCookieStoreEmpty(t *testing.T) {
	store := NewCookieStore(nil)
	assert.Zero(t, store.Available())
	assert.Empty(t, store.FileFor(1))
}

func TestCookieStoreWatchPicksUpRefreshedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.txt")

	store := NewCookieStore([]string{path})
	require.NoError(t, store.Watch())
	defer store.Close()

	assert.Zero(t, store.Available())

	require.NoError(t, os.WriteFile(path, []byte("# refreshed"), 0o600))

	assert.Eventually(t, func() bool {
		return store.Available() == 1
	}, 2*time.Second, 20*time.Millisecond, "operator-dropped cookie file becomes available without restart")
}
