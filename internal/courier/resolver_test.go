package courier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
)

func newTestResolver(t *testing.T) (*FileResolver, string) {
	t.Helper()
	dir := t.TempDir()
	resolver := NewFileResolver(&common.UploadsConfig{Dir: dir, CleanupTTLHours: 24}, arbor.NewLogger())
	return resolver, dir
}

func TestResolveRelativePath(t *testing.T) {
	resolver, dir := newTestResolver(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "price.xlsx"), []byte("data"), 0o644))

	path, owned, err := resolver.Resolve(context.Background(), "price.xlsx")
	require.NoError(t, err)
	assert.False(t, owned)
	assert.Equal(t, filepath.Join(dir, "price.xlsx"), path)
}

func TestResolveRejectsPathEscape(t *testing.T) {
	resolver, _ := newTestResolver(t)

	for _, rel := range []string{"../etc/passwd", "a/../../b.csv", "../../secret.xlsx"} {
		_, _, err := resolver.Resolve(context.Background(), rel)
		require.Error(t, err, rel)
		assert.Contains(t, err.Error(), "escapes", rel)
	}
}

func TestResolveFileURLAndAbsolute(t *testing.T) {
	resolver, dir := newTestResolver(t)
	abs := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(abs, []byte("name,price"), 0o644))

	path, owned, err := resolver.Resolve(context.Background(), "file://"+abs)
	require.NoError(t, err)
	assert.False(t, owned)
	assert.Equal(t, abs, path)

	path, _, err = resolver.Resolve(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, abs, path)
}

func TestResolveMissingFile(t *testing.T) {
	resolver, _ := newTestResolver(t)
	_, _, err := resolver.Resolve(context.Background(), "missing.xlsx")
	assert.Error(t, err)
}

func TestResolveDownloadsRemoteFile(t *testing.T) {
	resolver, dir := newTestResolver(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("supplier,price"))
	}))
	defer server.Close()

	path, owned, err := resolver.Resolve(context.Background(), server.URL+"/feeds/catalog.csv")
	require.NoError(t, err)
	assert.True(t, owned)
	assert.True(t, strings.HasPrefix(path, dir))
	assert.True(t, strings.HasSuffix(path, "catalog.csv"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "supplier,price", string(data))

	// No partial temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), ".download-"))
	}
}

func TestResolveDownloadFailureStatus(t *testing.T) {
	resolver, dir := newTestResolver(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, _, err := resolver.Resolve(context.Background(), server.URL+"/feed.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanupRemovesAgedFilesOnly(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.csv")
	freshFile := filepath.Join(dir, "fresh.csv")
	busyFile := filepath.Join(dir, "busy.csv")
	for _, path := range []string{oldFile, freshFile, busyFile} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	timeAgo(t, oldFile, 48)
	timeAgo(t, busyFile, 48)

	task := NewCleanupTask(
		&common.UploadsConfig{Dir: dir, CleanupTTLHours: 24},
		func(path string) bool { return path == busyFile },
		arbor.NewLogger(),
	)

	removed, err := task.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, freshFile)
	assert.FileExists(t, busyFile)
}

func timeAgo(t *testing.T, path string, hours int) {
	t.Helper()
	past := time.Now().Add(-time.Duration(hours) * time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
}
