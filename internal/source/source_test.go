package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover_FlatDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "b.md"), "b")
	writeFile(t, filepath.Join(dir, "c.pdf"), "c")
	writeFile(t, filepath.Join(dir, "sub", "d.txt"), "d")

	files, err := Discover(dir, DiscoverOptions{Extensions: []string{".txt", ".md"}})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", filepath.Base(files[0]))
	assert.Equal(t, "b.md", filepath.Base(files[1]))
}

func TestDiscover_Recursive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "sub", "d.txt"), "d")
	writeFile(t, filepath.Join(dir, ".hidden", "e.txt"), "e")

	files, err := Discover(dir, DiscoverOptions{Recursive: true, Extensions: []string{".txt"}})
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestDiscover_ExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.txt"), "k")
	writeFile(t, filepath.Join(dir, "draft-notes.txt"), "d")

	files, err := Discover(dir, DiscoverOptions{
		Extensions:      []string{".txt"},
		ExcludePatterns: []string{"draft-*"},
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "keep.txt", filepath.Base(files[0]))
}

func TestDiscover_SingleFileBypassesExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.rst")
	writeFile(t, path, "x")

	files, err := Discover(path, DiscoverOptions{Extensions: []string{".txt"}})
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestStat_ReportsMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "hello")

	fi, err := Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "doc.md", fi.Filename)
	assert.Equal(t, "md", fi.FileType)
	assert.Equal(t, int64(5), fi.Size)
	assert.False(t, fi.ModTime.IsZero())
}

func TestStat_LowercasesFileType(t *testing.T) {
	// Discovery matches extensions case-insensitively, so the reported
	// type must be normalized for downstream format checks.
	dir := t.TempDir()
	path := filepath.Join(dir, "NOTES.MD")
	writeFile(t, path, "hello")

	fi, err := Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "md", fi.FileType)
}

func TestStat_MissingFileIsExtractionError(t *testing.T) {
	_, err := Stat(filepath.Join(t.TempDir(), "gone.txt"))
	var xerr *ExtractionError
	require.True(t, errors.As(err, &xerr))
}

func TestTextExtractor_HashesRawBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	writeFile(t, path, "some content")

	ex, err := NewTextExtractor().Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "some content", ex.Content)
	assert.Len(t, ex.Hash, 64)

	// Same bytes, same fingerprint.
	ex2, err := NewTextExtractor().Extract(path)
	require.NoError(t, err)
	assert.Equal(t, ex.Hash, ex2.Hash)
}

func TestTextExtractor_UnreadableFile(t *testing.T) {
	_, err := NewTextExtractor().Extract(filepath.Join(t.TempDir(), "missing.txt"))
	var xerr *ExtractionError
	require.True(t, errors.As(err, &xerr))
	assert.NotEmpty(t, xerr.Path)
}
