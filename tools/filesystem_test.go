package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hapershtein/llamagent/config"
)

func openAccess() *config.FilesystemAccess {
	return &config.FilesystemAccess{}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadFile(t *testing.T) {
	path := writeTemp(t, "a.txt", "one\ntwo\nthree\n")
	tool := &ReadFileTool{fsAccess: openAccess()}

	out, err := tool.Execute(context.Background(), map[string]interface{}{"path": path})
	require.NoError(t, err)
	require.Equal(t, "   1: one\n   2: two\n   3: three", out)
}

func TestReadFileLineRange(t *testing.T) {
	path := writeTemp(t, "a.txt", "one\ntwo\nthree\nfour\n")
	tool := &ReadFileTool{fsAccess: openAccess()}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": path, "start_line": 2, "end_line": 3,
	})
	require.NoError(t, err)
	require.Equal(t, "   2: two\n   3: three", out)

	out, err = tool.Execute(context.Background(), map[string]interface{}{
		"path": path, "start_line": 10,
	})
	require.NoError(t, err)
	require.Equal(t, "(empty range)", out)
}

func TestReadFileMissing(t *testing.T) {
	tool := &ReadFileTool{fsAccess: openAccess()}
	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "nope.txt"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestReadFileHiddenPath(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secrets", "key.pem")
	require.NoError(t, os.MkdirAll(filepath.Dir(secret), 0755))
	require.NoError(t, os.WriteFile(secret, []byte("private"), 0644))

	tool := &ReadFileTool{fsAccess: &config.FilesystemAccess{Hidden: []string{"**/secrets/**"}}}
	_, err := tool.Execute(context.Background(), map[string]interface{}{"path": secret})
	require.Error(t, err)
	require.Contains(t, err.Error(), "hidden")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.txt")
	tool := &WriteFileTool{fsAccess: openAccess()}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": path, "content": "hello",
	})
	require.NoError(t, err)
	require.Contains(t, out, "Written 5 chars")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestWriteFileAppend(t *testing.T) {
	path := writeTemp(t, "log.txt", "first\n")
	tool := &WriteFileTool{fsAccess: openAccess()}

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": path, "content": "second\n", "append": true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(data))
}

func TestWriteFileReadOnlyPath(t *testing.T) {
	path := writeTemp(t, "locked.txt", "original")
	tool := &WriteFileTool{fsAccess: &config.FilesystemAccess{ReadOnly: []string{"**/locked.txt"}}}

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": path, "content": "tampered",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "read-only")
}

func TestEditFile(t *testing.T) {
	path := writeTemp(t, "code.go", "func old() {}\nfunc keep() {}\n")
	tool := &EditFileTool{fsAccess: openAccess()}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": path, "old_text": "func old()", "new_text": "func renamed()",
	})
	require.NoError(t, err)
	require.Contains(t, out, "Replaced 1 occurrence(s)")

	data, _ := os.ReadFile(path)
	require.Equal(t, "func renamed() {}\nfunc keep() {}\n", string(data))
}

func TestEditFileReplaceAll(t *testing.T) {
	path := writeTemp(t, "a.txt", "x x x")
	tool := &EditFileTool{fsAccess: openAccess()}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": path, "old_text": "x", "new_text": "y", "replace_all": true,
	})
	require.NoError(t, err)
	require.Contains(t, out, "Replaced 3 occurrence(s)")

	data, _ := os.ReadFile(path)
	require.Equal(t, "y y y", string(data))
}

func TestEditFileNotFound(t *testing.T) {
	path := writeTemp(t, "a.txt", "content")
	tool := &EditFileTool{fsAccess: openAccess()}

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": path, "old_text": "missing", "new_text": "x",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "old_text not found")
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0644))

	tool := &ListDirTool{fsAccess: openAccess()}
	out, err := tool.Execute(context.Background(), map[string]interface{}{"path": dir})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	// Directories come first.
	require.Equal(t, "[DIR]  sub/", lines[0])
	require.Contains(t, lines[1], "[FILE] file.txt")
	require.NotContains(t, out, ".hidden")

	out, err = tool.Execute(context.Background(), map[string]interface{}{
		"path": dir, "show_hidden": true,
	})
	require.NoError(t, err)
	require.Contains(t, out, ".hidden")
}

func TestFindFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "lib.go"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0644))

	tool := &FindFilesTool{fsAccess: openAccess()}
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "**/*.go", "root": dir,
	})
	require.NoError(t, err)
	require.Contains(t, out, "main.go")
	require.Contains(t, out, filepath.Join("pkg", "lib.go"))
	require.NotContains(t, out, "readme.md")

	out, err = tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "*.rs", "root": dir,
	})
	require.NoError(t, err)
	require.Contains(t, out, "No files matched")
}

func TestGrep(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"),
		[]byte("alpha\nbeta\ngamma\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"),
		[]byte("BETA\ndelta\n"), 0644))

	tool := &GrepTool{fsAccess: openAccess()}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "beta", "path": dir,
	})
	require.NoError(t, err)
	require.Contains(t, out, "a.txt:2> beta")
	require.NotContains(t, out, "BETA")

	out, err = tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "beta", "path": dir, "case_insensitive": true,
	})
	require.NoError(t, err)
	require.Contains(t, out, "beta")
	require.Contains(t, out, "BETA")

	out, err = tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "zeta", "path": dir,
	})
	require.NoError(t, err)
	require.Contains(t, out, "No matches")
}

func TestGrepContextLines(t *testing.T) {
	path := writeTemp(t, "ctx.txt", "one\ntwo\nthree\nfour\n")
	tool := &GrepTool{fsAccess: openAccess()}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "three", "path": path, "context_lines": 1,
	})
	require.NoError(t, err)
	require.Contains(t, out, ":2  two")
	require.Contains(t, out, ":3> three")
	require.Contains(t, out, ":4  four")
}
