package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWalker_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "chapters/owasp-top-10.md", "# OWASP")
	writeFile(t, root, "chapters/xss.md", "# XSS")
	writeFile(t, root, "pages/about.md", "# About")
	writeFile(t, root, "drafts/wip.md", "# WIP")
	writeFile(t, root, "manifest.json", "[]")

	w := NewWalker([]string{"**/*.md"}, []string{"drafts/**"})
	files, err := w.Walk(root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		rel = append(rel, f.RelPath)
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Positive(t, f.Size)
	}
	assert.Equal(t, []string{"chapters/owasp-top-10.md", "chapters/xss.md", "pages/about.md"}, rel)
}

func TestWalker_DefaultIncludesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "a")
	writeFile(t, root, "b/c.txt", "c")

	files, err := NewWalker(nil, nil).Walk(root)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestWalker_Matches(t *testing.T) {
	w := NewWalker([]string{"**/*.md"}, []string{"**/drafts/**"})

	assert.True(t, w.Matches("chapters/sqli.md"))
	assert.False(t, w.Matches("chapters/sqli.txt"))
	assert.False(t, w.Matches("book/drafts/wip.md"))
}
