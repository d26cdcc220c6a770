package reference

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLibraryLoadsMarkdownAndHTML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "guides", "events.md"), "# Events\n\nRFQ events are created from templates.\n")
	writeFile(t, filepath.Join(dir, "guides", "nested", "award.html"),
		"<html><head><title>Award</title></head><body><nav>menu</nav><main><p>Awards go to <b>Energy</b> suppliers.</p></main></body></html>")
	writeFile(t, filepath.Join(dir, "guides", "ignored.pdf"), "binary")

	lib := NewLibrary([]string{filepath.Join(dir, "guides", "**", "*")}, 0, nil)
	docs, err := lib.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Events", docs[0].Title)
	assert.Equal(t, "Award", docs[1].Title)
	assert.Contains(t, docs[1].Text, "# Award")
	assert.Contains(t, docs[1].Text, "**Energy**")
	assert.NotContains(t, docs[1].Text, "menu")
}

func TestLibraryContextRanksByChoices(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "# Retail\n\nStore replenishment buying.\n\n# Energy\n\nLong-lead equipment sourcing for energy utilities.\n")

	lib := NewLibrary([]string{filepath.Join(dir, "*.md")}, 0, nil)
	got, err := lib.Context(context.Background(), domain.UserChoices{domain.ChoiceIndustry: "Energy"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "# Energy"), got)
	assert.Contains(t, got, "# Retail")
}

func TestLibraryContextRespectsMaxChars(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "# One\n\n"+strings.Repeat("x", 50)+"\n\n# Two\n\n"+strings.Repeat("y", 50))

	lib := NewLibrary([]string{filepath.Join(dir, "a.md")}, 70, nil)
	got, err := lib.Context(context.Background(), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), 70)
	assert.Contains(t, got, "# One")
	assert.NotContains(t, got, "# Two")
}

func TestLibraryInvalidateReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "first version")

	lib := NewLibrary([]string{filepath.Join(dir, "*.txt")}, 0, nil)
	text, err := lib.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first version", text)

	writeFile(t, path, "second version")
	text, err = lib.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first version", text)

	lib.Invalidate()
	text, err = lib.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second version", text)
}

func TestLibraryWithoutPatternsIsEmpty(t *testing.T) {
	lib := NewLibrary([]string{" ", ""}, 0, nil)
	got, err := lib.Context(context.Background(), domain.DefaultUserChoices())
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestSplitLongSections(t *testing.T) {
	para := strings.Repeat("word ", 200)
	doc := Document{Path: "/x/doc.md", Title: "Doc", Text: para + "\n\n" + para}
	chunks := Split(doc)
	require.Len(t, chunks, 2)
	assert.Equal(t, "doc.md", chunks[0].Source)
	assert.Equal(t, "Doc", chunks[0].Heading)
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "ab", truncate("ab↳", 4))
	assert.Equal(t, "ab↳", truncate("ab↳", 5))
	assert.Equal(t, "abc", truncate("abc", 0))
}

func TestTruncateKeepsTextAfterInvalidBytes(t *testing.T) {
	doc := "Sourcing \xe9vent setup. " + strings.Repeat("RFQ approvals go to the category manager. ", 5)
	got := truncate(doc, 100)
	assert.Len(t, got, 100)
	assert.True(t, strings.HasPrefix(doc, got))

	assert.Len(t, truncate("ab\xe9\xe9\xe9\xe9", 4), 4)
}

func TestWatcherInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docs", "a.md")
	writeFile(t, path, "old")

	lib := NewLibrary([]string{filepath.Join(dir, "docs", "**", "*.md")}, 0, nil)
	_, err := lib.Text(context.Background())
	require.NoError(t, err)

	w, err := NewWatcher(lib, 20*time.Millisecond, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	writeFile(t, path, "new")
	require.Eventually(t, func() bool {
		if w.Reloads() == 0 {
			return false
		}
		text, err := lib.Text(context.Background())
		return err == nil && text == "new"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatchRoots(t *testing.T) {
	dir := t.TempDir()
	roots := watchRoots([]string{
		filepath.Join(dir, "docs", "**", "*.md"),
		filepath.Join(dir, "docs", "*.txt"),
	})
	assert.Equal(t, []string{filepath.Join(dir, "docs")}, roots)
}
