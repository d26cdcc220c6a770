// Package reference loads the reference documents that ground discovery
// prompts and selects the passages relevant to a session.
package reference

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

// Extensions of files the library reads.
var Extensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".html":     true,
	".htm":      true,
}

// maxChunkChars bounds a single chunk before it is split at paragraph breaks.
const maxChunkChars = 1200

// Document is one loaded reference file, as markdown.
type Document struct {
	Path  string
	Title string
	Text  string
}

// Chunk is a passage of a document.
type Chunk struct {
	Source  string
	Heading string
	Text    string
}

// Library resolves glob patterns to documents and caches what it loaded
// until Invalidate is called.
type Library struct {
	patterns  []string
	maxChars  int
	converter *htmlConverter
	logger    *slog.Logger

	mu     sync.RWMutex
	loaded bool
	docs   []Document
	chunks []Chunk
}

// NewLibrary creates a library over doublestar patterns such as
// "docs/**/*.md". maxChars <= 0 disables the context size limit.
func NewLibrary(patterns []string, maxChars int, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	clean := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	return &Library{
		patterns:  clean,
		maxChars:  maxChars,
		converter: newHTMLConverter(),
		logger:    logger,
	}
}

// Patterns returns the configured glob patterns.
func (l *Library) Patterns() []string {
	out := make([]string, len(l.patterns))
	copy(out, l.patterns)
	return out
}

// Invalidate drops the cache; the next read reloads from disk.
func (l *Library) Invalidate() {
	l.mu.Lock()
	l.loaded = false
	l.docs = nil
	l.chunks = nil
	l.mu.Unlock()
	l.logger.Info("Reference library invalidated")
}

// Documents returns the loaded documents, loading them on first use.
func (l *Library) Documents(ctx context.Context) ([]Document, error) {
	if err := l.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Document, len(l.docs))
	copy(out, l.docs)
	return out, nil
}

// Text returns every document concatenated, bounded by the size limit.
func (l *Library) Text(ctx context.Context) (string, error) {
	if err := l.ensureLoaded(ctx); err != nil {
		return "", err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	parts := make([]string, 0, len(l.docs))
	for _, d := range l.docs {
		parts = append(parts, d.Text)
	}
	return truncate(strings.Join(parts, "\n\n"), l.maxChars), nil
}

// Context returns the passages most relevant to choices, best first, up to
// the size limit. With no overlap at all, passages keep document order.
func (l *Library) Context(ctx context.Context, choices domain.UserChoices) (string, error) {
	if err := l.ensureLoaded(ctx); err != nil {
		return "", err
	}
	l.mu.RLock()
	chunks := make([]Chunk, len(l.chunks))
	copy(chunks, l.chunks)
	l.mu.RUnlock()

	return Select(chunks, terms(choices.Values()), l.maxChars), nil
}

func (l *Library) ensureLoaded(ctx context.Context) error {
	l.mu.RLock()
	loaded := l.loaded
	l.mu.RUnlock()
	if loaded {
		return nil
	}

	docs, err := l.load(ctx)
	if err != nil {
		return err
	}
	var chunks []Chunk
	for _, d := range docs {
		chunks = append(chunks, Split(d)...)
	}

	l.mu.Lock()
	l.docs = docs
	l.chunks = chunks
	l.loaded = true
	l.mu.Unlock()

	l.logger.Info("Reference library loaded", "documents", len(docs), "chunks", len(chunks))
	return nil
}

func (l *Library) load(ctx context.Context) ([]Document, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range l.patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !Extensions[strings.ToLower(filepath.Ext(m))] || seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := l.read(path)
		if err != nil {
			l.logger.Warn("Skipping unreadable reference document", "path", path, "error", err)
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *Library) read(path string) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, err
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("%s is a directory", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		title, markdown, err := l.converter.Convert(content)
		if err != nil {
			return Document{}, fmt.Errorf("convert html: %w", err)
		}
		return Document{Path: path, Title: title, Text: markdown}, nil
	default:
		text := strings.ReplaceAll(string(content), "\r\n", "\n")
		return Document{Path: path, Title: markdownTitle(text), Text: strings.TrimSpace(text)}, nil
	}
}

func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// Split breaks a document into chunks at headings, and long sections
// further at paragraph breaks.
func Split(doc Document) []Chunk {
	source := filepath.Base(doc.Path)
	var chunks []Chunk
	heading := doc.Title
	var section []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(section, "\n"))
		section = section[:0]
		if text == "" {
			return
		}
		for _, part := range splitParagraphs(text, maxChunkChars) {
			chunks = append(chunks, Chunk{Source: source, Heading: heading, Text: part})
		}
	}

	for _, line := range strings.Split(doc.Text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		}
		section = append(section, line)
	}
	flush()
	return chunks
}

func splitParagraphs(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var out []string
	var cur strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// Select ranks chunks by how many query terms they contain and joins the
// best ones until maxChars would be exceeded.
func Select(chunks []Chunk, query []string, maxChars int) string {
	type scored struct {
		chunk Chunk
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		ranked[i] = scored{chunk: c, score: score(c, query)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	var b strings.Builder
	for _, r := range ranked {
		text := r.chunk.Text
		sep := 0
		if b.Len() > 0 {
			sep = 2
		}
		if maxChars > 0 && b.Len()+sep+len(text) > maxChars {
			if b.Len() == 0 {
				b.WriteString(truncate(text, maxChars))
			}
			break
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String()
}

func score(c Chunk, query []string) int {
	if len(query) == 0 {
		return 0
	}
	words := make(map[string]bool)
	for _, w := range terms([]string{c.Heading, c.Text}) {
		words[w] = true
	}
	n := 0
	for _, q := range query {
		if words[q] {
			n++
		}
	}
	return n
}

// terms lowercases values and splits them into words of three or more letters.
func terms(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, w := range strings.FieldsFunc(strings.ToLower(v), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		}) {
			if len(w) < 3 || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
