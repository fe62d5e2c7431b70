package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	content  string
	err      error
	requests []GenerationRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.content, f.err
}

type publishCall struct {
	filename string
	content  string
	dryRun   bool
}

type fakePublisher struct {
	url   string
	err   error
	calls []publishCall
}

func (f *fakePublisher) Publish(ctx context.Context, filename, content string, dryRun bool) (string, error) {
	f.calls = append(f.calls, publishCall{filename, content, dryRun})
	return f.url, f.err
}

const sampleArticle = "---\ntitle: \"LINE Bot 實戰\"\ndescription: \"摘要\"\npublished: 2025-01-02\ntags: [\"LINE\"]\ncategory: \"dev\"\nauthor: \"蘇勃任\"\n---\n\n## 開始\n\n內容"

var fixedNow = time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC)

func newTestProcessor(t *testing.T, gen ArticleGenerator, pub ArticlePublisher) (*ArticleProcessor, *bytes.Buffer, string) {
	t.Helper()
	settings, err := LoadSettings("")
	require.NoError(t, err)
	registry, err := NewRegistry(settings.Categories)
	require.NoError(t, err)

	root := t.TempDir()
	out := &bytes.Buffer{}
	ap := NewArticleProcessor(settings, registry, gen, pub, root, out, nil)
	ap.now = func() time.Time { return fixedNow }
	return ap, out, root
}

func TestRunPublishes(t *testing.T) {
	gen := &fakeGenerator{content: sampleArticle}
	pub := &fakePublisher{url: "https://www.euptop.com/posts/dev-test/"}
	ap, out, root := newTestProcessor(t, gen, pub)

	result, err := ap.Run(context.Background(), Options{Category: "dev", Filename: "dev-test.md"})
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, "dev", gen.requests[0].Category.ID)
	assert.Equal(t, "蘇勃任", gen.requests[0].Author)
	assert.Equal(t, fixedNow, gen.requests[0].Date)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, publishCall{"dev-test.md", sampleArticle, false}, pub.calls[0])

	expectedPath := filepath.Join(root, "src", "content", "posts", "dev-test.md")
	assert.Equal(t, &PublishResult{LocalPath: expectedPath, URL: "https://www.euptop.com/posts/dev-test/"}, result)

	data, err := os.ReadFile(expectedPath)
	require.NoError(t, err)
	assert.Equal(t, sampleArticle, string(data))

	assert.Contains(t, out.String(), "## 開始")
	assert.Contains(t, out.String(), "Done!")
}

func TestRunGeneratedFilename(t *testing.T) {
	gen := &fakeGenerator{content: sampleArticle}
	pub := &fakePublisher{}
	ap, _, root := newTestProcessor(t, gen, pub)

	result, err := ap.Run(context.Background(), Options{LocalOnly: true})
	require.NoError(t, err)

	// 2025-01-02 is day 2, which rotates to "dt"
	want := "dt-20250102-67766aa8.md"
	assert.Equal(t, want, generateFilename("dt", fixedNow))
	assert.Equal(t, filepath.Join(root, "src", "content", "posts", want), result.LocalPath)
}

func TestRunInvalidCategory(t *testing.T) {
	gen := &fakeGenerator{content: sampleArticle}
	pub := &fakePublisher{}
	ap, _, root := newTestProcessor(t, gen, pub)

	_, err := ap.Run(context.Background(), Options{Category: "nope"})

	var categoryErr *InvalidCategoryError
	require.ErrorAs(t, err, &categoryErr)
	assert.Empty(t, gen.requests)
	assert.Empty(t, pub.calls)

	_, statErr := os.Stat(filepath.Join(root, "src"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRunRejectsFilenameWithDirectory(t *testing.T) {
	gen := &fakeGenerator{content: sampleArticle}
	ap, _, _ := newTestProcessor(t, gen, &fakePublisher{})

	for _, name := range []string{"../escape.md", "sub/post.md", `sub\post.md`} {
		_, err := ap.Run(context.Background(), Options{Filename: name, LocalOnly: true})
		var configErr *ConfigError
		assert.ErrorAs(t, err, &configErr, name)
	}
	assert.Empty(t, gen.requests)
}

func TestRunLocalOnly(t *testing.T) {
	gen := &fakeGenerator{content: sampleArticle}
	pub := &fakePublisher{url: "unused"}
	ap, _, _ := newTestProcessor(t, gen, pub)

	result, err := ap.Run(context.Background(), Options{Category: "ai", LocalOnly: true})
	require.NoError(t, err)

	assert.Empty(t, pub.calls)
	assert.Empty(t, result.URL)
	assert.FileExists(t, result.LocalPath)
}

func TestRunDryRunPassesFlag(t *testing.T) {
	gen := &fakeGenerator{content: sampleArticle}
	pub := &fakePublisher{url: "https://www.euptop.com/posts/x/"}
	ap, _, _ := newTestProcessor(t, gen, pub)

	_, err := ap.Run(context.Background(), Options{Category: "ai", DryRun: true, Filename: "x.md"})
	require.NoError(t, err)

	require.Len(t, pub.calls, 1)
	assert.True(t, pub.calls[0].dryRun)
}

func TestRunGenerationFailureWritesNothing(t *testing.T) {
	gen := &fakeGenerator{err: ErrRateLimited}
	pub := &fakePublisher{}
	ap, out, root := newTestProcessor(t, gen, pub)

	_, err := ap.Run(context.Background(), Options{Category: "odoo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var publishErr *PublishError
	assert.False(t, errors.As(err, &publishErr))
	assert.Empty(t, pub.calls)
	assert.Empty(t, out.String())

	_, statErr := os.Stat(filepath.Join(root, "src"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRunPublishFailureKeepsLocalFile(t *testing.T) {
	gen := &fakeGenerator{content: sampleArticle}
	pub := &fakePublisher{err: &HTTPError{StatusCode: 401, URL: "https://api.github.com/repos/x", Message: "Bad credentials"}}
	ap, out, root := newTestProcessor(t, gen, pub)

	result, err := ap.Run(context.Background(), Options{Category: "dev", Filename: "dev-test.md"})

	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)

	expectedPath := filepath.Join(root, "src", "content", "posts", "dev-test.md")
	assert.Equal(t, expectedPath, publishErr.LocalPath)
	require.NotNil(t, result)
	assert.Empty(t, result.URL)
	assert.FileExists(t, expectedPath)

	assert.Contains(t, out.String(), "Preview")
	assert.Contains(t, out.String(), "## 開始")
	assert.NotContains(t, out.String(), "Done!")
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		n        int
		expected string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"cut", "abcdef", 5, "abcde..."},
		{"multibyte counted as characters", "數位轉型策略", 4, "數位轉型..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, preview(tt.content, tt.n))
		})
	}

	long := strings.Repeat("字", 600)
	got := preview(long, previewLength)
	assert.Equal(t, strings.Repeat("字", 500)+"...", got)
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"quoted title", sampleArticle, "LINE Bot 實戰"},
		{"plain title", "---\ntitle: Hello\n---\nbody", "Hello"},
		{"no frontmatter", "# Title\nbody", ""},
		{"unterminated frontmatter", "---\ntitle: x\nbody", ""},
		{"broken yaml", "---\ntitle: [x\n---\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractTitle(tt.content))
		})
	}
}
