package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const previewLength = 500

// ArticleGenerator produces the markdown text of an article
type ArticleGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// ArticlePublisher uploads an article and returns its public URL
type ArticlePublisher interface {
	Publish(ctx context.Context, filename, content string, dryRun bool) (string, error)
}

// ArticleProcessor handles the main workflow
type ArticleProcessor struct {
	settings  *Settings
	registry  *Registry
	generator ArticleGenerator
	publisher ArticlePublisher
	root      string
	out       io.Writer
	log       *logrus.Entry
	now       func() time.Time
}

// NewArticleProcessor wires the workflow. root is the directory the content path is relative to.
func NewArticleProcessor(settings *Settings, registry *Registry, generator ArticleGenerator, publisher ArticlePublisher, root string, out io.Writer, log *logrus.Entry) *ArticleProcessor {
	if log == nil {
		log = discardLogger()
	}
	return &ArticleProcessor{
		settings:  settings,
		registry:  registry,
		generator: generator,
		publisher: publisher,
		root:      root,
		out:       out,
		log:       log,
		now:       time.Now,
	}
}

// Run generates one article, saves it and, unless local-only, publishes it.
// A publish failure returns *PublishError together with the result: the local file is kept.
func (ap *ArticleProcessor) Run(ctx context.Context, opts Options) (*PublishResult, error) {
	if opts.Filename != "" && (filepath.Base(opts.Filename) != opts.Filename || strings.ContainsAny(opts.Filename, `/\`)) {
		return nil, &ConfigError{
			Message: fmt.Sprintf("output %q must be a file name without directories", opts.Filename),
		}
	}

	now := ap.now()

	category, err := ap.registry.Select(opts.Category, now)
	if err != nil {
		return nil, err
	}
	ap.log.WithField("category", category.ID).Infof("📂 Category: %s", category.Name)

	content, err := ap.generator.Generate(ctx, GenerationRequest{
		Category: category,
		Author:   ap.settings.Author,
		Date:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("generating article: %w", err)
	}

	article := &Article{
		CategoryID:  category.ID,
		Filename:    opts.Filename,
		Title:       extractTitle(content),
		Content:     content,
		GeneratedAt: now,
	}
	if article.Filename == "" {
		article.Filename = generateFilename(category.ID, now)
	}
	ap.log.WithField("title", article.Title).Info("✓ Article generated")

	localPath, err := SaveLocal(ap.root, ap.settings.ContentPath, article.Filename, article.Content)
	if err != nil {
		return nil, fmt.Errorf("saving article: %w", err)
	}
	ap.log.Infof("💾 Saved to: %s", localPath)

	result := &PublishResult{LocalPath: localPath}

	var publishErr error
	if !opts.LocalOnly {
		articleURL, err := ap.publisher.Publish(ctx, article.Filename, article.Content, opts.DryRun)
		if err != nil {
			publishErr = &PublishError{LocalPath: localPath, Err: err}
			ap.log.WithError(err).Error("✗ Upload failed")
			ap.log.Warn("   The article is saved locally, you can commit and push it manually")
		} else {
			result.URL = articleURL
			ap.log.Infof("🌐 Article URL: %s", articleURL)
		}
	}

	ap.printPreview(article.Content, publishErr == nil)

	return result, publishErr
}

func (ap *ArticleProcessor) printPreview(content string, succeeded bool) {
	fmt.Fprintln(ap.out, strings.Repeat("=", 50))
	if succeeded {
		fmt.Fprintln(ap.out, "🎉 Done!")
	}
	fmt.Fprintf(ap.out, "\n📄 Preview (first %d characters):\n", previewLength)
	fmt.Fprintln(ap.out, strings.Repeat("-", 50))
	fmt.Fprintln(ap.out, preview(content, previewLength))
}

// preview returns the first n characters of content, with "..." when it was cut
func preview(content string, n int) string {
	if utf8.RuneCountInString(content) <= n {
		return content
	}
	runes := []rune(content)
	return string(runes[:n]) + "..."
}

// generateFilename builds {category}-{YYYYMMDD}-{hex unix seconds}.md
func generateFilename(categoryID string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%x.md", categoryID, now.Format("20060102"), now.Unix())
}

// extractTitle reads the title from the frontmatter. It returns "" when there is none.
func extractTitle(content string) string {
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return ""
	}
	block, _, ok := strings.Cut(rest, "\n---")
	if !ok {
		return ""
	}

	var meta struct {
		Title string `yaml:"title"`
	}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return ""
	}
	return strings.TrimSpace(meta.Title)
}
