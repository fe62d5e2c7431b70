package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// SaveLocal writes the article to root/contentPath/filename and returns the path
func SaveLocal(root, contentPath, filename, content string) (string, error) {
	filePath := filepath.Join(root, filepath.FromSlash(contentPath), filename)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("creating content directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", filePath, err)
	}

	return filePath, nil
}

// ArticleURL is the public address of a post on the site
func ArticleURL(siteURL, filename string) string {
	slug := strings.TrimSuffix(filename, path.Ext(filename))
	return fmt.Sprintf("%s/posts/%s/", strings.TrimSuffix(siteURL, "/"), url.PathEscape(slug))
}

type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
}

type githubErrorResponse struct {
	Message string `json:"message"`
}

// GitHubPublisher commits articles through the GitHub contents API
type GitHubPublisher struct {
	settings    PublisherSettings
	siteURL     string
	contentPath string
	client      *http.Client
	log         *logrus.Entry
}

// NewGitHubPublisher creates a publisher authenticating with token.
// The token may be empty when only dry runs are made.
func NewGitHubPublisher(token string, settings *Settings, log *logrus.Entry) *GitHubPublisher {
	client := &http.Client{Timeout: settings.Publisher.Timeout}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		client = oauth2.NewClient(context.Background(), src)
		client.Timeout = settings.Publisher.Timeout
	}

	if log == nil {
		log = discardLogger()
	}

	return &GitHubPublisher{
		settings:    settings.Publisher,
		siteURL:     settings.SiteURL,
		contentPath: strings.Trim(settings.ContentPath, "/"),
		client:      client,
		log:         log,
	}
}

// Publish uploads the article and returns its public URL.
// In dry-run mode nothing is sent and only the URL is computed.
func (p *GitHubPublisher) Publish(ctx context.Context, filename, content string, dryRun bool) (string, error) {
	repoPath := path.Join(p.contentPath, filename)
	articleURL := ArticleURL(p.siteURL, filename)

	if dryRun {
		p.log.WithField("path", repoPath).Info("🔍 [Dry Run] Would upload")
		return articleURL, nil
	}

	p.log.WithField("path", repoPath).Info("→ Uploading to GitHub...")

	body, err := json.Marshal(contentsRequest{
		Message: "Auto: 新增文章 " + filename,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  p.settings.Branch,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling upload request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", p.settings.APIURL, p.settings.Repository, escapePath(repoPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", repoPath, err)
	}
	defer resp.Body.Close()

	p.log.Debugf("GitHub response: status=%d", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr githubErrorResponse
		if json.Unmarshal(data, &apiErr) == nil {
			httpErr.Message = apiErr.Message
		}
		return "", httpErr
	}

	return articleURL, nil
}

// escapePath escapes each segment of a repository path so "#" and "?" stay in the file name
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
