package main

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is one entry of the content rotation
type Category struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Tags   []string `yaml:"tags"`
	Prompt string   `yaml:"prompt"`
}

// GenerationRequest is the data rendered into the writer prompt
type GenerationRequest struct {
	Category Category
	Author   string
	Date     time.Time
}

// Article is the generated markdown document with its frontmatter
type Article struct {
	CategoryID  string
	Filename    string
	Title       string
	Content     string
	GeneratedAt time.Time
}

// PublishResult is the outcome of a run. URL is empty for local-only runs.
type PublishResult struct {
	LocalPath string
	URL       string
}

// Options are the per-run switches from the command line
type Options struct {
	Category  string
	DryRun    bool
	LocalOnly bool
	Filename  string
}

// ErrRateLimited is returned when the retry budget ran out and the last attempt got HTTP 429
var ErrRateLimited = errors.New("generation API rate limit exceeded")

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d for %s: %s", e.StatusCode, e.URL, e.Message)
}

// ResponseError means the generation API answered 2xx with a body we cannot use
type ResponseError struct {
	Reason string
}

func (e *ResponseError) Error() string {
	return "unexpected generation response: " + e.Reason
}

// InvalidCategoryError is returned for a category id outside the registry
type InvalidCategoryError struct {
	ID    string
	Valid []string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid category %q (valid categories: %s)", e.ID, strings.Join(e.Valid, ", "))
}

// PublishError wraps a failed upload. The local copy of the article is kept.
type PublishError struct {
	LocalPath string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing %s: %v", e.LocalPath, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
