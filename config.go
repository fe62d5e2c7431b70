package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".article-writer"

// Embedded configuration files
//
//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/writer-prompt.md
var defaultWriterPrompt string

// GeneratorSettings configures the Gemini generateContent call
type GeneratorSettings struct {
	APIURL          string        `yaml:"api_url"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	Temperature     float64       `yaml:"temperature"`
	TopK            int           `yaml:"top_k"`
	TopP            float64       `yaml:"top_p"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
}

// PublisherSettings configures the GitHub contents upload
type PublisherSettings struct {
	APIURL     string        `yaml:"api_url"`
	Repository string        `yaml:"repository"`
	Branch     string        `yaml:"branch"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	Author      string            `yaml:"author"`
	SiteURL     string            `yaml:"site_url"`
	ContentPath string            `yaml:"content_path"`
	Generator   GeneratorSettings `yaml:"generator"`
	Publisher   PublisherSettings `yaml:"publisher"`
	Categories  []Category        `yaml:"categories"`
	// WriterPrompt is the text/template used to build the generation prompt.
	// It is not part of the YAML file.
	WriterPrompt string `yaml:"-"`
}

// ConfigError is a problem the user has to fix before anything is sent over the network
type ConfigError struct {
	Message string
	Hint    string
}

func (e *ConfigError) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + "\n   " + e.Hint
}

// Credentials holds the secrets read from the environment
type Credentials struct {
	GeminiAPIKey string
	GitHubToken  string
}

// CredentialsFromEnv reads GEMINI_API_KEY and GITHUB_TOKEN
func CredentialsFromEnv() Credentials {
	return Credentials{
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
	}
}

// Validate checks that the credentials needed for the given run are present.
// The GitHub token is only needed when the article is actually uploaded.
func (c Credentials) Validate(opts Options) error {
	if c.GeminiAPIKey == "" {
		return missingEnv("GEMINI_API_KEY")
	}
	if !opts.LocalOnly && !opts.DryRun && c.GitHubToken == "" {
		return missingEnv("GITHUB_TOKEN")
	}
	return nil
}

func missingEnv(key string) error {
	return &ConfigError{
		Message: fmt.Sprintf("environment variable %s is not set", key),
		Hint:    fmt.Sprintf("export %s=your-api-key", key),
	}
}

// LoadSettings parses the embedded defaults, or the file at path when path is set.
// An explicit settings file must exist.
func LoadSettings(path string) (*Settings, error) {
	data := []byte(defaultSettings)
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading settings file %s: %w", path, err)
		}
	}

	settings, err := parseSettings(data)
	if err != nil {
		return nil, err
	}

	// A writer-prompt.md next to an explicit settings file replaces the embedded prompt
	settings.WriterPrompt = defaultWriterPrompt
	if path != "" {
		promptPath := filepath.Join(filepath.Dir(path), "writer-prompt.md")
		if content, err := os.ReadFile(promptPath); err == nil {
			settings.WriterPrompt = string(content)
		}
	}

	return settings, nil
}

func parseSettings(data []byte) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	settings.applyDefaults()
	if err := settings.validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Settings) applyDefaults() {
	if s.Generator.Timeout <= 0 {
		s.Generator.Timeout = 120 * time.Second
	}
	if s.Generator.MaxRetries <= 0 {
		s.Generator.MaxRetries = 3
	}
	// zero means unset for the sampling values
	if s.Generator.Temperature <= 0 {
		s.Generator.Temperature = 0.7
	}
	if s.Generator.TopK <= 0 {
		s.Generator.TopK = 40
	}
	if s.Generator.TopP <= 0 {
		s.Generator.TopP = 0.95
	}
	if s.Generator.MaxOutputTokens <= 0 {
		s.Generator.MaxOutputTokens = 4096
	}
	if s.Publisher.Timeout <= 0 {
		s.Publisher.Timeout = 30 * time.Second
	}
	if s.Publisher.Branch == "" {
		s.Publisher.Branch = "main"
	}
	s.SiteURL = strings.TrimSuffix(s.SiteURL, "/")
	s.Generator.APIURL = strings.TrimSuffix(s.Generator.APIURL, "/")
	s.Publisher.APIURL = strings.TrimSuffix(s.Publisher.APIURL, "/")
}

func (s *Settings) validate() error {
	var missing []string
	if s.Author == "" {
		missing = append(missing, "author")
	}
	if s.SiteURL == "" {
		missing = append(missing, "site_url")
	}
	if s.ContentPath == "" {
		missing = append(missing, "content_path")
	}
	if s.Generator.APIURL == "" {
		missing = append(missing, "generator.api_url")
	}
	if s.Generator.Model == "" {
		missing = append(missing, "generator.model")
	}
	if s.Publisher.APIURL == "" {
		missing = append(missing, "publisher.api_url")
	}
	if len(missing) > 0 {
		return &ConfigError{Message: "settings missing required fields: " + strings.Join(missing, ", ")}
	}

	owner, repo, ok := strings.Cut(s.Publisher.Repository, "/")
	if !ok || owner == "" || repo == "" {
		return &ConfigError{
			Message: fmt.Sprintf("publisher.repository %q must be in owner/name form", s.Publisher.Repository),
		}
	}
	return nil
}

// ensureConfigExists writes the default settings and prompt into dir, keeping existing files
func ensureConfigExists(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{"settings.yaml", defaultSettings},
		{"writer-prompt.md", defaultWriterPrompt},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		_, err := os.Stat(path)
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return written, fmt.Errorf("checking %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}

	return written, nil
}
