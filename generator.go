package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	rateLimitBackoff = 30 * time.Second
	retryDelay       = 10 * time.Second
	codeFence        = "```"
)

// fenceInfo matches the language tag after an opening fence, e.g. "markdown" or "md"
var fenceInfo = regexp.MustCompile(`^[\w+.#-]*$`)

// Today is the publish date written into the frontmatter
func (r GenerationRequest) Today() string {
	return r.Date.Format("2006-01-02")
}

// TagsJSON renders the category tags as a JSON list for the frontmatter
func (r GenerationRequest) TagsJSON() string {
	tags := r.Category.Tags
	if tags == nil {
		tags = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tags); err != nil {
		return "[]"
	}
	return strings.TrimSpace(buf.String())
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig generationConfig  `json:"generationConfig"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiGenerator writes articles with the Gemini generateContent API
type GeminiGenerator struct {
	apiKey   string
	settings GeneratorSettings
	prompt   *template.Template
	client   *http.Client
	log      *logrus.Entry
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGeminiGenerator creates a generator using the prompt template and endpoint from settings
func NewGeminiGenerator(apiKey string, settings *Settings, log *logrus.Entry) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, missingEnv("GEMINI_API_KEY")
	}

	tmpl, err := template.New("writer-prompt").Option("missingkey=error").Parse(settings.WriterPrompt)
	if err != nil {
		return nil, fmt.Errorf("parsing writer prompt template: %w", err)
	}

	if log == nil {
		log = discardLogger()
	}

	return &GeminiGenerator{
		apiKey:   apiKey,
		settings: settings.Generator,
		prompt:   tmpl,
		client:   &http.Client{Timeout: settings.Generator.Timeout},
		log:      log,
		sleep:    sleepContext,
	}, nil
}

// BuildPrompt renders the writer prompt for the request
func (g *GeminiGenerator) BuildPrompt(req GenerationRequest) (string, error) {
	var buf bytes.Buffer
	if err := g.prompt.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("rendering writer prompt: %w", err)
	}
	return buf.String(), nil
}

// Generate returns the cleaned article text for the request.
// HTTP 429 waits 30s, 60s, 90s... and other failures wait 10s, both within the MaxRetries budget.
// A malformed response is returned immediately.
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	prompt, err := g.BuildPrompt(req)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Contents: []generateContent{{Parts: []generatePart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     g.settings.Temperature,
			TopK:            g.settings.TopK,
			TopP:            g.settings.TopP,
			MaxOutputTokens: g.settings.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling generation request: %w", err)
	}

	g.log.WithField("model", g.settings.Model).Info("→ Generating article...")

	maxRetries := g.settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		text, err := g.call(ctx, body)
		if err == nil {
			return CleanContent(text), nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
			wait := rateLimitBackoff * time.Duration(attempt+1)
			g.log.WithField("wait", wait).Warn("⏳ Rate limited, waiting before retry")
			if err := g.sleep(ctx, wait); err != nil {
				return "", err
			}
			continue
		}

		var respErr *ResponseError
		if errors.As(err, &respErr) {
			return "", err
		}

		if attempt < maxRetries-1 {
			g.log.WithError(err).Warnf("Request failed, retrying (%d/%d)", attempt+1, maxRetries)
			if err := g.sleep(ctx, retryDelay); err != nil {
				return "", err
			}
			continue
		}

		return "", fmt.Errorf("generation failed after %d attempts: %w", maxRetries, err)
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrRateLimited, maxRetries, lastErr)
}

// call performs one generateContent request and extracts the first candidate's text
func (g *GeminiGenerator) call(ctx context.Context, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.settings.APIURL, g.settings.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("key", g.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// the key is part of the query string, keep it out of error messages
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = endpoint
		}
		return "", err
	}
	defer resp.Body.Close()

	g.log.Debugf("Gemini response: status=%d", resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading generation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
		var apiErr googleErrorResponse
		if json.Unmarshal(data, &apiErr) == nil {
			httpErr.Message = apiErr.Error.Message
		}
		return "", httpErr
	}

	var result generateResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &ResponseError{Reason: fmt.Sprintf("decoding body: %v", err)}
	}
	if len(result.Candidates) == 0 {
		return "", &ResponseError{Reason: "no candidates"}
	}
	parts := result.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", &ResponseError{Reason: "first candidate has no parts"}
	}

	return parts[0].Text, nil
}

// CleanContent trims the model output and removes one surrounding markdown fence.
// Fences inside the body are left alone.
func CleanContent(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, codeFence) {
		return text
	}

	rest := text[len(codeFence):]
	line, after, found := strings.Cut(rest, "\n")
	if fenceInfo.MatchString(strings.TrimSpace(line)) {
		if found {
			rest = after
		} else {
			rest = ""
		}
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), codeFence)

	return strings.TrimSpace(rest)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting to retry: %w", ctx.Err())
	}
}
