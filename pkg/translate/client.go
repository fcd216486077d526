package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
)

const (
	defaultBaseURL = "https://translation.googleapis.com/language/translate/v2"
	defaultTarget  = "en"
)

// Client translates text into the configured target language.
type Client interface {
	Translate(ctx context.Context, req Request) (*Result, error)
}

// Request is one translation request. Source may be empty, in which case
// the service detects the language.
type Request struct {
	Text   string
	Source string
	Target string
}

// Result is a completed translation.
type Result struct {
	Text string
	// DetectedSource is the normalized BCP 47 tag of the detected source
	// language, empty when the source was given explicitly.
	DetectedSource string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithTarget overrides the default target language.
func WithTarget(target string) Option {
	return func(c *httpClient) {
		c.target = target
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	target  string
	http    *http.Client
}

// NewClient creates a translation client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		target:  defaultTarget,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type wireRequest struct {
	Q      string `json:"q"`
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type wireResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

func (c *httpClient) Translate(ctx context.Context, req Request) (*Result, error) {
	target := req.Target
	if target == "" {
		target = c.target
	}

	body, err := json.Marshal(wireRequest{
		Q:      req.Text,
		Source: req.Source,
		Target: target,
		Format: "text",
	})
	if err != nil {
		return nil, eris.Wrap(err, "translate: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "translate: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "translate: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "translate: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("translate: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result wireResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "translate: unmarshal response")
	}
	if len(result.Data.Translations) == 0 {
		return nil, eris.New("translate: empty response")
	}

	tr := result.Data.Translations[0]
	return &Result{
		Text:           tr.TranslatedText,
		DetectedSource: NormalizeTag(tr.DetectedSourceLanguage),
	}, nil
}

// NormalizeTag canonicalizes a language tag reported by the service.
// Unparseable tags pass through unchanged rather than being dropped.
func NormalizeTag(tag string) string {
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	return parsed.String()
}

// IsTarget reports whether tag already names the target language, so the
// caller can skip translation entirely.
func IsTarget(tag, target string) bool {
	if tag == "" {
		return false
	}
	a, errA := language.Parse(tag)
	b, errB := language.Parse(target)
	if errA != nil || errB != nil {
		return tag == target
	}
	baseA, confA := a.Base()
	baseB, confB := b.Base()
	if confA == language.No || confB == language.No {
		return false
	}
	return baseA == baseB
}
