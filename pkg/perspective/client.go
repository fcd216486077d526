package perspective

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://commentanalyzer.googleapis.com/v1alpha1"

// Client scores text for toxic attributes via the Perspective API.
type Client interface {
	AnalyzeComment(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}

// Attribute names a scored model. THREAT drives the signal pipeline;
// the others are available to callers that want a fuller picture.
type Attribute string

const (
	AttributeThreat         Attribute = "THREAT"
	AttributeToxicity       Attribute = "TOXICITY"
	AttributeSevereToxicity Attribute = "SEVERE_TOXICITY"
	AttributeIdentityAttack Attribute = "IDENTITY_ATTACK"
)

// AnalyzeRequest is the request body for POST /comments:analyze.
type AnalyzeRequest struct {
	Comment             Comment                `json:"comment"`
	RequestedAttributes map[Attribute]struct{} `json:"requestedAttributes"`
	Languages           []string               `json:"languages,omitempty"`
	DoNotStore          bool                   `json:"doNotStore"`
}

// Comment carries the text under analysis.
type Comment struct {
	Text string `json:"text"`
}

// AnalyzeResponse is the response from POST /comments:analyze.
type AnalyzeResponse struct {
	AttributeScores   map[Attribute]AttributeScore `json:"attributeScores"`
	DetectedLanguages []string                     `json:"languages"`
}

// AttributeScore holds the summary score for one requested attribute.
type AttributeScore struct {
	SummaryScore Score `json:"summaryScore"`
}

// Score is a probability in [0, 1].
type Score struct {
	Value float64 `json:"value"`
	Type  string  `json:"type"`
}

// Score returns the summary value for one attribute, 0 if absent.
func (r *AnalyzeResponse) Score(attr Attribute) float64 {
	return r.AttributeScores[attr].SummaryScore.Value
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
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
	http    *http.Client
}

// NewClient creates a Perspective API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
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

func (c *httpClient) AnalyzeComment(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	if len(req.RequestedAttributes) == 0 {
		req.RequestedAttributes = map[Attribute]struct{}{AttributeThreat: {}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "perspective: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/comments:analyze?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "perspective: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "perspective: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "perspective: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("perspective: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "perspective: unmarshal response")
	}

	return &result, nil
}
