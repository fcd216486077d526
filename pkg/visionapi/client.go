package visionapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://vision.googleapis.com/v1"

// Client performs image annotation: text extraction and safe-search
// likelihood classification.
type Client interface {
	DetectText(ctx context.Context, image []byte) (*TextAnnotation, error)
	SafeSearch(ctx context.Context, image []byte) (*SafeSearchAnnotation, error)
}

// Likelihood is the API's bucketed probability scale.
type Likelihood string

const (
	LikelihoodUnknown      Likelihood = "UNKNOWN"
	LikelihoodVeryUnlikely Likelihood = "VERY_UNLIKELY"
	LikelihoodUnlikely     Likelihood = "UNLIKELY"
	LikelihoodPossible     Likelihood = "POSSIBLE"
	LikelihoodLikely       Likelihood = "LIKELY"
	LikelihoodVeryLikely   Likelihood = "VERY_LIKELY"
)

// AtLeast reports whether l meets or exceeds the threshold on the
// likelihood scale. UNKNOWN never meets any threshold.
func (l Likelihood) AtLeast(threshold Likelihood) bool {
	rank := map[Likelihood]int{
		LikelihoodVeryUnlikely: 1,
		LikelihoodUnlikely:     2,
		LikelihoodPossible:     3,
		LikelihoodLikely:       4,
		LikelihoodVeryLikely:   5,
	}
	lr, ok := rank[l]
	if !ok {
		return false
	}
	tr, ok := rank[threshold]
	if !ok {
		return false
	}
	return lr >= tr
}

// TextAnnotation is the OCR result for one image.
type TextAnnotation struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// SafeSearchAnnotation buckets an image on the moderation axes.
type SafeSearchAnnotation struct {
	Adult    Likelihood `json:"adult"`
	Violence Likelihood `json:"violence"`
	Racy     Likelihood `json:"racy"`
	Medical  Likelihood `json:"medical"`
	Spoof    Likelihood `json:"spoof"`
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

// NewClient creates a vision annotation client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
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

// annotateRequest is the request body for POST /images:annotate.
type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text  string `json:"text"`
			Pages []struct {
				Property *struct {
					DetectedLanguages []struct {
						LanguageCode string `json:"languageCode"`
					} `json:"detectedLanguages"`
				} `json:"property"`
			} `json:"pages"`
		} `json:"fullTextAnnotation"`
		SafeSearchAnnotation *SafeSearchAnnotation `json:"safeSearchAnnotation"`
		Error                *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (c *httpClient) DetectText(ctx context.Context, image []byte) (*TextAnnotation, error) {
	resp, err := c.annotate(ctx, image, "TEXT_DETECTION")
	if err != nil {
		return nil, err
	}

	out := &TextAnnotation{}
	full := resp.Responses[0].FullTextAnnotation
	if full == nil {
		return out, nil
	}
	out.Text = full.Text
	for _, page := range full.Pages {
		if page.Property != nil && len(page.Property.DetectedLanguages) > 0 {
			out.Language = page.Property.DetectedLanguages[0].LanguageCode
			break
		}
	}
	return out, nil
}

func (c *httpClient) SafeSearch(ctx context.Context, image []byte) (*SafeSearchAnnotation, error) {
	resp, err := c.annotate(ctx, image, "SAFE_SEARCH_DETECTION")
	if err != nil {
		return nil, err
	}
	if resp.Responses[0].SafeSearchAnnotation == nil {
		return nil, eris.New("visionapi: response missing safe-search annotation")
	}
	return resp.Responses[0].SafeSearchAnnotation, nil
}

func (c *httpClient) annotate(ctx context.Context, image []byte, feature string) (*annotateResponse, error) {
	body, err := json.Marshal(annotateRequest{
		Requests: []annotateEntry{{
			Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []annotateFeature{{Type: feature}},
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "visionapi: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/images:annotate?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "visionapi: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "visionapi: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "visionapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("visionapi: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result annotateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "visionapi: unmarshal response")
	}
	if len(result.Responses) == 0 {
		return nil, eris.New("visionapi: empty response")
	}
	if apiErr := result.Responses[0].Error; apiErr != nil {
		return nil, eris.Errorf("visionapi: annotation error %d: %s", apiErr.Code, apiErr.Message)
	}

	return &result, nil
}
