package perspective

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeComment(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantThreat float64
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"attributeScores": {
					"THREAT": {"summaryScore": {"value": 0.82, "type": "PROBABILITY"}},
					"TOXICITY": {"summaryScore": {"value": 0.4, "type": "PROBABILITY"}}
				},
				"languages": ["en"]
			}`,
			wantThreat: 0.82,
		},
		{
			name:    "quota_exceeded",
			status:  http.StatusTooManyRequests,
			body:    `{"error": {"message": "quota exceeded"}}`,
			wantErr: "unexpected status 429",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/comments:analyze", r.URL.Path)
				assert.Equal(t, "test-key", r.URL.Query().Get("key"))

				var req AnalyzeRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "some text", req.Comment.Text)
				assert.Contains(t, req.RequestedAttributes, AttributeThreat)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))

			resp, err := client.AnalyzeComment(context.Background(), AnalyzeRequest{
				Comment: Comment{Text: "some text"},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.InDelta(t, tt.wantThreat, resp.Score(AttributeThreat), 1e-9)
			assert.Equal(t, []string{"en"}, resp.DetectedLanguages)
		})
	}
}

func TestScore_MissingAttribute(t *testing.T) {
	resp := &AnalyzeResponse{}
	assert.Zero(t, resp.Score(AttributeThreat))
}
