package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantErr      string
		wantText     string
		wantDetected string
	}{
		{
			name:   "success_with_detection",
			status: http.StatusOK,
			body: `{"data": {"translations": [
				{"translatedText": "attack at dawn", "detectedSourceLanguage": "de"}
			]}}`,
			wantText:     "attack at dawn",
			wantDetected: "de",
		},
		{
			name:    "quota_exceeded",
			status:  http.StatusForbidden,
			body:    `{"error": {"message": "daily limit exceeded"}}`,
			wantErr: "unexpected status 403",
		},
		{
			name:    "empty_translations",
			status:  http.StatusOK,
			body:    `{"data": {"translations": []}}`,
			wantErr: "empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "test-key", r.URL.Query().Get("key"))

				var req wireRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "angriff im morgengrauen", req.Q)
				assert.Equal(t, "en", req.Target)
				assert.Equal(t, "text", req.Format)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))

			got, err := client.Translate(context.Background(), Request{Text: "angriff im morgengrauen"})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantDetected, got.DetectedSource)
		})
	}
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "en-US", NormalizeTag("en-us"))
	assert.Equal(t, "de", NormalizeTag("de"))
	assert.Equal(t, "not a tag", NormalizeTag("not a tag"))
	assert.Empty(t, NormalizeTag(""))
}

func TestIsTarget(t *testing.T) {
	assert.True(t, IsTarget("en", "en"))
	assert.True(t, IsTarget("en-US", "en"))
	assert.False(t, IsTarget("de", "en"))
	assert.False(t, IsTarget("", "en"))
	assert.False(t, IsTarget("und", "en"))
}
