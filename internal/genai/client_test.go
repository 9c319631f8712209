package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/pkg/logger"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		GeminiAPIKey:   "test-key",
		GeminiBaseURL:  srv.URL,
		ScriptModel:    "script-model",
		ImageModel:     "image-model",
		RequestTimeout: 5 * time.Second,
	}
	return NewClient(cfg, logger.New())
}

func candidateText(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
}

func TestGenerateScriptParsesPanels(t *testing.T) {
	script := `[{"sceneNumber":1,"shotType":"WIDE SHOT","description":"설정 샷","dialogue":"","visualPrompt":"a rainy alley"},
{"sceneNumber":2,"shotType":"CLOSE-UP","description":"표정","dialogue":"가자.","visualPrompt":"a determined face"}]`

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/script-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		genCfg, _ := payload["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", genCfg["responseMimeType"])

		_ = json.NewEncoder(w).Encode(candidateText(script))
	})

	panels, err := client.GenerateScript(context.Background(), "a heist", 2)
	require.NoError(t, err)
	require.Len(t, panels, 2)
	assert.Equal(t, 1, panels[0].SceneNumber)
	assert.Equal(t, "WIDE SHOT", panels[0].ShotType)
	assert.Equal(t, "a rainy alley", panels[0].VisualPrompt)
	assert.Equal(t, "가자.", panels[1].Dialogue)
}

func TestGenerateScriptEmptyResponse(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(candidateText("[]"))
	})

	_, err := client.GenerateScript(context.Background(), "a heist", 2)
	require.Error(t, err)
}

func TestGenerateScriptSurfacesUpstreamError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	})

	_, err := client.GenerateScript(context.Background(), "a heist", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestGenerateImageDecodesInlineData(t *testing.T) {
	raw := []byte("fake-png")
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/image-model:generateContent", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": "here is your image"},
					{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(raw)}},
				}}},
			},
		})
	})

	img, err := client.GenerateImage(context.Background(), "a rainy alley", "Film Noir", "", "WIDE SHOT")
	require.NoError(t, err)
	assert.Equal(t, raw, img.Bytes)
	assert.Equal(t, "image/png", img.Mime)
}

func TestGenerateImageWithoutInlineData(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(candidateText("no image, sorry"))
	})

	_, err := client.GenerateImage(context.Background(), "a rainy alley", "Anime", "", "CLOSE-UP")
	require.Error(t, err)
}

func TestShotDescriptionFor(t *testing.T) {
	assert.Equal(t, "medium shot, standard framing", shotDescriptionFor(""))
	assert.Equal(t, shotDescriptions["WIDE SHOT"], shotDescriptionFor("wide shot"))
	assert.Equal(t, shotDescriptions["WIDE SHOT"], shotDescriptionFor("wide_shot"))
	assert.Equal(t, shotDescriptions["CLOSE-UP"], shotDescriptionFor("close-up"))
	assert.Contains(t, shotDescriptionFor("bird's eye"), "cinematic framing")
}

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "short", truncateBody([]byte("  short \n")))
	long := strings.Repeat("x", 600)
	got := truncateBody([]byte(long))
	assert.True(t, strings.HasPrefix(got, strings.Repeat("x", 512)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
