package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/internal/models"
)

// Client talks to the Gemini generateContent API for both the shot-list
// script and per-panel images. Callers treat it as fallible and slow.
type Client struct {
	apiKey      string
	baseURL     string
	scriptModel string
	imageModel  string
	httpClient  *http.Client
	log         *slog.Logger
}

type Image struct {
	Bytes []byte
	Mime  string
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		apiKey:      cfg.GeminiAPIKey,
		baseURL:     strings.TrimRight(cfg.GeminiBaseURL, "/"),
		scriptModel: cfg.ScriptModel,
		imageModel:  cfg.ImageModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// GenerateScript asks the text model for a storyboard shot list. The response
// schema pins the output to a JSON array of panel objects.
func (c *Client) GenerateScript(ctx context.Context, prompt string, panelCount int) ([]models.Panel, error) {
	instruction := fmt.Sprintf(`Create a storyboard for: %s
Panel count: %d.

Rules:
1. Write descriptions in the user's language.
2. Write visualPrompt in English.
3. Keep every character's appearance identical across all panels; repeat the full appearance description in each visualPrompt.
4. Pick shotType per scene from: EXTREME WIDE SHOT, WIDE SHOT, FULL SHOT, MEDIUM WIDE SHOT, MEDIUM SHOT, MEDIUM CLOSE-UP, CLOSE-UP, EXTREME CLOSE-UP, OVER THE SHOULDER, TWO SHOT.`, prompt, panelCount)

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": instruction}}},
		},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
			"responseSchema": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"sceneNumber":  map[string]any{"type": "NUMBER"},
						"shotType":     map[string]any{"type": "STRING"},
						"description":  map[string]any{"type": "STRING"},
						"dialogue":     map[string]any{"type": "STRING"},
						"visualPrompt": map[string]any{"type": "STRING"},
					},
					"required": []string{"sceneNumber", "shotType", "description", "visualPrompt"},
				},
			},
		},
	}

	body, err := c.generateContent(ctx, c.scriptModel, payload)
	if err != nil {
		return nil, err
	}

	text := firstText(body)
	if text == "" {
		return nil, fmt.Errorf("empty script response")
	}

	var panels []models.Panel
	if err := json.Unmarshal([]byte(text), &panels); err != nil {
		return nil, fmt.Errorf("parse script json: %w", err)
	}
	if len(panels) == 0 {
		return nil, fmt.Errorf("script contained no panels")
	}
	return panels, nil
}

// GenerateImage renders one panel. The image comes back inline as base64.
func (c *Client) GenerateImage(ctx context.Context, visualPrompt, style, styleContext, shotType string) (*Image, error) {
	shotDescription := shotDescriptionFor(shotType)

	var finalPrompt string
	if styleContext != "" {
		finalPrompt = fmt.Sprintf(`%s

CAMERA/SHOT TYPE: %s

SCENE TO ILLUSTRATE: %s

The character must look exactly as described above, in %s art style, framed per the shot type.`, styleContext, shotDescription, visualPrompt, style)
	} else {
		finalPrompt = fmt.Sprintf(`CAMERA/SHOT TYPE: %s

Storyboard frame, %s style, %s

Follow the camera shot type framing precisely. No text overlays, no watermarks.`, shotDescription, style, visualPrompt)
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": finalPrompt}}},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE", "TEXT"},
		},
	}

	body, err := c.generateContent(ctx, c.imageModel, payload)
	if err != nil {
		return nil, err
	}

	for _, part := range firstParts(body) {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline image: %w", err)
		}
		mime := part.InlineData.MimeType
		if mime == "" {
			mime = "image/png"
		}
		return &Image{Bytes: data, Mime: mime}, nil
	}

	return nil, fmt.Errorf("no image data in response")
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type part struct {
	Text       string `json:"text"`
	InlineData *struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData"`
}

func (c *Client) generateContent(ctx context.Context, model string, payload map[string]any) (*generateResponse, error) {
	baseURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	endpoint, err := url.Parse(fmt.Sprintf("/v1beta/models/%s:generateContent", model))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	fullURL := baseURL.ResolveReference(endpoint).String()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post gemini: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("gemini request failed", "status", resp.StatusCode, "model", model, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("gemini error: status=%d model=%s body=%s", resp.StatusCode, model, truncateBody(rawBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}
	return &parsed, nil
}

func firstParts(resp *generateResponse) []part {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

func firstText(resp *generateResponse) string {
	for _, p := range firstParts(resp) {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}

var shotDescriptions = map[string]string{
	"EXTREME WIDE SHOT": "extreme wide shot, very distant view showing the entire location, subject small in frame",
	"WIDE SHOT":         "wide shot, full body visible with surrounding environment",
	"FULL SHOT":         "full shot, entire body visible from head to feet, minimal headroom",
	"MEDIUM WIDE SHOT":  "medium wide shot, subject framed from the knees up",
	"MEDIUM SHOT":       "medium shot, subject framed from the waist up, conversational framing",
	"MEDIUM CLOSE-UP":   "medium close-up, subject framed from the chest up",
	"CLOSE-UP":          "close-up shot, face fills most of the frame, head and shoulders only",
	"EXTREME CLOSE-UP":  "extreme close-up, very tight framing on a specific detail",
	"OVER THE SHOULDER": "over the shoulder shot, camera behind one character looking at another",
	"POV":               "point of view shot, camera shows what the character is seeing",
	"LOW ANGLE":         "low angle shot, camera looking up at the subject",
	"HIGH ANGLE":        "high angle shot, camera looking down at the subject",
	"DUTCH ANGLE":       "dutch angle, tilted camera for tension",
	"TWO SHOT":          "two shot, two characters in frame together",
	"INSERT":            "insert shot, close-up of a specific object or detail",
}

func shotDescriptionFor(shotType string) string {
	if shotType == "" {
		return "medium shot, standard framing"
	}
	normalized := strings.ToUpper(strings.NewReplacer("-", " ", "_", " ").Replace(shotType))
	if desc, ok := shotDescriptions[normalized]; ok {
		return desc
	}
	for key, desc := range shotDescriptions {
		if strings.Contains(normalized, key) || strings.Contains(key, normalized) {
			return desc
		}
	}
	switch {
	case strings.Contains(normalized, "CLOSE"):
		return shotDescriptions["CLOSE-UP"]
	case strings.Contains(normalized, "WIDE"):
		return shotDescriptions["WIDE SHOT"]
	case strings.Contains(normalized, "MEDIUM"):
		return shotDescriptions["MEDIUM SHOT"]
	}
	return fmt.Sprintf("%s shot, cinematic framing", shotType)
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
