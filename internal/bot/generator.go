package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoCredential is returned by Generate when no API key is configured. The
// dispatcher treats it like any other generation failure.
var ErrNoCredential = errors.New("no generative credential configured")

// generateTimeout caps a single generative call. The service is treated as
// unreliable and rate-limited; anything slow becomes a fallback.
const generateTimeout = 10 * time.Second

// Generator produces free-form reply text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPGenerator calls an external text-generation endpoint speaking the
// generateContent JSON shape.
type HTTPGenerator struct {
	client *http.Client
	url    string
	key    string
}

// NewHTTPGenerator creates a generator for the given endpoint. An empty key
// disables generation; every call returns ErrNoCredential.
func NewHTTPGenerator(url, key string) *HTTPGenerator {
	return &HTTPGenerator{
		client: &http.Client{Timeout: generateTimeout},
		url:    url,
		key:    key,
	}
}

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.key == "" {
		return "", ErrNoCredential
	}

	var reqBody generateRequest
	reqBody.Contents = make([]struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}, 1)
	reqBody.Contents[0].Parts = []struct {
		Text string `json:"text"`
	}{{Text: prompt}}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.key)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling text generation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("text generation service returned %s", resp.Status)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("text generation service returned no candidates")
	}

	text := decoded.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", errors.New("text generation service returned empty text")
	}
	return text, nil
}
