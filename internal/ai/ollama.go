package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// CharacterPrompt asks the model for a strict JSON object describing the
// character shown in the image.
const CharacterPrompt = `Look at this image and invent the character it shows. ` +
	`Reply ONLY with a JSON object of the form {"name": "<character name>", "bio": "<short biography>"}. ` +
	`Do not add any text before or after the JSON.`

type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient talks to the Ollama chat endpoint. It never retries.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
	}
}

func (c *OllamaClient) BaseURL() string {
	return c.baseURL
}

// DescribeImage sends the image with CharacterPrompt and returns the raw,
// newline-delimited JSON body of the streamed reply.
func (c *OllamaClient) DescribeImage(ctx context.Context, image []byte) (string, error) {
	reqBody := ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{
				Role:    "user",
				Content: CharacterPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(image)},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request failed: %w", err)
	}

	url := c.baseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build ollama request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ollama response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama response status %d: %s", resp.StatusCode, string(raw))
	}

	log.WithFields(log.Fields{
		"model":    c.model,
		"bytes":    len(raw),
		"duration": time.Since(started).String(),
	}).Debug("ollama chat completed")

	return string(raw), nil
}
