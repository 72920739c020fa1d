package infra

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
	"unicode/utf8"
)

// ollamaBackstopTimeout bounds a single HTTP exchange when the caller's
// context carries no deadline of its own.
const ollamaBackstopTimeout = 60 * time.Second

// OllamaClient is a minimal client for the local Ollama REST API.
// Callers bound individual requests through their context; the embedded
// http.Client timeout is only a backstop.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaClient returns a client for the Ollama server at baseURL,
// e.g. "http://localhost:11434".
func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: ollamaBackstopTimeout},
	}
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Images  []string        `json:"images,omitempty"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate runs a single non-streaming completion. images, when
// non-empty, carries raw JPEG bytes for multimodal models; they are
// base64-encoded on the wire.
func (o *OllamaClient) Generate(ctx context.Context, model, prompt string, images [][]byte, temperature float64) (string, error) {
	reqBody := generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: temperature},
	}
	for _, img := range images {
		reqBody.Images = append(reqBody.Images, base64.StdEncoding.EncodeToString(img))
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach ollama: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, snippet(string(data), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	return out.Response, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the names of models installed on the server.
func (o *OllamaClient) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tags request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ollama: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, snippet(string(data), 200))
	}

	var out tagsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether an installed model name contains name, so
// "llava" matches "llava:latest".
func (o *OllamaClient) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := o.Models(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if strings.Contains(m, name) {
			return true, nil
		}
	}
	return false, nil
}

// snippet truncates s for inclusion in error messages, cutting on a
// rune boundary so multi-byte characters survive intact.
func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
