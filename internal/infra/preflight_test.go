package infra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tagsServer(t *testing.T, models string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(models))
	}))
	t.Cleanup(server.Close)
	return server
}

func resultByName(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no check named %q", name)
	return CheckResult{}
}

func TestPreflight_AllModelsPresent(t *testing.T) {
	server := tagsServer(t, `{"models":[{"name":"llava:latest"},{"name":"llama3.1:8b"}]}`)

	pre := NewPreflight(PreflightOptions{
		DataDir:     t.TempDir(),
		OllamaURL:   server.URL,
		VisionModel: "llava",
		LLMModel:    "llama3.1",
	}, NewOllamaClient(server.URL), newMockProcessManager())

	results := pre.Run(context.Background())

	assert.True(t, resultByName(t, results, "data dir").OK)
	assert.True(t, resultByName(t, results, "config").OK)
	assert.True(t, resultByName(t, results, "ollama").OK)

	vision := resultByName(t, results, "vision model")
	assert.True(t, vision.OK)
	assert.Equal(t, "llava:latest", vision.Detail)

	llm := resultByName(t, results, "llm model")
	assert.True(t, llm.OK)
}

func TestPreflight_MissingModel(t *testing.T) {
	server := tagsServer(t, `{"models":[{"name":"llama3.1:8b"}]}`)

	pre := NewPreflight(PreflightOptions{
		DataDir:     t.TempDir(),
		OllamaURL:   server.URL,
		VisionModel: "llava",
		LLMModel:    "llama3.1",
	}, NewOllamaClient(server.URL), newMockProcessManager())

	results := pre.Run(context.Background())

	vision := resultByName(t, results, "vision model")
	assert.False(t, vision.OK)
	assert.Contains(t, vision.Detail, "ollama pull llava")
}

func TestPreflight_ServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	pm := newMockProcessManager()
	pm.byName["ollama"] = []int{4242}

	pre := NewPreflight(PreflightOptions{
		DataDir:     t.TempDir(),
		OllamaURL:   server.URL,
		VisionModel: "llava",
		LLMModel:    "llama3.1",
	}, NewOllamaClient(server.URL), pm)

	results := pre.Run(context.Background())

	ollama := resultByName(t, results, "ollama")
	assert.False(t, ollama.OK)
	assert.Contains(t, ollama.Detail, "pid 4242")

	// Model checks degrade to skipped instead of double-failing.
	assert.Contains(t, resultByName(t, results, "vision model").Detail, "skipped")
	assert.Contains(t, resultByName(t, results, "llm model").Detail, "skipped")
}

func TestPreflight_DataDirNotWritable(t *testing.T) {
	server := tagsServer(t, `{"models":[]}`)

	pre := NewPreflight(PreflightOptions{
		DataDir:   "/nonexistent/nudged-data",
		OllamaURL: server.URL,
	}, NewOllamaClient(server.URL), newMockProcessManager())

	results := pre.Run(context.Background())
	assert.False(t, resultByName(t, results, "data dir").OK)
}

func TestPreflight_ConfigNotes(t *testing.T) {
	server := tagsServer(t, `{"models":[]}`)

	pre := NewPreflight(PreflightOptions{
		DataDir:     t.TempDir(),
		OllamaURL:   server.URL,
		ConfigNotes: []string{"capture_interval reset to 3"},
	}, NewOllamaClient(server.URL), newMockProcessManager())

	results := pre.Run(context.Background())
	cfg := resultByName(t, results, "config")
	assert.True(t, cfg.OK)
	assert.Contains(t, cfg.Detail, "capture_interval reset to 3")
}

func TestPreflight_ConfigUnusable(t *testing.T) {
	server := tagsServer(t, `{"models":[]}`)

	pre := NewPreflight(PreflightOptions{
		DataDir:   t.TempDir(),
		OllamaURL: server.URL,
		ConfigErr: errors.New("failed to parse config: invalid character 'n'"),
	}, NewOllamaClient(server.URL), newMockProcessManager())

	results := pre.Run(context.Background())

	cfg := resultByName(t, results, "config")
	assert.False(t, cfg.OK)
	assert.Contains(t, cfg.Detail, "defaults in effect")
	assert.Contains(t, cfg.Detail, "invalid character")

	// A broken file fails its own check, not the whole diagnostics run.
	assert.True(t, resultByName(t, results, "data dir").OK)
}

func TestPreflight_CaptureProbe(t *testing.T) {
	server := tagsServer(t, `{"models":[]}`)
	dir := writeFrameDir(t, "a.jpg")

	pre := NewPreflight(PreflightOptions{
		DataDir:     t.TempDir(),
		OllamaURL:   server.URL,
		Source:      NewDirectorySource(dir, zap.NewNop()),
		GrabTimeout: time.Second,
	}, NewOllamaClient(server.URL), newMockProcessManager())

	results := pre.Run(context.Background())
	capture := resultByName(t, results, "capture")
	require.True(t, capture.OK)
	assert.Contains(t, capture.Detail, "1 bytes")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "2.0 GiB", formatBytes(2<<30))
	assert.Equal(t, "512.0 MiB", formatBytes(512<<20))
	assert.Equal(t, "100 B", formatBytes(100))
}
