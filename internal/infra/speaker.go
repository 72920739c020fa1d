package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/quietdesk/nudged/internal/domain"
)

// ExecSpeaker implements domain.Speaker with the platform speech
// command: say on macOS, espeak elsewhere.
type ExecSpeaker struct {
	voice string
}

// NewExecSpeaker returns a speaker using the platform speech command.
// voice may be empty for the system default.
func NewExecSpeaker(voice string) *ExecSpeaker {
	return &ExecSpeaker{voice: voice}
}

// Speak blocks until the utterance finishes or ctx is done.
func (s *ExecSpeaker) Speak(ctx context.Context, text string) error {
	// Multi-line suggestions read badly; flatten before speaking.
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	name := "espeak"
	if runtime.GOOS == "darwin" {
		name = "say"
	}
	var args []string
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("speech command failed: %w: %s", err, snippet(string(out), 120))
	}
	return nil
}

// Ensure ExecSpeaker implements domain.Speaker.
var _ domain.Speaker = (*ExecSpeaker)(nil)

const (
	deepgramSpeakURL     = "https://api.deepgram.com/v1/speak"
	defaultDeepgramVoice = "aura-asteria-en"
)

// DeepgramSpeaker implements domain.Speaker over the Deepgram
// text-to-speech REST API, playing the synthesized audio with the
// platform player.
type DeepgramSpeaker struct {
	apiKey string
	voice  string
	client *http.Client
}

// NewDeepgramSpeaker returns a speaker using the given Deepgram API
// key. voice is a Deepgram model name, e.g. "aura-asteria-en".
func NewDeepgramSpeaker(apiKey, voice string) *DeepgramSpeaker {
	if voice == "" {
		voice = defaultDeepgramVoice
	}
	return &DeepgramSpeaker{
		apiKey: apiKey,
		voice:  voice,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Speak synthesizes text and blocks until playback finishes or ctx is
// done.
func (s *DeepgramSpeaker) Speak(ctx context.Context, text string) error {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	audio, err := s.synthesize(ctx, text)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "nudged-speech-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	tmp.Close()

	return playAudio(ctx, tmp.Name())
}

func (s *DeepgramSpeaker) synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode speak request: %w", err)
	}

	// linear16/wav keeps the reply playable by afplay and aplay.
	endpoint := fmt.Sprintf("%s?model=%s&encoding=linear16&container=wav",
		deepgramSpeakURL, url.QueryEscape(s.voice))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build speak request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach deepgram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deepgram returned status %d: %s", resp.StatusCode, snippet(string(body), 200))
	}
	return io.ReadAll(resp.Body)
}

func playAudio(ctx context.Context, path string) error {
	name := "aplay"
	args := []string{"-q", path}
	if runtime.GOOS == "darwin" {
		name = "afplay"
		args = []string{path}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("audio playback failed: %w: %s", err, snippet(string(out), 120))
	}
	return nil
}

// Ensure DeepgramSpeaker implements domain.Speaker.
var _ domain.Speaker = (*DeepgramSpeaker)(nil)
