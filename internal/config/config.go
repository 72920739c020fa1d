// Package config loads and persists the daemon settings file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Output modes for delivered suggestions.
const (
	OutputText = "text"
	OutputTTS  = "tts"
	OutputBoth = "both"
)

// Frame source kinds.
const (
	SourceCamera = "camera"
	SourceDir    = "dir"
)

// Speech backends.
const (
	SpeechSystem   = "system"
	SpeechDeepgram = "deepgram"
)

// Settings is the on-disk configuration. Unknown keys in the file are
// ignored; missing keys keep their defaults.
type Settings struct {
	CameraID                int     `json:"camera_id"`
	CaptureFPS              int     `json:"capture_fps"`
	CaptureInterval         float64 `json:"capture_interval"` // seconds between analysis ticks
	VisionModel             string  `json:"vision_model"`
	ShowPreview             bool    `json:"show_preview"`
	LLMModel                string  `json:"llm_model"`
	OllamaURL               string  `json:"ollama_url"`
	ContextWindow           int     `json:"context_window"`
	ConfidenceThreshold     float64 `json:"confidence_threshold"`
	MinInterventionInterval float64 `json:"min_intervention_interval"` // seconds
	OutputMode              string  `json:"output_mode"`               // text | tts | both
	EnableTTS               bool    `json:"enable_tts"`
	SaveFrames              bool    `json:"save_frames"`

	Source            string  `json:"source"`             // camera | dir
	FramesDir         string  `json:"frames_dir"`         // image directory for source=dir
	SensorTimeout     float64 `json:"sensor_timeout"`     // seconds to wait for a frame
	PerceptionTimeout float64 `json:"perception_timeout"` // seconds per vision call
	ReasoningTimeout  float64 `json:"reasoning_timeout"`  // seconds per intent call
	SpeechBackend     string  `json:"speech_backend"`     // system | deepgram
	SpeechVoice       string  `json:"speech_voice"`
	JournalEnabled    bool    `json:"journal_enabled"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		CameraID:                0,
		CaptureFPS:              30,
		CaptureInterval:         3.0,
		VisionModel:             "llava",
		ShowPreview:             true,
		LLMModel:                "llama3.1",
		OllamaURL:               "http://localhost:11434",
		ContextWindow:           5,
		ConfidenceThreshold:     0.6,
		MinInterventionInterval: 30.0,
		OutputMode:              OutputText,
		EnableTTS:               false,
		SaveFrames:              false,

		Source:            SourceCamera,
		FramesDir:         "",
		SensorTimeout:     5.0,
		PerceptionTimeout: 30.0,
		ReasoningTimeout:  15.0,
		SpeechBackend:     SpeechSystem,
		SpeechVoice:       "",
		JournalEnabled:    true,
	}
}

// Load reads settings from path, merged over defaults. A missing file is
// created with the defaults so the user has something to edit.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if werr := s.Save(path); werr != nil {
				return s, fmt.Errorf("failed to write default config: %w", werr)
			}
			return s, nil
		}
		return s, fmt.Errorf("failed to read config: %w", err)
	}

	// Unmarshal over the defaults: keys present in the file win,
	// absent keys keep their default values.
	if err := json.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to path atomically (write + rename).
func (s Settings) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// ApplyEnv overrides settings from recognized environment variables.
func (s *Settings) ApplyEnv() {
	if v := os.Getenv("NUDGED_OLLAMA_URL"); v != "" {
		s.OllamaURL = v
	}
	if v := os.Getenv("NUDGED_VISION_MODEL"); v != "" {
		s.VisionModel = v
	}
	if v := os.Getenv("NUDGED_LLM_MODEL"); v != "" {
		s.LLMModel = v
	}
}

// Normalize repairs out-of-range values in place, replacing each with its
// default. Returns a note per repair for the caller to log.
func (s *Settings) Normalize() []string {
	def := Default()
	var notes []string

	if s.CaptureInterval <= 0 {
		notes = append(notes, fmt.Sprintf("capture_interval %v invalid, using %v", s.CaptureInterval, def.CaptureInterval))
		s.CaptureInterval = def.CaptureInterval
	}
	if s.ContextWindow < 1 {
		notes = append(notes, fmt.Sprintf("context_window %d invalid, using %d", s.ContextWindow, def.ContextWindow))
		s.ContextWindow = def.ContextWindow
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		notes = append(notes, fmt.Sprintf("confidence_threshold %v out of range, using %v", s.ConfidenceThreshold, def.ConfidenceThreshold))
		s.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if s.MinInterventionInterval < 0 {
		notes = append(notes, fmt.Sprintf("min_intervention_interval %v invalid, using %v", s.MinInterventionInterval, def.MinInterventionInterval))
		s.MinInterventionInterval = def.MinInterventionInterval
	}
	switch s.OutputMode {
	case OutputText, OutputTTS, OutputBoth:
	default:
		notes = append(notes, fmt.Sprintf("output_mode %q unknown, using %q", s.OutputMode, def.OutputMode))
		s.OutputMode = def.OutputMode
	}
	switch s.Source {
	case SourceCamera, SourceDir:
	default:
		notes = append(notes, fmt.Sprintf("source %q unknown, using %q", s.Source, def.Source))
		s.Source = def.Source
	}
	switch s.SpeechBackend {
	case SpeechSystem, SpeechDeepgram:
	default:
		notes = append(notes, fmt.Sprintf("speech_backend %q unknown, using %q", s.SpeechBackend, def.SpeechBackend))
		s.SpeechBackend = def.SpeechBackend
	}
	if s.SensorTimeout <= 0 {
		s.SensorTimeout = def.SensorTimeout
	}
	if s.PerceptionTimeout <= 0 {
		s.PerceptionTimeout = def.PerceptionTimeout
	}
	if s.ReasoningTimeout <= 0 {
		s.ReasoningTimeout = def.ReasoningTimeout
	}
	return notes
}

// Duration accessors: the file stores seconds, callers want durations.

func (s Settings) CaptureEvery() time.Duration {
	return time.Duration(s.CaptureInterval * float64(time.Second))
}

func (s Settings) MinInterventionGap() time.Duration {
	return time.Duration(s.MinInterventionInterval * float64(time.Second))
}

func (s Settings) SensorDeadline() time.Duration {
	return time.Duration(s.SensorTimeout * float64(time.Second))
}

func (s Settings) PerceptionDeadline() time.Duration {
	return time.Duration(s.PerceptionTimeout * float64(time.Second))
}

func (s Settings) ReasoningDeadline() time.Duration {
	return time.Duration(s.ReasoningTimeout * float64(time.Second))
}

// SpeakEnabled reports whether any delivery path should speak.
func (s Settings) SpeakEnabled() bool {
	if !s.EnableTTS {
		return false
	}
	return s.OutputMode == OutputTTS || s.OutputMode == OutputBoth
}
