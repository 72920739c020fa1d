package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quietdesk/nudged/internal/domain"
)

const (
	minFreeMemory = 1 << 30   // 1 GiB
	minFreeDisk   = 512 << 20 // 512 MiB
)

// CheckResult is one preflight probe outcome.
type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// PreflightOptions carries what the checks need. Source may be nil to
// skip the capture probe; ConfigErr carries a config file load failure
// for the config check to report.
type PreflightOptions struct {
	DataDir     string
	OllamaURL   string
	VisionModel string
	LLMModel    string
	ConfigErr   error
	ConfigNotes []string
	Source      domain.FrameSource
	GrabTimeout time.Duration
}

// Preflight verifies the host can actually run the assistant: tools on
// PATH, a reachable model server with the right models, a working
// capture source, and enough headroom.
type Preflight struct {
	opts   PreflightOptions
	client *OllamaClient
	pm     domain.ProcessManager

	// Filled by the server check, reused by the model checks.
	models    []string
	reachable bool
}

// NewPreflight builds a preflight runner.
func NewPreflight(opts PreflightOptions, client *OllamaClient, pm domain.ProcessManager) *Preflight {
	return &Preflight{opts: opts, client: client, pm: pm}
}

// Run executes all checks in order and returns every result, pass or
// fail.
func (p *Preflight) Run(ctx context.Context) []CheckResult {
	checks := []func(context.Context) CheckResult{
		p.checkFFmpeg,
		p.checkDataDir,
		p.checkConfig,
		p.checkOllama,
		p.checkVisionModel,
		p.checkLLMModel,
	}
	if p.opts.Source != nil {
		checks = append(checks, p.checkCapture)
	}
	checks = append(checks, p.checkResources)

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		results = append(results, check(ctx))
	}
	return results
}

func (p *Preflight) checkFFmpeg(_ context.Context) CheckResult {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return CheckResult{Name: "ffmpeg", Detail: "not found in PATH, install ffmpeg to capture frames"}
	}
	return CheckResult{Name: "ffmpeg", OK: true, Detail: path}
}

func (p *Preflight) checkDataDir(_ context.Context) CheckResult {
	probe := filepath.Join(p.opts.DataDir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return CheckResult{Name: "data dir", Detail: fmt.Sprintf("%s not writable: %v", p.opts.DataDir, err)}
	}
	os.Remove(probe)
	return CheckResult{Name: "data dir", OK: true, Detail: p.opts.DataDir}
}

func (p *Preflight) checkConfig(_ context.Context) CheckResult {
	if p.opts.ConfigErr != nil {
		// The assistant would still start, on defaults, but the file
		// needs fixing.
		return CheckResult{Name: "config", Detail: fmt.Sprintf("unusable, defaults in effect: %v", p.opts.ConfigErr)}
	}
	if len(p.opts.ConfigNotes) == 0 {
		return CheckResult{Name: "config", OK: true, Detail: "valid"}
	}
	// Repaired values still run, but the user should know.
	return CheckResult{
		Name:   "config",
		OK:     true,
		Detail: fmt.Sprintf("%d value(s) reset to defaults: %s", len(p.opts.ConfigNotes), strings.Join(p.opts.ConfigNotes, "; ")),
	}
}

func (p *Preflight) checkOllama(ctx context.Context) CheckResult {
	models, err := p.client.Models(ctx)
	if err != nil {
		detail := fmt.Sprintf("not reachable at %s", p.opts.OllamaURL)
		if pids, ferr := p.pm.FindByName("ollama"); ferr == nil && len(pids) > 0 {
			detail += fmt.Sprintf(" (process running as pid %d, check the bind address)", pids[0])
		} else {
			detail += " (no ollama process found, start it with: ollama serve)"
		}
		return CheckResult{Name: "ollama", Detail: detail}
	}

	p.models = models
	p.reachable = true
	return CheckResult{Name: "ollama", OK: true, Detail: fmt.Sprintf("%d model(s) installed", len(models))}
}

func (p *Preflight) checkVisionModel(_ context.Context) CheckResult {
	return p.modelCheck("vision model", p.opts.VisionModel)
}

func (p *Preflight) checkLLMModel(_ context.Context) CheckResult {
	return p.modelCheck("llm model", p.opts.LLMModel)
}

func (p *Preflight) modelCheck(name, model string) CheckResult {
	if !p.reachable {
		return CheckResult{Name: name, Detail: "skipped, server unreachable"}
	}
	for _, m := range p.models {
		if strings.Contains(m, model) {
			return CheckResult{Name: name, OK: true, Detail: m}
		}
	}
	return CheckResult{Name: name, Detail: fmt.Sprintf("%s not installed, run: ollama pull %s", model, model)}
}

func (p *Preflight) checkCapture(ctx context.Context) CheckResult {
	src := p.opts.Source
	if err := src.Start(ctx); err != nil {
		return CheckResult{Name: "capture", Detail: err.Error()}
	}
	defer src.Stop()

	grabCtx, cancel := context.WithTimeout(ctx, p.opts.GrabTimeout)
	defer cancel()

	frame, err := src.Grab(grabCtx)
	if err != nil {
		return CheckResult{Name: "capture", Detail: fmt.Sprintf("no frame within %s: %v", p.opts.GrabTimeout, err)}
	}
	return CheckResult{Name: "capture", OK: true, Detail: fmt.Sprintf("%dx%d frame, %d bytes", frame.Width, frame.Height, len(frame.Data))}
}

func (p *Preflight) checkResources(_ context.Context) CheckResult {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return CheckResult{Name: "resources", Detail: fmt.Sprintf("failed to read memory stats: %v", err)}
	}
	du, err := disk.Usage(p.opts.DataDir)
	if err != nil {
		return CheckResult{Name: "resources", Detail: fmt.Sprintf("failed to read disk stats: %v", err)}
	}

	detail := fmt.Sprintf("%s memory free, %s disk free", formatBytes(vm.Available), formatBytes(du.Free))
	if vm.Available < minFreeMemory || du.Free < minFreeDisk {
		return CheckResult{Name: "resources", Detail: detail + " (low)"}
	}
	return CheckResult{Name: "resources", OK: true, Detail: detail}
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
