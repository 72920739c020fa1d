// Package main is the CLI entry point for nudged.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lpernett/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quietdesk/nudged/internal/config"
	"github.com/quietdesk/nudged/internal/daemon"
	"github.com/quietdesk/nudged/internal/domain"
	"github.com/quietdesk/nudged/internal/infra"
	"github.com/quietdesk/nudged/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.3.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// Load environment variables from a .env file when present.
func init() {
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nudged",
	Short: "Proactive desk assistant - watches your webcam and offers help",
	Long: `nudged is a local assistant that periodically looks at your webcam,
asks a local vision model what it sees, and decides with a local LLM
whether you could use a hand. When it is confident enough (and has not
nudged you too recently) it prints a suggestion, optionally speaks it,
and records it in an encrypted journal.

Everything runs on your machine; snapshots never leave it. Press 'x'
while it runs (or create the privacy flag file) to stop all monitoring.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the assistant in the foreground",
	Long: `Starts capture, analysis, and the interactive control loop.
Keys: 'q' quits, 'p' pauses/resumes capture, 'x' toggles privacy mode.
Without a terminal the same controls are available as signals:
SIGUSR1 pause/resume, SIGUSR2 privacy toggle, SIGTERM quit.

Use --detach to keep it running after the shell closes.`,
	RunE: runRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the assistant is running",
	Long:  `Shows instance liveness, current state, privacy flag, and journal totals.`,
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent interventions",
	Long:  `Reads the encrypted journal and prints the most recent suggestions.`,
	RunE:  runHistory,
}

var privacyCmd = &cobra.Command{
	Use:   "privacy [on|off]",
	Short: "Inspect or set the privacy flag",
	Long: `With no argument, reports whether privacy mode is engaged.
'privacy on' creates the flag file: every assistant start honors it and
keeps the camera closed. 'privacy off' removes it.

A running assistant toggles live with the 'x' key (or SIGUSR2); this
command only edits the durable flag.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrivacy,
}

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check that everything the assistant needs is in place",
	Long: `Verifies ffmpeg, the camera, the Ollama server and its models, the
configuration file, the data directory, and host resources. Run this
once before the first 'nudged run'.`,
	RunE: runPreflight,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	dataDirFlag   string
	configFlag    string
	sourceFlag    string
	framesDirFlag string
	noPreview     bool
	detachFlag    bool
	historyLimit  int
	jsonOutput    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.nudged, or NUDGED_DATA_DIR)")

	runCmd.Flags().StringVar(&configFlag, "config", "", "Config file path (default <data-dir>/config.json)")
	runCmd.Flags().StringVar(&sourceFlag, "source", "", "Frame source override: camera or dir")
	runCmd.Flags().StringVar(&framesDirFlag, "frames-dir", "", "Image directory for --source dir")
	runCmd.Flags().BoolVar(&noPreview, "no-preview", false, "Disable the preview snapshot file")
	runCmd.Flags().BoolVar(&detachFlag, "detach", false, "Run in the background, detached from this terminal")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of interventions to show")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(privacyCmd)
	rootCmd.AddCommand(preflightCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	paths, err := config.ResolveDataDir(dataDirFlag)
	if err != nil {
		return fmt.Errorf("failed to prepare data directory: %w", err)
	}

	if detachFlag {
		pid, err := daemon.Detach(withoutFlag(os.Args[1:], "--detach"))
		if err != nil {
			return fmt.Errorf("failed to detach: %w", err)
		}
		fmt.Printf("Assistant running in the background (pid %d).\n", pid)
		fmt.Printf("Log file: %s\n", paths.LogFile())
		fmt.Printf("Stop it with: kill %d\n", pid)
		return nil
	}

	configPath := configFlag
	if configPath == "" {
		configPath = paths.ConfigFile()
	}
	settings, notes, loadErr := loadSettings(configPath)
	if loadErr != nil {
		// A broken config file runs on defaults, same as a missing one.
		notes = append(notes, fmt.Sprintf("config file unusable, using defaults: %v", loadErr))
	}

	// Command-line overrides beat the file.
	if sourceFlag != "" {
		settings.Source = sourceFlag
	}
	if framesDirFlag != "" {
		settings.FramesDir = framesDirFlag
	}
	if noPreview {
		settings.ShowPreview = false
	}
	notes = append(notes, settings.Normalize()...)

	logger := createLogger(paths)
	defer func() { _ = logger.Sync() }()
	for _, note := range notes {
		logger.Warn("config value repaired", zap.String("note", note))
	}
	logger.Info("starting",
		zap.String("version", Version),
		zap.String("data_dir", paths.DataDir),
		zap.String("source", settings.Source),
		zap.String("vision_model", settings.VisionModel),
		zap.String("llm_model", settings.LLMModel))

	// Frame source.
	var source domain.FrameSource
	switch settings.Source {
	case config.SourceDir:
		if settings.FramesDir == "" {
			return fmt.Errorf("source %q requires frames_dir (or --frames-dir)", settings.Source)
		}
		source = infra.NewDirectorySource(config.ExpandHome(settings.FramesDir), logger)
	default:
		source = infra.NewCameraSource(settings.CameraID, settings.CaptureFPS, logger)
	}

	// Interactive control surface. Falls back to signals when stdin is
	// not a terminal (detached runs, pipes).
	term := infra.NewTerminalInput(os.Stdin, logger)
	var console io.Writer = os.Stdout
	keys, err := term.Start()
	if err != nil {
		logger.Info("keyboard control disabled", zap.Error(err))
		keys = nil
	} else {
		defer term.Stop()
		console = term.Writer(os.Stdout)
	}

	mux := daemon.NewInputMux(logger)
	mux.ForwardKeys(keys)
	stopSignals := mux.ForwardSignals()
	defer stopSignals()

	// Core components.
	pm := infra.NewProcessManager()
	registry := infra.NewFileInstanceRegistry(paths.InstanceFile(), pm)
	flag := infra.NewFilePrivacyFlag(paths.PrivacyFlagFile())
	controller := usecase.NewController(flag, logger)
	scheduler := usecase.NewScheduler(source, settings.CaptureEvery(), settings.SensorDeadline(), logger)

	client := infra.NewOllamaClient(settings.OllamaURL)
	describer := infra.NewOllamaDescriber(client, settings.VisionModel)
	reasoner := infra.NewOllamaReasoner(client, settings.LLMModel, logger)
	window := usecase.NewWindow(settings.ContextWindow)
	gate := usecase.Gate{
		ConfidenceThreshold: settings.ConfidenceThreshold,
		MinInterval:         settings.MinInterventionGap(),
	}

	// Delivery chain: console, optional speech, optional journal.
	notifier := infra.NewConsoleNotifier(console)

	var speaker domain.Speaker
	if settings.SpeakEnabled() {
		speaker = buildSpeaker(settings, logger)
	}

	var journal domain.Journal
	if settings.JournalEnabled {
		j, err := openJournal(paths)
		if err != nil {
			logger.Warn("journal disabled", zap.Error(err))
		} else {
			defer j.Close()
			journal = j
		}
	}

	dispatcher := usecase.NewDispatcher(notifier, speaker, journal, controller, logger)
	pipeline := usecase.NewPipeline(
		describer, reasoner, window, gate, dispatcher, controller,
		settings.PerceptionDeadline(), settings.ReasoningDeadline(), logger,
	)

	var preview domain.PreviewSink
	if settings.ShowPreview {
		framesDir := ""
		if settings.SaveFrames {
			framesDir = paths.FramesDir()
		}
		p, err := infra.NewFilePreview(paths.PreviewFile(), framesDir)
		if err != nil {
			logger.Warn("preview disabled", zap.Error(err))
		} else {
			preview = p
		}
	}

	assistantConfig := daemon.DefaultAssistantConfig()
	assistantConfig.Version = Version
	assistant := daemon.NewAssistant(
		assistantConfig,
		controller, scheduler, pipeline, registry, preview,
		mux.Commands(), console, logger,
	)

	if err := assistant.Run(context.Background(), os.Getpid()); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "nudged is already running; see 'nudged status'.")
		}
		logger.Error("assistant exited", zap.Error(err))
		return err
	}
	return nil
}

// buildSpeaker picks the speech backend. Deepgram needs an API key;
// without one the system voice is used instead.
func buildSpeaker(settings config.Settings, logger *zap.Logger) domain.Speaker {
	if settings.SpeechBackend == config.SpeechDeepgram {
		apiKey := os.Getenv("DEEPGRAM_API_KEY")
		if apiKey != "" {
			return infra.NewDeepgramSpeaker(apiKey, settings.SpeechVoice)
		}
		logger.Warn("DEEPGRAM_API_KEY not set, falling back to the system voice")
	}
	return infra.NewExecSpeaker(settings.SpeechVoice)
}

func openJournal(paths config.Paths) (*infra.EncryptedJournal, error) {
	key, err := infra.EnsureKey(infra.NewFileKeyProvider(paths.KeyFile()))
	if err != nil {
		return nil, err
	}
	return infra.NewEncryptedJournal(paths.JournalFile(), key)
}

// loadSettings reads the config file, applies env overrides, and
// repairs out-of-range values. An unreadable or malformed file is not
// fatal: the returned settings fall back to defaults and the load
// error comes back for the caller to surface.
func loadSettings(path string) (config.Settings, []string, error) {
	settings, err := config.Load(path)
	settings.ApplyEnv()
	notes := settings.Normalize()
	return settings, notes, err
}

// withoutFlag removes a boolean flag from an argument list, in both
// its bare and --flag=value forms.
func withoutFlag(args []string, flag string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func runStatus(cmd *cobra.Command, args []string) error {
	paths, err := config.ResolveDataDir(dataDirFlag)
	if err != nil {
		return err
	}

	pm := infra.NewProcessManager()
	registry := infra.NewFileInstanceRegistry(paths.InstanceFile(), pm)
	flag := infra.NewFilePrivacyFlag(paths.PrivacyFlagFile())

	fmt.Println("\n=== nudged Status ===")

	entry, err := registry.Current()
	if err != nil {
		return err
	}

	switch {
	case entry == nil:
		fmt.Println("Status: NOT RUNNING")
	case pm.IsRunning(entry.PID):
		fmt.Printf("Status: RUNNING (pid %d)\n", entry.PID)
		fmt.Printf("State: %s\n", entry.State)
		if entry.AppVersion != "" {
			fmt.Printf("Version: %s\n", entry.AppVersion)
		}
		if entry.StartedAt > 0 {
			fmt.Printf("Started: %s\n", time.Unix(entry.StartedAt, 0).Format("2006-01-02 15:04:05"))
		}
		if entry.LastHeartbeat > 0 {
			lastBeat := time.Unix(entry.LastHeartbeat, 0)
			fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
		}
	default:
		fmt.Printf("Status: NOT RUNNING (stale entry from pid %d)\n", entry.PID)
	}

	if flag.Engaged() {
		fmt.Println("Privacy: ON (all monitoring stopped)")
	} else {
		fmt.Println("Privacy: off")
	}

	// Journal totals, when the journal exists and is readable.
	provider := infra.NewFileKeyProvider(paths.KeyFile())
	if provider.KeyExists() {
		if j, err := openJournal(paths); err == nil {
			defer j.Close()
			ctx := context.Background()
			if n, err := j.Count(ctx); err == nil {
				fmt.Printf("Interventions recorded: %d\n", n)
			}
			if recs, err := j.Recent(ctx, 1); err == nil && len(recs) > 0 {
				fmt.Printf("Last intervention: %s (%s)\n",
					recs[0].DeliveredAt.Format("2006-01-02 15:04:05"), recs[0].Intent)
			}
		}
	}

	if entry == nil || !pm.IsRunning(entry.PID) {
		fmt.Println("\nRun 'nudged run' to start the assistant.")
	}
	fmt.Println("=====================")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	paths, err := config.ResolveDataDir(dataDirFlag)
	if err != nil {
		return err
	}

	provider := infra.NewFileKeyProvider(paths.KeyFile())
	if !provider.KeyExists() {
		fmt.Println("No journal yet. It is created on the first intervention.")
		return nil
	}

	j, err := openJournal(paths)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	records, err := j.Recent(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No interventions recorded yet.")
		return nil
	}

	fmt.Println("\n=== Recent Interventions ===")
	for _, rec := range records {
		fmt.Printf("\n[%s] %s (%.0f%%)\n",
			rec.DeliveredAt.Format("2006-01-02 15:04:05"), rec.Intent, rec.Confidence*100)
		if rec.Suggestion != "" {
			fmt.Printf("  💡 %s\n", rec.Suggestion)
		}
		if rec.Scene != "" {
			fmt.Printf("  Scene: %s\n", rec.Scene)
		}
	}
	fmt.Println("\n============================")
	return nil
}

func runPrivacy(cmd *cobra.Command, args []string) error {
	paths, err := config.ResolveDataDir(dataDirFlag)
	if err != nil {
		return err
	}
	flag := infra.NewFilePrivacyFlag(paths.PrivacyFlagFile())

	if len(args) == 0 {
		if flag.Engaged() {
			fmt.Printf("Privacy mode is ON (flag: %s)\n", flag.Path())
		} else {
			fmt.Println("Privacy mode is off.")
		}
		return nil
	}

	switch args[0] {
	case "on":
		if err := flag.Engage(); err != nil {
			return fmt.Errorf("failed to set privacy flag: %w", err)
		}
		fmt.Println("🔒 Privacy mode ON - All monitoring stopped")
	case "off":
		if err := flag.Disengage(); err != nil {
			return fmt.Errorf("failed to clear privacy flag: %w", err)
		}
		fmt.Println("✅ Privacy mode OFF - Assistant monitoring enabled")
	default:
		return fmt.Errorf("unknown argument %q (want on or off)", args[0])
	}

	// A live instance only re-reads the flag on its own toggle.
	pm := infra.NewProcessManager()
	registry := infra.NewFileInstanceRegistry(paths.InstanceFile(), pm)
	if entry, err := registry.Current(); err == nil && entry != nil && pm.IsRunning(entry.PID) {
		fmt.Printf("nudged is running (pid %d); press 'x' there or send SIGUSR2 to apply it now.\n", entry.PID)
	}
	return nil
}

func runPreflight(cmd *cobra.Command, args []string) error {
	paths, err := config.ResolveDataDir(dataDirFlag)
	if err != nil {
		return err
	}
	configPath := configFlag
	if configPath == "" {
		configPath = paths.ConfigFile()
	}
	settings, notes, loadErr := loadSettings(configPath)

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	var source domain.FrameSource
	switch settings.Source {
	case config.SourceDir:
		if settings.FramesDir != "" {
			source = infra.NewDirectorySource(config.ExpandHome(settings.FramesDir), logger)
		}
	default:
		source = infra.NewCameraSource(settings.CameraID, settings.CaptureFPS, logger)
	}

	pm := infra.NewProcessManager()
	client := infra.NewOllamaClient(settings.OllamaURL)
	pf := infra.NewPreflight(infra.PreflightOptions{
		DataDir:     paths.DataDir,
		OllamaURL:   settings.OllamaURL,
		VisionModel: settings.VisionModel,
		LLMModel:    settings.LLMModel,
		ConfigErr:   loadErr,
		ConfigNotes: notes,
		Source:      source,
		GrabTimeout: settings.SensorDeadline(),
	}, client, pm)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("\n=== Preflight Checks ===")
	failed := 0
	for _, result := range pf.Run(ctx) {
		mark := "✅"
		if !result.OK {
			mark = "❌"
			failed++
		}
		fmt.Printf("%s %s: %s\n", mark, result.Name, result.Detail)
	}
	fmt.Println("========================")

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Println("All checks passed. Run 'nudged run' to start.")
	return nil
}

func createLogger(paths config.Paths) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{paths.LogFile()}
	cfg.ErrorOutputPaths = []string{paths.LogFile()}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("nudged %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
