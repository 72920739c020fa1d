//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/daemon"
	"github.com/quietdesk/nudged/internal/domain"
	"github.com/quietdesk/nudged/internal/infra"
	"github.com/quietdesk/nudged/internal/usecase"
)

const (
	visionModel = "llava"
	llmModel    = "llama3.1"

	assistReply = `{"should_assist": true, "confidence": 0.92, ` +
		`"intent": "debugging a failing test", ` +
		`"suggestion": "Try running the failing test in isolation"}`
	noAssistReply = `{"should_assist": false, "confidence": 0.2, ` +
		`"intent": "just working", "suggestion": ""}`
)

var _ = Describe("Assistant", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "nudged-integration-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("intervention flow", func() {
		Context("when the reasoner is confident", func() {
			It("should print a suggestion and journal it", func() {
				st := startStack(tmpDir, stackOptions{intent: assistReply, frameCount: 2})
				defer st.shutdown()

				Eventually(st.console.String, "5s", "20ms").
					Should(ContainSubstring("Assistant Suggestion"))
				Eventually(st.console.String, "2s", "20ms").
					Should(ContainSubstring("Try running the failing test in isolation"))

				Expect(st.quit()).To(Succeed())

				n, err := st.journal.Count(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(BeNumerically(">=", 1))

				records, err := st.journal.Recent(context.Background(), 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(records[0].Intent).To(Equal("debugging a failing test"))
				Expect(records[0].Scene).To(Equal("A person typing on a laptop"))
				Expect(records[0].RunID).NotTo(BeEmpty())
			})
		})

		Context("when interventions are rate limited", func() {
			It("should deliver only the first suggestion", func() {
				st := startStack(tmpDir, stackOptions{
					intent:     assistReply,
					frameCount: 2,
					gap:        time.Hour,
				})
				defer st.shutdown()

				Eventually(st.console.String, "5s", "20ms").
					Should(ContainSubstring("Assistant Suggestion"))

				// Analysis keeps running, but the gate holds everything
				// inside the spacing window back.
				Consistently(func() int {
					return strings.Count(st.console.String(), "Assistant Suggestion")
				}, "400ms", "40ms").Should(Equal(1))

				Expect(st.quit()).To(Succeed())

				n, err := st.journal.Count(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})
		})
	})

	Describe("privacy mode", func() {
		It("should stop monitoring, persist the flag, and resume on toggle", func() {
			st := startStack(tmpDir, stackOptions{intent: assistReply, frameCount: 2, gap: time.Hour})
			defer st.shutdown()

			Eventually(st.console.String, "5s", "20ms").
				Should(ContainSubstring("Assistant is now running"))

			st.commands <- domain.CommandPrivacyToggle
			Eventually(st.console.String, "2s", "20ms").
				Should(ContainSubstring("Privacy mode ON"))
			Eventually(func() bool { return st.flag.Engaged() }, "2s", "20ms").
				Should(BeTrue())

			st.commands <- domain.CommandPrivacyToggle
			Eventually(st.console.String, "2s", "20ms").
				Should(ContainSubstring("Privacy mode OFF"))
			Eventually(func() bool { return st.flag.Engaged() }, "2s", "20ms").
				Should(BeFalse())

			Expect(st.quit()).To(Succeed())
		})

		Context("when the flag file already exists at startup", func() {
			It("should start locked and only monitor after the lock lifts", func() {
				flagPath := filepath.Join(tmpDir, "data", ".privacy_mode")
				Expect(os.MkdirAll(filepath.Dir(flagPath), 0700)).To(Succeed())
				Expect(os.WriteFile(flagPath, []byte("on"), 0600)).To(Succeed())

				st := startStack(tmpDir, stackOptions{intent: assistReply, frameCount: 2})
				defer st.shutdown()

				Eventually(st.console.String, "5s", "20ms").
					Should(ContainSubstring("Privacy mode is on"))
				Consistently(st.console.String, "400ms", "40ms").
					ShouldNot(ContainSubstring("Assistant Suggestion"))

				st.commands <- domain.CommandPrivacyToggle
				Eventually(st.console.String, "5s", "20ms").
					Should(ContainSubstring("Assistant Suggestion"))

				Expect(st.quit()).To(Succeed())
			})
		})
	})

	Describe("sensor failure", func() {
		Context("when the frame directory is empty", func() {
			It("should refuse to start", func() {
				st := startStack(tmpDir, stackOptions{intent: noAssistReply, frameCount: 0})
				defer st.shutdown()

				var err error
				Eventually(st.done, "3s").Should(Receive(&err))
				Expect(err).To(HaveOccurred())

				entry, regErr := st.registry.Current()
				Expect(regErr).NotTo(HaveOccurred())
				Expect(entry).To(BeNil())
			})
		})

		Context("when the sensor keeps failing mid-run", func() {
			It("should shut down with a fatal sensor error", func() {
				st := startStack(tmpDir, stackOptions{intent: noAssistReply, frameCount: 2})
				defer st.shutdown()

				Eventually(st.console.String, "5s", "20ms").
					Should(ContainSubstring("Assistant is now running"))

				// Yank the backing files; every grab from here on fails.
				Expect(os.RemoveAll(st.framesDir)).To(Succeed())

				var err error
				Eventually(st.done, "5s").Should(Receive(&err))
				Expect(err).To(MatchError(domain.ErrSensorFatal))
				Expect(st.console.String()).To(ContainSubstring("❌"))

				entry, regErr := st.registry.Current()
				Expect(regErr).NotTo(HaveOccurred())
				Expect(entry).To(BeNil())
			})
		})
	})
})

// stackOptions configures one assistant stack.
type stackOptions struct {
	intent     string        // reasoning model reply
	frameCount int           // images seeded into the frame directory
	gap        time.Duration // minimum intervention spacing
}

// stack is a fully wired assistant over real components: directory
// frame source, stubbed Ollama server, encrypted journal, on-disk
// privacy flag and instance registry.
type stack struct {
	framesDir string
	console   *safeBuffer
	commands  chan domain.Command
	flag      *infra.FilePrivacyFlag
	registry  *infra.FileInstanceRegistry
	journal   *infra.EncryptedJournal
	server    *httptest.Server
	done      chan error
	cancel    context.CancelFunc
}

func startStack(tmpDir string, opts stackOptions) *stack {
	logger := zap.NewNop()

	framesDir := filepath.Join(tmpDir, "frames")
	Expect(os.MkdirAll(framesDir, 0700)).To(Succeed())
	for i := 0; i < opts.frameCount; i++ {
		name := filepath.Join(framesDir, "frame_"+string(rune('a'+i))+".jpg")
		Expect(os.WriteFile(name, []byte{0xFF, 0xD8, byte(i), 0xFF, 0xD9}, 0600)).To(Succeed())
	}

	dataDir := filepath.Join(tmpDir, "data")
	Expect(os.MkdirAll(dataDir, 0700)).To(Succeed())

	server := newOllamaStub(opts.intent)

	client := infra.NewOllamaClient(server.URL)
	describer := infra.NewOllamaDescriber(client, visionModel)
	reasoner := infra.NewOllamaReasoner(client, llmModel, logger)

	flag := infra.NewFilePrivacyFlag(filepath.Join(dataDir, ".privacy_mode"))
	controller := usecase.NewController(flag, logger)

	source := infra.NewDirectorySource(framesDir, logger)
	scheduler := usecase.NewScheduler(source, 30*time.Millisecond, time.Second, logger)

	pm := infra.NewProcessManager()
	registry := infra.NewFileInstanceRegistry(filepath.Join(dataDir, "instance.json"), pm)

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(filepath.Join(dataDir, ".journal_key")))
	Expect(err).NotTo(HaveOccurred())
	journal, err := infra.NewEncryptedJournal(filepath.Join(dataDir, "journal.db"), key)
	Expect(err).NotTo(HaveOccurred())

	console := &safeBuffer{}
	notifier := infra.NewConsoleNotifier(console)
	dispatcher := usecase.NewDispatcher(notifier, nil, journal, controller, logger)
	pipeline := usecase.NewPipeline(
		describer, reasoner, usecase.NewWindow(5),
		usecase.Gate{ConfidenceThreshold: 0.6, MinInterval: opts.gap},
		dispatcher, controller,
		2*time.Second, 2*time.Second, logger,
	)

	commands := make(chan domain.Command, 8)
	assistant := daemon.NewAssistant(
		daemon.AssistantConfig{
			PollInterval:      5 * time.Millisecond,
			HeartbeatInterval: time.Second,
			Version:           "integration",
		},
		controller, scheduler, pipeline, registry, nil, commands, console, logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	st := &stack{
		framesDir: framesDir,
		console:   console,
		commands:  commands,
		flag:      flag,
		registry:  registry,
		journal:   journal,
		server:    server,
		done:      make(chan error, 1),
		cancel:    cancel,
	}
	go func() {
		st.done <- assistant.Run(ctx, os.Getpid())
		close(st.done)
	}()
	return st
}

// quit asks the loop to stop and waits for it.
func (s *stack) quit() error {
	s.commands <- domain.CommandQuit
	select {
	case err := <-s.done:
		return err
	case <-time.After(5 * time.Second):
		return context.DeadlineExceeded
	}
}

// shutdown releases everything; safe after quit since done is closed
// once the loop returns.
func (s *stack) shutdown() {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	}
	s.journal.Close()
	s.server.Close()
}

// newOllamaStub answers /api/generate for both models: a fixed caption
// for the vision model, the configured verdict for the LLM.
func newOllamaStub(intentReply string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		reply := intentReply
		if req.Model == visionModel {
			reply = "A person typing on a laptop"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": reply})
	}))
}

// safeBuffer is a goroutine-safe console capture.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
