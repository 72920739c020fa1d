// Package infra contains implementations of the domain interfaces:
// devices, model APIs, files, and the terminal.
package infra

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

const (
	captureWidth  = 640
	captureHeight = 480
)

// CameraSource implements domain.FrameSource over a warm ffmpeg stream.
// ffmpeg runs for the whole session writing MJPEG to stdout; a reader
// goroutine splits the stream into JPEG frames and keeps only the
// freshest one in a single-slot mailbox. Grab consumes the slot, so a
// frame is handed out at most once and stale frames are overwritten,
// never queued.
type CameraSource struct {
	deviceID int
	fps      int
	logger   *zap.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	frames  chan domain.Frame
	done    chan struct{}
	running bool

	errMu   sync.Mutex
	readErr error

	seq       atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewCameraSource creates a camera source for the given device index.
func NewCameraSource(deviceID, fps int, logger *zap.Logger) *CameraSource {
	return &CameraSource{
		deviceID: deviceID,
		fps:      fps,
		logger:   logger,
	}
}

// Start launches ffmpeg and the stream reader. Idempotent while running.
func (c *CameraSource) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	cmd, err := c.buildCommand()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	c.cmd = cmd
	c.frames = make(chan domain.Frame, 1)
	c.done = make(chan struct{})
	c.running = true
	c.setReadErr(nil)

	go c.readLoop(stdout, c.frames, c.done)

	c.logger.Info("camera stream started",
		zap.Int("device", c.deviceID),
		zap.Int("fps", c.fps))
	return nil
}

// buildCommand assembles the platform-specific ffmpeg invocation.
func (c *CameraSource) buildCommand() (*exec.Cmd, error) {
	size := fmt.Sprintf("%dx%d", captureWidth, captureHeight)
	rate := fmt.Sprintf("%d", c.fps)

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("ffmpeg",
			"-loglevel", "error",
			"-f", "avfoundation",
			"-video_size", size,
			"-framerate", rate,
			"-i", fmt.Sprintf("%d", c.deviceID),
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "2",
			"-"), nil
	case "linux":
		return exec.Command("ffmpeg",
			"-loglevel", "error",
			"-f", "v4l2",
			"-video_size", size,
			"-framerate", rate,
			"-i", fmt.Sprintf("/dev/video%d", c.deviceID),
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "2",
			"-"), nil
	case "windows":
		return exec.Command("ffmpeg",
			"-loglevel", "error",
			"-f", "dshow",
			"-video_size", size,
			"-framerate", rate,
			"-i", "video=USB Camera",
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "2",
			"-"), nil
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// readLoop splits the MJPEG stream into frames and publishes each into
// the mailbox until the stream ends.
func (c *CameraSource) readLoop(r io.Reader, frames chan domain.Frame, done chan struct{}) {
	defer close(done)

	br := bufio.NewReaderSize(r, 1<<20)
	chunk := make([]byte, 64*1024)
	var buf []byte

	for {
		n, err := br.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			var complete [][]byte
			complete, buf = SplitJPEGStream(buf)
			for _, jpeg := range complete {
				c.publish(frames, jpeg)
			}
		}
		if err != nil {
			if err != io.EOF {
				c.setReadErr(err)
				c.logger.Warn("camera stream read failed", zap.Error(err))
			} else {
				c.setReadErr(io.EOF)
			}
			return
		}
	}
}

// publish puts a frame into the single-slot mailbox, overwriting any
// unconsumed frame. Data is owned by the frame from here on.
func (c *CameraSource) publish(frames chan domain.Frame, jpeg []byte) {
	frame := domain.Frame{
		Data:       jpeg,
		Width:      captureWidth,
		Height:     captureHeight,
		Seq:        c.seq.Add(1),
		CapturedAt: time.Now(),
	}
	c.published.Add(1)

	select {
	case frames <- frame:
		return
	default:
	}
	// Slot occupied: drop the stale frame, keep the fresh one.
	select {
	case <-frames:
		c.dropped.Add(1)
	default:
	}
	select {
	case frames <- frame:
	default:
	}
}

// Grab returns the freshest frame, waiting for one if the mailbox is
// empty. A dead stream or an expired ctx ends the wait.
func (c *CameraSource) Grab(ctx context.Context) (domain.Frame, error) {
	c.mu.Lock()
	frames, done, running := c.frames, c.done, c.running
	c.mu.Unlock()

	if !running {
		return domain.Frame{}, fmt.Errorf("camera not started")
	}

	select {
	case frame := <-frames:
		return frame, nil
	case <-done:
		if err := c.readError(); err != nil && err != io.EOF {
			return domain.Frame{}, fmt.Errorf("camera stream ended: %w", err)
		}
		return domain.Frame{}, fmt.Errorf("camera stream ended")
	case <-ctx.Done():
		return domain.Frame{}, fmt.Errorf("%w: %w", domain.ErrNoFrame, ctx.Err())
	}
}

// Stop kills ffmpeg and waits for the reader to drain. Safe to call
// repeatedly; Start may be called again afterwards.
func (c *CameraSource) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	<-c.done
	if c.cmd != nil {
		_ = c.cmd.Wait()
	}
	c.cmd = nil

	c.logger.Info("camera stream stopped",
		zap.Uint64("frames_seen", c.published.Load()),
		zap.Uint64("frames_overwritten", c.dropped.Load()))
	return nil
}

func (c *CameraSource) setReadErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.readErr = err
}

func (c *CameraSource) readError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// SplitJPEGStream extracts complete JPEG images from an MJPEG byte
// stream. It returns the finished frames (each a fresh allocation) and
// the unconsumed tail, which the caller feeds back with more data.
func SplitJPEGStream(buf []byte) (frames [][]byte, rest []byte) {
	for {
		soi := bytes.Index(buf, jpegSOI)
		if soi < 0 {
			// No start marker. Keep the final byte in case it is the
			// first half of a marker split across reads.
			if len(buf) > 1 {
				buf = buf[len(buf)-1:]
			}
			return frames, buf
		}
		buf = buf[soi:]

		eoi := bytes.Index(buf[2:], jpegEOI)
		if eoi < 0 {
			return frames, buf
		}
		end := eoi + 2 + 2

		frame := make([]byte, end)
		copy(frame, buf[:end])
		frames = append(frames, frame)
		buf = buf[end:]
	}
}

// Ensure CameraSource implements domain.FrameSource.
var _ domain.FrameSource = (*CameraSource)(nil)
