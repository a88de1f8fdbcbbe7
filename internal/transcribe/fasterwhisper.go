package transcribe

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

//go:embed assets/faster_whisper_worker.py
var workerScript []byte

// FasterWhisperConfig selects the model the worker loads.
type FasterWhisperConfig struct {
	Python      string
	ModelSize   string
	Device      string // cpu or cuda; resolve "auto" before passing it in
	ComputeType string
	BeamSize    int
	VADFilter   bool
}

// workerConn is one running worker process.
type workerConn struct {
	stdin  io.WriteCloser
	dec    *json.Decoder
	stop   func() // kills the process
	wait   func() error
	killed atomic.Bool
}

type workerStarter func() (*workerConn, error)

// workerRequest is one line on the worker's stdin.
type workerRequest struct {
	Audio     string `json:"audio"`
	Language  string `json:"language,omitempty"`
	BeamSize  int    `json:"beam_size,omitempty"`
	VADFilter bool   `json:"vad_filter"`
}

// workerMessage is one line on the worker's stdout.
type workerMessage struct {
	Type string `json:"type"` // ready, info, segment, done, error

	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Duration            float64 `json:"duration"`

	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`

	Error  string `json:"error"`
	Decode bool   `json:"decode"`
}

// FasterWhisper runs faster-whisper in a long-lived Python process. The model
// is loaded once; requests are serialized over the worker's stdin/stdout.
type FasterWhisper struct {
	cfg    FasterWhisperConfig
	logger *log.Logger
	start  workerStarter

	// one slot; holding it guards conn, scriptPath and closed
	sem        chan struct{}
	conn       *workerConn
	scriptPath string
	closed     bool
}

func NewFasterWhisper(cfg FasterWhisperConfig, logger *log.Logger) *FasterWhisper {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	f := &FasterWhisper{
		cfg:    cfg,
		logger: logger.WithPrefix("faster-whisper"),
		sem:    make(chan struct{}, 1),
	}
	f.start = f.startProcess
	return f
}

func (f *FasterWhisper) Name() string {
	return "faster-whisper"
}

// Start launches the worker and blocks until the model is loaded.
func (f *FasterWhisper) Start(ctx context.Context) error {
	if err := f.acquire(ctx); err != nil {
		return err
	}
	defer f.release()
	_, err := f.ensureWorker(ctx)
	return err
}

// acquire waits for the worker slot. A request whose context ends while it
// waits gives up without touching the worker.
func (f *FasterWhisper) acquire(ctx context.Context) error {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	// select picks at random when both are ready
	if err := ctx.Err(); err != nil {
		f.release()
		return err
	}
	return nil
}

func (f *FasterWhisper) release() {
	<-f.sem
}

// ensureWorker returns the running worker, starting one if needed.
// Must be called with the slot held.
func (f *FasterWhisper) ensureWorker(ctx context.Context) (*workerConn, error) {
	if f.closed {
		return nil, fmt.Errorf("%w: faster-whisper is closed", ErrEngineUnavailable)
	}
	if f.conn != nil {
		return f.conn, nil
	}

	f.logger.Info("starting worker", "model", f.cfg.ModelSize, "device", f.cfg.Device, "compute_type", f.cfg.ComputeType)
	conn, err := f.start()
	if err != nil {
		return nil, fmt.Errorf("%w: start faster-whisper worker: %w", ErrEngineUnavailable, err)
	}

	stop := context.AfterFunc(ctx, conn.kill)
	var msg workerMessage
	err = conn.dec.Decode(&msg)
	stop()
	if err != nil || msg.Type != "ready" {
		conn.close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("unexpected %q message", msg.Type)
		}
		return nil, fmt.Errorf("%w: faster-whisper worker did not become ready: %w", ErrEngineUnavailable, err)
	}

	f.logger.Info("worker ready")
	f.conn = conn
	return conn, nil
}

func (f *FasterWhisper) Transcribe(ctx context.Context, audioPath string, opts Options, onSegment func(Segment)) (Info, error) {
	if err := f.acquire(ctx); err != nil {
		return Info{}, err
	}
	defer f.release()

	conn, err := f.ensureWorker(ctx)
	if err != nil {
		return Info{}, err
	}

	req := workerRequest{
		Audio:     audioPath,
		Language:  opts.language(),
		BeamSize:  f.cfg.BeamSize,
		VADFilter: f.cfg.VADFilter,
	}
	line, err := json.Marshal(req)
	if err != nil {
		return Info{}, err
	}

	// Cancellation kills the worker; a new one is started on the next request
	stop := context.AfterFunc(ctx, conn.kill)
	info, err := f.exchange(conn, append(line, '\n'), onSegment)
	if !stop() || err != nil && !errors.Is(err, errWorkerReported) {
		f.dropWorker()
		if ctx.Err() != nil {
			return Info{}, ctx.Err()
		}
	}
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

var errWorkerReported = errors.New("faster-whisper")

func (f *FasterWhisper) exchange(conn *workerConn, line []byte, onSegment func(Segment)) (Info, error) {
	if _, err := conn.stdin.Write(line); err != nil {
		return Info{}, fmt.Errorf("%w: write to worker: %w", ErrEngineUnavailable, err)
	}

	var info Info
	for {
		var msg workerMessage
		if err := conn.dec.Decode(&msg); err != nil {
			return Info{}, fmt.Errorf("%w: read from worker: %w", ErrEngineUnavailable, err)
		}

		switch msg.Type {
		case "info":
			info = Info{
				Language:            msg.Language,
				LanguageProbability: msg.LanguageProbability,
				Duration:            msg.Duration,
			}
		case "segment":
			onSegment(Segment{Start: msg.Start, End: msg.End, Text: msg.Text})
		case "done":
			return info, nil
		case "error":
			if msg.Decode || isDecodeError(msg.Error) {
				return Info{}, fmt.Errorf("%w: %w: %s", ErrUnsupportedAudio, errWorkerReported, msg.Error)
			}
			return Info{}, fmt.Errorf("%w: %s", errWorkerReported, msg.Error)
		default:
			f.logger.Warn("ignoring worker message", "type", msg.Type)
		}
	}
}

// dropWorker stops the current worker. Must be called with the slot held.
func (f *FasterWhisper) dropWorker() {
	if f.conn == nil {
		return
	}
	f.conn.close()
	f.conn = nil
	f.logger.Warn("worker stopped; it will be restarted on the next request")
}

func (f *FasterWhisper) Close() error {
	f.sem <- struct{}{}
	defer f.release()

	f.closed = true
	var err error
	if f.conn != nil {
		// closing stdin ends the worker's read loop
		f.conn.stdin.Close()
		if werr := f.conn.wait(); werr != nil && !f.conn.killed.Load() {
			err = fmt.Errorf("faster-whisper worker: %w", werr)
		}
		f.conn = nil
	}
	if f.scriptPath != "" {
		os.Remove(f.scriptPath)
		f.scriptPath = ""
	}
	return err
}

func (c *workerConn) kill() {
	c.killed.Store(true)
	c.stop()
}

func (c *workerConn) close() {
	c.stdin.Close()
	c.kill()
	c.wait()
}

// startProcess writes the embedded script to disk once and runs it.
func (f *FasterWhisper) startProcess() (*workerConn, error) {
	if f.scriptPath == "" {
		tmp, err := os.CreateTemp("", "faster_whisper_worker-*.py")
		if err != nil {
			return nil, err
		}
		if _, err := tmp.Write(workerScript); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return nil, err
		}
		tmp.Close()
		f.scriptPath = tmp.Name()
	}

	cmd := exec.Command(f.cfg.Python, f.scriptPath,
		"--model", f.cfg.ModelSize,
		"--device", f.cfg.Device,
		"--compute-type", f.cfg.ComputeType,
	)
	return f.runWorker(cmd)
}

// runWorker starts cmd with its stdio wired to a workerConn. Stderr goes to
// the debug log.
func (f *FasterWhisper) runWorker(cmd *exec.Cmd) (*workerConn, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// model download progress, warnings and crash tracebacks
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			f.logger.Debug(scanner.Text())
		}
	}()

	return &workerConn{
		stdin: stdin,
		dec:   json.NewDecoder(stdout),
		stop: func() {
			cmd.Process.Kill()
		},
		// Wait closes the stderr pipe, so the scanner has to drain it first
		wait: func() error {
			<-stderrDone
			return cmd.Wait()
		},
	}, nil
}
