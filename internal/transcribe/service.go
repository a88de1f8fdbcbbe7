package transcribe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
)

// Service owns the loaded engines and runs transcriptions against them.
type Service struct {
	engines       map[string]Engine
	defaultEngine string
	sem           chan struct{}
	logger        *log.Logger
}

// NewService creates an empty service. maxConcurrent bounds concurrent
// engine calls across all engines; 0 means unlimited.
func NewService(maxConcurrent int, logger *log.Logger) *Service {
	s := &Service{
		engines: make(map[string]Engine),
		logger:  logger.WithPrefix("whisper"),
	}
	if maxConcurrent > 0 {
		s.sem = make(chan struct{}, maxConcurrent)
	}
	return s
}

// RegisterEngine adds an engine. The first engine registered becomes the
// default until SetDefault is called.
func (s *Service) RegisterEngine(engine Engine) {
	s.engines[engine.Name()] = engine
	if s.defaultEngine == "" {
		s.defaultEngine = engine.Name()
	}
	s.logger.Info("registered engine", "engine", engine.Name())
}

func (s *Service) SetDefault(name string) error {
	if _, ok := s.engines[name]; !ok {
		return fmt.Errorf("%w: %s (available: %v)", ErrUnknownEngine, name, s.EngineNames())
	}
	s.defaultEngine = name
	return nil
}

func (s *Service) DefaultEngine() string {
	return s.defaultEngine
}

// Engine looks up an engine by name; "" selects the default.
func (s *Service) Engine(name string) (Engine, error) {
	if name == "" {
		name = s.defaultEngine
	}
	engine, ok := s.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownEngine, name, s.EngineNames())
	}
	return engine, nil
}

// EngineNames returns the registered engine names, sorted.
func (s *Service) EngineNames() []string {
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Transcribe runs the selected engine on audioPath and aggregates its
// segments into a Result.
func (s *Service) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, Info, error) {
	engine, err := s.Engine(opts.Engine)
	if err != nil {
		return nil, Info{}, err
	}

	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-ctx.Done():
			return nil, Info{}, ctx.Err()
		}
	}

	s.logger.Debug("starting transcription", "engine", engine.Name(), "language", opts.Language)
	start := time.Now()

	var c Collector
	info, err := engine.Transcribe(ctx, audioPath, opts, c.Add)
	if err != nil {
		return nil, Info{}, fmt.Errorf("%s: %w", engine.Name(), err)
	}

	s.logger.Info("transcription complete",
		"engine", engine.Name(),
		"language", info.Language,
		"segments", c.Len(),
		"audio", time.Duration(info.Duration*float64(time.Second)).Round(time.Millisecond),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return c.Result(info.Language), info, nil
}

// Close shuts down every engine.
func (s *Service) Close() error {
	var errs []error
	for _, name := range s.EngineNames() {
		if err := s.engines[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
