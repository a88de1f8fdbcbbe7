package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/voicenote/whisper-api/internal/api"
	"github.com/voicenote/whisper-api/internal/api/middleware"
	"github.com/voicenote/whisper-api/internal/auth"
	"github.com/voicenote/whisper-api/internal/config"
	"github.com/voicenote/whisper-api/internal/db"
	"github.com/voicenote/whisper-api/internal/ffmpeg"
	"github.com/voicenote/whisper-api/internal/gpu"
	"github.com/voicenote/whisper-api/internal/job"
	"github.com/voicenote/whisper-api/internal/storage"
	"github.com/voicenote/whisper-api/internal/transcribe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "listen host")
	serveCmd.Flags().IntP("port", "p", 8000, "listen port")
	v.BindPFlag("host", serveCmd.Flags().Lookup("host"))
	v.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gpuInfo := gpu.DetectGPU()
	if gpuInfo.Device != "" {
		logger.Info("gpu detected", "device", gpuInfo.Device, "driver", gpuInfo.Driver, "vram_total", gpuInfo.VRAMTotal)
	}
	tools := ffmpeg.DetectTools()
	if tools.Available() {
		logger.Debug("ffmpeg found", "version", tools.Version)
	} else {
		logger.Warn("ffmpeg/ffprobe not found on PATH; conversion for whisper.cpp and large openai uploads will fail")
		if cfg.ValidateAudio {
			logger.Warn("audio validation disabled, ffprobe missing")
			cfg.ValidateAudio = false
		}
	}

	svc, err := buildService(ctx, cfg, gpuInfo, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("close engines", "err", err)
		}
	}()

	store, err := storage.NewTempStore(cfg.TempDir)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Config:  cfg,
		Logger:  logger,
		Service: svc,
		Store:   store,
		GPU:     gpuInfo,
		FFmpeg:  tools,
	}

	if cfg.DBPath != "" {
		database, err := db.NewSQLite(cfg.DBPath, logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		deps.DB = database

		if cfg.AuthEnabled {
			if err := database.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
				return fmt.Errorf("ensure admin user: %w", err)
			}
			if cfg.JWTSecretGenerated {
				logger.Warn("jwt_secret not set, generated a random one; tokens won't survive a restart")
			}
			deps.JWT = auth.NewJWTService(cfg.JWTSecret)
		}
		if cfg.JobsEnabled {
			deps.Jobs = job.NewJobQueue(database.DB(), logger)
		}
	}

	if cfg.RateLimit > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
		defer deps.RateLimiter.Stop()
	}

	router := api.NewRouter(deps)

	// the router registers the job handler, so the queue starts after it
	if deps.Jobs != nil {
		if err := deps.Jobs.Start(); err != nil {
			return err
		}
		defer deps.Jobs.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("listening", "addr", cfg.Addr(), "engines", svc.EngineNames(), "default", svc.DefaultEngine())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "err", err)
	}
	return nil
}

// buildService creates and starts every configured engine. Engines that fail
// to start are closed again before the error is returned.
func buildService(ctx context.Context, cfg *config.Config, gpuInfo *gpu.GPUInfo, logger *log.Logger) (*transcribe.Service, error) {
	svc := transcribe.NewService(cfg.MaxConcurrent, logger)

	for _, name := range cfg.Engines {
		engine, err := newEngine(ctx, cfg, name, gpuInfo, logger)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("start %s: %w", name, err)
		}
		svc.RegisterEngine(engine)
	}

	if err := svc.SetDefault(cfg.Engine); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func newEngine(ctx context.Context, cfg *config.Config, name string, gpuInfo *gpu.GPUInfo, logger *log.Logger) (transcribe.Engine, error) {
	switch name {
	case config.EngineFasterWhisper:
		device, computeType := gpu.ResolveDevice(gpuInfo, cfg.Device, cfg.ComputeType)
		fw := transcribe.NewFasterWhisper(transcribe.FasterWhisperConfig{
			Python:      cfg.Python,
			ModelSize:   cfg.ModelSize,
			Device:      device,
			ComputeType: computeType,
			BeamSize:    cfg.BeamSize,
			VADFilter:   cfg.VADFilter,
		}, logger)
		logger.Info("loading faster-whisper model", "model", cfg.ModelSize, "device", device, "compute_type", computeType)
		if err := fw.Start(ctx); err != nil {
			fw.Close()
			return nil, err
		}
		return fw, nil
	case config.EngineWhisperCpp:
		return transcribe.NewWhisperCppClient(cfg.WhisperURL, cfg.WhisperConvert, logger), nil
	case config.EngineOpenAI:
		return transcribe.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", transcribe.ErrUnknownEngine, name)
	}
}
