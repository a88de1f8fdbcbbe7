package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voicenote/whisper-api/internal/config"
	"github.com/voicenote/whisper-api/internal/logging"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "whisper-api",
	Short: "HTTP speech-to-text service",
	Long: `whisper-api accepts audio uploads on POST /transcribe and answers with the
detected language, the full text and timestamped segments.

Engines:
  faster-whisper  local Python worker (default)
  whisper.cpp     whisper.cpp server over HTTP
  openai          OpenAI-compatible /audio/transcriptions API`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "text", "text, json or logfmt")
	rootCmd.PersistentFlags().String("engine", config.EngineFasterWhisper, "default transcription engine")
	rootCmd.PersistentFlags().String("model-size", "small", "faster-whisper model")
	rootCmd.PersistentFlags().String("device", "cpu", "faster-whisper device: cpu, cuda or auto")

	// Bind flags to viper
	v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	v.BindPFlag("engine", rootCmd.PersistentFlags().Lookup("engine"))
	v.BindPFlag("model_size", rootCmd.PersistentFlags().Lookup("model-size"))
	v.BindPFlag("device", rootCmd.PersistentFlags().Lookup("device"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(transcribeCmd)
}

// loadConfig reads the configuration and builds the root logger.
func loadConfig() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
