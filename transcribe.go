package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/voicenote/whisper-api/internal/gpu"
	"github.com/voicenote/whisper-api/internal/transcribe"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe a local file and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func init() {
	transcribeCmd.Flags().String("language", "", "language code, empty to detect")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	// an empty list starts only the default engine
	v.Set("engines", "")

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(args[0]); err != nil {
		return err
	}
	language, _ := cmd.Flags().GetString("language")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	svc, err := buildService(ctx, cfg, gpu.DetectGPU(), logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, info, err := svc.Transcribe(ctx, args[0], transcribe.Options{Language: language})
	if err != nil {
		return err
	}
	logger.Info("transcribed", "file", args[0], "language", res.Language, "segments", len(res.Segments), "duration", info.Duration)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
