package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vid2doc/internal/config"
	"vid2doc/internal/frames"
	"vid2doc/internal/logging"
	"vid2doc/internal/media"
	"vid2doc/internal/services/llm"
	"vid2doc/internal/services/s3"
)

func newFramesCommand(configFlag *string) *cobra.Command {
	var (
		outputDir string
		interval  float64
		maxFrames int
		threshold float64
		describe  bool
		keyPrefix string
	)

	cmd := &cobra.Command{
		Use:   "frames <video>",
		Short: "Sample distinct frames from a video at a fixed interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotenv()
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			if err != nil {
				return err
			}

			if interval <= 0 {
				interval = float64(cfg.Processing.SampleInterval)
			}
			if threshold <= 0 {
				threshold = cfg.Processing.SimilarityThreshold
			}
			if outputDir == "" {
				outputDir = "."
			}

			processor := media.NewProcessor(cfg.FFmpegBinary(), cfg.FFprobeBinary(),
				media.WithToolTimeout(time.Duration(cfg.Processing.ToolTimeoutSeconds)*time.Second))

			var uploader s3.Uploader
			var describer frames.Describer
			if describe {
				client, err := s3.NewClient(cmd.Context(), s3.Config{
					Bucket:          cfg.Storage.Bucket,
					Region:          cfg.Storage.Region,
					Endpoint:        cfg.Storage.Endpoint,
					AccessKeyID:     cfg.Storage.AccessKeyID,
					SecretAccessKey: cfg.Storage.SecretAccessKey,
					CDNBaseURL:      cfg.Storage.CDNBaseURL,
					KeyPrefix:       cfg.Storage.KeyPrefix,
				})
				if err != nil {
					return fmt.Errorf("initialize object storage: %w", err)
				}
				uploader = client
				describer = llm.NewClient(llm.Config{
					APIKey:         cfg.LLM.APIKey,
					BaseURL:        cfg.LLM.BaseURL,
					Model:          cfg.LLM.Model,
					VisionModel:    cfg.LLM.VisionModel,
					TimeoutSeconds: cfg.LLM.TimeoutSeconds,
				})
			}

			sampler := frames.NewSampler(processor, uploader, describer, frames.SamplerOptions{
				IntervalSeconds:     interval,
				MaxFrames:           maxFrames,
				SimilarityThreshold: threshold,
				Width:               cfg.Processing.FrameWidth,
				Height:              cfg.Processing.FrameHeight,
				MaxDuration:         time.Duration(cfg.Processing.SampleTimeoutSeconds) * time.Second,
			}, logger)

			samples, err := sampler.Sample(cmd.Context(), args[0], outputDir)
			if err != nil {
				return err
			}
			if describe {
				samples, err = sampler.Describe(cmd.Context(), keyPrefix, samples)
				if err != nil {
					return err
				}
			}

			headers := []string{"Timestamp", "Frame", "Description"}
			rows := make([][]string, 0, len(samples))
			for _, sample := range samples {
				rows = append(rows, []string{
					strconv.FormatFloat(sample.Timestamp, 'f', 1, 64),
					sample.Path,
					sample.Description,
				})
			}
			printTable(cmd.OutOrStdout(), headers, rows, 0)
			fmt.Fprintf(cmd.OutOrStdout(), "%d distinct frames\n", len(samples))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for extracted frames (default current directory)")
	cmd.Flags().Float64Var(&interval, "interval", 0, "Sampling interval in seconds")
	cmd.Flags().IntVar(&maxFrames, "max-frames", 0, "Maximum number of frames to keep")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Perceptual-hash distance below which frames are treated as duplicates")
	cmd.Flags().BoolVar(&describe, "describe", false, "Upload frames and caption them with the vision model")
	cmd.Flags().StringVar(&keyPrefix, "key-prefix", "samples", "Storage key prefix used with --describe")
	return cmd
}
