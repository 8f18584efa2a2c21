package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"vid2doc/internal/api"
	"vid2doc/internal/config"
	"vid2doc/internal/frames"
	"vid2doc/internal/logging"
	"vid2doc/internal/media"
	"vid2doc/internal/merge"
	"vid2doc/internal/notifications"
	"vid2doc/internal/planner"
	"vid2doc/internal/queue"
	"vid2doc/internal/services/llm"
	"vid2doc/internal/services/s3"
	"vid2doc/internal/services/whisper"
	"vid2doc/internal/sources"
	"vid2doc/internal/workflow"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background workflow manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotenv()
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: filepath.Join(cfg.Paths.LogDir, "vid2doc.log"),
	})
	if err != nil {
		return err
	}

	// One daemon per data dir.
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "vid2doc.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return errors.New("another vid2doc instance is already running against this data dir")
	}
	defer lock.Unlock()

	store, err := queue.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	toolTimeout := time.Duration(cfg.Processing.ToolTimeoutSeconds) * time.Second
	processor := media.NewProcessor(cfg.FFmpegBinary(), cfg.FFprobeBinary(), media.WithToolTimeout(toolTimeout))
	uploader, err := s3.NewClient(ctx, s3.Config{
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
	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		VisionModel:    cfg.LLM.VisionModel,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	whisperService := whisper.NewService(whisper.Config{
		APIKey:         cfg.Whisper.APIKey,
		BaseURL:        cfg.Whisper.BaseURL,
		Model:          cfg.Whisper.Model,
		TimeoutSeconds: cfg.Whisper.TimeoutSeconds,
	})
	extractor := frames.NewExtractor(processor, uploader, extractorOptions(cfg.Processing), logger)

	pipeline := workflow.NewPipeline(workflow.PipelineDeps{
		Store:         store,
		Media:         processor,
		Whisper:       whisperService,
		Planner:       planner.New(llmClient),
		Extractor:     extractor,
		Downloader:    sources.NewDownloader(cfg.YtDlpBinary()),
		WorkRoot:      cfg.Paths.WorkDir,
		MaxAudioBytes: int64(cfg.Processing.MaxAudioMiB) << 20,
		Defaults:      plannerDefaults(cfg.Processing),
		Logger:        logger,
	})
	mergeService := merge.NewService(processor, uploader, llmClient, cfg.Paths.WorkDir, logger)

	manager := workflow.NewManager(store, notifications.NewService(store, logger), logger, workflow.Config{
		PollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		ErrorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		Workers:            cfg.Workflow.MaxParallelJobs,
	})
	manager.Register(queue.KindVideo, pipeline)
	manager.Register(queue.KindMerge, workflow.NewMergeRunner(mergeService))

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	defer manager.Stop()

	server := api.New(cfg, store, mergeService, logger)
	if err := server.Start(ctx); err != nil {
		manager.Stop()
		return err
	}
	defer server.Stop()

	logger.Info("vid2doc daemon started", logging.String("api", server.Addr()))
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// extractorOptions maps the integer config knobs onto the extractor's
// fractional-second fields.
func extractorOptions(p config.Processing) frames.Options {
	return frames.Options{
		Width:                p.FrameWidth,
		Height:               p.FrameHeight,
		FrameOffsetSeconds:   float64(p.FrameOffsetSeconds),
		ClipSeconds:          float64(p.ClipSeconds),
		MaxConcurrentUploads: p.MaxConcurrentUploads,
	}
}

// plannerDefaults turns the configured guide preferences into the fallback
// used when a job submission leaves them blank.
func plannerDefaults(p config.Processing) planner.Preferences {
	prefs := planner.Preferences{
		Language: p.PreferredLanguage,
		Tonality: p.PreferredTonality,
	}
	if p.PreferredSteps > 0 {
		prefs.NumberOfSteps = strconv.Itoa(p.PreferredSteps)
	}
	return prefs
}
