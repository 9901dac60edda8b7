package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jmylchreest/revoice/internal/config"
	"github.com/jmylchreest/revoice/internal/engine"
	"github.com/jmylchreest/revoice/internal/events"
	"github.com/jmylchreest/revoice/internal/executor"
	"github.com/jmylchreest/revoice/internal/ffmpeg"
	"github.com/jmylchreest/revoice/internal/merger"
	"github.com/jmylchreest/revoice/internal/pipeline"
	"github.com/jmylchreest/revoice/internal/scheduler"
	"github.com/jmylchreest/revoice/internal/storage"
)

// app holds the assembled runtime shared by serve and translate.
type app struct {
	cfg     *config.Config
	store   *storage.Store
	uploads *storage.UploadStore
	tool    *ffmpeg.Tool
	bus     *events.Bus
	manager *scheduler.Manager
}

// buildApp wires storage, engines, the pipeline, and the scheduler from
// the loaded configuration.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.New(cfg.Storage.TasksPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing task store: %w", err)
	}
	uploads, err := storage.NewUploadStore(cfg.Storage.UploadsPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing upload store: %w", err)
	}

	bins, err := ffmpeg.Resolve(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if err != nil {
		return nil, fmt.Errorf("resolving media tools: %w", err)
	}
	tool := ffmpeg.NewTool(bins)

	separator, err := engine.NewHTTPSeparator(cfg.Separator.Endpoint,
		engine.WithSeparatorTimeout(cfg.Separator.Timeout))
	if err != nil {
		return nil, fmt.Errorf("separator engine: %w", err)
	}
	tracker, err := engine.NewHTTPTracker(cfg.Tracker.Endpoint,
		engine.WithTrackerTimeout(cfg.Tracker.Timeout))
	if err != nil {
		return nil, fmt.Errorf("tracker engine: %w", err)
	}
	transcriber, err := engine.NewHTTPTranscriber(cfg.Transcriber.Endpoint,
		engine.WithTranscriberTimeout(cfg.Transcriber.Timeout))
	if err != nil {
		return nil, fmt.Errorf("transcriber engine: %w", err)
	}
	cloner, err := engine.NewXTTSCloner(cfg.Cloner.Endpoint,
		engine.WithClonerTimeout(cfg.Cloner.Timeout))
	if err != nil {
		return nil, fmt.Errorf("cloner engine: %w", err)
	}
	translator := engine.NewOpenAITranslator(
		newChatClient(cfg.Translator),
		engine.WithTranslatorModel(cfg.Translator.Model),
		engine.WithTranslatorRetries(cfg.Translator.MaxRetries),
	)

	mix := merger.New(merger.Config{
		MaxStretch:          cfg.Merger.MaxStretch,
		AccompanimentGainDB: cfg.Merger.AccompanimentGainDB,
	}, tool, logger)

	bus := events.New(cfg.Events.QueueCapacity, statusSnapshot(store), logger)

	env := pipeline.NewEnv(pipeline.Env{
		Store:       store,
		Tool:        tool,
		Separator:   separator,
		Tracker:     tracker,
		Transcriber: transcriber,
		Translator:  translator,
		Cloner:      cloner,
		Merger:      mix,
		Bus:         bus,
		Logger:      logger,
		Cfg: pipeline.Config{
			SilenceSplitGapS:   cfg.Transcriber.SilenceSplitGapS,
			TranslateBatchSize: cfg.Translator.BatchSize,
			SegmentWorkers:     cfg.Scheduler.PerSegmentParallelism,
		},
	})
	exec := executor.New(env, logger)

	manager := scheduler.New(store, uploads, exec, tool, bus,
		scheduler.Config{MaxConcurrentTasks: cfg.Scheduler.MaxConcurrentTasks}, logger)

	return &app{
		cfg:     cfg,
		store:   store,
		uploads: uploads,
		tool:    tool,
		bus:     bus,
		manager: manager,
	}, nil
}

// newChatClient builds the OpenAI-compatible client for the translator.
func newChatClient(cfg config.TranslatorConfig) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(oc)
}

// statusSnapshot feeds the event bus its snapshot-on-subscribe events
// from the on-disk manifests.
func statusSnapshot(store *storage.Store) events.SnapshotFunc {
	return func(taskID string) (events.Event, bool) {
		state, err := store.ReadStatus(taskID)
		if err != nil {
			return events.Event{}, false
		}
		return events.StatusEvent(state), true
	}
}
