package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/revoice/internal/config"
	"github.com/jmylchreest/revoice/internal/events"
	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/scheduler"
	"github.com/jmylchreest/revoice/internal/storage"
)

var (
	translateSourceLang    string
	translateTargetLang    string
	translateSingleSpeaker bool
	translateOutput        string
)

var translateCmd = &cobra.Command{
	Use:   "translate <media-file>",
	Short: "Translate one media file locally",
	Long: `Run the full dubbing pipeline against a local file without the server.

Progress is printed from the task's event stream. On success the dubbed
output is copied next to the input (or to --output).`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&translateSourceLang, "source", "s", models.LangAuto, "Source language code, or auto")
	translateCmd.Flags().StringVarP(&translateTargetLang, "target", "t", "", "Target language code (required)")
	translateCmd.Flags().BoolVar(&translateSingleSpeaker, "single-speaker", false, "Skip speaker tracking")
	translateCmd.Flags().StringVarP(&translateOutput, "output", "o", "", "Where to copy the dubbed output")
	translateCmd.MarkFlagRequired("target")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := slog.Default()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	input := args[0]
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("opening %s: %w", input, err)
	}
	uploadID, err := a.uploads.Put(filepath.Base(input), f)
	f.Close()
	if err != nil {
		return fmt.Errorf("staging %s: %w", input, err)
	}
	defer a.uploads.Remove(uploadID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	state, err := a.manager.Create(ctx, scheduler.CreateRequest{
		UploadID:      uploadID,
		SourceLang:    translateSourceLang,
		TargetLang:    translateTargetLang,
		SingleSpeaker: translateSingleSpeaker,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "task %s created\n", state.ID)

	sub := a.bus.Subscribe(state.ID)
	defer a.bus.Unsubscribe(sub)

	if err := a.manager.Start(state.ID); err != nil {
		return err
	}

	final, err := watchTask(ctx, a, sub, state.ID)
	if err != nil {
		return err
	}

	params, err := a.store.ReadParams(state.ID)
	if err != nil {
		return err
	}
	produced, err := a.store.ArtifactPath(state.ID, finalArtifact(state.ID, params.IsVideo))
	if err != nil {
		return err
	}
	dest := translateOutput
	if dest == "" {
		ext := filepath.Ext(produced)
		base := input[:len(input)-len(filepath.Ext(input))]
		dest = base + ".translated" + ext
	}
	if err := copyFile(produced, dest); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s\n", final.Message)
	fmt.Println(dest)
	return nil
}

// watchTask prints progress events until the task reaches a terminal
// status, which it returns.
func watchTask(ctx context.Context, a *app, sub *events.Subscription, taskID string) (*models.TaskState, error) {
	for {
		select {
		case <-ctx.Done():
			if err := a.manager.Cancel(taskID); err != nil {
				return nil, err
			}
			return nil, models.E(models.KindCancelled, "translate", models.ErrCancelled)
		case ev, ok := <-sub.C:
			if !ok {
				return nil, models.Errorf(models.KindIOFailure, "event stream closed")
			}
			switch ev.Type {
			case events.TypeProgress:
				if ev.TotalSegments > 0 {
					fmt.Fprintf(os.Stderr, "  step %d %s: %3.0f%% (%d/%d)\n",
						ev.Step, ev.StepName, ev.Progress*100, ev.CurrentSegment, ev.TotalSegments)
				} else {
					fmt.Fprintf(os.Stderr, "  step %d %s: %3.0f%%\n", ev.Step, ev.StepName, ev.Progress*100)
				}
			case events.TypeStatus:
				fmt.Fprintf(os.Stderr, "%s: %s\n", ev.Status, ev.Message)
				state, err := a.store.ReadStatus(taskID)
				if err != nil {
					return nil, err
				}
				if state.Status == models.StatusFailed {
					return nil, models.Errorf(models.KindEngineFailure, "task failed: %s", state.Error)
				}
				if state.Status == models.StatusCompleted {
					return state, nil
				}
			}
		}
	}
}

// finalArtifact names the stage-9 output for the media kind.
func finalArtifact(taskID string, isVideo bool) string {
	layout := storage.NewLayout(taskID)
	if isVideo {
		return layout.FinalVideo()
	}
	return layout.FinalAudio()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
