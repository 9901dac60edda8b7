package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/engine"
	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/storage"
)

// CloneVoicesStage synthesizes each segment's translated text in the
// segment speaker's voice. Segments are cloned in parallel up to the
// configured worker count; one segment failing records the error on the
// segment and leaves its slot to be silenced at merge, while
// cancellation aborts the stage.
type CloneVoicesStage struct{}

func (s *CloneVoicesStage) ID() int      { return models.StepCloneVoices }
func (s *CloneVoicesStage) Name() string { return models.StepName(s.ID()) }

func (s *CloneVoicesStage) Execute(ctx context.Context, run *Run) error {
	table, err := run.Store.ReadSegments(run.TaskID)
	if err != nil {
		return err
	}

	var targets []int
	for i := range table {
		if run.wantSegment(table[i]) && table[i].TranslatedText != "" && table[i].ClonedAudioPath == "" {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		run.Log("step 7: nothing to clone")
		return nil
	}

	// The cloner writes through the engine adapter, not the store, so the
	// output directory must exist up front.
	if err := run.Store.EnsureArtifactDir(run.TaskID, storage.ClonedAudioDir); err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		done atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cloneWorkers(run))
	for _, idx := range targets {
		idx := idx
		g.Go(func() error {
			err := s.cloneSegment(gctx, run, &table[idx], &mu)
			if err != nil {
				return err
			}
			n := int(done.Add(1))
			run.Progress(s.ID(), float64(n)/float64(len(targets)),
				fmt.Sprintf("cloned %d of %d segments", n, len(targets)), n, len(targets))
			return nil
		})
	}
	err = g.Wait()

	// Persist whatever finished even when aborting, so a retry resumes
	// from the completed clones.
	if werr := run.Store.WriteSegments(run.TaskID, table); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || gctx.Err() != nil {
			return models.E(models.KindCancelled, "clone voices", models.ErrCancelled)
		}
		return err
	}

	failed := 0
	for _, idx := range targets {
		if table[idx].Error != "" {
			failed++
		}
	}
	run.Log("step 7: cloned %d segments, %d failed", len(targets)-failed, failed)
	return nil
}

// cloneWorkers caps the configured parallelism at 1 unless the cloner
// declares its calls safe to run concurrently.
func cloneWorkers(run *Run) int {
	if run.Cfg.SegmentWorkers <= 1 {
		return 1
	}
	if d, ok := run.Cloner.(engine.ConcurrencyDeclarer); ok && d.ConcurrencySafe() {
		return run.Cfg.SegmentWorkers
	}
	return 1
}

// cloneSegment synthesizes one segment. Engine failures are recorded on
// the segment and do not abort the stage.
func (s *CloneVoicesStage) cloneSegment(ctx context.Context, run *Run, seg *models.Segment, mu *sync.Mutex) error {
	ref, err := run.abs(run.Layout.RefSegment(seg.ID))
	if err != nil {
		return err
	}
	rel := run.Layout.ClonedSegment(seg.ID)
	out, err := run.abs(rel)
	if err != nil {
		return err
	}

	if err := run.Cloner.Clone(ctx, seg.TranslatedText, ref, run.Params.TargetLang, out); err != nil {
		if models.KindOf(err) == models.KindCancelled || ctx.Err() != nil {
			return err
		}
		run.Log("step 7: segment %d failed: %v", seg.ID, err)
		mu.Lock()
		seg.Error = err.Error()
		mu.Unlock()
		return nil
	}

	clip, err := audio.ReadFile(out)
	if err != nil {
		return models.E(models.KindIOFailure, fmt.Sprintf("read clone for segment %d", seg.ID), err)
	}

	mu.Lock()
	seg.ClonedAudioPath = rel
	seg.ClonedDuration = clip.Duration()
	if seg.Duration() > 0 {
		seg.DurationMultiplier = clip.Duration() / seg.Duration()
	}
	seg.Error = ""
	mu.Unlock()
	return nil
}
