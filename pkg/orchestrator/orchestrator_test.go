package orchestrator

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/user/chunkdecode/pkg/adapters/logger"
	"github.com/user/chunkdecode/pkg/mocks"
	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/invoke"
	"github.com/user/chunkdecode/pkg/stages/normalize"
	"github.com/user/chunkdecode/pkg/stages/plan"
	"github.com/user/chunkdecode/pkg/stages/scale"
	"github.com/user/chunkdecode/pkg/stages/stitch"
	"github.com/user/chunkdecode/pkg/tensor"
)

// mockScaleStage is a mock for the scale stage.
type mockScaleStage struct {
	result pipeline.ScaleInfo
	calls  int
}

func (m *mockScaleStage) Execute(ctx context.Context, input pipeline.ScaleInput) (pipeline.ScaleInfo, error) {
	m.calls++
	return m.result, nil
}

// mockPlanStage is a mock for the plan stage.
type mockPlanStage struct {
	err   error
	calls int
}

func (m *mockPlanStage) Execute(ctx context.Context, input pipeline.PlanInput) (pipeline.ChunkPlan, error) {
	m.calls++
	if m.err != nil {
		return pipeline.ChunkPlan{}, m.err
	}
	return plan.ComputePlan(input.TotalFrames, input.BatchSize, input.Overlap), nil
}

// indexLatents returns [1, 1, frames, 1, 1] latents whose values encode the
// latent index.
func indexLatents(t *testing.T, frames int) pipeline.Latents {
	t.Helper()
	l, err := pipeline.NewLatents(tensor.FromFunc([]int{1, 1, frames, 1, 1}, func(idx []int) float32 {
		return float32(idx[2]) / 1000
	}))
	if err != nil {
		t.Fatalf("NewLatents failed: %v", err)
	}
	return l
}

// causal decodes index latents into 1 + (F-1)*ts channel-first frames whose
// value encodes the global output frame index.
func causal(ts int) func(context.Context, *tensor.Tensor) (ports.DecodeOutput, error) {
	return func(ctx context.Context, l *tensor.Tensor) (ports.DecodeOutput, error) {
		start := int(math.Round(float64(l.At(0, 0, 0, 0, 0)) * 1000))
		n := 1 + (l.Dim(2)-1)*ts
		out := tensor.FromFunc([]int{1, 3, n, 2, 2}, func(idx []int) float32 {
			return float32(start*ts+idx[2]) / 1000
		})
		return ports.Single(out), nil
	}
}

type fixture struct {
	orch      *Orchestrator
	reclaimer *mocks.MemoryReclaimer
	progress  *mocks.ProgressReporter
	sink      *mocks.DebugSink
}

func newFixture(scaleStage pipeline.Stage[pipeline.ScaleInput, pipeline.ScaleInfo]) fixture {
	log := logger.NewNoop()
	f := fixture{
		reclaimer: &mocks.MemoryReclaimer{},
		progress:  &mocks.ProgressReporter{},
		sink:      mocks.NewDebugSink(true),
	}
	if scaleStage == nil {
		scaleStage = scale.NewEstimator(scale.NewCache(), log)
	}
	f.orch = New(
		scaleStage,
		plan.NewStage(),
		invoke.New(f.reclaimer, log, invoke.Config{}),
		normalize.NewStage(),
		stitch.NewStage(),
		f.reclaimer,
		f.progress,
		f.sink,
		log,
	)
	return f
}

func assertSequence(t *testing.T, frames *tensor.Tensor, want int) {
	t.Helper()
	if frames.Dim(0) != want {
		t.Fatalf("expected %d frames, got %d", want, frames.Dim(0))
	}
	for i := 0; i < want; i++ {
		if got := frames.At(i, 0, 0, 0); got != float32(i)/1000 {
			t.Fatalf("frame %d holds source frame %v", i, got*1000)
		}
	}
}

func TestOrchestrator_Run_Scenario(t *testing.T) {
	f := newFixture(nil)
	dec := &mocks.Decoder{DecodeFunc: causal(2)}

	config := DefaultConfig()
	config.FramesPerBatch = 4
	config.Overlap = 1

	result, err := f.orch.Run(context.Background(), dec, indexLatents(t, 10), config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Scale.TimeScale != 2 || result.Scale.Source != pipeline.ScaleFromProbe {
		t.Errorf("expected probed time scale 2, got %+v", result.Scale)
	}

	var cores [][2]int
	for _, c := range result.Plan.Chunks {
		cores = append(cores, [2]int{c.CoreStart, c.CoreEnd})
	}
	if diff := cmp.Diff([][2]int{{0, 4}, {4, 8}, {8, 10}}, cores); diff != "" {
		t.Errorf("core ranges mismatch (-want +got):\n%s", diff)
	}

	if result.Expected != 19 || result.Actual != 19 || result.LengthMismatch {
		t.Errorf("expected 19/19 frames, got %d/%d mismatch=%v", result.Actual, result.Expected, result.LengthMismatch)
	}
	assertSequence(t, result.Frames, 19)

	if diff := cmp.Diff([]int{19, 2, 2, 3}, result.Frames.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if result.RunID == "" {
		t.Error("expected a run ID")
	}

	// 3 chunks with reclaim every 2
	if f.reclaimer.Count() != 1 {
		t.Errorf("expected 1 periodic reclaim, got %d", f.reclaimer.Count())
	}
	if f.progress.Total != 10 || f.progress.Sum() != 10 || !f.progress.Finished {
		t.Errorf("unexpected progress: total=%d sum=%d finished=%v", f.progress.Total, f.progress.Sum(), f.progress.Finished)
	}
	if len(f.sink.PlanJSON) == 0 || len(f.sink.ScaleJSON) == 0 || len(f.sink.ReportJSON) == 0 {
		t.Error("expected debug JSON to be saved")
	}
	if len(f.sink.ChunkFrames) != 3 {
		t.Errorf("expected 3 debug chunks, got %d", len(f.sink.ChunkFrames))
	}
}

func TestOrchestrator_Run_LengthProperty(t *testing.T) {
	for _, total := range []int{1, 2, 5, 9, 16} {
		for _, ts := range []int{1, 4} {
			f := newFixture(&mockScaleStage{result: pipeline.ScaleInfo{TimeScale: ts, SpatialScale: 8}})
			dec := &mocks.Decoder{DecodeFunc: causal(ts)}

			config := DefaultConfig()
			config.FramesPerBatch = 3
			config.Overlap = 1

			result, err := f.orch.Run(context.Background(), dec, indexLatents(t, total), config)
			if err != nil {
				t.Fatalf("total=%d ts=%d: unexpected error: %v", total, ts, err)
			}
			assertSequence(t, result.Frames, 1+(total-1)*ts)
		}
	}
}

func TestOrchestrator_Run_SingleFrame(t *testing.T) {
	f := newFixture(nil)
	dec := &mocks.Decoder{DecodeFunc: causal(4)}

	result, err := f.orch.Run(context.Background(), dec, indexLatents(t, 1), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Actual != 1 || result.Expected != 1 {
		t.Errorf("expected 1 frame, got %d (expected %d)", result.Actual, result.Expected)
	}
	if len(result.Plan.Chunks) != 1 {
		t.Errorf("expected a single chunk, got %d", len(result.Plan.Chunks))
	}
}

func TestOrchestrator_Run_CancelBeforeSecondChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(&mockScaleStage{result: pipeline.ScaleInfo{TimeScale: 2, SpatialScale: 8}})
	dec := &mocks.Decoder{DecodeFunc: func(c context.Context, l *tensor.Tensor) (ports.DecodeOutput, error) {
		cancel() // requested while the first chunk is decoding
		return causal(2)(c, l)
	}}

	config := DefaultConfig()
	config.FramesPerBatch = 4
	config.Overlap = 1

	result, err := f.orch.Run(ctx, dec, indexLatents(t, 10), config)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the context error to be wrapped, got %v", err)
	}
	if result.Frames != nil {
		t.Error("partial output must be discarded")
	}
	if dec.CallCount() != 1 {
		t.Errorf("expected only the first chunk to be decoded, got %d calls", dec.CallCount())
	}
	if len(f.sink.ReportJSON) != 0 {
		t.Error("a cancelled run must not write a report")
	}
}

func TestOrchestrator_Run_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scaleStage := &mockScaleStage{result: pipeline.ScaleInfo{TimeScale: 1}}
	f := newFixture(scaleStage)
	dec := &mocks.Decoder{}

	_, err := f.orch.Run(ctx, dec, indexLatents(t, 4), DefaultConfig())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if scaleStage.calls != 0 || dec.CallCount() != 0 {
		t.Error("nothing must run after cancellation")
	}
}

func TestOrchestrator_Run_FatalChunk(t *testing.T) {
	f := newFixture(&mockScaleStage{result: pipeline.ScaleInfo{TimeScale: 1, SpatialScale: 8}})
	dec := &mocks.Decoder{DecodeFunc: func(c context.Context, l *tensor.Tensor) (ports.DecodeOutput, error) {
		if l.At(0, 0, 0, 0, 0) > 0 { // every chunk but the first
			return ports.DecodeOutput{}, &ports.OutOfMemoryError{Requested: 1 << 32}
		}
		return causal(1)(c, l)
	}}

	config := DefaultConfig()
	config.FramesPerBatch = 4
	config.Overlap = 0

	_, err := f.orch.Run(context.Background(), dec, indexLatents(t, 8), config)

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected ChunkError, got %v", err)
	}
	if chunkErr.Chunk.CoreStart != 4 {
		t.Errorf("expected the second chunk to fail, got %s", chunkErr.Chunk)
	}
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "invoke" {
		t.Errorf("expected the invoke stage in chain, got %v", err)
	}
	var fatal *invoke.FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalError in chain, got %v", err)
	}
	if len(fatal.Steps) == 0 {
		t.Error("expected degradation steps in the error")
	}
	if !errors.Is(err, ports.ErrOutOfMemory) {
		t.Error("expected out-of-memory cause in chain")
	}
}

func TestOrchestrator_Run_LengthMismatchIsNotFatal(t *testing.T) {
	// The decoder declares x4 but produces x2.
	f := newFixture(&mockScaleStage{result: pipeline.ScaleInfo{TimeScale: 4, SpatialScale: 8}})
	dec := &mocks.Decoder{DecodeFunc: causal(2)}

	result, err := f.orch.Run(context.Background(), dec, indexLatents(t, 6), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.LengthMismatch {
		t.Error("expected a length mismatch")
	}
	if result.Expected != 21 || result.Actual == 21 {
		t.Errorf("unexpected lengths: actual %d expected %d", result.Actual, result.Expected)
	}
	if result.Frames == nil {
		t.Error("output must still be returned")
	}
}

func TestOrchestrator_Run_Still(t *testing.T) {
	scaleStage := &mockScaleStage{}
	planStage := &mockPlanStage{}
	log := logger.NewNoop()
	orch := New(scaleStage, planStage, invoke.New(nil, log, invoke.Config{}), normalize.NewStage(), stitch.NewStage(),
		nil, nil, &mocks.NullSink{}, log)

	dec := &mocks.Decoder{DecodeFunc: func(context.Context, *tensor.Tensor) (ports.DecodeOutput, error) {
		return ports.Single(tensor.Zeros(1, 3, 64, 48)), nil
	}}
	latents, err := pipeline.NewLatents(tensor.Zeros(1, 4, 8, 6))
	if err != nil {
		t.Fatalf("NewLatents failed: %v", err)
	}

	result, err := orch.Run(context.Background(), dec, latents, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Still || result.Actual != 1 || result.LengthMismatch {
		t.Errorf("unexpected still result: %+v", result)
	}
	if diff := cmp.Diff([]int{1, 64, 48, 3}, result.Frames.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if scaleStage.calls != 0 || planStage.calls != 0 {
		t.Error("still images must skip scale estimation and planning")
	}
}

func TestOrchestrator_Run_PlanError(t *testing.T) {
	log := logger.NewNoop()
	orch := New(&mockScaleStage{result: pipeline.ScaleInfo{TimeScale: 1}}, &mockPlanStage{err: errors.New("plan failed")},
		invoke.New(nil, log, invoke.Config{}), normalize.NewStage(), stitch.NewStage(), nil, nil, &mocks.NullSink{}, log)

	_, err := orch.Run(context.Background(), &mocks.Decoder{}, indexLatents(t, 4), DefaultConfig())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.FramesPerBatch != 8 || config.Overlap != 2 || config.TileSize != 512 || config.ReclaimEvery != 2 {
		t.Errorf("unexpected defaults: %+v", config)
	}
}
