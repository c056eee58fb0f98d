package stitch

import (
	"context"
	"errors"
	"testing"

	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/stages/plan"
	"github.com/user/chunkdecode/pkg/tensor"
)

// causalDecode simulates a temporal decoder on latents [start, end): it
// produces 1 + (n-1)*scale frames of size 1x1x1 whose value is the global
// output index of the frame.
func causalDecode(start, end, scale int) *tensor.Tensor {
	n := 1 + (end-start-1)*scale
	data := make([]float32, n)
	for j := range data {
		data[j] = float32(start*scale + j)
	}
	t, _ := tensor.New([]int{n, 1, 1, 1}, data)
	return t
}

func stitchAll(t *testing.T, total, batch, overlap, scale int) []float32 {
	t.Helper()
	p := plan.ComputePlan(total, batch, overlap)
	acc := NewAccumulator()
	for _, c := range p.Chunks {
		res, err := Slice(causalDecode(c.CtxStart, c.CtxEnd, scale), c, total, scale)
		if err != nil {
			t.Fatalf("Slice(%s) failed: %v", c, err)
		}
		if res.Length != res.Expected {
			t.Fatalf("%s: kept %d frames, expected %d", c, res.Length, res.Expected)
		}
		acc.Append(res.Frames)
	}
	out, err := acc.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	return out.Data()
}

func TestSlice_Scenario(t *testing.T) {
	// total=10, batch=4, overlap=1, scale=2 -> 19 frames, cores [0,4),[4,8),[8,10)
	got := stitchAll(t, 10, 4, 1, 2)
	if len(got) != 19 {
		t.Fatalf("expected 19 frames, got %d", len(got))
	}
	for i, v := range got {
		if int(v) != i {
			t.Fatalf("frame %d has source index %v (duplicate or gap)", i, v)
		}
	}
}

func TestBounds(t *testing.T) {
	tests := []struct {
		name      string
		chunk     pipeline.ChunkDescriptor
		total     int
		scale     int
		wantFront int
		wantKeep  int
	}{
		{"first", pipeline.ChunkDescriptor{CoreStart: 0, CoreEnd: 4, CtxStart: 0, CtxEnd: 5}, 10, 2, 0, 8},
		{"middle", pipeline.ChunkDescriptor{CoreStart: 4, CoreEnd: 8, CtxStart: 3, CtxEnd: 9}, 10, 2, 2, 8},
		{"last takes rest", pipeline.ChunkDescriptor{CoreStart: 8, CoreEnd: 10, CtxStart: 7, CtxEnd: 10}, 10, 2, 2, -1},
		{"single chunk", pipeline.ChunkDescriptor{CoreStart: 0, CoreEnd: 1, CtxStart: 0, CtxEnd: 1}, 1, 4, 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			front, keep := Bounds(tt.chunk, tt.total, tt.scale)
			if front != tt.wantFront || keep != tt.wantKeep {
				t.Errorf("Bounds = (%d,%d), want (%d,%d)", front, keep, tt.wantFront, tt.wantKeep)
			}
		})
	}
}

// TestSlice_LengthProperty checks 1 + (total-1)*scale frames with no
// duplicates or gaps for every plan shape that gives the decoder at least one
// frame of trailing context.
func TestSlice_LengthProperty(t *testing.T) {
	for total := 1; total <= 24; total++ {
		for scale := 1; scale <= 4; scale++ {
			for batch := 1; batch <= 9; batch++ {
				for overlap := 0; overlap < batch; overlap++ {
					if overlap == 0 && scale > 1 {
						continue
					}
					got := stitchAll(t, total, batch, overlap, scale)
					want := 1 + (total-1)*scale
					if len(got) != want {
						t.Fatalf("total=%d scale=%d batch=%d overlap=%d: %d frames, want %d",
							total, scale, batch, overlap, len(got), want)
					}
					for i, v := range got {
						if int(v) != i {
							t.Fatalf("total=%d scale=%d batch=%d overlap=%d: frame %d is %v",
								total, scale, batch, overlap, i, v)
						}
					}
				}
			}
		}
	}
}

// TestSlice_IdentityDecoder reproduces the latent index sequence with a
// decoder whose output frame index equals the input latent index.
func TestSlice_IdentityDecoder(t *testing.T) {
	for batch := 1; batch <= 8; batch++ {
		for overlap := 0; overlap < batch; overlap++ {
			got := stitchAll(t, 17, batch, overlap, 1)
			if len(got) != 17 {
				t.Fatalf("batch=%d overlap=%d: %d frames, want 17", batch, overlap, len(got))
			}
			for i, v := range got {
				if int(v) != i {
					t.Fatalf("batch=%d overlap=%d: frame %d is latent %v", batch, overlap, i, v)
				}
			}
		}
	}
}

// Without trailing context a causal decoder emits scale-1 frames fewer than a
// middle chunk owns, which the length check later reports.
func TestSlice_ZeroOverlapFallsShort(t *testing.T) {
	c := pipeline.ChunkDescriptor{CoreStart: 0, CoreEnd: 4, CtxStart: 0, CtxEnd: 4}
	res, err := Slice(causalDecode(0, 4, 4), c, 8, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Expected != 16 || res.Length != 13 {
		t.Errorf("expected 13 of 16 frames, got %d of %d", res.Length, res.Expected)
	}
}

func TestSlice_ShortOutputIsClamped(t *testing.T) {
	c := pipeline.ChunkDescriptor{CoreStart: 4, CoreEnd: 8, CtxStart: 3, CtxEnd: 9}
	short := causalDecode(3, 6, 2) // fewer frames than the window implies

	res, err := Slice(short, c, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Length >= res.Expected {
		t.Errorf("expected a short slice, got %d of %d", res.Length, res.Expected)
	}
}

func TestSlice_InvalidInput(t *testing.T) {
	c := pipeline.ChunkDescriptor{CoreStart: 0, CoreEnd: 1, CtxStart: 0, CtxEnd: 1}
	if _, err := Slice(nil, c, 1, 1); err == nil {
		t.Error("expected error for nil frames")
	}
	if _, err := Slice(causalDecode(0, 1, 1), c, 1, 0); err == nil {
		t.Error("expected error for zero time scale")
	}
}

func TestAccumulator_Empty(t *testing.T) {
	acc := NewAccumulator()
	if _, err := acc.Result(); !errors.Is(err, ErrNoFrames) {
		t.Errorf("expected ErrNoFrames, got %v", err)
	}
	acc.Append(causalDecode(0, 2, 1))
	if acc.Frames() != 2 {
		t.Errorf("expected 2 frames, got %d", acc.Frames())
	}
	acc.Reset()
	if acc.Frames() != 0 {
		t.Errorf("expected 0 frames after reset, got %d", acc.Frames())
	}
}

func TestStage_Execute(t *testing.T) {
	stage := NewStage()
	c := pipeline.ChunkDescriptor{CoreStart: 0, CoreEnd: 2, CtxStart: 0, CtxEnd: 3}
	res, err := stage.Execute(context.Background(), pipeline.StitchInput{
		Frames:      causalDecode(0, 3, 3),
		Chunk:       c,
		TotalFrames: 5,
		TimeScale:   3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Length != 6 {
		t.Errorf("expected 6 frames, got %d", res.Length)
	}
}
