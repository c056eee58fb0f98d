package tile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/user/chunkdecode/pkg/mocks"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/normalize"
	"github.com/user/chunkdecode/pkg/tensor"
)

// position decodes [1, C, F, H, W] latents into [F, H*s, W*s, 3] frames whose
// red channel is the latent value under each pixel.
func position(s int) func(context.Context, *tensor.Tensor) (ports.DecodeOutput, error) {
	return func(ctx context.Context, l *tensor.Tensor) (ports.DecodeOutput, error) {
		out := tensor.FromFunc([]int{l.Dim(2), l.Dim(3) * s, l.Dim(4) * s, 3}, func(idx []int) float32 {
			if idx[3] != 0 {
				return 0
			}
			return l.At(0, 0, idx[0], idx[1]/s, idx[2]/s)
		})
		return ports.Single(out), nil
	}
}

func TestDecodeTiled_MatchesWholeDecode(t *testing.T) {
	latents := tensor.FromFunc([]int{1, 1, 2, 5, 7}, func(idx []int) float32 {
		return float32(idx[2]*100+idx[3]*10+idx[4]) / 1000
	})
	dec := &mocks.Decoder{DecodeFunc: position(2)}

	whole, err := dec.Decode(context.Background(), latents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := normalize.Output(whole)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	td := NewDecoder(dec, 2)
	out, err := td.DecodeTiled(context.Background(), latents, 4, 4) // 2x2 latent tiles
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := out.First()
	if !ok {
		t.Fatal("expected output")
	}

	if diff := cmp.Diff(want.Shape(), got.Shape()); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	if !want.Equal(got) {
		t.Error("tiled output differs from whole decode")
	}

	// 3 bands of 4 columns, plus the reference decode
	if dec.CallCount() != 1+3*4 {
		t.Errorf("expected 13 decode calls, got %d", dec.CallCount())
	}
}

func TestDecodeTiled_SmallInputSingleCall(t *testing.T) {
	dec := &mocks.Decoder{DecodeFunc: position(8)}
	td := NewDecoder(dec, 8)

	if _, err := td.DecodeTiled(context.Background(), tensor.Zeros(1, 1, 3, 16, 16), 512, 512); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.CallCount() != 1 {
		t.Errorf("expected 1 decode call, got %d", dec.CallCount())
	}
}

func TestDecodeTiled_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	dec := &mocks.Decoder{DecodeFunc: func(context.Context, *tensor.Tensor) (ports.DecodeOutput, error) {
		return ports.DecodeOutput{}, boom
	}}
	td := NewDecoder(dec, 8)

	_, err := td.DecodeTiled(context.Background(), tensor.Zeros(1, 1, 1, 64, 64), 256, 256)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped decode error, got %v", err)
	}
}

func TestNewDecoder_DefaultScale(t *testing.T) {
	td := NewDecoder(&mocks.Decoder{}, 0)
	if got := td.latentTile(512); got != 64 {
		t.Errorf("expected 64 latent pixels, got %d", got)
	}
	if got := td.latentTile(4); got != 1 {
		t.Errorf("expected minimum of 1, got %d", got)
	}
}
