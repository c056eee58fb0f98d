package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

func TestTensor_Layouts(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		want  []int
	}{
		{"channel-last frames", []int{5, 16, 24, 3}, []int{5, 16, 24, 3}},
		{"channel-first frames", []int{5, 3, 16, 24}, []int{5, 16, 24, 3}},
		{"rgba drops alpha", []int{2, 8, 8, 4}, []int{2, 8, 8, 3}},
		{"grayscale", []int{2, 1, 8, 8}, []int{2, 8, 8, 1}},
		{"single image HWC", []int{16, 24, 3}, []int{1, 16, 24, 3}},
		{"single image CHW", []int{3, 16, 24}, []int{1, 16, 24, 3}},
		{"video BFHWC", []int{1, 7, 16, 24, 3}, []int{7, 16, 24, 3}},
		{"video BCFHW", []int{1, 3, 7, 16, 24}, []int{7, 16, 24, 3}},
		{"video BFCHW", []int{1, 7, 3, 16, 24}, []int{7, 16, 24, 3}},
		{"single frame BFCHW", []int{1, 1, 3, 8, 8}, []int{1, 8, 8, 3}},
		{"grayscale video BCFHW", []int{1, 1, 5, 8, 8}, []int{5, 8, 8, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tensor(tensor.Zeros(tt.shape...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got.Shape()); diff != "" {
				t.Errorf("shape mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTensor_PermutesValues(t *testing.T) {
	// [F=2, C=3, H=2, W=2] with value encoding (f, c, h, w)
	in := tensor.FromFunc([]int{2, 3, 2, 2}, func(idx []int) float32 {
		return float32(idx[0]*1000+idx[1]*100+idx[2]*10+idx[3]) / 10000
	})

	got, err := Tensor(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for f := 0; f < 2; f++ {
		for c := 0; c < 3; c++ {
			for h := 0; h < 2; h++ {
				for w := 0; w < 2; w++ {
					if got.At(f, h, w, c) != in.At(f, c, h, w) {
						t.Fatalf("value at f=%d c=%d h=%d w=%d not preserved", f, c, h, w)
					}
				}
			}
		}
	}
}

func TestTensor_Clamps(t *testing.T) {
	in, _ := tensor.New([]int{1, 1, 1, 3}, []float32{-0.5, 0.25, 1.7})
	got, err := Tensor(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]float32{0, 0.25, 1}, got.Data()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestTensor_Idempotent(t *testing.T) {
	shapes := [][]int{
		{1, 3, 4, 8, 8},
		{4, 3, 8, 8},
		{3, 8, 8},
		{2, 8, 8, 4},
	}
	for _, shape := range shapes {
		in := tensor.FromFunc(shape, func(idx []int) float32 {
			sum := 0
			for _, v := range idx {
				sum += v
			}
			return float32(sum%7)/3 - 0.5
		})
		once, err := Tensor(in)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", shape, err)
		}
		twice, err := Tensor(once)
		if err != nil {
			t.Fatalf("%v: unexpected error on second pass: %v", shape, err)
		}
		if !once.Equal(twice) {
			t.Errorf("%v: normalize is not idempotent: %v vs %v", shape, once, twice)
		}
	}
}

func TestTensor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      *tensor.Tensor
		wantErr error
	}{
		{"nil", nil, ErrEmptyOutput},
		{"batch fold", tensor.Zeros(2, 3, 4, 8, 8), ErrBatchFold},
		{"no channel axis", tensor.Zeros(2, 5, 8, 8), ErrNoChannelAxis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tensor(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := Tensor(tensor.Zeros(8, 8)); err == nil {
		t.Error("expected error for rank 2")
	}
}

func TestOutput_UnwrapsAggregate(t *testing.T) {
	pixels := tensor.Zeros(1, 3, 2, 8, 8)
	aux := tensor.Zeros(4)

	got, err := Output(ports.DecodeOutput{Tensors: []*tensor.Tensor{pixels, aux}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int{2, 8, 8, 3}, got.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	if _, err := Output(ports.DecodeOutput{}); !errors.Is(err, ErrEmptyOutput) {
		t.Errorf("expected ErrEmptyOutput, got %v", err)
	}
}

func TestStage_Execute(t *testing.T) {
	stage := NewStage()
	got, err := stage.Execute(context.Background(), ports.Single(tensor.Zeros(3, 3, 4, 4)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Dim(0) != 3 || got.Dim(-1) != 3 {
		t.Errorf("unexpected shape %v", got.Shape())
	}
}
