package latentfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/user/chunkdecode/pkg/mocks"
	"github.com/user/chunkdecode/pkg/tensor"
)

// handWritten builds a file with two F32 tensors, "noise" [2] then
// "samples" [1,1,2,1,1], as another tool would write it.
func handWritten() []byte {
	header := []byte(`{"__metadata__":{"format":"pt"},` +
		`"noise":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},` +
		`"samples":{"dtype":"F32","shape":[1,1,2,1,1],"data_offsets":[8,16]}}`)

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.Write(header)
	for _, v := range []float32{9, 9, 0.25, -2} {
		binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}
	return buf.Bytes()
}

func TestRead_HandWrittenFile(t *testing.T) {
	got, err := Read(bytes.NewReader(handWritten()), "")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Name != "samples" {
		t.Errorf("expected default name samples, got %q", got.Name)
	}
	if diff := cmp.Diff([]int{1, 1, 2, 1, 1}, got.Tensor.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{0.25, -2}, got.Tensor.Data()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if got.Metadata["format"] != "pt" {
		t.Errorf("expected metadata, got %v", got.Metadata)
	}

	noise, err := Read(bytes.NewReader(handWritten()), "noise")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff([]float32{9, 9}, noise.Tensor.Data()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRead_DTypes(t *testing.T) {
	// Values exactly representable in every supported type.
	values := []float32{0, 0.5, -1.25, 3, 1024, -0.015625}
	src, err := tensor.New([]int{1, 2, 3, 1, 1}, values)
	if err != nil {
		t.Fatalf("tensor.New failed: %v", err)
	}

	for _, dtype := range []DType{F32, F16, BF16} {
		t.Run(string(dtype), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, "latents", src, dtype, map[string]string{"time_scale": "4"}); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			headerLen := binary.LittleEndian.Uint64(buf.Bytes()[:8])
			if headerLen%8 != 0 {
				t.Errorf("header length %d is not 8-byte aligned", headerLen)
			}
			if want := 8 + int(headerLen) + len(values)*dtype.Size(); buf.Len() != want {
				t.Errorf("expected %d bytes, got %d", want, buf.Len())
			}

			got, err := Read(&buf, "")
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if got.DType != dtype {
				t.Errorf("expected dtype %s, got %s", dtype, got.DType)
			}
			if !src.Equal(got.Tensor) {
				t.Errorf("expected %v, got %v", src.Data(), got.Tensor.Data())
			}
			if got.Metadata["time_scale"] != "4" {
				t.Errorf("expected metadata to survive, got %v", got.Metadata)
			}
		})
	}
}

func TestRead_Errors(t *testing.T) {
	t.Run("missing tensor", func(t *testing.T) {
		_, err := Read(bytes.NewReader(handWritten()), "vae")
		if !errors.Is(err, ErrTensorNotFound) {
			t.Errorf("expected ErrTensorNotFound, got %v", err)
		}
	})

	t.Run("ambiguous default", func(t *testing.T) {
		header := []byte(`{"a":{"dtype":"F32","shape":[1],"data_offsets":[0,4]},"b":{"dtype":"F32","shape":[1],"data_offsets":[4,8]}}`)
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
		buf.Write(header)
		buf.Write(make([]byte, 8))

		_, err := Read(&buf, "")
		if !errors.Is(err, ErrTensorNotFound) {
			t.Errorf("expected ErrTensorNotFound, got %v", err)
		}
	})

	t.Run("unsupported dtype", func(t *testing.T) {
		header := []byte(`{"latents":{"dtype":"I64","shape":[1],"data_offsets":[0,8]}}`)
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
		buf.Write(header)
		buf.Write(make([]byte, 8))

		_, err := Read(&buf, "")
		if !errors.Is(err, ErrUnsupportedDType) {
			t.Errorf("expected ErrUnsupportedDType, got %v", err)
		}
	})

	t.Run("header too large", func(t *testing.T) {
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, uint64(1<<40))
		_, err := Read(&buf, "")
		if !errors.Is(err, ErrHeaderTooLarge) {
			t.Errorf("expected ErrHeaderTooLarge, got %v", err)
		}
	})

	t.Run("truncated data", func(t *testing.T) {
		data := handWritten()
		_, err := Read(bytes.NewReader(data[:len(data)-2]), "samples")
		if err == nil {
			t.Error("expected error for truncated data")
		}
	})

	t.Run("offsets do not fit shape", func(t *testing.T) {
		header := []byte(`{"latents":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`)
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
		buf.Write(header)
		buf.Write(make([]byte, 8))

		if _, err := Read(&buf, ""); err == nil {
			t.Error("expected error for inconsistent offsets")
		}
	})
}

func TestRead_RejectsOverflowingShape(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{
			name:   "element count wraps to zero",
			header: `{"latents":{"dtype":"F32","shape":[1,1,4294967296,4294967296,1],"data_offsets":[0,0]}}`,
		},
		{
			name:   "byte size overflows",
			header: `{"latents":{"dtype":"F32","shape":[4611686018427387904],"data_offsets":[0,0]}}`,
		},
		{
			name:   "negative dimension",
			header: `{"latents":{"dtype":"F16","shape":[2,-2],"data_offsets":[0,0]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			binary.Write(&buf, binary.LittleEndian, uint64(len(tt.header)))
			buf.WriteString(tt.header)

			_, err := Read(&buf, "")
			if !errors.Is(err, ErrBadShape) {
				t.Errorf("expected ErrBadShape, got %v", err)
			}
		})
	}
}

func TestStore_SaveLoad(t *testing.T) {
	fs := mocks.NewFileSystem()
	store := NewStore(fs)
	src := tensor.FromFunc([]int{1, 4, 3, 2, 2}, func(idx []int) float32 {
		return float32(idx[2]) - 1
	})

	if err := store.Save("in/latents.safetensors", "latents", src, F32, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.Load("in/latents.safetensors", "latents")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !src.Equal(got.Tensor) {
		t.Error("loaded tensor differs")
	}

	if _, err := store.Load("missing.safetensors", ""); err == nil {
		t.Error("expected error for missing file")
	}
}
