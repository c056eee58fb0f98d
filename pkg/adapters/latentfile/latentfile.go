// Package latentfile reads and writes latent tensors in the safetensors
// format: an 8-byte little-endian header length, a JSON header describing
// each tensor, and the raw little-endian tensor data.
package latentfile

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// DType is a safetensors element type.
type DType string

const (
	F32  DType = "F32"
	F16  DType = "F16"
	BF16 DType = "BF16"
)

// Size returns the element size in bytes, or 0 for unsupported types.
func (d DType) Size() int {
	switch d {
	case F32:
		return 4
	case F16, BF16:
		return 2
	}
	return 0
}

const (
	metadataKey   = "__metadata__"
	maxHeaderSize = 100 << 20
)

// DefaultNames are tried in order when no tensor name is given.
var DefaultNames = []string{"latents", "samples", "latent"}

var (
	// ErrHeaderTooLarge is returned for headers over 100 MiB.
	ErrHeaderTooLarge = errors.New("latentfile: header too large")
	// ErrTensorNotFound is returned when the requested tensor is missing.
	ErrTensorNotFound = errors.New("latentfile: tensor not found")
	// ErrUnsupportedDType is returned for element types other than F32, F16 and BF16.
	ErrUnsupportedDType = errors.New("latentfile: unsupported dtype")

	// ErrBadShape is returned for negative dimensions or a shape whose byte
	// size does not fit in an int.
	ErrBadShape = errors.New("latentfile: invalid shape")
)

// Latents is a tensor loaded from a file.
type Latents struct {
	Name     string
	DType    DType
	Tensor   *tensor.Tensor
	Metadata map[string]string
}

type entry struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Read decodes the tensor called name from r. An empty name selects the
// first of DefaultNames present, or the only tensor in the file.
func Read(r io.Reader, name string) (Latents, error) {
	var size uint64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return Latents{}, fmt.Errorf("latentfile: read header size: %w", err)
	}
	if size > maxHeaderSize {
		return Latents{}, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, size)
	}

	header := make([]byte, size)
	if _, err := io.ReadFull(r, header); err != nil {
		return Latents{}, fmt.Errorf("latentfile: read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return Latents{}, fmt.Errorf("latentfile: parse header: %w", err)
	}

	var metadata map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return Latents{}, fmt.Errorf("latentfile: parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}

	name, err := selectName(raw, name)
	if err != nil {
		return Latents{}, err
	}
	var e entry
	if err := json.Unmarshal(raw[name], &e); err != nil {
		return Latents{}, fmt.Errorf("latentfile: parse entry %q: %w", name, err)
	}
	if e.DType.Size() == 0 {
		return Latents{}, fmt.Errorf("%w: %s", ErrUnsupportedDType, e.DType)
	}

	n, err := tensor.NumElements(e.Shape)
	if err != nil {
		return Latents{}, fmt.Errorf("%w: %q %v", ErrBadShape, name, e.Shape)
	}
	if n > math.MaxInt/e.DType.Size() {
		return Latents{}, fmt.Errorf("%w: %q %v is too large", ErrBadShape, name, e.Shape)
	}
	begin, end := e.DataOffsets[0], e.DataOffsets[1]
	if begin < 0 || end-begin != int64(n*e.DType.Size()) {
		return Latents{}, fmt.Errorf("latentfile: %q offsets [%d,%d) do not fit shape %v", name, begin, end, e.Shape)
	}

	if _, err := io.CopyN(io.Discard, r, begin); err != nil {
		return Latents{}, fmt.Errorf("latentfile: seek %q: %w", name, err)
	}
	buf := make([]byte, end-begin)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Latents{}, fmt.Errorf("latentfile: read %q: %w", name, err)
	}

	t, err := tensor.New(e.Shape, decode(e.DType, buf))
	if err != nil {
		return Latents{}, err
	}
	return Latents{Name: name, DType: e.DType, Tensor: t, Metadata: metadata}, nil
}

// Write encodes t as the only tensor of a safetensors file.
func Write(w io.Writer, name string, t *tensor.Tensor, dtype DType, metadata map[string]string) error {
	if dtype.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
	data := encode(dtype, t.Data())

	header := map[string]any{
		name: entry{DType: dtype, Shape: t.Shape(), DataOffsets: [2]int64{0, int64(len(data))}},
	}
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	hb, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("latentfile: encode header: %w", err)
	}
	// Pad so the data starts 8-byte aligned.
	if pad := len(hb) % 8; pad != 0 {
		hb = append(hb, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(hb))); err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func selectName(entries map[string]json.RawMessage, name string) (string, error) {
	if name != "" {
		if _, ok := entries[name]; ok {
			return name, nil
		}
		return "", fmt.Errorf("%w: %q (have %s)", ErrTensorNotFound, name, names(entries))
	}
	for _, n := range DefaultNames {
		if _, ok := entries[n]; ok {
			return n, nil
		}
	}
	if len(entries) == 1 {
		for n := range entries {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: no default tensor (have %s)", ErrTensorNotFound, names(entries))
}

func names(entries map[string]json.RawMessage) string {
	out := make([]string, 0, len(entries))
	for n := range entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func decode(dtype DType, buf []byte) []float32 {
	switch dtype {
	case F16:
		out := make([]float32, len(buf)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(buf[i*2:])).Float32()
		}
		return out
	case BF16:
		return bfloat16.DecodeFloat32(buf)
	default:
		out := make([]float32, len(buf)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return out
	}
}

func encode(dtype DType, values []float32) []byte {
	switch dtype {
	case F16:
		buf := make([]byte, len(values)*2)
		for i, v := range values {
			binary.LittleEndian.PutUint16(buf[i*2:], float16.Fromfloat32(v).Bits())
		}
		return buf
	case BF16:
		return bfloat16.EncodeFloat32(values)
	default:
		buf := make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		return buf
	}
}

// Store loads and saves latent files through a ports.FileSystem.
type Store struct {
	fs ports.FileSystem
}

// NewStore creates a Store.
func NewStore(fs ports.FileSystem) *Store {
	return &Store{fs: fs}
}

// Load reads the tensor called name from path.
func (s *Store) Load(path, name string) (Latents, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return Latents{}, err
	}
	defer f.Close()
	return Read(f, name)
}

// Save writes t to path.
func (s *Store) Save(path, name string, t *tensor.Tensor, dtype DType, metadata map[string]string) error {
	var buf bytes.Buffer
	if err := Write(&buf, name, t, dtype, metadata); err != nil {
		return err
	}
	return s.fs.WriteFile(path, buf.Bytes())
}
