package mocks

import (
	"image"
	"sync"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// Renderer is a mock implementation of ports.Renderer.
type Renderer struct {
	mu sync.Mutex

	FrameImageFunc   func(frames *tensor.Tensor, i int) (image.Image, error)
	EncodeImageFunc  func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error)
	ResizeImageFunc  func(img image.Image, width, height int) image.Image
	ContactSheetFunc func(frames *tensor.Tensor, opts ports.ContactSheetOptions) (image.Image, error)

	// Recorded calls for verification
	FrameImageCalls []int
}

func (m *Renderer) FrameImage(frames *tensor.Tensor, i int) (image.Image, error) {
	m.mu.Lock()
	m.FrameImageCalls = append(m.FrameImageCalls, i)
	m.mu.Unlock()
	if m.FrameImageFunc != nil {
		return m.FrameImageFunc(frames, i)
	}
	return image.NewRGBA(image.Rect(0, 0, frames.Dim(2), frames.Dim(1))), nil
}

func (m *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	if m.EncodeImageFunc != nil {
		return m.EncodeImageFunc(img, format, quality)
	}
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (m *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	if m.ResizeImageFunc != nil {
		return m.ResizeImageFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

func (m *Renderer) ContactSheet(frames *tensor.Tensor, opts ports.ContactSheetOptions) (image.Image, error) {
	if m.ContactSheetFunc != nil {
		return m.ContactSheetFunc(frames, opts)
	}
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

// FrameImageCount returns the number of FrameImage calls.
func (m *Renderer) FrameImageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.FrameImageCalls)
}

var _ ports.Renderer = (*Renderer)(nil)
