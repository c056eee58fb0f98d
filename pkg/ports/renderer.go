package ports

import (
	"image"

	"github.com/user/chunkdecode/pkg/tensor"
)

// ImageFormat specifies image encoding format.
type ImageFormat int

const (
	FormatJPEG ImageFormat = iota
	FormatPNG
)

// Extension returns the file extension for the format, including the dot.
func (f ImageFormat) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// Renderer turns decoded frame tensors into images.
type Renderer interface {
	// FrameImage converts frame i of a [F, H, W, C] tensor with values in
	// [0, 1] into an 8-bit image.
	FrameImage(frames *tensor.Tensor, i int) (image.Image, error)

	// EncodeImage encodes an image to the specified format.
	EncodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error)

	// ResizeImage resizes an image to the specified dimensions.
	ResizeImage(img image.Image, width, height int) image.Image

	// ContactSheet lays out every step-th frame as labelled thumbnails.
	ContactSheet(frames *tensor.Tensor, opts ContactSheetOptions) (image.Image, error)
}

// ContactSheetOptions controls contact sheet layout.
type ContactSheetOptions struct {
	Columns    int // thumbnails per row
	ThumbWidth int // thumbnail width in pixels, height keeps aspect ratio
	Step       int // take every Step-th frame
	Label      bool
}
