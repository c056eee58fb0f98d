// Package ggrenderer provides a renderer implementation using the gg library.
package ggrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

var (
	sheetBackground = color.RGBA{R: 0x1a, G: 0x1a, B: 0x2e, A: 0xff}
	labelColor      = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	labelShadow     = color.RGBA{A: 0xc0}
)

const sheetGap = 4

// ErrNotFrames is returned for tensors that are not [F, H, W, C] frames.
var ErrNotFrames = errors.New("ggrenderer: expected [F, H, W, C] frames with 1 or 3 channels")

// Renderer implements ports.Renderer using the gg library.
type Renderer struct{}

// New creates a new Renderer.
func New() *Renderer {
	return &Renderer{}
}

// FrameImage converts frame i of a normalized [F, H, W, C] tensor into an
// 8-bit RGBA image. Single-channel frames are rendered as grayscale.
func (r *Renderer) FrameImage(frames *tensor.Tensor, i int) (image.Image, error) {
	if frames == nil || frames.Dims() != 4 {
		return nil, ErrNotFrames
	}
	n, h, w, c := frames.Dim(0), frames.Dim(1), frames.Dim(2), frames.Dim(3)
	if c != 1 && c != 3 {
		return nil, ErrNotFrames
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", i, n)
	}

	data := frames.Data()[i*h*w*c : (i+1)*h*w*c]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for p := 0; p < h*w; p++ {
		px := data[p*c : (p+1)*c]
		r8 := toByte(px[0])
		g8, b8 := r8, r8
		if c == 3 {
			g8, b8 = toByte(px[1]), toByte(px[2])
		}
		img.Pix[p*4] = r8
		img.Pix[p*4+1] = g8
		img.Pix[p*4+2] = b8
		img.Pix[p*4+3] = 0xff
	}
	return img, nil
}

// EncodeImage encodes an image to the specified format.
func (r *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case ports.FormatJPEG:
		opts := &jpeg.Options{Quality: quality}
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode JPEG: %w", err)
		}
	case ports.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PNG: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %d", format)
	}

	return buf.Bytes(), nil
}

// ResizeImage resizes an image to the specified dimensions.
func (r *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// ContactSheet lays out every opts.Step-th frame as a grid of thumbnails,
// optionally labelled with the frame index.
func (r *Renderer) ContactSheet(frames *tensor.Tensor, opts ports.ContactSheetOptions) (image.Image, error) {
	if frames == nil || frames.Dims() != 4 || frames.Dim(0) == 0 {
		return nil, ErrNotFrames
	}
	step := max(1, opts.Step)
	cols := max(1, opts.Columns)
	thumbW := opts.ThumbWidth
	if thumbW <= 0 {
		thumbW = frames.Dim(2)
	}
	thumbH := max(1, int(math.Round(float64(thumbW)*float64(frames.Dim(1))/float64(frames.Dim(2)))))

	var indices []int
	for i := 0; i < frames.Dim(0); i += step {
		indices = append(indices, i)
	}
	cols = min(cols, len(indices))
	rows := (len(indices) + cols - 1) / cols

	dc := gg.NewContext(cols*thumbW+(cols+1)*sheetGap, rows*thumbH+(rows+1)*sheetGap)
	dc.SetColor(sheetBackground)
	dc.Clear()

	for k, i := range indices {
		img, err := r.FrameImage(frames, i)
		if err != nil {
			return nil, err
		}
		x := sheetGap + (k%cols)*(thumbW+sheetGap)
		y := sheetGap + (k/cols)*(thumbH+sheetGap)
		dc.DrawImage(r.ResizeImage(img, thumbW, thumbH), x, y)

		if opts.Label {
			label := fmt.Sprintf("#%d", i)
			dc.SetColor(labelShadow)
			dc.DrawStringAnchored(label, float64(x+4), float64(y+thumbH-4), 0, 0)
			dc.SetColor(labelColor)
			dc.DrawStringAnchored(label, float64(x+3), float64(y+thumbH-5), 0, 0)
		}
	}

	return dc.Image(), nil
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	}
	return uint8(math.Round(float64(v) * 255))
}

// Ensure Renderer implements ports.Renderer
var _ ports.Renderer = (*Renderer)(nil)
