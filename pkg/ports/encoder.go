package ports

import "image"

// VideoEncoder encodes decoded frames into a video container.
// Frames are presented at a constant rate, so the video duration is exactly
// frames / fps and stays in sync with audio generated for the same length.
type VideoEncoder interface {
	// Begin initializes the encoder with the frame size and rate.
	Begin(width, height int, opts EncoderOptions) error

	// EncodeFrame appends the next frame.
	EncodeFrame(img image.Image) error

	// End finalizes encoding and returns the container bytes.
	End() ([]byte, error)
}

// EncoderOptions configures video encoding parameters.
type EncoderOptions struct {
	FPS     float64
	CRF     int // 0-51, lower is higher quality
	Preset  string
	Bitrate int // kbps, 0 = CRF only
}
