package h264export

import "errors"

var (
	// ErrNotInitialized is returned when encoder methods are called before Begin.
	ErrNotInitialized = errors.New("h264export: encoder not initialized")

	// ErrNoFrames is returned when End is called without any encoded frame.
	ErrNoFrames = errors.New("h264export: no frames to encode")

	// ErrFFmpegNotFound is returned when no ffmpeg executable can be located.
	ErrFFmpegNotFound = errors.New("h264export: ffmpeg not found in PATH")

	// ErrFrameCountMismatch is returned when the encoded stream does not hold
	// exactly one access unit per submitted frame.
	ErrFrameCountMismatch = errors.New("h264export: encoded frame count mismatch")

	// ErrNoVideoTrack is returned by Inspect for files without a video track.
	ErrNoVideoTrack = errors.New("h264export: no video track found")
)
