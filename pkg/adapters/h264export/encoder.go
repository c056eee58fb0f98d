// Package h264export encodes decoded frames to H.264 MP4.
//
// Frames are compressed by an ffmpeg process into a raw Annex B stream and
// muxed here with mp4ff, so every sample gets exactly one frame duration and
// the container holds exactly as many samples as frames were submitted.
package h264export

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"sync"

	"github.com/user/chunkdecode/pkg/ports"
)

// Encoding defaults.
const (
	DefaultFPS    = 24.0
	DefaultCRF    = 23
	DefaultPreset = "fast"
)

// Encoder implements ports.VideoEncoder on top of ffmpeg and mp4ff.
type Encoder struct {
	ffmpegPath string

	mu         sync.Mutex
	width      int
	height     int
	fps        float64
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	frameCount int
}

var _ ports.VideoEncoder = (*Encoder)(nil)

// New creates an encoder. An empty ffmpegPath searches the usual locations.
func New(ffmpegPath string) *Encoder {
	return &Encoder{ffmpegPath: ffmpegPath}
}

// Begin starts ffmpeg for frames of the given size.
func (e *Encoder) Begin(width, height int, opts ports.EncoderOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("h264export: invalid frame size %dx%d", width, height)
	}
	path, err := FindFFmpeg(e.ffmpegPath)
	if err != nil {
		return err
	}

	e.width, e.height = width, height
	e.fps = opts.FPS
	if e.fps <= 0 {
		e.fps = DefaultFPS
	}
	e.frameCount = 0
	e.stdout.Reset()
	e.stderr.Reset()

	e.cmd = exec.Command(path, ffmpegArgs(width, height, e.fps, opts.CRF, opts.Preset, opts.Bitrate)...)
	e.cmd.Stdout = &e.stdout
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		e.stdin = nil
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return nil
}

// EncodeFrame writes the next frame to ffmpeg.
func (e *Encoder) EncodeFrame(img image.Image) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil {
		return ErrNotInitialized
	}

	rgba := image.NewRGBA(image.Rect(0, 0, e.width, e.height))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)

	if _, err := e.stdin.Write(rgba.Pix); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	e.frameCount++
	return nil
}

// End waits for ffmpeg and muxes its output into an MP4.
func (e *Encoder) End() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil {
		return nil, ErrNotInitialized
	}
	e.stdin.Close()
	e.stdin = nil

	if err := e.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg encoding failed: %w\nstderr: %s", err, e.stderr.String())
	}
	if e.frameCount == 0 {
		return nil, ErrNoFrames
	}

	units, sps, pps := splitAccessUnits(parseAnnexB(e.stdout.Bytes()))
	if len(units) != e.frameCount {
		return nil, fmt.Errorf("%w: %d access units for %d frames", ErrFrameCountMismatch, len(units), e.frameCount)
	}

	return buildMP4(units, sps, pps, e.width, e.height, e.fps)
}

// FrameCount returns the number of frames written since Begin.
func (e *Encoder) FrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameCount
}
