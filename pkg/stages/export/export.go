// Package export implements the stage that writes decoded frames to disk as
// an image sequence, an H.264 video and a contact sheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// DefaultFPS is used when no frame rate is given.
const DefaultFPS = 24.0

// ErrNoEncoder is returned when a video is requested without an encoder.
var ErrNoEncoder = errors.New("export: no video encoder configured")

// Stage writes decoded frames. Frame images are rendered and written by a
// bounded worker pool; video frames are fed to the encoder in order.
type Stage struct {
	renderer ports.Renderer
	encoder  ports.VideoEncoder
	fs       ports.FileSystem
	logger   ports.Logger
	workers  int
}

// NewStage creates an export stage. encoder may be nil when no video is
// written; workers <= 0 uses one worker per CPU.
func NewStage(renderer ports.Renderer, encoder ports.VideoEncoder, fs ports.FileSystem, logger ports.Logger, workers int) *Stage {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Stage{
		renderer: renderer,
		encoder:  encoder,
		fs:       fs,
		logger:   logger.WithComponent("export"),
		workers:  workers,
	}
}

// Execute writes every requested output.
func (s *Stage) Execute(ctx context.Context, input pipeline.ExportInput) (pipeline.ExportResult, error) {
	var result pipeline.ExportResult
	if input.Frames == nil || input.Frames.Dims() != 4 || input.Frames.Dim(0) == 0 {
		return result, fmt.Errorf("no frames to export")
	}

	if input.FramesDir != "" {
		paths, err := s.writeFrames(ctx, input)
		if err != nil {
			return result, err
		}
		result.FramePaths = paths
	}

	if input.ContactSheetPath != "" {
		if err := s.writeContactSheet(input); err != nil {
			return result, err
		}
		result.ContactSheetPath = input.ContactSheetPath
	}

	if input.VideoPath != "" {
		size, durationMs, err := s.writeVideo(ctx, input)
		if err != nil {
			return result, err
		}
		result.VideoPath = input.VideoPath
		result.VideoSize = size
		result.VideoDurationMs = durationMs
	}

	return result, nil
}

// FramePath returns the path of frame i in dir.
func FramePath(dir string, i int, format ports.ImageFormat) string {
	return filepath.Join(dir, fmt.Sprintf("frame-%05d%s", i, format.Extension()))
}

func (s *Stage) writeFrames(ctx context.Context, input pipeline.ExportInput) ([]string, error) {
	n := input.Frames.Dim(0)
	s.logger.Debug("Writing %d frames to %s with %d workers", n, input.FramesDir, s.workers)

	if err := s.fs.MkdirAll(input.FramesDir); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	paths := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := s.renderer.FrameImage(input.Frames, i)
			if err != nil {
				return fmt.Errorf("render frame %d: %w", i, err)
			}
			data, err := s.renderer.EncodeImage(img, input.Format, input.Quality)
			if err != nil {
				return fmt.Errorf("encode frame %d: %w", i, err)
			}
			path := FramePath(input.FramesDir, i, input.Format)
			if err := s.fs.WriteFile(path, data); err != nil {
				return fmt.Errorf("write frame %d: %w", i, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (s *Stage) writeContactSheet(input pipeline.ExportInput) error {
	sheet, err := s.renderer.ContactSheet(input.Frames, input.ContactSheet)
	if err != nil {
		return fmt.Errorf("contact sheet: %w", err)
	}
	data, err := s.renderer.EncodeImage(sheet, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode contact sheet: %w", err)
	}
	if err := s.fs.WriteFile(input.ContactSheetPath, data); err != nil {
		return fmt.Errorf("write contact sheet: %w", err)
	}
	s.logger.Debug("Contact sheet saved to %s", input.ContactSheetPath)
	return nil
}

func (s *Stage) writeVideo(ctx context.Context, input pipeline.ExportInput) (int64, int64, error) {
	if s.encoder == nil {
		return 0, 0, ErrNoEncoder
	}

	opts := input.Video
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}

	n := input.Frames.Dim(0)
	// yuv420p needs even dimensions; the encoder crops the odd row or column.
	width, height := input.Frames.Dim(2)&^1, input.Frames.Dim(1)&^1
	s.logger.Debug("Encoding %d frames at %.3g fps", n, opts.FPS)

	if err := s.encoder.Begin(width, height, opts); err != nil {
		return 0, 0, fmt.Errorf("begin encoding: %w", err)
	}
	if err := s.encodeFrames(ctx, input.Frames, n); err != nil {
		// End releases ffmpeg; its output is useless after a failed frame.
		_, _ = s.encoder.End()
		return 0, 0, err
	}

	data, err := s.encoder.End()
	if err != nil {
		return 0, 0, fmt.Errorf("end encoding: %w", err)
	}
	if err := s.fs.WriteFile(input.VideoPath, data); err != nil {
		return 0, 0, fmt.Errorf("write video: %w", err)
	}

	return int64(len(data)), DurationMs(n, opts.FPS), nil
}

func (s *Stage) encodeFrames(ctx context.Context, frames *tensor.Tensor, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := s.renderer.FrameImage(frames, i)
		if err != nil {
			return fmt.Errorf("render frame %d: %w", i, err)
		}
		if err := s.encoder.EncodeFrame(img); err != nil {
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
	}
	return nil
}

// DurationMs returns the playback length of n frames at fps.
func DurationMs(n int, fps float64) int64 {
	if fps <= 0 {
		return 0
	}
	return int64(float64(n) * 1000 / fps)
}
