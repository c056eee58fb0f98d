package export

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/user/chunkdecode/pkg/adapters/logger"
	"github.com/user/chunkdecode/pkg/mocks"
	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

func frames(n, h, w int) *tensor.Tensor {
	return tensor.Zeros(n, h, w, 3)
}

func TestStage_WritesFrameSequence(t *testing.T) {
	renderer := &mocks.Renderer{}
	fs := mocks.NewFileSystem()
	stage := NewStage(renderer, nil, fs, logger.NewNoop(), 3)

	result, err := stage.Execute(context.Background(), pipeline.ExportInput{
		Frames:    frames(7, 4, 4),
		FramesDir: "out/frames",
		Format:    ports.FormatPNG,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []string{
		"out/frames/frame-00000.png",
		"out/frames/frame-00001.png",
		"out/frames/frame-00002.png",
		"out/frames/frame-00003.png",
		"out/frames/frame-00004.png",
		"out/frames/frame-00005.png",
		"out/frames/frame-00006.png",
	}
	if diff := cmp.Diff(want, result.FramePaths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, fs.ListFiles("out/frames/")); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if renderer.FrameImageCount() != 7 {
		t.Errorf("expected 7 renders, got %d", renderer.FrameImageCount())
	}
	if result.VideoPath != "" || result.ContactSheetPath != "" {
		t.Errorf("unexpected outputs: %+v", result)
	}
}

func TestStage_FrameErrorStopsExport(t *testing.T) {
	renderer := &mocks.Renderer{
		FrameImageFunc: func(_ *tensor.Tensor, i int) (image.Image, error) {
			if i == 2 {
				return nil, errors.New("bad frame")
			}
			return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
		},
	}
	stage := NewStage(renderer, nil, mocks.NewFileSystem(), logger.NewNoop(), 1)

	_, err := stage.Execute(context.Background(), pipeline.ExportInput{
		Frames:    frames(5, 4, 4),
		FramesDir: "out",
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStage_Video(t *testing.T) {
	var gotW, gotH int
	encoder := &mocks.VideoEncoder{
		BeginFunc: func(width, height int, _ ports.EncoderOptions) error {
			gotW, gotH = width, height
			return nil
		},
	}
	fs := mocks.NewFileSystem()
	stage := NewStage(&mocks.Renderer{}, encoder, fs, logger.NewNoop(), 0)

	result, err := stage.Execute(context.Background(), pipeline.ExportInput{
		Frames:    frames(17, 9, 13),
		VideoPath: "out/video.mp4",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gotW != 12 || gotH != 8 {
		t.Errorf("expected even size 12x8, got %dx%d", gotW, gotH)
	}
	if encoder.BeginOptions.FPS != DefaultFPS {
		t.Errorf("expected default fps, got %v", encoder.BeginOptions.FPS)
	}
	if encoder.FrameCount != 17 || !encoder.EndCalled {
		t.Errorf("expected 17 frames and End, got %d / %v", encoder.FrameCount, encoder.EndCalled)
	}
	if _, ok := fs.GetFile("out/video.mp4"); !ok {
		t.Error("video not written")
	}
	if result.VideoSize != 8 {
		t.Errorf("expected 8 bytes, got %d", result.VideoSize)
	}
	// 17 frames at 24 fps
	if result.VideoDurationMs != 708 {
		t.Errorf("expected 708 ms, got %d", result.VideoDurationMs)
	}
}

func TestStage_VideoFailureReleasesEncoder(t *testing.T) {
	tests := []struct {
		name     string
		renderer *mocks.Renderer
		encoder  *mocks.VideoEncoder
	}{
		{
			name:     "encode error",
			renderer: &mocks.Renderer{},
			encoder: &mocks.VideoEncoder{
				EncodeFrameFunc: func(image.Image) error { return errors.New("broken pipe") },
			},
		},
		{
			name: "render error",
			renderer: &mocks.Renderer{
				FrameImageFunc: func(_ *tensor.Tensor, i int) (image.Image, error) {
					if i == 1 {
						return nil, errors.New("bad frame")
					}
					return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
				},
			},
			encoder: &mocks.VideoEncoder{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := mocks.NewFileSystem()
			stage := NewStage(tt.renderer, tt.encoder, fs, logger.NewNoop(), 1)

			_, err := stage.Execute(context.Background(), pipeline.ExportInput{
				Frames:    frames(3, 2, 2),
				VideoPath: "v.mp4",
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.encoder.EndCalled {
				t.Error("expected End after a failed frame")
			}
			if _, ok := fs.GetFile("v.mp4"); ok {
				t.Error("video written after a failed frame")
			}
		})
	}
}

func TestStage_VideoWithoutEncoder(t *testing.T) {
	stage := NewStage(&mocks.Renderer{}, nil, mocks.NewFileSystem(), logger.NewNoop(), 1)
	_, err := stage.Execute(context.Background(), pipeline.ExportInput{
		Frames:    frames(2, 2, 2),
		VideoPath: "v.mp4",
	})
	if !errors.Is(err, ErrNoEncoder) {
		t.Errorf("expected ErrNoEncoder, got %v", err)
	}
}

func TestStage_VideoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	encoder := &mocks.VideoEncoder{}
	stage := NewStage(&mocks.Renderer{}, encoder, mocks.NewFileSystem(), logger.NewNoop(), 1)
	_, err := stage.Execute(ctx, pipeline.ExportInput{
		Frames:    frames(3, 2, 2),
		VideoPath: "v.mp4",
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if encoder.FrameCount != 0 {
		t.Errorf("expected no frames encoded, got %d", encoder.FrameCount)
	}
	if !encoder.EndCalled {
		t.Error("expected End after cancellation")
	}
}

func TestStage_ContactSheet(t *testing.T) {
	var gotOpts ports.ContactSheetOptions
	renderer := &mocks.Renderer{
		ContactSheetFunc: func(_ *tensor.Tensor, opts ports.ContactSheetOptions) (image.Image, error) {
			gotOpts = opts
			return image.NewRGBA(image.Rect(0, 0, 10, 10)), nil
		},
	}
	fs := mocks.NewFileSystem()
	stage := NewStage(renderer, nil, fs, logger.NewNoop(), 1)

	opts := ports.ContactSheetOptions{Columns: 4, ThumbWidth: 64, Step: 2, Label: true}
	result, err := stage.Execute(context.Background(), pipeline.ExportInput{
		Frames:           frames(5, 2, 2),
		ContactSheetPath: "sheet.png",
		ContactSheet:     opts,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if diff := cmp.Diff(opts, gotOpts); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	if result.ContactSheetPath != "sheet.png" {
		t.Errorf("unexpected path %q", result.ContactSheetPath)
	}
	if _, ok := fs.GetFile("sheet.png"); !ok {
		t.Error("contact sheet not written")
	}
}

func TestStage_NoFrames(t *testing.T) {
	stage := NewStage(&mocks.Renderer{}, nil, mocks.NewFileSystem(), logger.NewNoop(), 1)
	if _, err := stage.Execute(context.Background(), pipeline.ExportInput{}); err == nil {
		t.Error("expected error for missing frames")
	}
}

func TestDurationMs(t *testing.T) {
	if got := DurationMs(48, 24); got != 2000 {
		t.Errorf("expected 2000, got %d", got)
	}
	if got := DurationMs(10, 0); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
