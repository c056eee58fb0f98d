// Package main provides the CLI entry point for chunkdecode.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/chunkdecode/pkg/adapters/filesink"
	"github.com/user/chunkdecode/pkg/adapters/ggrenderer"
	"github.com/user/chunkdecode/pkg/adapters/h264export"
	"github.com/user/chunkdecode/pkg/adapters/latentfile"
	"github.com/user/chunkdecode/pkg/adapters/logger"
	"github.com/user/chunkdecode/pkg/adapters/memreclaim"
	"github.com/user/chunkdecode/pkg/adapters/nullsink"
	"github.com/user/chunkdecode/pkg/adapters/osfilesystem"
	"github.com/user/chunkdecode/pkg/adapters/progress"
	"github.com/user/chunkdecode/pkg/adapters/refdecoder"
	"github.com/user/chunkdecode/pkg/chunkdecode"
	"github.com/user/chunkdecode/pkg/config"
	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/export"
	"github.com/user/chunkdecode/pkg/summarizer"
	"github.com/user/chunkdecode/pkg/tensor"
)

var version = "dev"

// Flag categories
const (
	catInput   = "Input"
	catChunk   = "Chunking and Tiling"
	catDecoder = "Decoder"
	catOutput  = "Output"
	catDebug   = "Debug"
	catLogging = "Logging"
)

func main() {
	app := &cli.App{
		Name:        "chunkdecode",
		Usage:       l10n.T("Decode long latent sequences in overlapping chunks"),
		Description: l10n.T("chunkdecode decodes latent tensors into frames, videos and contact sheets within a memory budget."),
		Version:     version,
		Commands: []*cli.Command{
			decodeCommand(),
			planCommand(),
			probeCommand(),
			verifyCommand(),
			synthCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %s", err))
		os.Exit(1)
	}
}

// signalContext cancels the returned context on SIGINT or SIGTERM.
func signalContext(parent context.Context, log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn(l10n.T("Interrupted, shutting down..."))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:        "decode",
		Usage:       l10n.T("Decode a latent file into frames and video"),
		Description: l10n.T("Decode the latents in a safetensors file chunk by chunk, then write the requested outputs."),
		ArgsUsage:   "<latents.safetensors>",
		Flags:       decodeFlags(),
		Action:      runDecode,
	}
}

// inputFlags select the latents to decode.
func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Category: l10n.T(catInput), Usage: l10n.T("YAML configuration file")},
		&cli.StringFlag{Name: "tensor", Aliases: []string{"t"}, Category: l10n.T(catInput), Usage: l10n.T("Tensor name in the latent file (default: latents, samples or latent)")},
		&cli.StringFlag{Name: "synthetic", Category: l10n.T(catInput), Usage: l10n.T("Decode synthetic latents of size FRAMESxHEIGHTxWIDTH instead of a file")},
		&cli.IntFlag{Name: "synthetic-channels", Category: l10n.T(catInput), Value: 4, Usage: l10n.T("Latent channels of synthetic latents")},
	}
}

// decoderFlags configure the reference decoder.
func decoderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "decoder-time-scale", Category: l10n.T(catDecoder), Usage: l10n.T("Output frames per latent frame of the reference decoder")},
		&cli.IntFlag{Name: "decoder-spatial-scale", Category: l10n.T(catDecoder), Usage: l10n.T("Output pixels per latent pixel of the reference decoder")},
		&cli.IntFlag{Name: "decoder-channels", Category: l10n.T(catDecoder), Usage: l10n.T("Output channels of the reference decoder")},
		&cli.Int64Flag{Name: "memory-budget", Category: l10n.T(catDecoder), Usage: l10n.T("Bytes the decoder may allocate per call (0 = unlimited)")},
		&cli.BoolFlag{Name: "declare-scale", Category: l10n.T(catDecoder), Usage: l10n.T("Let the decoder declare its time scale instead of probing")},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Category: l10n.T(catLogging), Usage: l10n.T("Log level (debug, info, warn, error)")},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Category: l10n.T(catLogging), Usage: l10n.T("Suppress all log output")},
	}
}

func decodeFlags() []cli.Flag {
	flags := inputFlags()
	flags = append(flags,
		// Chunking and tiling
		&cli.StringFlag{Name: "memory-preset", Aliases: []string{"m"}, Category: l10n.T(catChunk), Usage: l10n.T("Memory preset (low, medium, high)")},
		&cli.IntFlag{Name: "batch", Aliases: []string{"b"}, Category: l10n.T(catChunk), Usage: l10n.T("Latent frames per chunk (overrides memory preset)")},
		&cli.IntFlag{Name: "overlap", Category: l10n.T(catChunk), Usage: l10n.T("Context frames on each side of a chunk (overrides memory preset)")},
		&cli.BoolFlag{Name: "tile", Category: l10n.T(catChunk), Usage: l10n.T("Start with tiled decoding")},
		&cli.IntFlag{Name: "tile-size", Category: l10n.T(catChunk), Usage: l10n.T("Tile edge in output pixels")},
		&cli.IntFlag{Name: "min-tile-size", Category: l10n.T(catChunk), Usage: l10n.T("Smallest tile edge tried when out of memory")},
		&cli.BoolFlag{Name: "manual-tiling", Category: l10n.T(catChunk), Usage: l10n.T("Tile in chunkdecode when the decoder cannot")},
		&cli.IntFlag{Name: "time-scale", Category: l10n.T(catChunk), Usage: l10n.T("Force the time scale instead of detecting it")},
		&cli.IntFlag{Name: "reclaim-every", Category: l10n.T(catChunk), Usage: l10n.T("Reclaim memory every N chunks (0 = never)")},
	)
	flags = append(flags, decoderFlags()...)
	flags = append(flags,
		// Output
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Category: l10n.T(catOutput), Usage: l10n.T("Output MP4 file path")},
		&cli.StringFlag{Name: "frames-dir", Category: l10n.T(catOutput), Usage: l10n.T("Directory for the image sequence")},
		&cli.StringFlag{Name: "format", Category: l10n.T(catOutput), Usage: l10n.T("Image format (png, jpeg)")},
		&cli.IntFlag{Name: "jpeg-quality", Category: l10n.T(catOutput), Usage: l10n.T("JPEG quality (1-100)")},
		&cli.Float64Flag{Name: "fps", Category: l10n.T(catOutput), Usage: l10n.T("Video frame rate")},
		&cli.IntFlag{Name: "crf", Category: l10n.T(catOutput), Usage: l10n.T("Video CRF value (0-51, lower is better)")},
		&cli.StringFlag{Name: "ffmpeg", Category: l10n.T(catOutput), Usage: l10n.T("Path to ffmpeg executable (falls back to FFMPEG_PATH, then PATH)")},
		&cli.StringFlag{Name: "contact-sheet", Category: l10n.T(catOutput), Usage: l10n.T("Contact sheet PNG path")},
		&cli.IntFlag{Name: "sheet-step", Category: l10n.T(catOutput), Usage: l10n.T("Put every Nth frame on the contact sheet")},
		&cli.IntFlag{Name: "workers", Category: l10n.T(catOutput), Usage: l10n.T("Parallel image writers")},
		&cli.StringFlag{Name: "summary", Aliases: []string{"s"}, Category: l10n.T(catOutput), Usage: l10n.T("Output execution summary to file (Markdown, or YAML for .yaml/.yml)")},
		&cli.BoolFlag{Name: "no-progress", Category: l10n.T(catOutput), Usage: l10n.T("Hide the progress bar")},

		// Debug
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Category: l10n.T(catDebug), Usage: l10n.T("Enable debug output")},
		&cli.StringFlag{Name: "debug-dir", Category: l10n.T(catDebug), Usage: l10n.T("Directory for debug output")},
	)
	return append(flags, loggingFlags()...)
}

// loadConfig builds a Config from the optional file and the flags that were
// set explicitly.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("memory-preset") {
		cfg.MemoryPreset = c.String("memory-preset")
		m := chunkdecode.GetMemorySettings(chunkdecode.MemoryPreset(cfg.MemoryPreset))
		cfg.FramesPerBatch = m.FramesPerBatch
		cfg.Overlap = m.Overlap
		cfg.TileMode = m.TileMode
		cfg.TileSize = m.TileSize
	}

	setString(c, "tensor", &cfg.TensorName)
	setInt(c, "batch", &cfg.FramesPerBatch)
	setInt(c, "overlap", &cfg.Overlap)
	setBool(c, "tile", &cfg.TileMode)
	setInt(c, "tile-size", &cfg.TileSize)
	setInt(c, "min-tile-size", &cfg.MinTileSize)
	setBool(c, "manual-tiling", &cfg.ManualTiling)
	setInt(c, "time-scale", &cfg.TimeScale)
	setInt(c, "reclaim-every", &cfg.ReclaimEvery)

	setInt(c, "decoder-time-scale", &cfg.Decoder.TimeScale)
	setInt(c, "decoder-spatial-scale", &cfg.Decoder.SpatialScale)
	setInt(c, "decoder-channels", &cfg.Decoder.Channels)
	if c.IsSet("memory-budget") {
		cfg.Decoder.MemoryBudget = c.Int64("memory-budget")
	}
	setBool(c, "declare-scale", &cfg.Decoder.Declare)

	setString(c, "output", &cfg.Output.Video)
	setString(c, "frames-dir", &cfg.Output.FramesDir)
	setString(c, "format", &cfg.Output.Format)
	setInt(c, "jpeg-quality", &cfg.Output.Quality)
	if c.IsSet("fps") {
		cfg.Output.FPS = c.Float64("fps")
	}
	setInt(c, "crf", &cfg.Output.CRF)
	setString(c, "ffmpeg", &cfg.Output.FFmpegPath)
	setString(c, "contact-sheet", &cfg.Output.ContactSheet)
	setInt(c, "sheet-step", &cfg.Output.SheetStep)
	setInt(c, "workers", &cfg.Output.Workers)

	setBool(c, "debug", &cfg.Debug)
	setString(c, "debug-dir", &cfg.DebugDir)
	setString(c, "log-level", &cfg.LogLevel)

	return cfg, cfg.Validate()
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func setInt(c *cli.Context, name string, dst *int) {
	if c.IsSet(name) {
		*dst = c.Int(name)
	}
}

func setBool(c *cli.Context, name string, dst *bool) {
	if c.IsSet(name) {
		*dst = c.Bool(name)
	}
}

func newLogger(c *cli.Context, cfg config.Config) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
}

// loadLatents reads the latent tensor named by the first argument, or builds
// synthetic latents when --synthetic is set.
func loadLatents(c *cli.Context, cfg config.Config, fs ports.FileSystem) (*tensor.Tensor, summarizer.InputInfo, error) {
	if spec := c.String("synthetic"); spec != "" {
		frames, h, w, err := parseSize(spec)
		if err != nil {
			return nil, summarizer.InputInfo{}, err
		}
		t := refdecoder.Synthetic(c.Int("synthetic-channels"), frames, h, w)
		return t, summarizer.InputInfo{
			Path:   "synthetic " + spec,
			DType:  string(latentfile.F32),
			Shape:  t.Shape(),
			Frames: frames,
		}, nil
	}

	if c.NArg() < 1 {
		return nil, summarizer.InputInfo{}, errors.New(l10n.T("latent file argument is required"))
	}
	path := c.Args().First()
	latents, err := latentfile.NewStore(fs).Load(path, cfg.TensorName)
	if err != nil {
		return nil, summarizer.InputInfo{}, err
	}

	info := summarizer.InputInfo{
		Path:       path,
		TensorName: latents.Name,
		DType:      string(latents.DType),
		Shape:      latents.Tensor.Shape(),
		Frames:     1,
	}
	if latents.Tensor.Dims() == 5 {
		info.Frames = latents.Tensor.Dim(2)
	}
	return latents.Tensor, info, nil
}

// parseSize parses FRAMESxHEIGHTxWIDTH.
func parseSize(s string) (frames, h, w int, err error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid size %q, want FRAMESxHEIGHTxWIDTH", s)
	}
	var v [3]int
	for i, p := range parts {
		if v[i], err = strconv.Atoi(p); err != nil || v[i] < 1 {
			return 0, 0, 0, fmt.Errorf("invalid size %q, want FRAMESxHEIGHTxWIDTH", s)
		}
	}
	return v[0], v[1], v[2], nil
}

func runDecode(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	ctx, cancel := signalContext(c.Context, log)
	defer cancel()

	// Create adapters
	fs := osfilesystem.New()
	renderer := ggrenderer.New()
	decoder := refdecoder.New(cfg.ToDecoderConfig())

	latents, input, err := loadLatents(c, cfg, fs)
	if err != nil {
		return err
	}

	// Create debug sink
	var sink ports.DebugSink
	if cfg.Debug {
		if err := fs.MkdirAll(cfg.DebugDir); err != nil {
			return fmt.Errorf("create debug directory: %w", err)
		}
		sink = filesink.New(cfg.DebugDir, fs, renderer)
	} else {
		sink = nullsink.New()
	}

	var prog ports.ProgressReporter = progress.NewConsole()
	if c.Bool("no-progress") || c.Bool("quiet") {
		prog = progress.Noop{}
	}

	opts := cfg.ToDecodeOptions()
	opts.Logger = log
	opts.Sink = sink
	opts.Progress = prog
	opts.Reclaimer = memreclaim.New()

	log.Info(l10n.F("Decoding %s with %s", input.Path, decoder.DecoderID()))
	result, err := chunkdecode.NewPipeline(opts).Decode(ctx, latents, decoder)
	if err != nil {
		return err
	}

	var exported pipeline.ExportResult
	videoSamples := 0
	if cfg.Output.FramesDir != "" || cfg.Output.Video != "" || cfg.Output.ContactSheet != "" {
		if exported, err = writeOutputs(ctx, cfg, result, renderer, fs, log); err != nil {
			return err
		}
		if exported.VideoPath != "" {
			info, err := inspectVideo(exported.VideoPath)
			if err != nil {
				return err
			}
			videoSamples = info.Samples
			if info.Samples != result.Actual {
				log.Warn(l10n.F("Video has %d samples, decoded %d frames", info.Samples, result.Actual))
			}
			log.Info(l10n.F("Output saved to %s", exported.VideoPath))
		}
	}

	if path := c.String("summary"); path != "" {
		summary := summarizer.NewBuilder().
			WithInput(input).
			WithDecoderID(decoder.DecoderID()).
			WithSettings(summarizer.Settings{
				FramesPerBatch: opts.FramesPerBatch,
				Overlap:        opts.Overlap,
				TileMode:       opts.TileMode,
				TileSize:       opts.TileSize,
				ManualTiling:   opts.ManualTiling,
			}).
			WithResult(result).
			WithFramesDir(cfg.Output.FramesDir).
			WithExport(exported).
			WithVideoSamples(videoSamples).
			Build()

		formatter := summarizer.NewMarkdownFormatter(
			summarizer.WithTranslator(l10n.T),
			summarizer.WithVersion(version),
		)
		if err := summarizer.NewWriter(summarizer.FormatterFor(path, formatter), fs).Write(path, summary); err != nil {
			log.Warn(l10n.F("Failed to write summary: %s", err))
		} else {
			log.Info(l10n.F("Summary saved to %s", path))
		}
	}

	return nil
}

// writeOutputs runs the export stage for every output the config requests.
func writeOutputs(ctx context.Context, cfg config.Config, result pipeline.DecodeResult, renderer ports.Renderer, fs ports.FileSystem, log ports.Logger) (pipeline.ExportResult, error) {
	format, err := config.ParseImageFormat(cfg.Output.Format)
	if err != nil {
		return pipeline.ExportResult{}, err
	}

	var encoder ports.VideoEncoder
	if cfg.Output.Video != "" {
		encoder = h264export.New(cfg.Output.FFmpegPath)
	}
	stage := export.NewStage(renderer, encoder, fs, log, cfg.Output.Workers)
	return stage.Execute(ctx, pipeline.ExportInput{
		Frames:           result.Frames,
		FramesDir:        cfg.Output.FramesDir,
		Format:           format,
		Quality:          cfg.Output.Quality,
		VideoPath:        cfg.Output.Video,
		Video:            cfg.ToEncoderOptions(),
		ContactSheetPath: cfg.Output.ContactSheet,
		ContactSheet:     cfg.ToContactSheetOptions(),
	})
}

// inspectVideo reads the sample table of an MP4 file.
func inspectVideo(path string) (h264export.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return h264export.Info{}, err
	}
	defer f.Close()
	return h264export.Inspect(f)
}
