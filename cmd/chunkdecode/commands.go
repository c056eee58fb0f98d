package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/chunkdecode/pkg/adapters/latentfile"
	"github.com/user/chunkdecode/pkg/adapters/osfilesystem"
	"github.com/user/chunkdecode/pkg/adapters/refdecoder"
	"github.com/user/chunkdecode/pkg/config"
	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/stages/plan"
	"github.com/user/chunkdecode/pkg/stages/scale"
	"github.com/user/chunkdecode/pkg/stages/stitch"
)

func planCommand() *cli.Command {
	defaults := config.Defaults()
	return &cli.Command{
		Name:        "plan",
		Usage:       l10n.T("Show how a sequence would be split into chunks"),
		Description: l10n.T("Print the chunk plan and the frames each chunk contributes, without decoding."),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "frames", Aliases: []string{"f"}, Required: true, Usage: l10n.T("Number of latent frames")},
			&cli.IntFlag{Name: "batch", Aliases: []string{"b"}, Value: defaults.FramesPerBatch, Usage: l10n.T("Latent frames per chunk")},
			&cli.IntFlag{Name: "overlap", Value: defaults.Overlap, Usage: l10n.T("Context frames on each side of a chunk")},
			&cli.IntFlag{Name: "time-scale", Value: refdecoder.DefaultTimeScale, Usage: l10n.T("Output frames per latent frame")},
			&cli.BoolFlag{Name: "json", Usage: l10n.T("Print the plan as JSON")},
		},
		Action: runPlan,
	}
}

func runPlan(c *cli.Context) error {
	ts := c.Int("time-scale")
	if ts < 1 {
		return fmt.Errorf("time scale must be positive, got %d", ts)
	}
	p := plan.ComputePlan(c.Int("frames"), c.Int("batch"), c.Int("overlap"))

	if c.Bool("json") {
		return printJSON(p)
	}

	info := pipeline.ScaleInfo{TimeScale: ts}
	fmt.Println(l10n.F("%d latent frames, batch %d, overlap %d: %d chunks, %d output frames",
		p.TotalFrames, p.BatchSize, p.Overlap, len(p.Chunks), info.ExpectedFrames(p.TotalFrames)))
	for _, chunk := range p.Chunks {
		front, keep := stitch.Bounds(chunk, p.TotalFrames, ts)
		decoded := info.ExpectedFrames(chunk.CtxLen())
		if p.IsLast(chunk) {
			keep = decoded - front
		}
		fmt.Printf("  #%d core [%d,%d) ctx [%d,%d)  decode %d, drop %d, keep %d\n",
			chunk.Index, chunk.CoreStart, chunk.CoreEnd, chunk.CtxStart, chunk.CtxEnd, decoded, front, keep)
	}
	return nil
}

func probeCommand() *cli.Command {
	flags := inputFlags()
	flags = append(flags, decoderFlags()...)
	flags = append(flags, loggingFlags()...)
	return &cli.Command{
		Name:        "probe",
		Usage:       l10n.T("Detect the time and spatial scale of the decoder"),
		Description: l10n.T("Decode a small crop of the latents and print the measured scale as JSON."),
		ArgsUsage:   "<latents.safetensors>",
		Flags:       flags,
		Action:      runProbe,
	}
}

func runProbe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	ctx, cancel := signalContext(c.Context, log)
	defer cancel()

	t, _, err := loadLatents(c, cfg, osfilesystem.New())
	if err != nil {
		return err
	}
	latents, err := pipeline.NewLatents(t)
	if err != nil {
		return err
	}

	decoder := refdecoder.New(cfg.ToDecoderConfig())
	info := scale.NewEstimator(nil, log).Estimate(ctx, decoder, latents, pipeline.ScaleOverride{})
	return printJSON(info)
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:        "verify",
		Usage:       l10n.T("Check that a video has the length its latents imply"),
		Description: l10n.T("Read the sample table of an MP4 file and compare it with 1 + (latent frames - 1) x time scale."),
		ArgsUsage:   "<video.mp4>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "latent-frames", Aliases: []string{"f"}, Usage: l10n.T("Number of latent frames the video was decoded from")},
			&cli.IntFlag{Name: "time-scale", Value: refdecoder.DefaultTimeScale, Usage: l10n.T("Output frames per latent frame")},
		},
		Action: runVerify,
	}
}

func runVerify(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New(l10n.T("video file argument is required"))
	}
	path := c.Args().First()
	info, err := inspectVideo(path)
	if err != nil {
		return err
	}

	fmt.Println(l10n.F("%s: %s %dx%d, %d samples (%d keyframes), %.3f s at %.3f fps",
		path, info.Codec, info.Width, info.Height, info.Samples, info.Keyframes, info.Seconds(), info.FPS()))

	if !c.IsSet("latent-frames") {
		return nil
	}
	expected := pipeline.ScaleInfo{TimeScale: c.Int("time-scale")}.ExpectedFrames(c.Int("latent-frames"))
	if info.Samples != expected {
		return cli.Exit(l10n.F("Length mismatch: got %d frames, expected %d (%+d)", info.Samples, expected, info.Samples-expected), 2)
	}
	fmt.Println(l10n.F("Sync OK: %d frames", info.Samples))
	return nil
}

func synthCommand() *cli.Command {
	return &cli.Command{
		Name:        "synth",
		Usage:       l10n.T("Write synthetic latents to a safetensors file"),
		Description: l10n.T("Generate a smooth latent sequence for trying out chunk and memory settings."),
		ArgsUsage:   "<latents.safetensors>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "size", Value: "21x32x32", Usage: l10n.T("Latent size as FRAMESxHEIGHTxWIDTH")},
			&cli.IntFlag{Name: "channels", Value: 4, Usage: l10n.T("Latent channels")},
			&cli.StringFlag{Name: "dtype", Value: string(latentfile.F16), Usage: l10n.T("Element type (F32, F16, BF16)")},
			&cli.StringFlag{Name: "tensor", Aliases: []string{"t"}, Value: latentfile.DefaultNames[0], Usage: l10n.T("Tensor name")},
		},
		Action: runSynth,
	}
}

func runSynth(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New(l10n.T("latent file argument is required"))
	}
	frames, h, w, err := parseSize(c.String("size"))
	if err != nil {
		return err
	}
	dtype := latentfile.DType(strings.ToUpper(c.String("dtype")))
	if dtype.Size() == 0 {
		return fmt.Errorf("%w: %s", latentfile.ErrUnsupportedDType, dtype)
	}

	t := refdecoder.Synthetic(c.Int("channels"), frames, h, w)
	path := c.Args().First()
	metadata := map[string]string{"generator": "chunkdecode " + version}
	if err := latentfile.NewStore(osfilesystem.New()).Save(path, c.String("tensor"), t, dtype, metadata); err != nil {
		return err
	}
	fmt.Println(l10n.F("Wrote %v %s latents to %s", t.Shape(), dtype, path))
	return nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: l10n.T("Show version information"),
		Action: func(c *cli.Context) error {
			fmt.Println(l10n.F("chunkdecode version %s", version))
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
