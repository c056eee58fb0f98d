package summarizer

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator sets the function used to translate labels.
func WithTranslator(t func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = t
	}
}

// WithVersion adds the tool version to the footer.
func WithVersion(v string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = v
	}
}

// NewMarkdownFormatter creates a formatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{
		translate: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ Formatter = (*MarkdownFormatter)(nil)

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Decode Summary"))
	if s.RunID != "" {
		fmt.Fprintf(&b, "%s: `%s`  \n", t("Run"), s.RunID)
	}
	fmt.Fprintf(&b, "%s: %s\n\n", t("Generated"), s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	// Input
	fmt.Fprintf(&b, "## %s\n\n", t("Input"))
	f.row(&b, "File", s.Input.Path)
	f.row(&b, "Tensor", s.Input.TensorName)
	f.row(&b, "Data Type", s.Input.DType)
	if len(s.Input.Shape) > 0 {
		f.row(&b, "Shape", formatShape(s.Input.Shape))
	}
	if s.Input.Still {
		f.row(&b, "Latent Frames", t("Still image"))
	} else {
		f.row(&b, "Latent Frames", fmt.Sprintf("%d", s.Input.Frames))
	}
	b.WriteString("\n")

	// Decoder
	fmt.Fprintf(&b, "## %s\n\n", t("Decoder"))
	f.row(&b, "Decoder", s.Decoder.ID)
	f.row(&b, "Time Scale", fmt.Sprintf("x%d (%s)", s.Decoder.TimeScale, t(s.Decoder.ScaleSource)))
	f.row(&b, "Spatial Scale", fmt.Sprintf("x%d", s.Decoder.SpatialScale))
	b.WriteString("\n")

	// Settings
	fmt.Fprintf(&b, "## %s\n\n", t("Settings"))
	f.row(&b, "Frames per Batch", fmt.Sprintf("%d", s.Settings.FramesPerBatch))
	f.row(&b, "Overlap", fmt.Sprintf("%d", s.Settings.Overlap))
	tiling := t("Off")
	if s.Settings.TileMode {
		tiling = fmt.Sprintf("%dpx", s.Settings.TileSize)
	}
	if s.Settings.ManualTiling {
		tiling += " (" + t("manual") + ")"
	}
	f.row(&b, "Tiling", tiling)
	b.WriteString("\n")

	// Result
	fmt.Fprintf(&b, "## %s\n\n", t("Result"))
	f.row(&b, "Chunks", fmt.Sprintf("%d", s.Result.Chunks))
	f.row(&b, "Frames", fmt.Sprintf("%d", s.Result.ActualFrames))
	f.row(&b, "Sync", f.syncStatus(s.Result))
	if s.Result.Degraded {
		f.row(&b, "Memory", t("Degraded"))
	} else {
		f.row(&b, "Memory", t("OK"))
	}
	f.row(&b, "Decode Time", fmt.Sprintf("%d ms", s.Result.DurationMs))
	b.WriteString("\n")

	if len(s.Chunks) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", t("Chunks"))
		fmt.Fprintf(&b, "| # | %s | %s | %s | %s |\n", t("Core"), t("Context"), t("Frames"), t("Steps"))
		b.WriteString("|---|---|---|---|---|\n")
		for _, c := range s.Chunks {
			steps := "-"
			if len(c.Steps) > 0 {
				steps = strings.Join(c.Steps, " → ")
			}
			fmt.Fprintf(&b, "| %d | [%d, %d) | [%d, %d) | %d | %s |\n",
				c.Index, c.CoreStart, c.CoreEnd, c.CtxStart, c.CtxEnd, c.KeptFrames, steps)
		}
		b.WriteString("\n")
	}

	if o := s.Output; o.FramesDir != "" || o.VideoPath != "" || o.ContactSheet != "" {
		fmt.Fprintf(&b, "## %s\n\n", t("Output"))
		if o.FramesDir != "" {
			f.row(&b, "Frames", fmt.Sprintf("%s (%d)", o.FramesDir, o.FrameCount))
		}
		if o.VideoPath != "" {
			f.row(&b, "Video", fmt.Sprintf("%s (%s, %d ms)", o.VideoPath, formatBytes(o.VideoSize), o.VideoDurationMs))
			if o.VideoSamples > 0 {
				f.row(&b, "Video Samples", fmt.Sprintf("%d", o.VideoSamples))
			}
		}
		if o.ContactSheet != "" {
			f.row(&b, "Contact Sheet", o.ContactSheet)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	if f.version != "" {
		fmt.Fprintf(&b, "chunkdecode %s\n", f.version)
	} else {
		b.WriteString("chunkdecode\n")
	}
	return b.String()
}

func (f *MarkdownFormatter) row(b *strings.Builder, label, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Fprintf(b, "- **%s**: %s\n", f.translate(label), value)
}

func (f *MarkdownFormatter) syncStatus(r ResultInfo) string {
	if !r.LengthMismatch {
		return fmt.Sprintf("%s (%d / %d)", f.translate("OK"), r.ActualFrames, r.ExpectedFrames)
	}
	return fmt.Sprintf("%s (%d / %d, %+d)", f.translate("Mismatch"), r.ActualFrames, r.ExpectedFrames, r.ActualFrames-r.ExpectedFrames)
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// formatBytes formats a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMG"[exp])
}
