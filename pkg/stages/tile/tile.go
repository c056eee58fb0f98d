// Package tile decodes latents in spatial tiles for decoders that have no
// tiled decode of their own.
package tile

import (
	"context"
	"fmt"

	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/normalize"
	"github.com/user/chunkdecode/pkg/tensor"
)

// Decoder adds ports.TiledDecoder to a plain decoder by cropping the latents
// into tiles, decoding each one and concatenating the normalized results
// along width and then height. Tiles are joined without blending.
type Decoder struct {
	decoder      ports.LatentDecoder
	spatialScale int
}

// NewDecoder wraps decoder. spatialScale converts pixel tile sizes into
// latent tile sizes; values below 1 use pipeline.DefaultSpatialScale.
func NewDecoder(decoder ports.LatentDecoder, spatialScale int) *Decoder {
	if spatialScale < 1 {
		spatialScale = pipeline.DefaultSpatialScale
	}
	return &Decoder{
		decoder:      decoder,
		spatialScale: spatialScale,
	}
}

// Decode passes through to the wrapped decoder.
func (d *Decoder) Decode(ctx context.Context, latents *tensor.Tensor) (ports.DecodeOutput, error) {
	return d.decoder.Decode(ctx, latents)
}

// DecodeTiled decodes latents in tiles of tileWidth x tileHeight output
// pixels. The result is already normalized to [F, H, W, C].
func (d *Decoder) DecodeTiled(ctx context.Context, latents *tensor.Tensor, tileWidth, tileHeight int) (ports.DecodeOutput, error) {
	tw, th := d.latentTile(tileWidth), d.latentTile(tileHeight)
	h, w := latents.Dim(-2), latents.Dim(-1)
	if h <= th && w <= tw {
		return d.decoder.Decode(ctx, latents)
	}

	var rows []*tensor.Tensor
	for y := 0; y < h; y += th {
		band, err := latents.Narrow(-2, y, y+th)
		if err != nil {
			return ports.DecodeOutput{}, err
		}

		var cols []*tensor.Tensor
		for x := 0; x < w; x += tw {
			if err := ctx.Err(); err != nil {
				return ports.DecodeOutput{}, err
			}
			crop, err := band.Narrow(-1, x, x+tw)
			if err != nil {
				return ports.DecodeOutput{}, err
			}
			out, err := d.decoder.Decode(ctx, crop)
			if err != nil {
				return ports.DecodeOutput{}, fmt.Errorf("tile (%d,%d): %w", x, y, err)
			}
			frames, err := normalize.Output(out)
			if err != nil {
				return ports.DecodeOutput{}, fmt.Errorf("tile (%d,%d): %w", x, y, err)
			}
			cols = append(cols, frames)
		}

		row, err := tensor.Concat(2, cols...)
		if err != nil {
			return ports.DecodeOutput{}, fmt.Errorf("join tile row %d: %w", y, err)
		}
		rows = append(rows, row)
	}

	frames, err := tensor.Concat(1, rows...)
	if err != nil {
		return ports.DecodeOutput{}, fmt.Errorf("join tile rows: %w", err)
	}
	return ports.Single(frames), nil
}

func (d *Decoder) latentTile(pixels int) int {
	return max(1, pixels/d.spatialScale)
}

var _ ports.TiledDecoder = (*Decoder)(nil)
