package ports

import (
	"context"

	"github.com/user/chunkdecode/pkg/tensor"
)

// DecodeOutput is what a decoder hands back for one call. Most decoders return
// a single tensor; some return an aggregate whose first element carries the
// pixels and whose remaining elements are auxiliary outputs.
type DecodeOutput struct {
	Tensors []*tensor.Tensor
}

// Single wraps one tensor as a DecodeOutput.
func Single(t *tensor.Tensor) DecodeOutput {
	return DecodeOutput{Tensors: []*tensor.Tensor{t}}
}

// First returns the pixel-carrying element of the output.
func (o DecodeOutput) First() (*tensor.Tensor, bool) {
	if len(o.Tensors) == 0 || o.Tensors[0] == nil {
		return nil, false
	}
	return o.Tensors[0], true
}

// LatentDecoder turns latent data into pixel data.
//
// Input is either [B, C, F, H, W] (video) or [B, C, H, W] (still). The output
// layout is decoder specific and is canonicalized by the normalize stage.
// Decode must be safe to retry with an equal or smaller input.
type LatentDecoder interface {
	Decode(ctx context.Context, latents *tensor.Tensor) (DecodeOutput, error)
}

// TiledDecoder is implemented by decoders that can split each frame into
// spatial tiles internally and stitch them back together.
type TiledDecoder interface {
	DecodeTiled(ctx context.Context, latents *tensor.Tensor, tileWidth, tileHeight int) (DecodeOutput, error)
}

// ScaleHinter is implemented by decoders that declare their temporal
// upsampling ratio, which spares the scale stage an empirical probe.
type ScaleHinter interface {
	// DeclaredTimeScale returns the number of output frames produced per
	// additional latent frame. ok is false when nothing is declared.
	DeclaredTimeScale() (scale int, ok bool)
}

// Identifier is implemented by decoders with a stable identity. The scale
// cache keys on it; decoders without one are keyed by instance.
type Identifier interface {
	DecoderID() string
}
