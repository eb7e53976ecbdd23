package l2frames

import (
	"image"

	"golang.org/x/image/draw"
)

// AlignColor returns src as a w×h RGBA image anchored at the origin.
// Frames that already match are returned as-is; others are rescaled
// bilinearly so colour pixels line up with depth pixels.
func AlignColor(src image.Image, w, h int) *image.RGBA {
	if src == nil {
		return nil
	}
	target := image.Rect(0, 0, w, h)
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect == target {
		return rgba
	}
	dst := image.NewRGBA(target)
	if src.Bounds().Size() == target.Size() {
		draw.Draw(dst, target, src, src.Bounds().Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, target, src, src.Bounds(), draw.Src, nil)
	return dst
}
