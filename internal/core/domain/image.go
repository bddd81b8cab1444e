package domain

import (
	"fmt"
	"image"
	"image/color"
)

// RawImage is a decoded image as row-major Height x Width x Channels
// unsigned 8-bit samples. Channels is 1 (gray), 2 (gray+alpha), 3 (RGB)
// or 4 (RGBA, non-premultiplied).
type RawImage struct {
	Height   int
	Width    int
	Channels int
	Pix      []uint8
}

func (r RawImage) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("image has empty bounds %dx%d", r.Width, r.Height)
	}
	if r.Channels < 1 || r.Channels > 4 {
		return fmt.Errorf("unsupported channel count %d", r.Channels)
	}
	if want := r.Width * r.Height * r.Channels; len(r.Pix) != want {
		return fmt.Errorf("pixel buffer has %d samples, want %d", len(r.Pix), want)
	}
	return nil
}

// RawImageFromImage converts a decoded image into samples. Grayscale images
// keep one channel, opaque images get three and translucent ones four.
func RawImageFromImage(img image.Image) RawImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if gray, ok := img.(*image.Gray); ok {
		pix := make([]uint8, 0, w*h)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				pix = append(pix, gray.GrayAt(x, y).Y)
			}
		}
		return RawImage{Height: h, Width: w, Channels: 1, Pix: pix}
	}

	channels := 4
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		channels = 3
	}

	pix := make([]uint8, 0, w*h*channels)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B)
			if channels == 4 {
				pix = append(pix, c.A)
			}
		}
	}
	return RawImage{Height: h, Width: w, Channels: channels, Pix: pix}
}
