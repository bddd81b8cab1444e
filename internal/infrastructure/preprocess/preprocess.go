package preprocess

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

// Options describe the exact input the bundled classifier was trained on.
// Samples are mapped as value = sample*Scale + Offset after resizing.
type Options struct {
	Width         int
	Height        int
	Layout        domain.Layout
	Scale         float32
	Offset        float32
	Interpolation string
	// MaxPixels caps Width*Height of an input image. Compressed uploads are
	// small, decoded ones are not.
	MaxPixels int
}

const DefaultMaxPixels = 40_000_000

func DefaultOptions() Options {
	return Options{
		Width:         224,
		Height:        224,
		Layout:        domain.LayoutNHWC,
		Scale:         1.0 / 255.0,
		Offset:        0,
		Interpolation: "bilinear",
		MaxPixels:     DefaultMaxPixels,
	}
}

type Preprocessor struct {
	opts   Options
	interp resize.InterpolationFunction
}

func New(opts Options) (*Preprocessor, error) {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Layout == "" {
		opts.Layout = def.Layout
	}
	if opts.Layout != domain.LayoutNHWC && opts.Layout != domain.LayoutNCHW {
		return nil, fmt.Errorf("unsupported tensor layout %q", opts.Layout)
	}
	if opts.Scale == 0 {
		opts.Scale = def.Scale
	}
	if opts.Interpolation == "" {
		opts.Interpolation = def.Interpolation
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = def.MaxPixels
	}

	interp, err := ParseInterpolation(opts.Interpolation)
	if err != nil {
		return nil, err
	}
	return &Preprocessor{opts: opts, interp: interp}, nil
}

func ParseInterpolation(name string) (resize.InterpolationFunction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return resize.NearestNeighbor, nil
	case "bilinear":
		return resize.Bilinear, nil
	case "bicubic":
		return resize.Bicubic, nil
	case "mitchell":
		return resize.MitchellNetravali, nil
	case "lanczos2":
		return resize.Lanczos2, nil
	case "lanczos3":
		return resize.Lanczos3, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", name)
	}
}

// Shape returns the batch-of-one tensor shape produced by Preprocess.
func (p *Preprocessor) Shape() []int64 {
	h, w := int64(p.opts.Height), int64(p.opts.Width)
	if p.opts.Layout == domain.LayoutNCHW {
		return []int64{1, 3, h, w}
	}
	return []int64{1, h, w, 3}
}

// Range returns the lowest and highest value a tensor element can take.
func (p *Preprocessor) Range() (float32, float32) {
	lo := p.opts.Offset
	hi := 255*p.opts.Scale + p.opts.Offset
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi
}

// Decode reads the header first and refuses images above MaxPixels before
// any pixel buffer is allocated.
func (p *Preprocessor) Decode(data []byte) (domain.RawImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.RawImage{}, domain.WrapError(domain.ErrDecode, "decode image header", err)
	}
	if err := p.checkPixels(cfg.Width, cfg.Height); err != nil {
		return domain.RawImage{}, domain.WrapError(domain.ErrDecode, "decode image", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.RawImage{}, domain.WrapError(domain.ErrDecode, "decode image", err)
	}
	return domain.RawImageFromImage(img), nil
}

// Preprocess resizes the image directly to the model resolution, without
// keeping the aspect ratio, and scales samples into the training range.
func (p *Preprocessor) Preprocess(raw domain.RawImage) (domain.Tensor, error) {
	if err := p.checkPixels(raw.Width, raw.Height); err != nil {
		return domain.Tensor{}, domain.WrapError(domain.ErrDecode, "preprocess", err)
	}
	if err := raw.Validate(); err != nil {
		return domain.Tensor{}, domain.WrapError(domain.ErrDecode, "preprocess", err)
	}

	resized := resize.Resize(uint(p.opts.Width), uint(p.opts.Height), toRGB(raw), p.interp)
	return domain.Tensor{
		Shape: p.Shape(),
		Data:  p.normalize(resized),
	}, nil
}

func (p *Preprocessor) checkPixels(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if int64(width)*int64(height) > int64(p.opts.MaxPixels) {
		return fmt.Errorf("image is %dx%d, above the %d pixel limit", width, height, p.opts.MaxPixels)
	}
	return nil
}

func (p *Preprocessor) normalize(img image.Image) []float32 {
	w, h := p.opts.Width, p.opts.Height
	plane := w * h
	out := make([]float32, 3*plane)
	b := img.Bounds()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgbAt(img, b.Min.X+x, b.Min.Y+y)
			px := y*w + x
			rv := float32(r)*p.opts.Scale + p.opts.Offset
			gv := float32(g)*p.opts.Scale + p.opts.Offset
			bv := float32(bl)*p.opts.Scale + p.opts.Offset
			if p.opts.Layout == domain.LayoutNCHW {
				out[px] = rv
				out[plane+px] = gv
				out[2*plane+px] = bv
				continue
			}
			out[px*3] = rv
			out[px*3+1] = gv
			out[px*3+2] = bv
		}
	}
	return out
}

func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	if rgba, ok := img.(*image.RGBA); ok {
		i := rgba.PixOffset(x, y)
		return rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
	}
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

// toRGB builds an opaque RGB image. Gray is replicated into all three
// channels and alpha is discarded rather than blended into color.
func toRGB(raw domain.RawImage) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, raw.Width, raw.Height))
	n := raw.Width * raw.Height
	for i := 0; i < n; i++ {
		src := raw.Pix[i*raw.Channels : (i+1)*raw.Channels]
		var r, g, b uint8
		switch raw.Channels {
		case 1, 2:
			r, g, b = src[0], src[0], src[0]
		default:
			r, g, b = src[0], src[1], src[2]
		}
		dst.Pix[i*4] = r
		dst.Pix[i*4+1] = g
		dst.Pix[i*4+2] = b
		dst.Pix[i*4+3] = 0xff
	}
	return dst
}
