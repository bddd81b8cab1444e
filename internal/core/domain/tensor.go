package domain

import "fmt"

// Layout is the memory order of a preprocessed image tensor.
type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutNHWC, "":
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	default:
		return "", fmt.Errorf("unknown tensor layout %q", s)
	}
}

// Tensor is a batch-of-one float32 image tensor, shape [1,H,W,3] or [1,3,H,W].
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Elements returns the number of values implied by Shape.
func (t Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}
