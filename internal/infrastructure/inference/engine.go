package inference

import (
	"fmt"
	"sort"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

// Runner executes a loaded model on one flattened input tensor.
type Runner interface {
	InputShape() []int64
	OutputSize() int
	Run(input []float32) ([]float32, error)
}

// Engine interprets runner output against the label catalog. It holds no
// mutable state, so one Engine is shared by all requests.
type Engine struct {
	runner     Runner
	labels     []domain.Label
	inputShape []int64
}

func NewEngine(runner Runner, labels []domain.Label) (*Engine, error) {
	if runner == nil {
		return nil, domain.WrapError(domain.ErrModelLoad, "new engine", fmt.Errorf("runner is nil"))
	}
	if len(labels) == 0 {
		return nil, domain.WrapError(domain.ErrModelLoad, "new engine", fmt.Errorf("label catalog is empty"))
	}
	if n := runner.OutputSize(); n != len(labels) {
		return nil, domain.WrapError(domain.ErrModelLoad, "new engine",
			fmt.Errorf("model outputs %d classes, catalog has %d labels", n, len(labels)))
	}

	return &Engine{
		runner:     runner,
		labels:     append([]domain.Label(nil), labels...),
		inputShape: append([]int64(nil), runner.InputShape()...),
	}, nil
}

func (e *Engine) Labels() []domain.Label {
	return append([]domain.Label(nil), e.labels...)
}

func (e *Engine) InputShape() []int64 {
	return append([]int64(nil), e.inputShape...)
}

func (e *Engine) Predict(tensor domain.Tensor) (domain.Prediction, error) {
	if err := e.checkShape(tensor); err != nil {
		return domain.Prediction{}, domain.WrapError(domain.ErrShapeMismatch, "predict", err)
	}

	probs, err := e.runner.Run(tensor.Data)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if len(probs) != len(e.labels) {
		return domain.Prediction{}, domain.WrapError(domain.ErrShapeMismatch, "predict",
			fmt.Errorf("model returned %d scores for %d labels", len(probs), len(e.labels)))
	}

	idx, confidence := ArgMax(probs)
	return domain.Prediction{
		Index:         idx,
		Label:         e.labels[idx],
		Confidence:    confidence,
		Probabilities: probs,
	}, nil
}

// Rank returns the k most probable classes of pred.
func (e *Engine) Rank(pred domain.Prediction, k int) []domain.ClassScore {
	return TopK(pred, e.labels, k)
}

// checkShape accepts dynamic model dimensions (<= 0) as wildcards.
func (e *Engine) checkShape(tensor domain.Tensor) error {
	if len(tensor.Shape) != len(e.inputShape) {
		return fmt.Errorf("tensor shape %v, model expects %v", tensor.Shape, e.inputShape)
	}
	for i, want := range e.inputShape {
		if want > 0 && tensor.Shape[i] != want {
			return fmt.Errorf("tensor shape %v, model expects %v", tensor.Shape, e.inputShape)
		}
	}
	if int64(len(tensor.Data)) != tensor.Elements() {
		return fmt.Errorf("tensor has %d values for shape %v", len(tensor.Data), tensor.Shape)
	}
	return nil
}

// ArgMax returns the first index holding the maximum value.
func ArgMax(values []float32) (int, float32) {
	if len(values) == 0 {
		return -1, 0
	}
	best, bestVal := 0, values[0]
	for i, v := range values[1:] {
		if v > bestVal {
			best, bestVal = i+1, v
		}
	}
	return best, bestVal
}

// TopK ranks classes by probability; equal scores keep catalog order.
func TopK(pred domain.Prediction, labels []domain.Label, k int) []domain.ClassScore {
	if k <= 0 || len(pred.Probabilities) == 0 {
		return nil
	}
	order := make([]int, len(pred.Probabilities))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pred.Probabilities[order[a]] > pred.Probabilities[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}

	out := make([]domain.ClassScore, 0, k)
	for _, idx := range order[:k] {
		if idx >= len(labels) {
			continue
		}
		out = append(out, domain.ClassScore{Label: labels[idx], Confidence: pred.Probabilities[idx]})
	}
	return out
}
