package inference

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

type fakeRunner struct {
	shape  []int64
	output []float32
	err    error
	calls  int
	inputs [][]float32
}

func (f *fakeRunner) InputShape() []int64 { return f.shape }
func (f *fakeRunner) OutputSize() int     { return len(f.output) }

func (f *fakeRunner) Run(input []float32) ([]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.output...), nil
}

var testLabels = []domain.Label{"Apple - Healthy", "Tomato_Late_Blight", "Background without Leaves", "Tomato - Healthy"}

func tensorOf(shape ...int64) domain.Tensor {
	t := domain.Tensor{Shape: shape}
	t.Data = make([]float32, t.Elements())
	return t
}

func TestPredictReturnsArgMax(t *testing.T) {
	runner := &fakeRunner{shape: []int64{1, 2, 2, 3}, output: []float32{0.1, 0.6, 0.05, 0.25}}
	engine, err := NewEngine(runner, testLabels)
	require.NoError(t, err)

	pred, err := engine.Predict(tensorOf(1, 2, 2, 3))
	require.NoError(t, err)
	require.Equal(t, 1, pred.Index)
	require.Equal(t, domain.Label("Tomato_Late_Blight"), pred.Label)
	require.Equal(t, float32(0.6), pred.Confidence)
	require.Len(t, pred.Probabilities, len(testLabels))
}

func TestPredictTieGoesToLowestIndex(t *testing.T) {
	runner := &fakeRunner{shape: []int64{1, 1, 1, 3}, output: []float32{0.1, 0.4, 0.1, 0.4}}
	engine, err := NewEngine(runner, testLabels)
	require.NoError(t, err)

	pred, err := engine.Predict(tensorOf(1, 1, 1, 3))
	require.NoError(t, err)
	require.Equal(t, 1, pred.Index)
}

func TestPredictIsDeterministic(t *testing.T) {
	runner := &fakeRunner{shape: []int64{1, 1, 1, 3}, output: []float32{0.2, 0.3, 0.4, 0.1}}
	engine, err := NewEngine(runner, testLabels)
	require.NoError(t, err)

	first, err := engine.Predict(tensorOf(1, 1, 1, 3))
	require.NoError(t, err)
	second, err := engine.Predict(tensorOf(1, 1, 1, 3))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.GreaterOrEqual(t, first.Index, 0)
	require.Less(t, first.Index, len(testLabels))
}

func TestPredictRejectsShapeMismatch(t *testing.T) {
	runner := &fakeRunner{shape: []int64{-1, 4, 4, 3}, output: []float32{1, 0, 0, 0}}
	engine, err := NewEngine(runner, testLabels)
	require.NoError(t, err)

	cases := map[string]domain.Tensor{
		"rank":         tensorOf(4, 4, 3),
		"width":        tensorOf(1, 4, 5, 3),
		"short data":   {Shape: []int64{1, 4, 4, 3}, Data: make([]float32, 10)},
		"nchw vs nhwc": tensorOf(1, 3, 4, 4),
	}
	for name, tensor := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Predict(tensor)
			require.True(t, domain.IsKind(err, domain.ErrShapeMismatch), "got %v", err)
		})
	}
	require.Zero(t, runner.calls)

	_, err = engine.Predict(tensorOf(2, 4, 4, 3))
	require.NoError(t, err, "dynamic batch dimension accepts any size")
}

func TestPredictPropagatesRunnerError(t *testing.T) {
	boom := errors.New("session closed")
	runner := &fakeRunner{shape: []int64{1, 1, 1, 3}, output: []float32{1, 0, 0, 0}}
	engine, err := NewEngine(runner, testLabels)
	require.NoError(t, err)
	runner.err = boom

	_, err = engine.Predict(tensorOf(1, 1, 1, 3))
	require.ErrorIs(t, err, boom)
}

func TestNewEngineRequiresMatchingCatalog(t *testing.T) {
	_, err := NewEngine(&fakeRunner{shape: []int64{1, 1, 1, 3}, output: []float32{1, 0}}, testLabels)
	require.True(t, domain.IsKind(err, domain.ErrModelLoad))

	_, err = NewEngine(nil, testLabels)
	require.True(t, domain.IsKind(err, domain.ErrModelLoad))
}

func TestArgMax(t *testing.T) {
	idx, val := ArgMax([]float32{0.3, 0.3, 0.2})
	require.Equal(t, 0, idx)
	require.Equal(t, float32(0.3), val)

	idx, _ = ArgMax(nil)
	require.Equal(t, -1, idx)
}

func TestTopK(t *testing.T) {
	pred := domain.Prediction{Probabilities: []float32{0.1, 0.5, 0.1, 0.3}}

	top := TopK(pred, testLabels, 3)
	require.Equal(t, []domain.ClassScore{
		{Label: "Tomato_Late_Blight", Confidence: 0.5},
		{Label: "Tomato - Healthy", Confidence: 0.3},
		{Label: "Apple - Healthy", Confidence: 0.1},
	}, top)

	require.Len(t, TopK(pred, testLabels, 10), 4)
	require.Nil(t, TopK(pred, testLabels, 0))
}

func TestEngineExposesCopiesOfCatalogAndShape(t *testing.T) {
	runner := &fakeRunner{shape: []int64{1, 2, 2, 3}, output: make([]float32, len(testLabels))}
	engine, err := NewEngine(runner, testLabels)
	require.NoError(t, err)

	labels := engine.Labels()
	require.Equal(t, testLabels, labels)
	labels[0] = "mutated"
	require.Equal(t, testLabels[0], engine.Labels()[0])

	shape := engine.InputShape()
	require.Equal(t, []int64{1, 2, 2, 3}, shape)
	shape[1] = 99
	require.Equal(t, int64(2), engine.InputShape()[1])
}
