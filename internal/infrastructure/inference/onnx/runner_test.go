package onnx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

func TestNewRunnerFailsWithModelLoadErrorForMissingArtifact(t *testing.T) {
	_, err := NewRunner(Options{
		ModelPath:   filepath.Join(t.TempDir(), "mobilenetv2.onnx"),
		InputShape:  []int64{1, 224, 224, 3},
		OutputShape: []int64{1, 39},
	})
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.ErrModelLoad), "got %v", err)
}

func TestMatchShapeTreatsDynamicDimsAsWildcards(t *testing.T) {
	require.NoError(t, matchShape([]int64{-1, 224, 224, 3}, []int64{1, 224, 224, 3}))
	require.NoError(t, matchShape([]int64{1, 39}, []int64{1, 39}))

	require.Error(t, matchShape([]int64{1, 38}, []int64{1, 39}))
	require.Error(t, matchShape([]int64{1, 256, 256, 3}, []int64{1, 224, 224, 3}))
	require.Error(t, matchShape([]int64{1, 3, 224, 224}, []int64{1, 224, 224}))
}

func TestCheckTensorReportsCatalogModelMismatch(t *testing.T) {
	outputs := []ort.InputOutputInfo{{Name: "logits", Dimensions: ort.NewShape(-1, 38)}}

	err := checkTensor("output", "logits", outputs, []int64{1, 39})
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimension 1 differs")

	err = checkTensor("output", "output", outputs, []int64{1, 38})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no output named")

	require.NoError(t, checkTensor("output", "logits", outputs, []int64{1, 38}))
}
