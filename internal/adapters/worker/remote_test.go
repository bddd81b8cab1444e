package worker

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/usecase"
)

// loopbackRequester hands requests straight to a DiagnoseHandler, the same
// bytes the queue would carry.
type loopbackRequester struct {
	handler *DiagnoseHandler
	calls   int
	payload []byte
	err     error
}

func (l *loopbackRequester) RequestDiagnosis(ctx context.Context, image []byte) ([]byte, error) {
	l.calls++
	l.payload = image
	if l.err != nil {
		return nil, l.err
	}
	return l.handler.Handle(ctx, image), nil
}

func TestRemoteDiagnosisReturnsWorkerResult(t *testing.T) {
	want := &domain.Diagnosis{Label: "Tomato - Late Blight", Confidence: 0.8, Display: "### 🌿 Diagnosis: Tomato - Late Blight"}
	requester := &loopbackRequester{handler: NewDiagnoseHandler(diagnoseFake{result: want}, nil, 0, nil)}
	remote := NewRemoteDiagnosis(requester, nil)

	got, err := remote.RunBytes(context.Background(), []byte{0x89, 'P'})
	if err != nil {
		t.Fatalf("RunBytes() error = %v", err)
	}
	if got.Label != want.Label || got.Confidence != want.Confidence {
		t.Fatalf("unexpected diagnosis: %+v", got)
	}
	if text := remote.DiagnoseBytes(context.Background(), []byte{0x89, 'P'}); text != want.Display {
		t.Fatalf("unexpected display: %q", text)
	}
}

func TestRemoteDiagnosisRestoresErrorKind(t *testing.T) {
	workerErr := domain.WrapError(domain.ErrDecode, "decode image", errors.New("unknown format"))
	requester := &loopbackRequester{handler: NewDiagnoseHandler(diagnoseFake{err: workerErr}, nil, 0, nil)}
	remote := NewRemoteDiagnosis(requester, nil)

	_, err := remote.RunBytes(context.Background(), []byte("not an image"))
	if !domain.IsKind(err, domain.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	text := remote.DiagnoseBytes(context.Background(), []byte("not an image"))
	if !strings.HasPrefix(text, "❌ Error during diagnosis: ") {
		t.Fatalf("unexpected display: %q", text)
	}
}

func TestRemoteDiagnosisEmptyInputSkipsQueue(t *testing.T) {
	requester := &loopbackRequester{handler: NewDiagnoseHandler(diagnoseFake{}, nil, 0, nil)}
	remote := NewRemoteDiagnosis(requester, nil)

	if text := remote.Diagnose(context.Background(), nil); text != usecase.EmptyInputMessage {
		t.Fatalf("unexpected display: %q", text)
	}
	if _, err := remote.RunBytes(context.Background(), nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if requester.calls != 0 {
		t.Fatalf("queue should not be used for empty input, calls = %d", requester.calls)
	}
}

func TestRemoteDiagnosisTransportFailureIsTemporary(t *testing.T) {
	transportErr := domain.WrapError(domain.ErrTemporary, "nats request", errors.New("no responders"))
	remote := NewRemoteDiagnosis(&loopbackRequester{err: transportErr}, nil)

	_, err := remote.RunBytes(context.Background(), []byte("x"))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestRemoteDiagnosisEncodesRawImageAsPNG(t *testing.T) {
	requester := &loopbackRequester{handler: NewDiagnoseHandler(diagnoseFake{result: &domain.Diagnosis{Label: "Corn - Healthy"}}, nil, 0, nil)}
	remote := NewRemoteDiagnosis(requester, nil)

	raw := &domain.RawImage{Width: 2, Height: 1, Channels: 3, Pix: []uint8{10, 20, 30, 40, 50, 60}}
	if _, err := remote.Run(context.Background(), raw); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(requester.payload))
	if err != nil {
		t.Fatalf("payload is not a PNG: %v", err)
	}
	r, g, b, _ := img.At(1, 0).RGBA()
	if r>>8 != 40 || g>>8 != 50 || b>>8 != 60 {
		t.Fatalf("pixel (1,0) = %d,%d,%d", r>>8, g>>8, b>>8)
	}
}
