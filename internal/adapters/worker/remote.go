package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/usecase"
)

var errRemoteDiagnosis = errors.New("remote diagnosis failed")

// Requester delivers an encoded image to the worker pool and returns the
// worker's reply body.
type Requester interface {
	RequestDiagnosis(ctx context.Context, image []byte) ([]byte, error)
}

// RemoteDiagnosis implements ports.DiagnosisService on top of the queue, so
// the API can hand uploads to DiagnoseHandler instances running elsewhere.
type RemoteDiagnosis struct {
	requester Requester
	logger    *slog.Logger
}

func NewRemoteDiagnosis(requester Requester, logger *slog.Logger) *RemoteDiagnosis {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteDiagnosis{requester: requester, logger: logger}
}

func (r *RemoteDiagnosis) Diagnose(ctx context.Context, img *domain.RawImage) string {
	if img == nil {
		return usecase.EmptyInputMessage
	}
	data, err := encodePNG(*img)
	if err != nil {
		return usecase.FormatDiagnosisError(err)
	}
	return r.DiagnoseBytes(ctx, data)
}

func (r *RemoteDiagnosis) DiagnoseBytes(ctx context.Context, data []byte) string {
	if len(data) == 0 {
		return usecase.EmptyInputMessage
	}
	reply, err := r.request(ctx, data)
	if err != nil {
		return usecase.FormatDiagnosisError(err)
	}
	return reply.Display
}

func (r *RemoteDiagnosis) Run(ctx context.Context, img *domain.RawImage) (*domain.Diagnosis, error) {
	if img == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "diagnose", errors.New("no image"))
	}
	data, err := encodePNG(*img)
	if err != nil {
		return nil, err
	}
	return r.RunBytes(ctx, data)
}

func (r *RemoteDiagnosis) RunBytes(ctx context.Context, data []byte) (*domain.Diagnosis, error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "diagnose", errors.New("no image"))
	}
	reply, err := r.request(ctx, data)
	if err != nil {
		return nil, err
	}
	switch {
	case reply.Empty:
		return nil, domain.WrapError(domain.ErrInvalidInput, "remote diagnose", errors.New("no image"))
	case reply.Error != "":
		return nil, domain.WrapError(kindError(reply.Kind), "remote diagnose", errors.New(reply.Error))
	case reply.Diagnosis == nil:
		return nil, domain.WrapError(errRemoteDiagnosis, "remote diagnose", errors.New("reply has no diagnosis"))
	}
	return reply.Diagnosis, nil
}

func (r *RemoteDiagnosis) request(ctx context.Context, data []byte) (Reply, error) {
	raw, err := r.requester.RequestDiagnosis(ctx, data)
	if err != nil {
		r.logger.Warn("remote_diagnosis_request_failed", "bytes", len(data), "error", err)
		return Reply{}, err
	}
	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Reply{}, domain.WrapError(errRemoteDiagnosis, "decode worker reply", err)
	}
	return reply, nil
}

// encodePNG re-encodes an in-memory image losslessly for transport.
func encodePNG(raw domain.RawImage) ([]byte, error) {
	if err := raw.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "encode image", err)
	}

	var img image.Image
	if raw.Channels == 1 {
		img = &image.Gray{Pix: raw.Pix, Stride: raw.Width, Rect: image.Rect(0, 0, raw.Width, raw.Height)}
	} else {
		nrgba := image.NewNRGBA(image.Rect(0, 0, raw.Width, raw.Height))
		for i := 0; i < raw.Width*raw.Height; i++ {
			src := raw.Pix[i*raw.Channels : (i+1)*raw.Channels]
			var c color.NRGBA
			switch raw.Channels {
			case 2:
				c = color.NRGBA{R: src[0], G: src[0], B: src[0], A: src[1]}
			case 3:
				c = color.NRGBA{R: src[0], G: src[1], B: src[2], A: 0xff}
			default:
				c = color.NRGBA{R: src[0], G: src[1], B: src[2], A: src[3]}
			}
			nrgba.SetNRGBA(i%raw.Width, i/raw.Width, c)
		}
		img = nrgba
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
