package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/ports"
	"github.com/kirillkom/plant-doctor/internal/core/usecase"
)

const serviceName = "plant-doctor-worker"

type RequestObserver interface {
	StartRequest()
	FinishRequest(service string, duration time.Duration, err error)
}

// Reply is the JSON body sent back to a queued diagnosis request.
type Reply struct {
	Diagnosis *domain.Diagnosis `json:"diagnosis,omitempty"`
	Display   string            `json:"display"`
	Error     string            `json:"error,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Empty     bool              `json:"empty,omitempty"`
}

type DiagnoseHandler struct {
	diagnose ports.DiagnosisService
	observer RequestObserver
	timeout  time.Duration
	logger   *slog.Logger
}

func NewDiagnoseHandler(diagnose ports.DiagnosisService, observer RequestObserver, timeout time.Duration, logger *slog.Logger) *DiagnoseHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiagnoseHandler{diagnose: diagnose, observer: observer, timeout: timeout, logger: logger}
}

// Handle diagnoses raw image bytes and encodes the reply. It never fails;
// errors travel inside the reply.
func (h *DiagnoseHandler) Handle(ctx context.Context, data []byte) []byte {
	started := time.Now()
	if h.observer != nil {
		h.observer.StartRequest()
	}

	reply, err := h.handle(ctx, data)

	if h.observer != nil {
		h.observer.FinishRequest(serviceName, time.Since(started), err)
	}
	raw, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		h.logger.Error("worker_reply_marshal_failed", "error", marshalErr)
		return []byte(`{"error":"internal error"}`)
	}
	return raw
}

func (h *DiagnoseHandler) handle(ctx context.Context, data []byte) (Reply, error) {
	if len(data) == 0 {
		return Reply{Display: usecase.EmptyInputMessage, Empty: true}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.diagnose.RunBytes(runCtx, data)
	if err != nil {
		h.logger.Warn("worker_diagnosis_failed", "bytes", len(data), "error", err)
		return Reply{Display: usecase.FormatDiagnosisError(err), Error: err.Error(), Kind: errorKind(err)}, err
	}
	return Reply{Diagnosis: result, Display: result.Display}, nil
}

// Error kinds carried in Reply.Kind so the requesting side can restore the
// domain error.
const (
	kindInvalidInput  = "invalid_input"
	kindDecode        = "decode"
	kindShapeMismatch = "shape_mismatch"
	kindTemporary     = "temporary"
	kindInternal      = "internal"
)

var replyKinds = []struct {
	name string
	err  error
}{
	{kindInvalidInput, domain.ErrInvalidInput},
	{kindDecode, domain.ErrDecode},
	{kindShapeMismatch, domain.ErrShapeMismatch},
	{kindTemporary, domain.ErrTemporary},
}

func errorKind(err error) string {
	for _, k := range replyKinds {
		if domain.IsKind(err, k.err) {
			return k.name
		}
	}
	return kindInternal
}

func kindError(name string) error {
	for _, k := range replyKinds {
		if k.name == name {
			return k.err
		}
	}
	return errRemoteDiagnosis
}
