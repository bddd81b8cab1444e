package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/ports"
)

const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

type DiagnoseOptions struct {
	// TopK alternatives attached to structured results; 0 disables them.
	TopK      int
	Publisher ports.DiagnosisEventPublisher
	Observer  ports.DiagnosisObserver
	Logger    *slog.Logger
}

// DiagnoseUseCase wires preprocessing, inference and treatment lookup into
// one pass per image. It holds no per-request state and is safe for
// concurrent use once constructed.
type DiagnoseUseCase struct {
	preprocessor ports.ImagePreprocessor
	classifier   ports.Classifier
	treatments   ports.TreatmentLookup
	opts         DiagnoseOptions
}

func NewDiagnoseUseCase(
	preprocessor ports.ImagePreprocessor,
	classifier ports.Classifier,
	treatments ports.TreatmentLookup,
	opts DiagnoseOptions,
) *DiagnoseUseCase {
	if opts.TopK < 0 {
		opts.TopK = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DiagnoseUseCase{
		preprocessor: preprocessor,
		classifier:   classifier,
		treatments:   treatments,
		opts:         opts,
	}
}

// Diagnose never fails: absent input and stage errors become display text.
func (uc *DiagnoseUseCase) Diagnose(ctx context.Context, img *domain.RawImage) string {
	if img == nil {
		uc.finish(ctx, OutcomeEmpty, nil, nil, time.Now())
		return EmptyInputMessage
	}
	result, err := uc.Run(ctx, img)
	if err != nil {
		return FormatDiagnosisError(err)
	}
	return result.Display
}

func (uc *DiagnoseUseCase) DiagnoseBytes(ctx context.Context, data []byte) string {
	if len(data) == 0 {
		uc.finish(ctx, OutcomeEmpty, nil, nil, time.Now())
		return EmptyInputMessage
	}
	result, err := uc.RunBytes(ctx, data)
	if err != nil {
		return FormatDiagnosisError(err)
	}
	return result.Display
}

func (uc *DiagnoseUseCase) RunBytes(ctx context.Context, data []byte) (result *domain.Diagnosis, err error) {
	started := time.Now()
	if len(data) == 0 {
		err = domain.WrapError(domain.ErrInvalidInput, "diagnose", errors.New("no image provided"))
		uc.finish(ctx, OutcomeEmpty, nil, err, started)
		return nil, err
	}

	defer uc.recoverStage(ctx, started, &result, &err)

	img, err := uc.preprocessor.Decode(data)
	if err != nil {
		uc.finish(ctx, OutcomeError, nil, err, started)
		return nil, err
	}
	return uc.run(ctx, img, started)
}

func (uc *DiagnoseUseCase) Run(ctx context.Context, img *domain.RawImage) (result *domain.Diagnosis, err error) {
	started := time.Now()
	if img == nil {
		err = domain.WrapError(domain.ErrInvalidInput, "diagnose", errors.New("no image provided"))
		uc.finish(ctx, OutcomeEmpty, nil, err, started)
		return nil, err
	}

	defer uc.recoverStage(ctx, started, &result, &err)
	return uc.run(ctx, *img, started)
}

func (uc *DiagnoseUseCase) run(ctx context.Context, img domain.RawImage, started time.Time) (*domain.Diagnosis, error) {
	if err := ctx.Err(); err != nil {
		uc.finish(ctx, OutcomeError, nil, err, started)
		return nil, err
	}

	tensor, err := uc.preprocessor.Preprocess(img)
	if err != nil {
		uc.finish(ctx, OutcomeError, nil, err, started)
		return nil, err
	}

	pred, err := uc.classifier.Predict(tensor)
	if err != nil {
		uc.finish(ctx, OutcomeError, nil, err, started)
		return nil, err
	}

	treatment := uc.treatments.Lookup(pred.Label)
	result := &domain.Diagnosis{
		Label:         pred.Label,
		DisplayLabel:  pred.Label.DisplayName(),
		Confidence:    pred.Confidence,
		ConfidencePct: FormatConfidence(pred.Confidence),
		Treatment:     treatment,
		Display:       FormatDiagnosis(pred.Label, pred.Confidence, treatment),
	}
	if uc.opts.TopK > 0 {
		result.Alternatives = uc.classifier.Rank(pred, uc.opts.TopK)
	}

	uc.finish(ctx, OutcomeSuccess, result, nil, started)
	return result, nil
}

// finish records metrics and publishes the event. Publishing failures are
// logged and never change the diagnosis outcome.
func (uc *DiagnoseUseCase) finish(ctx context.Context, outcome string, result *domain.Diagnosis, runErr error, started time.Time) {
	elapsed := time.Since(started)

	event := domain.DiagnosisEvent{
		ID:         uuid.NewString(),
		Outcome:    outcome,
		DurationMS: float64(elapsed.Microseconds()) / 1000.0,
		CreatedAt:  time.Now().UTC(),
	}
	if result != nil {
		event.Label = result.Label
		event.Confidence = result.Confidence
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}

	if uc.opts.Observer != nil {
		uc.opts.Observer.ObserveDiagnosis(outcome, event.Label, event.Confidence, elapsed)
	}

	switch outcome {
	case OutcomeSuccess:
		uc.opts.Logger.Info("diagnosis_completed",
			"diagnosis_id", event.ID,
			"label", event.Label.String(),
			"confidence", event.Confidence,
			"duration_ms", event.DurationMS,
		)
	case OutcomeError:
		uc.opts.Logger.Warn("diagnosis_failed",
			"diagnosis_id", event.ID,
			"error", runErr,
			"duration_ms", event.DurationMS,
		)
	}

	if uc.opts.Publisher == nil {
		return
	}
	if err := uc.opts.Publisher.PublishDiagnosis(context.WithoutCancel(ctx), event); err != nil {
		uc.opts.Logger.Warn("diagnosis_event_publish_failed", "diagnosis_id", event.ID, "error", err)
	}
}

// recoverStage turns a panic in any stage into an ordinary diagnosis error.
func (uc *DiagnoseUseCase) recoverStage(ctx context.Context, started time.Time, result **domain.Diagnosis, err *error) {
	r := recover()
	if r == nil {
		return
	}
	*result = nil
	*err = fmt.Errorf("internal failure: %v", r)
	uc.finish(ctx, OutcomeError, nil, *err, started)
}
