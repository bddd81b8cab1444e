package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/plant-doctor/internal/adapters/worker"
	"github.com/kirillkom/plant-doctor/internal/config"
	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/ports"
	"github.com/kirillkom/plant-doctor/internal/core/usecase"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/catalog"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/inference"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/inference/onnx"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/preprocess"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/queue/nats"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/resilience"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/treatment"
)

// Observer receives pipeline telemetry; the prometheus collectors implement it.
type Observer interface {
	ports.DiagnosisObserver
	ports.ChatObserver
	resilience.Observer
}

type Options struct {
	Observer Observer
	Logger   *slog.Logger
	// Runner replaces the ONNX runtime session, mainly in tests.
	Runner inference.Runner
	// RequireQueue makes a missing or unreachable NATS server fatal.
	RequireQueue bool
}

// App is built once and is read-only afterwards. Every request path uses
// the same catalog, engine and treatment table.
type App struct {
	Config config.Config
	Labels []domain.Label

	DiagnoseUC *usecase.DiagnoseUseCase
	ChatUC     *usecase.ChatUseCase
	Queue      *nats.Queue
	// Diagnosis is what outer surfaces should call: DiagnoseUC, or the worker
	// pool when DIAGNOSE_VIA_QUEUE is set. Workers always use DiagnoseUC.
	Diagnosis ports.DiagnosisService

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg}

	labels, err := catalog.Load(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	layout, err := domain.ParseLayout(strings.ToLower(cfg.ModelInputLayout))
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelLoad, "model input layout", err)
	}
	pre, err := preprocess.New(preprocess.Options{
		Width:         cfg.ModelInputWidth,
		Height:        cfg.ModelInputHeight,
		Layout:        layout,
		Scale:         float32(cfg.PreprocessScale),
		Offset:        float32(cfg.PreprocessOffset),
		Interpolation: cfg.PreprocessInterpolation,
		MaxPixels:     cfg.MaxImagePixels,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelLoad, "preprocessor", err)
	}

	runner := opts.Runner
	if runner == nil {
		onnxRunner, err := onnx.NewRunner(onnx.Options{
			ModelPath:         cfg.ModelPath,
			SharedLibraryPath: cfg.ONNXSharedLibraryPath,
			InputName:         cfg.ModelInputName,
			OutputName:        cfg.ModelOutputName,
			InputShape:        pre.Shape(),
			OutputShape:       []int64{1, int64(len(labels))},
		})
		if err != nil {
			return nil, err
		}
		app.onClose(onnxRunner.Close)
		runner = onnxRunner
	}

	engine, err := inference.NewEngine(runner, labels)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Labels = engine.Labels()

	treatments, err := treatment.Load(cfg.TreatmentsPath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load treatments: %w", err)
	}
	if missing := treatments.Missing(labels); len(missing) > 0 {
		logger.Warn("treatments_missing_for_labels", "count", len(missing), "labels", missing)
	}

	var resilienceObserver resilience.Observer
	var diagnosisObserver ports.DiagnosisObserver
	var chatObserver ports.ChatObserver
	if opts.Observer != nil {
		resilienceObserver = opts.Observer
		diagnosisObserver = opts.Observer
		chatObserver = opts.Observer
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg), resilienceObserver)

	var publisher ports.DiagnosisEventPublisher
	if strings.TrimSpace(cfg.NATSURL) != "" {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			DiagnoseSubject:    cfg.NATSDiagnoseSubject,
			EventsSubject:      cfg.NATSEventsSubject,
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.onClose(queue.Close)
		publisher = queue
	} else if opts.RequireQueue || cfg.DiagnoseViaQueue {
		app.Close()
		return nil, fmt.Errorf("init message queue: NATS_URL is empty")
	}

	app.DiagnoseUC = usecase.NewDiagnoseUseCase(pre, engine, treatments, usecase.DiagnoseOptions{
		TopK:      cfg.TopK,
		Publisher: publisher,
		Observer:  diagnosisObserver,
		Logger:    logger,
	})
	app.Diagnosis = app.DiagnoseUC
	if cfg.DiagnoseViaQueue {
		app.Diagnosis = worker.NewRemoteDiagnosis(app.Queue, logger)
	}

	model, err := newChatModel(ctx, cfg, executor)
	if err != nil {
		logger.Warn("chat_model_unavailable", "provider", cfg.ChatProvider, "error", err)
	}
	if closer, ok := model.(interface{ Close() error }); ok {
		app.onClose(func() { _ = closer.Close() })
	}
	app.ChatUC = usecase.NewChatUseCase(model, usecase.ChatOptions{
		ContextTurns: cfg.ChatContextTurns,
		Observer:     chatObserver,
		Logger:       logger,
	})

	inputMin, inputMax := pre.Range()
	logger.Info("bootstrap_complete",
		"labels", len(app.Labels),
		"input_shape", engine.InputShape(),
		"input_range", []float32{inputMin, inputMax},
		"treatments", treatments.Len(),
		"chat_provider", chatProviderName(model),
		"queue", app.Queue != nil,
		"diagnose_via_queue", cfg.DiagnoseViaQueue,
	)
	return app, nil
}

// newChatModel returns a nil model with an error when the provider is not
// usable; chat then answers with an inline error instead of blocking startup.
func newChatModel(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ChatModel, error) {
	timeout := time.Duration(cfg.ChatTimeoutSeconds) * time.Second

	switch cfg.ChatProvider {
	case "groq", "openai", "openai-compat":
		client, err := openaicompat.New(openaicompat.Options{
			Provider: cfg.ChatProvider,
			BaseURL:  cfg.ChatBaseURL,
			APIKey:   cfg.ChatAPIKey,
			Model:    cfg.ChatModel,
			Timeout:  timeout,
		}, executor)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "ollama":
		baseURL := cfg.OllamaURL
		if cfg.ChatBaseURL != "" {
			baseURL = cfg.ChatBaseURL
		}
		modelName := cfg.ChatModel
		if modelName == "" {
			modelName = "llama3.1:8b"
		}
		return ollama.New(baseURL, modelName, timeout, executor), nil
	case "gemini":
		modelName := cfg.GeminiModel
		if cfg.ChatModel != "" {
			modelName = cfg.ChatModel
		}
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, modelName, executor)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "", "none":
		return nil, fmt.Errorf("chat disabled")
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.ChatProvider)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	out.RetryMaxBackoff = time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond
	out.BreakerEnabled = cfg.BreakerEnabled
	if cfg.BreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = time.Duration(cfg.BreakerOpenTimeoutSec) * time.Second
	if cfg.ChatTimeoutSeconds > 0 {
		out.AttemptTimeout = time.Duration(cfg.ChatTimeoutSeconds) * time.Second
	}
	return out
}

func chatProviderName(model ports.ChatModel) string {
	if model == nil {
		return "none"
	}
	return model.Name()
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
