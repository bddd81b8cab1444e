package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/plant-doctor/internal/config"
	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/ports"
	"github.com/kirillkom/plant-doctor/internal/core/usecase"
	"github.com/kirillkom/plant-doctor/internal/observability/metrics"
)

const (
	serviceName             = "plant-doctor-api"
	defaultMaxUploadBytes   = 10 << 20
	defaultBackpressureWait = 250 * time.Millisecond
)

type Router struct {
	cfg      config.Config
	diagnose ports.DiagnosisService
	chat     ports.ChatService
	labels   []domain.Label
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
}

func NewRouter(
	cfg config.Config,
	diagnose ports.DiagnosisService,
	chat ports.ChatService,
	labels []domain.Label,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) *Router {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		diagnose: diagnose,
		chat:     chat,
		labels:   append([]domain.Label(nil), labels...),
		metrics:  httpMetrics,
		logger:   logger,
	}
}

// Handler builds the route table and the middleware chain. It fails only if
// the embedded OpenAPI document is invalid.
func (rt *Router) Handler(ctx context.Context) (http.Handler, error) {
	openAPI, err := loadOpenAPI(ctx)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/diagnose", rt.diagnoseJSON)
	mux.HandleFunc("POST /v1/diagnose/display", rt.diagnoseDisplay)
	mux.HandleFunc("POST /v1/chat", rt.chatReply)
	mux.HandleFunc("POST /v1/chat/clear", rt.chatClear)
	mux.HandleFunc("GET /v1/labels", rt.listLabels)
	mux.HandleFunc("GET /v1/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(openAPI)
	})

	var onReject func(string)
	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		onReject = func(reason string) { rt.metrics.RecordRejected(serviceName, reason) }
	}

	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, defaultBackpressureWait, onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = recoverMiddleware(rt.logger, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler, nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type diagnoseResponse struct {
	*domain.Diagnosis
	Empty bool `json:"empty,omitempty"`
}

func (rt *Router) diagnoseJSON(w http.ResponseWriter, r *http.Request) {
	data, err := rt.readImage(w, r)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusOK, diagnoseResponse{
			Diagnosis: &domain.Diagnosis{Display: usecase.EmptyInputMessage},
			Empty:     true,
		})
		return
	}

	result, err := rt.diagnose.RunBytes(r.Context(), data)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{
			"error":   err.Error(),
			"display": usecase.FormatDiagnosisError(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, diagnoseResponse{Diagnosis: result})
}

// diagnoseDisplay mirrors the interactive UI: it always answers 200 with the
// markdown display string, including advisory and error text.
func (rt *Router) diagnoseDisplay(w http.ResponseWriter, r *http.Request) {
	data, err := rt.readImage(w, r)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	text := rt.diagnose.DiagnoseBytes(r.Context(), data)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

// readImage accepts either a multipart form with an "image" field or a raw
// image/* body. A missing image yields nil data and no error.
func (rt *Router) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var data []byte
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		data = raw
	case mediaType == "multipart/form-data":
		file, _, err := r.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer file.Close()
		raw, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		data = raw
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "read image",
			fmt.Errorf("unsupported content type %q, send multipart field 'image' or an image/* body", mediaType))
	}

	if rt.metrics != nil {
		rt.metrics.RecordUpload(len(data))
	}
	return data, nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("image exceeds %d bytes", maxErr.Limit),
		})
		return
	}
	status := mapErrorToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type chatRequest struct {
	Message string            `json:"message"`
	History []domain.ChatTurn `json:"history"`
}

type chatResponse struct {
	History []domain.ChatTurn `json:"history"`
	Message string            `json:"message"`
}

func (rt *Router) chatReply(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := domain.ValidateHistory(req.History); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	history, cleared := rt.chat.Reply(r.Context(), req.Message, req.History)
	if history == nil {
		history = []domain.ChatTurn{}
	}
	writeJSON(w, http.StatusOK, chatResponse{History: history, Message: cleared})
}

func (rt *Router) chatClear(w http.ResponseWriter, _ *http.Request) {
	history, cleared := rt.chat.Clear()
	writeJSON(w, http.StatusOK, chatResponse{History: history, Message: cleared})
}

func (rt *Router) listLabels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"labels": rt.labels,
		"count":  len(rt.labels),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
