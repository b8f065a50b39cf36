package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "navpulse/internal/errors"
	"navpulse/internal/materializer"
	"navpulse/internal/middleware"
	"navpulse/internal/services"
	"navpulse/pkg/contracts/domain"
)

// MaterializeRequest is the body of POST /api/v1/materialize. An empty body
// runs the default range.
type MaterializeRequest struct {
	From       string `json:"from" validate:"omitempty,navdate"`
	To         string `json:"to" validate:"omitempty,navdate"`
	SkipExport bool   `json:"skip_export"`
	SkipUpload bool   `json:"skip_upload"`
}

// NAVHandler serves materialize runs and coverage queries.
type NAVHandler struct {
	service      NAVServiceInterface
	validator    *middleware.Validator
	errorHandler *apierrors.ErrorHandler
	runTimeout   time.Duration
	logger       *slog.Logger
}

// NewNAVHandler creates the handler. runTimeout bounds a synchronous run.
func NewNAVHandler(service NAVServiceInterface, runTimeout time.Duration, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *NAVHandler {
	return &NAVHandler{
		service:      service,
		validator:    middleware.NewValidator(logger),
		errorHandler: errorHandler,
		runTimeout:   runTimeout,
		logger:       logger.With(slog.String("component", "nav_handler")),
	}
}

// Routes returns the /api/v1 routes
func (h *NAVHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(middleware.ContentTypeValidator(h.errorHandler, "application/json"))

	r.Post("/materialize", h.Materialize)
	r.Get("/materialize/latest", h.LatestRun)
	r.Get("/coverage", h.Coverage)
	r.Get("/stats", h.Stats)
	return r
}

// Materialize handles POST /api/v1/materialize. The run is detached from
// the client connection and bounded by the run timeout.
func (h *NAVHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	var req MaterializeRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if (req.From == "") != (req.To == "") {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("from", "from and to must be given together"))
		return
	}

	opts := services.RunOptions{SkipExport: req.SkipExport, SkipUpload: req.SkipUpload}
	if req.From != "" {
		from, _ := domain.ParseDate(req.From)
		to, _ := domain.ParseDate(req.To)
		rng := domain.NewDateRange(from, to)
		if err := rng.Validate(); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRangeError(err))
			return
		}
		opts.Range = &rng
	}

	ctx := context.WithoutCancel(r.Context())
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()

		// the server write timeout is far shorter than a backfill
		if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.runTimeout)); err != nil {
			h.logger.DebugContext(r.Context(), "write_deadline_unsupported", slog.String("error", err.Error()))
		}
	}

	report, err := h.service.Run(ctx, opts)
	if err != nil {
		h.errorHandler.HandleError(w, r, toAPIError(err))
		return
	}

	status := http.StatusOK
	if !report.Succeeded() {
		// the run finished but left work behind
		status = http.StatusMultiStatus
	}
	render.Status(r, status)
	render.JSON(w, r, report)
}

// LatestRun handles GET /api/v1/materialize/latest
func (h *NAVHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	report, ok := h.service.LastRun()
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.ErrNoRunYet)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"running": h.service.Running(),
		"report":  report,
	})
}

// Coverage handles GET /api/v1/coverage?from=&to=. Missing bounds default to
// the service's default range.
func (h *NAVHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	from, hasFrom, err := middleware.QueryDate(r, "from")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	to, hasTo, err := middleware.QueryDate(r, "to")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if !hasFrom || !hasTo {
		def, err := h.service.DefaultRange(r.Context())
		if err != nil {
			h.errorHandler.HandleError(w, r, toAPIError(err))
			return
		}
		if !hasFrom {
			from = def.Start
		}
		if !hasTo {
			to = def.End
		}
	}

	cov, err := h.service.Coverage(r.Context(), domain.NewDateRange(from, to))
	if err != nil {
		h.errorHandler.HandleError(w, r, toAPIError(err))
		return
	}
	render.JSON(w, r, cov)
}

// Stats handles GET /api/v1/stats
func (h *NAVHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, toAPIError(err))
		return
	}
	render.JSON(w, r, stats)
}

// toAPIError maps service and materializer errors onto API errors.
func toAPIError(err error) error {
	var apiErr *apierrors.APIError
	var rangeErr *materializer.InvalidRangeError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, services.ErrRunInProgress):
		return apierrors.ErrRunInProgress
	case errors.As(err, &rangeErr), errors.Is(err, services.ErrInvalidInput):
		return apierrors.InvalidRangeError(err)
	case errors.Is(err, services.ErrNoRunYet):
		return apierrors.ErrNoRunYet
	case errors.Is(err, services.ErrServiceUnavailable):
		return apierrors.ErrServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return apierrors.NewInternalError(err)
	}
}
