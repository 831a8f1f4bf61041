package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "healthetl/internal/errors"
	"healthetl/internal/history"
	"healthetl/internal/infrastructure"
	"healthetl/internal/operations"
)

// RunsHandler handles pipeline run requests
type RunsHandler struct {
	service      RunServiceInterface
	errorHandler *apperrors.ErrorHandler
	validate     *validator.Validate
	syncTimeout  time.Duration
	logger       *slog.Logger
}

// NewRunsHandler creates a runs handler. syncTimeout bounds runs started with
// ?wait=true; zero leaves them bounded by the request context only.
func NewRunsHandler(service RunServiceInterface, syncTimeout time.Duration, logger *slog.Logger) *RunsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		service:      service,
		errorHandler: apperrors.NewErrorHandler(logger),
		validate:     validator.New(),
		syncTimeout:  syncTimeout,
		logger:       logger.With(slog.String("handler", "runs")),
	}
}

// Routes returns the runs routes
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRuns)
	r.Post("/", h.StartRun)
	r.Get("/{id}", h.GetRun)
	return r
}

// StartRunRequest is the optional body of POST /api/runs
type StartRunRequest struct {
	Date   string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// Bind implements the render.Binder interface
func (s *StartRunRequest) Bind(r *http.Request) error {
	return nil
}

// ListRunsQuery holds the GET /api/runs filters
type ListRunsQuery struct {
	Limit  int    `validate:"gte=0,lte=500"`
	Date   string `validate:"omitempty,datetime=2006-01-02"`
	Status string `validate:"omitempty,oneof=completed skipped failed cancelled"`
}

// StartRun handles POST /api/runs. The run starts in the background and the
// response is 202 unless ?wait=true asks for the finished run.
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body StartRunRequest
	if r.ContentLength != 0 {
		if err := render.Bind(r, &body); err != nil {
			h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
			return
		}
	}
	if err := h.validate.Struct(body); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}

	req := operations.RunRequest{DryRun: body.DryRun, Trigger: operations.TriggerManual}
	if body.Date != "" {
		// validated above
		req.RunDate, _ = time.Parse(operations.RunDateLayout, body.Date)
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		accepted, err := h.service.StartRun(ctx, req)
		if err != nil {
			h.errorHandler.HandleError(w, r, runError(err))
			return
		}
		w.Header().Set("Location", "/api/runs/"+accepted.ID)
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, accepted)
		return
	}

	if h.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
	}

	resp, err := h.service.RunSync(ctx, req)
	if err != nil {
		if resp == nil {
			h.errorHandler.HandleError(w, r, runError(err))
			return
		}
		h.logger.WarnContext(ctx, "synchronous run failed",
			slog.String("run_id", resp.ID),
			slog.String("error", err.Error()))
		problem := h.errorHandler.ErrorToProblem(runError(err), r).
			WithExtension("trace_id", infrastructure.GetTraceID(ctx)).
			WithExtension("run", resp)
		apperrors.WriteProblem(w, problem)
		return
	}
	render.JSON(w, r, resp)
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(errors.New("run id is required")))
		return
	}

	view, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		if apperrors.TypeOf(err) == apperrors.ErrTypeNotFound {
			err = apperrors.ErrRunNotFound
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// ListRuns handles GET /api/runs?limit=&date=&status=
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := ListRunsQuery{Date: q.Get("date"), Status: q.Get("status")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(fmt.Errorf("invalid limit %q", raw)))
			return
		}
		query.Limit = limit
	}
	if err := h.validate.Struct(query); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}

	runs, err := h.service.ListRuns(r.Context(), history.ListOptions{
		Limit:   query.Limit,
		RunDate: query.Date,
		Status:  query.Status,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if runs == nil {
		runs = []history.RunRecord{}
	}
	render.JSON(w, r, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// runError maps pipeline errors onto API errors. Errors that already carry an
// application type keep it so storage failures surface as 502.
func runError(err error) error {
	if errors.Is(err, operations.ErrRunInProgress) {
		return apperrors.ErrRunInProgress
	}
	var appErr *apperrors.AppError
	var apiErr *apperrors.APIError
	if errors.As(err, &appErr) || errors.As(err, &apiErr) {
		return err
	}
	if operations.GetErrorType(err) == operations.ErrorTypeCancellation {
		return err
	}
	return apperrors.ErrPipelineExecution(err)
}
