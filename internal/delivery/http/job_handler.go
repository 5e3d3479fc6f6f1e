package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/pkg/httputil"
)

// dispatchJobRequest is the wire form of a dispatch job submission
type dispatchJobRequest struct {
	CategoryID *uint   `json:"category_id,omitempty"`
	Recipients []int64 `json:"recipients"`
	Text       string  `json:"text"`
	MediaPath  string  `json:"media_path,omitempty"`

	SendLimit       *int `json:"send_limit,omitempty"`
	DelayMinSeconds *int `json:"delay_min_seconds,omitempty"`
	DelayMaxSeconds *int `json:"delay_max_seconds,omitempty"`
}

// extractionJobRequest is the wire form of an extraction job submission
type extractionJobRequest struct {
	AccountID uint   `json:"account_id"`
	Chat      string `json:"chat"`
}

// JobHandler exposes the supervisor's job surface over HTTP
type JobHandler struct {
	supervisor domain.JobSupervisor
	logger     zerolog.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(supervisor domain.JobSupervisor, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		supervisor: supervisor,
		logger:     logger.With().Str("component", "http_jobs").Logger(),
	}
}

// StartDispatch handles POST /jobs/dispatch
func (h *JobHandler) StartDispatch(ctx *fasthttp.RequestCtx) {
	var req dispatchJobRequest
	if err := httputil.ReadJSON(ctx, &req); err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	domainReq := domain.DispatchRequest{
		CategoryID: req.CategoryID,
		Recipients: req.Recipients,
		Text:       req.Text,
		MediaPath:  req.MediaPath,
		SendLimit:  req.SendLimit,
	}
	if req.DelayMinSeconds != nil {
		d := time.Duration(*req.DelayMinSeconds) * time.Second
		domainReq.DelayMin = &d
	}
	if req.DelayMaxSeconds != nil {
		d := time.Duration(*req.DelayMaxSeconds) * time.Second
		domainReq.DelayMax = &d
	}

	job, err := h.supervisor.StartDispatch(ctx, domainReq)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	h.logger.Info().Uint("job_id", job.ID).Int("recipients", len(req.Recipients)).Msg("dispatch job accepted")
	httputil.WriteResponseWithStatus(ctx, job, fasthttp.StatusAccepted)
}

// StartExtraction handles POST /jobs/extraction
func (h *JobHandler) StartExtraction(ctx *fasthttp.RequestCtx) {
	var req extractionJobRequest
	if err := httputil.ReadJSON(ctx, &req); err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	job, err := h.supervisor.StartExtraction(ctx, domain.ExtractionRequest{
		AccountID: req.AccountID,
		Chat:      req.Chat,
	})
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	h.logger.Info().Uint("job_id", job.ID).Str("chat", req.Chat).Msg("extraction job accepted")
	httputil.WriteResponseWithStatus(ctx, job, fasthttp.StatusAccepted)
}

// Cancel handles POST /jobs/{id}/cancel
func (h *JobHandler) Cancel(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	if err := h.supervisor.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			httputil.WriteError(ctx, err, fasthttp.StatusNotFound)
			return
		}
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}

	h.logger.Info().Uint("job_id", id).Msg("job cancellation requested")
	httputil.WriteResponse(ctx, map[string]uint{"job_id": id})
}

// Status handles GET /jobs/{id}
func (h *JobHandler) Status(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	job, err := h.supervisor.Status(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			httputil.WriteError(ctx, err, fasthttp.StatusNotFound)
			return
		}
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}

	httputil.WriteResponse(ctx, job)
}

// List handles GET /jobs
func (h *JobHandler) List(ctx *fasthttp.RequestCtx) {
	limit := 50
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	jobs, err := h.supervisor.List(ctx, limit)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}

	httputil.WriteResponse(ctx, jobs)
}

// pathID parses the {id} route segment
func pathID(ctx *fasthttp.RequestCtx) (uint, error) {
	raw, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.New("invalid id in path")
	}
	return uint(id), nil
}
