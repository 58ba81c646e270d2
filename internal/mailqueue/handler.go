package mailqueue

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/imajkumar/chakra-user-service/internal/pkg/httputil"
)

// Handler exposes the mail queue operations API.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// queueErrorMappings maps queue domain errors to API responses. Anything
// unmapped is logged and reported as an internal error.
var queueErrorMappings = []httputil.ErrorMapping{
	{Error: ErrJobNotFound, Status: http.StatusNotFound},
}

// NewHandler creates a new mail queue handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the operational endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/email-queue", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/history/{email}", h.History)
		r.Post("/process", h.Process)
		r.Post("/cleanup", h.Cleanup)
	})
}

// emailJobResponse is the API view of a queued email. Bodies are omitted:
// they can be large and carry OTPs.
type emailJobResponse struct {
	ID          string     `json:"id"`
	Recipient   string     `json:"recipient"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Subject     string     `json:"subject"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastError   string     `json:"last_error,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Stats handles GET /email-queue/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, queueErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, stats)
}

// History handles GET /email-queue/history/{email}.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.validator.Var(email, "required,email"); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	jobs, err := h.service.HistoryFor(r.Context(), email)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, queueErrorMappings)
		return
	}

	resp := make([]emailJobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, emailJobResponse{
			ID:          job.ID,
			Recipient:   job.RecipientEmail,
			Kind:        job.Kind,
			Status:      job.Status,
			Subject:     job.Subject,
			RetryCount:  job.RetryCount,
			MaxRetries:  job.MaxRetries,
			LastError:   job.LastError,
			ScheduledAt: job.ScheduledAt,
			ProcessedAt: job.ProcessedAt,
			CreatedAt:   job.CreatedAt,
		})
	}

	httputil.Success(w, http.StatusOK, resp)
}

// Process handles POST /email-queue/process: a manual drain of due-pending
// and retry-eligible jobs.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	h.service.TriggerDispatchNow(r.Context())
	httputil.Success(w, http.StatusAccepted, map[string]string{"status": "processing triggered"})
}

// Cleanup handles POST /email-queue/cleanup: a manual retention sweep.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.CleanupNow(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, queueErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
