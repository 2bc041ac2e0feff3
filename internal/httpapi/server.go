// Package httpapi is the webhook intake surface.
//
// Deliveries are decoded and validated synchronously, then handed to the
// worker queue and acknowledged with 202. Processing happens later on the
// worker goroutine; the response never reflects the engine outcome.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/subsku/internal/dispatch"
	"github.com/roach88/subsku/internal/pool"
	"github.com/roach88/subsku/internal/worker"
)

// MaxBodyBytes caps a webhook payload.
const MaxBodyBytes = 1 << 20

// Queue accepts decoded events. *worker.Worker implements it.
type Queue interface {
	Enqueue(deliveryID string, ev dispatch.Event) (worker.Job, bool)
	Pending() int
}

// Pools answers availability queries. *engine.Engine implements it.
type Pools interface {
	Availability(ctx context.Context, sku string) (pool.Availability, error)
}

// Pinger reports store health. *store.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the intake dependencies.
type Server struct {
	queue  Queue
	pools  Pools
	health Pinger
	logger *slog.Logger
}

// New creates a Server. A nil logger means slog.Default().
func New(q Queue, p Pools, h Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{queue: q, pools: p, health: h, logger: logger}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/webhooks/{topic:.+}", s.postWebhook).Methods(http.MethodPost)
	r.HandleFunc("/pools/{sku}", s.getPool).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	return WithRequestID(withLogging(s.logger, r))
}

type accepted struct {
	Status     string `json:"status"`
	DeliveryID string `json:"delivery_id"`
	JobID      string `json:"job_id"`
	RequestID  string `json:"request_id"`
	QueueDepth int    `json:"queue_depth"`
}

type poolView struct {
	SKU            string         `json:"sku"`
	Total          int            `json:"total"`
	Available      int            `json:"available"`
	Unavailable    int            `json:"unavailable"`
	AvailableUnits []pool.SubUnit `json:"available_units"`
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) postWebhook(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	topic := dispatch.Topic(mux.Vars(r)["topic"])

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error(), reqID)
		return
	}

	ev, err := dispatch.Decode(topic, body)
	if err != nil {
		code := "invalid_payload"
		if errors.Is(err, dispatch.ErrUnknownTopic) {
			code = "unknown_topic"
		}
		writeError(w, http.StatusBadRequest, code, err.Error(), reqID)
		return
	}
	deliveryID, err := dispatch.DeliveryID(topic, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}

	job, ok := s.queue.Enqueue(deliveryID, ev)
	if !ok {
		s.logger.Warn("webhook rejected, queue unavailable",
			"topic", string(topic), "key", ev.Key(), "request_id", reqID)
		writeError(w, http.StatusServiceUnavailable, "queue_unavailable", "queue is full or stopped", reqID)
		return
	}

	s.logger.Info("webhook accepted",
		"topic", string(topic),
		"key", ev.Key(),
		"delivery_id", deliveryID,
		"job_id", job.ID,
		"request_id", reqID,
	)
	writeJSON(w, http.StatusAccepted, accepted{
		Status:     "accepted",
		DeliveryID: deliveryID,
		JobID:      job.ID,
		RequestID:  reqID,
		QueueDepth: s.queue.Pending(),
	})
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	a, err := s.pools.Availability(r.Context(), sku)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "availability_failed", err.Error(), RequestIDFromContext(r.Context()))
		return
	}
	units := a.AvailableUnits
	if units == nil {
		units = []pool.SubUnit{}
	}
	writeJSON(w, http.StatusOK, poolView{
		SKU:            sku,
		Total:          a.Total,
		Available:      a.Available,
		Unavailable:    a.Unavailable(),
		AvailableUnits: units,
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error(), RequestIDFromContext(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg, reqID string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg, RequestID: reqID})
}
