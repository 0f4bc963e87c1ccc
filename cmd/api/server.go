package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/milkrun/pkg/ledger"
	"github.com/mcclellann/milkrun/pkg/logger"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/mcclellann/milkrun/pkg/store"
	"github.com/rs/zerolog"
)

// Server serves the ledger over HTTP. The caller owns s and closes it.
type Server struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
}

func NewServer(s store.Storage, opts ...ledger.Option) *Server {
	return &Server{
		ledger: ledger.NewLedger(s, opts...),
		log:    logger.WithComponent("api"),
	}
}

// Router returns the API routes under /api/v1.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/bills", s.listBillsHandler).Methods("GET")
	api.HandleFunc("/bills/generate", s.generateBillsHandler).Methods("POST")
	api.HandleFunc("/bills/{id}/details", s.billDetailsHandler).Methods("GET")
	api.HandleFunc("/bills/{id}/payments", s.postPaymentHandler).Methods("POST")
	api.HandleFunc("/bills/{id}/sent", s.markBillSentHandler).Methods("POST")

	api.HandleFunc("/deliveries", s.deliverySheetHandler).Methods("GET")
	api.HandleFunc("/deliveries/bulk", s.recordDeliveriesHandler).Methods("POST")

	api.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	api.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	api.HandleFunc("/customers/reorder", s.reorderCustomersHandler).Methods("POST", "PUT")
	api.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")
	api.HandleFunc("/customers/{id}", s.updateCustomerHandler).Methods("PUT")
	api.HandleFunc("/customers/{id}", s.deleteCustomerHandler).Methods("DELETE")

	api.HandleFunc("/payments", s.paymentHistoryHandler).Methods("GET")
	api.HandleFunc("/reports", s.reportsHandler).Methods("GET")

	api.HandleFunc("/settings", s.getSettingsHandler).Methods("GET")
	api.HandleFunc("/settings", s.updateSettingsHandler).Methods("PUT")

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps ledger errors to HTTP statuses. Persistence failures are
// logged and reported without their cause.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validation *ledger.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: validation.Field})
	case ledger.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case ledger.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case ledger.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "concurrent update, retry the request"})
	default:
		s.log.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

// queryID parses an optional UUID query parameter.
func queryID(r *http.Request, key string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func queryPeriod(r *http.Request) (models.Period, bool) {
	p, err := models.ParsePeriod(r.URL.Query().Get("month"))
	return p, err == nil
}
