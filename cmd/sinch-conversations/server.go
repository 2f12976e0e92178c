package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/httputil"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/metrics"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/middleware"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/service"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/tracing"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// messageSender is the slice of the send workflow the HTTP layer needs.
type messageSender interface {
	SendToPatient(ctx context.Context, req service.SendRequest) (*models.Message, error)
	SendBatch(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error)
}

// consentRecorder records consent changes initiated from the EMR side.
type consentRecorder interface {
	OptIn(ctx context.Context, req service.OptInRequest) (*models.ConsentRecord, error)
	OptOut(ctx context.Context, req service.OptOutRequest) (*models.ConsentRecord, error)
}

// inboundRouter handles patient-originated messages (keyword detection).
type inboundRouter interface {
	HandleInbound(ctx context.Context, channel models.Channel, senderIdentity, body string) (service.KeywordAction, error)
}

// templateSyncer pushes local template definitions to the vendor.
type templateSyncer interface {
	Sync(ctx context.Context) (*service.SyncResult, error)
}

type Server struct {
	router      *mux.Router
	logger      *logrus.Logger
	cfg         *models.Config
	sender      messageSender
	consent     consentRecorder
	inbound     inboundRouter
	templates   templateSyncer
	rateLimiter *RateLimiter
	server      *http.Server
}

func NewServer(cfg *models.Config, sender messageSender, consent consentRecorder, inbound inboundRouter, templates templateSyncer, logger *logrus.Logger) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		cfg:         cfg,
		sender:      sender,
		consent:     consent,
		inbound:     inbound,
		templates:   templates,
		rateLimiter: NewRateLimiter(300, time.Minute),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))
	s.router.Use(s.rateLimitMiddleware)

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	s.router.HandleFunc("/webhook/sinch", s.handleSinchWebhook()).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/messages/send", s.handleSend()).Methods(http.MethodPost)
	api.HandleFunc("/messages/batch", s.handleSendBatch()).Methods(http.MethodPost)
	api.HandleFunc("/consent/opt-in", s.handleOptIn()).Methods(http.MethodPost)
	api.HandleFunc("/consent/opt-out", s.handleOptOut()).Methods(http.MethodPost)
	api.HandleFunc("/templates/sync", s.handleTemplateSync()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			metrics.IncrementCounter("http_rate_limited_total", nil, "Requests rejected by the rate limiter")
			s.logger.WithField("ip", ip).Warn("Rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleSinchWebhook consumes message events pushed by the vendor. Only
// inbound text messages are acted on; everything else is acknowledged and
// dropped so the vendor does not retry.
func (s *Server) handleSinchWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, constants.MaxWebhookBodyBytes); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}

		body, err := verifySignature(r, s.cfg.Server.WebhookSecret)
		if err != nil {
			s.logger.WithError(err).Warn("Webhook signature verification failed")
			metrics.IncrementCounter("webhook_rejected_total", nil, "Webhook requests with bad signatures")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		var event sinch.WebhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			s.logger.WithError(err).Warn("Failed to decode webhook payload")
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		metrics.IncrementCounter("webhook_events_total", nil, "Webhook events received")

		if event.Message == nil || !event.Message.Inbound() {
			w.WriteHeader(http.StatusOK)
			return
		}

		channel := models.Channel(event.Message.ChannelIdentity.Channel)
		identity := event.Message.ChannelIdentity.Identity

		action, err := s.inbound.HandleInbound(r.Context(), channel, identity, event.Message.Text())
		if err != nil {
			// The event is acknowledged regardless; the poller will pick
			// the message up again if processing has to be repeated.
			s.logger.WithError(err).WithFields(logrus.Fields{
				"request_id": tracing.GetRequestID(r.Context()),
				"channel":    channel,
			}).Error("Failed to process inbound message")
		} else if action != service.KeywordNone {
			s.logger.WithFields(logrus.Fields{
				"request_id": tracing.GetRequestID(r.Context()),
				"action":     action,
			}).Info("Keyword processed from webhook")
		}

		w.WriteHeader(http.StatusOK)
	}
}

type sendRequestPayload struct {
	PatientID   int64             `json:"patient_id"`
	PhoneNumber string            `json:"phone_number,omitempty"`
	Channel     string            `json:"channel"`
	TemplateKey string            `json:"template_key,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Body        string            `json:"body,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload sendRequestPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		msg, err := s.sender.SendToPatient(r.Context(), service.SendRequest{
			PatientID:   payload.PatientID,
			PhoneNumber: payload.PhoneNumber,
			Channel:     models.Channel(payload.Channel),
			TemplateKey: payload.TemplateKey,
			Variables:   payload.Variables,
			Body:        payload.Body,
			Metadata:    payload.Metadata,
		})
		if err != nil {
			s.respondServiceError(w, r, err, "send failed")
			return
		}

		writeJSON(w, http.StatusOK, msg)
	}
}

type batchRequestPayload struct {
	PatientIDs  []int64           `json:"patient_ids"`
	Channel     string            `json:"channel"`
	TemplateKey string            `json:"template_key,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Body        string            `json:"body,omitempty"`
}

type batchResponsePayload struct {
	Sent   int              `json:"sent"`
	Failed int              `json:"failed"`
	Errors map[int64]string `json:"errors,omitempty"`
}

func (s *Server) handleSendBatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload batchRequestPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := s.sender.SendBatch(r.Context(), service.BatchRequest{
			PatientIDs:  payload.PatientIDs,
			Channel:     models.Channel(payload.Channel),
			TemplateKey: payload.TemplateKey,
			Variables:   payload.Variables,
			Body:        payload.Body,
		})
		if err != nil {
			s.respondServiceError(w, r, err, "batch send failed")
			return
		}

		response := batchResponsePayload{Sent: result.Sent, Failed: result.Failed}
		if len(result.Errors) > 0 {
			response.Errors = make(map[int64]string, len(result.Errors))
			for patientID, patientErr := range result.Errors {
				response.Errors[patientID] = patientErr.Error()
			}
		}
		writeJSON(w, http.StatusOK, response)
	}
}

type optInPayload struct {
	PatientID   int64  `json:"patient_id"`
	PhoneNumber string `json:"phone_number"`
	Method      string `json:"method"`
	ConsentText string `json:"consent_text,omitempty"`
	Channel     string `json:"channel,omitempty"`
}

func (s *Server) handleOptIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload optInPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		record, err := s.consent.OptIn(r.Context(), service.OptInRequest{
			PatientID:   payload.PatientID,
			PhoneNumber: payload.PhoneNumber,
			Method:      payload.Method,
			IPAddress:   httputil.GetClientIP(r),
			ConsentText: payload.ConsentText,
			Channel:     models.Channel(payload.Channel),
		})
		if err != nil {
			s.respondServiceError(w, r, err, "opt-in failed")
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

type optOutPayload struct {
	PatientID   int64  `json:"patient_id"`
	PhoneNumber string `json:"phone_number"`
	Method      string `json:"method"`
	Channel     string `json:"channel,omitempty"`
}

func (s *Server) handleOptOut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload optOutPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		record, err := s.consent.OptOut(r.Context(), service.OptOutRequest{
			PatientID:   payload.PatientID,
			PhoneNumber: payload.PhoneNumber,
			Method:      payload.Method,
			Channel:     models.Channel(payload.Channel),
		})
		if err != nil {
			s.respondServiceError(w, r, err, "opt-out failed")
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

func (s *Server) handleTemplateSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.templates.Sync(r.Context())
		if err != nil {
			s.respondServiceError(w, r, err, "template sync failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// respondServiceError maps domain errors to HTTP statuses: validation
// failures are the caller's fault, everything else is ours.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	logger := s.logger.WithError(err).WithField("request_id", tracing.GetRequestID(r.Context()))

	var validationErr models.ValidationError
	if errors.As(err, &validationErr) {
		logger.Warn(logMsg)
		writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	logger.Error(logMsg)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
