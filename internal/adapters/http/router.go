package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/kirillkom/studyforge/internal/config"
	"github.com/kirillkom/studyforge/internal/core/ports"
	"github.com/kirillkom/studyforge/internal/observability/metrics"
)

const serviceName = "api"

// Services are the inbound ports the HTTP surface drives.
type Services struct {
	Ingestor   ports.DocumentIngestor
	Reader     ports.DocumentReader
	StudyPacks ports.StudyPackLibrary
	Trigger    ports.GenerationTrigger
	Accounts   ports.CreditAccounts
	Payments   ports.PaymentProcessor
	Identity   ports.IdentitySync
}

type Router struct {
	cfg       config.Config
	services  Services
	metrics   *metrics.HTTPServerMetrics
	webhook   *svix.Webhook
	validator *requestValidator
}

// NewRouter wires the HTTP surface. httpMetrics may be nil. The identity webhook is
// only served when IdentityWebhookSecret is set.
func NewRouter(cfg config.Config, services Services, httpMetrics *metrics.HTTPServerMetrics) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}

	rt := &Router{
		cfg:       cfg,
		services:  services,
		metrics:   httpMetrics,
		validator: validator,
	}
	if secret := strings.TrimSpace(cfg.IdentityWebhookSecret); secret != "" {
		wh, err := svix.NewWebhook(secret)
		if err != nil {
			return nil, fmt.Errorf("init identity webhook verifier: %w", err)
		}
		rt.webhook = wh
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(routed("GET /healthz", rt.healthz))
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc(routed("GET /v1/documents", rt.listDocuments))
	mux.HandleFunc(routed("POST /v1/documents", rt.uploadDocument))
	mux.HandleFunc(routed("POST /v1/documents/text", rt.createTextDocument))
	mux.HandleFunc(routed("GET /v1/documents/{document_id}", rt.getDocument))
	mux.HandleFunc(routed("GET /v1/documents/{document_id}/cost", rt.estimateCost))
	mux.HandleFunc(routed("POST /v1/documents/{document_id}/generate", rt.generate))
	mux.HandleFunc(routed("GET /v1/documents/{document_id}/artifacts/{kind}", rt.getArtifact))

	mux.HandleFunc(routed("POST /v1/study-packs", rt.createStudyPack))
	mux.HandleFunc(routed("GET /v1/study-packs", rt.listStudyPacks))
	mux.HandleFunc(routed("GET /v1/study-packs/{pack_id}", rt.getStudyPack))

	mux.HandleFunc(routed("GET /v1/users/{user_id}/balance", rt.getBalance))
	mux.HandleFunc(routed("GET /v1/users/{user_id}/transactions", rt.listTransactions))
	mux.HandleFunc(routed("POST /v1/payments/verify", rt.verifyPayment))

	if rt.webhook != nil {
		mux.HandleFunc(routed("POST /v1/webhooks/identity", rt.identityWebhook))
	}

	var handler http.Handler = mux
	handler = rt.validator.middleware(handler)
	handler = rt.authMiddleware(handler)
	handler = backpressureMiddleware(
		handler,
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = recoverMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError answers with {"error": ...}. Server-side failures are logged with the
// request id and their details stay out of the response.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
