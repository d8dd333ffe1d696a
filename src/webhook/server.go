// Package webhook receives provider build notifications and publishes them
// as build events.
package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"checkrelay/src/broker"
	"checkrelay/src/contracts"
	"checkrelay/src/logger"
)

// maxBodyBytes bounds how much of a notification body is read.
const maxBodyBytes = 1 << 20 // 1MB

// payload is the subset of the provider's webhook notification the relay
// consumes. Notifications arrive form-encoded with the JSON document in
// the "payload" field, or as a bare JSON body.
type payload struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	Branch     string `json:"branch"`
	Commit     string `json:"commit"`
	HeadCommit string `json:"head_commit"`
	Repository struct {
		Name      string `json:"name"`
		OwnerName string `json:"owner_name"`
	} `json:"repository"`
}

// Server accepts build notifications and turns them into events on the
// builds topic. Signature verification is left to the deployment's ingress.
type Server struct {
	broker broker.Broker
	domain string
	logger logger.Logger
}

// NewServer creates a webhook server. domain names the provider host jobs
// link back to, e.g. "travis-ci.com".
func NewServer(brk broker.Broker, domain string, log logger.Logger) *Server {
	return &Server{
		broker: brk,
		domain: domain,
		logger: log,
	}
}

// Router returns the HTTP routes of the webhook server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleWebhook accepts one notification. Malformed or non-build
// notifications are logged and acknowledged with 202 anyway; the provider
// would retry on an error status and a retry cannot fix the content.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.New().String()

	body, err := notificationBody(r)
	if err != nil {
		s.logger.Error("[Webhook] Delivery %s: %v", deliveryID, err)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		s.logger.Error("[Webhook] Delivery %s: failed to unmarshal payload: %v", deliveryID, err)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if p.ID == 0 || p.Repository.OwnerName == "" || p.Repository.Name == "" || headSHA(p) == "" {
		s.logger.Error("[Webhook] Delivery %s: notification is missing build identity", deliveryID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	event := contracts.BuildEvent{
		Build: contracts.BuildInfo{
			Domain:     s.domain,
			ID:         p.ID,
			Owner:      p.Repository.OwnerName,
			Repo:       p.Repository.Name,
			HeadSHA:    headSHA(p),
			HeadBranch: p.Branch,
		},
		DeliveryID: deliveryID,
		ReceivedAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("[Webhook] Delivery %s: failed to marshal event: %v", deliveryID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := s.broker.Publish(r.Context(), contracts.TopicBuilds, event.Build.Key(), data); err != nil {
		s.logger.Error("[Webhook] Delivery %s: failed to publish event: %v", deliveryID, err)
		// The event is lost here, so let the provider retry this one.
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	s.logger.Info("[Webhook] Delivery %s: build %s queued", deliveryID, event.Build.Key())
	w.WriteHeader(http.StatusAccepted)
}

// notificationBody extracts the JSON notification from the request.
func notificationBody(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("failed to parse form body: %w", err)
		}
		raw := r.PostFormValue("payload")
		if raw == "" {
			return nil, fmt.Errorf("form body has no payload field")
		}
		return []byte(raw), nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// headSHA picks the commit checks attach to. Pull request builds carry the
// PR head in head_commit while commit holds the synthetic merge commit.
func headSHA(p payload) string {
	if p.HeadCommit != "" {
		return p.HeadCommit
	}
	return p.Commit
}
