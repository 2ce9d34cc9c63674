// Package api provides HTTP handlers for the chatrelay channel endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mosaaedak/chatrelay/internal/models"
	"github.com/mosaaedak/chatrelay/internal/relay"
)

// chatHandler handles one web-widget turn (POST /api/chat).
//
// The response is always a JSON object with a non-empty "output": fixed
// Arabic text when the system is unconfigured or the completion call
// failed, the model's reply otherwise. Only a malformed request or a
// store failure changes the status code.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	output, err := s.relay.ProcessChat(r.Context(), req.SessionID, req.ChatInput)
	if err != nil {
		slog.Error("Server.chatHandler: turn failed", "error", err, "session", req.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.ChatResponse{Output: relay.MsgSystemApology})
		return
	}

	writeJSONResponse(w, http.StatusOK, models.ChatResponse{Output: output})
}

// twilioWebhookHandler handles inbound carrier messages (POST
// /api/twilio/webhook). Twilio expects a plain 200 once the message has
// been accepted; anything else makes it re-deliver.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.twilioWebhookHandler: processing webhook", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.twilioWebhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	inbound := models.InboundCarrierMessage{
		From: r.PostFormValue("From"),
		To:   r.PostFormValue("To"),
		Body: r.PostFormValue("Body"),
	}
	if err := inbound.Validate(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: validation failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.relay.ProcessInbound(r.Context(), inbound); err != nil {
		if errors.Is(err, relay.ErrSettingsIncomplete) {
			slog.Error("Server.twilioWebhookHandler: refusing turn, settings incomplete")
		} else {
			slog.Error("Server.twilioWebhookHandler: turn failed", "error", err)
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Server.twilioWebhookHandler: failed to write response", "error", err)
	}
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// Session count doubles as a storage reachability probe.
	if count, err := s.st.CountSessions(); err != nil {
		slog.Warn("Health check: failed to count sessions", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach session storage"
	} else {
		healthData["active_sessions"] = count
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
