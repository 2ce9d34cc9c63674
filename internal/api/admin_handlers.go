// Package api provides HTTP handlers for the chatrelay admin dashboard.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mosaaedak/chatrelay/internal/auth"
	"github.com/mosaaedak/chatrelay/internal/models"
)

// settingsView is the masked settings representation returned to the
// dashboard. The raw API key and auth token never leave the server.
type settingsView struct {
	APIKey             string    `json:"api_key"`
	SystemPrompt       string    `json:"system_prompt"`
	ModelName          string    `json:"model_name"`
	TwilioAccountSID   string    `json:"twilio_account_sid"`
	TwilioAuthToken    string    `json:"twilio_auth_token"`
	TwilioPhoneNumber  string    `json:"twilio_phone_number"`
	SupportAgentPhone  string    `json:"support_agent_phone"`
	HasTwilioAuthToken bool      `json:"has_twilio_auth_token"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// maskAPIKey keeps the first 8 and last 4 characters of a long key so
// the dashboard can show which key is active without revealing it.
func maskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 12 {
		return models.MaskedSecret
	}
	return key[:8] + models.MaskedSecret + key[len(key)-4:]
}

func maskSettings(s models.Settings) settingsView {
	view := settingsView{
		APIKey:             maskAPIKey(s.APIKey),
		SystemPrompt:       s.SystemPrompt,
		ModelName:          s.ModelName,
		TwilioAccountSID:   s.TwilioAccountSID,
		TwilioPhoneNumber:  s.TwilioPhoneNumber,
		SupportAgentPhone:  s.SupportAgentPhone,
		HasTwilioAuthToken: s.TwilioAuthToken != "",
		UpdatedAt:          s.UpdatedAt,
	}
	if view.HasTwilioAuthToken {
		view.TwilioAuthToken = models.MaskedSecret
	}
	return view
}

// loginHandler exchanges admin credentials for a session token (POST
// /api/auth/login).
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.loginHandler: processing login request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.loginHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMissingCredentials.Error()))
		return
	}

	user, err := s.st.GetUserByUsername(req.Username)
	if err != nil {
		slog.Error("Server.loginHandler: failed to fetch user", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process login"))
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		slog.Warn("Server.loginHandler: rejected login", "username", req.Username)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid username or password"))
		return
	}

	token, err := s.tokens.Issue(*user)
	if err != nil {
		slog.Error("Server.loginHandler: failed to issue token", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to issue token"))
		return
	}

	slog.Info("Server.loginHandler: admin logged in", "username", user.Username)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"token":    token,
		"username": user.Username,
	}))
}

// meHandler returns the authenticated admin's identity (GET /api/auth/me).
func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Authentication required"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"id":       claims.UserID,
		"username": claims.Username,
	}))
}

// changePasswordHandler updates the authenticated admin's password (POST
// /api/auth/change-password).
func (s *Server) changePasswordHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Authentication required"))
		return
	}

	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.changePasswordHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMissingPasswordFields.Error()))
		return
	}

	user, err := s.st.GetUserByUsername(claims.Username)
	if err != nil || user == nil {
		slog.Error("Server.changePasswordHandler: failed to fetch user", "error", err, "username", claims.Username)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to change password"))
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		slog.Warn("Server.changePasswordHandler: current password rejected", "username", claims.Username)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Current password is incorrect"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		slog.Error("Server.changePasswordHandler: failed to hash password", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to change password"))
		return
	}
	if err := s.st.UpdateUserPassword(user.ID, hash); err != nil {
		slog.Error("Server.changePasswordHandler: failed to store password", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to change password"))
		return
	}

	slog.Info("Server.changePasswordHandler: password changed", "username", claims.Username)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Password changed successfully", nil))
}

// settingsHandler reads (GET) or partially updates (PUT) the settings
// record (/api/settings). Updates take effect on the next relay turn.
func (s *Server) settingsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		settings, err := s.st.GetSettings()
		if err != nil {
			slog.Error("Server.settingsHandler: failed to read settings", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch settings"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(maskSettings(settings)))

	case http.MethodPut:
		var update models.SettingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			slog.Warn("Server.settingsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := s.st.UpdateSettings(update); err != nil {
			slog.Error("Server.settingsHandler: failed to update settings", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update settings"))
			return
		}
		settings, err := s.st.GetSettings()
		if err != nil {
			slog.Error("Server.settingsHandler: failed to re-read settings", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch settings"))
			return
		}
		slog.Info("Server.settingsHandler: settings updated",
			"has_api_key", settings.HasCompletionKey(),
			"has_carrier_credentials", settings.HasCarrierCredentials())
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Settings updated successfully", maskSettings(settings)))

	default:
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// statsHandler returns dashboard statistics (GET /api/stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	count, err := s.st.CountSessions()
	if err != nil {
		slog.Error("Server.statsHandler: failed to count sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch stats"))
		return
	}
	settings, err := s.st.GetSettings()
	if err != nil {
		slog.Error("Server.statsHandler: failed to read settings", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch stats"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"active_sessions": count,
		"model":           settings.ModelName,
		"has_api_key":     settings.HasCompletionKey(),
	}))
}
