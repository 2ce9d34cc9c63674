// Package models defines the core data structures for chatrelay.
//
// It includes conversation messages, session records, the single-row
// settings record, and the JSON envelopes shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a message authored by the model.
	RoleAssistant Role = "assistant"
	// RoleSystem marks the system prompt injected ahead of the history.
	RoleSystem Role = "system"
)

// MaskedSecret is the placeholder the settings API returns in place of the
// Twilio auth token. An update carrying this exact value leaves the stored
// token untouched.
const MaskedSecret = "••••••••"

// Error variables for request validation.
var (
	ErrMissingChatFields     = errors.New("chatInput and sessionId are required")
	ErrMissingWebhookFields  = errors.New("From and Body are required")
	ErrMissingCredentials    = errors.New("username and password are required")
	ErrMissingPasswordFields = errors.New("current and new passwords are required")
)

// Message is one conversational turn half. Insertion order within a
// session's history is chronological turn order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is a conversation thread identified by a stable key: a
// browser-generated id for the web widget, or the sender's channel
// address (e.g. "whatsapp:+15551234567") for the carrier webhook.
type Session struct {
	Key        string    `json:"session_id"`
	Messages   []Message `json:"messages"`
	LastAccess time.Time `json:"last_access"`
}

// Settings is the single process-wide configuration record. Exactly one
// logical instance exists; the relay re-reads it once per turn, so a
// mid-flight update takes effect on the next turn.
type Settings struct {
	APIKey            string    `json:"api_key"`
	SystemPrompt      string    `json:"system_prompt"`
	ModelName         string    `json:"model_name"`
	TwilioAccountSID  string    `json:"twilio_account_sid"`
	TwilioAuthToken   string    `json:"twilio_auth_token"`
	TwilioPhoneNumber string    `json:"twilio_phone_number"`
	SupportAgentPhone string    `json:"support_agent_phone"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasCompletionKey reports whether the completion API key is configured.
func (s Settings) HasCompletionKey() bool {
	return s.APIKey != ""
}

// HasCarrierCredentials reports whether the Twilio account SID and auth
// token are both configured. The webhook path refuses to attempt a
// carrier call without them.
func (s Settings) HasCarrierCredentials() bool {
	return s.TwilioAccountSID != "" && s.TwilioAuthToken != ""
}

// SettingsUpdate is a partial settings write. Nil fields are left
// unchanged; a Twilio auth token equal to MaskedSecret is ignored rather
// than written.
type SettingsUpdate struct {
	APIKey            *string `json:"api_key,omitempty"`
	SystemPrompt      *string `json:"system_prompt,omitempty"`
	ModelName         *string `json:"model_name,omitempty"`
	TwilioAccountSID  *string `json:"twilio_account_sid,omitempty"`
	TwilioAuthToken   *string `json:"twilio_auth_token,omitempty"`
	TwilioPhoneNumber *string `json:"twilio_phone_number,omitempty"`
	SupportAgentPhone *string `json:"support_agent_phone,omitempty"`
}

// Apply merges the update into base and returns the result.
func (u SettingsUpdate) Apply(base Settings) Settings {
	if u.APIKey != nil {
		base.APIKey = *u.APIKey
	}
	if u.SystemPrompt != nil {
		base.SystemPrompt = *u.SystemPrompt
	}
	if u.ModelName != nil {
		base.ModelName = *u.ModelName
	}
	if u.TwilioAccountSID != nil {
		base.TwilioAccountSID = *u.TwilioAccountSID
	}
	if u.TwilioAuthToken != nil && *u.TwilioAuthToken != MaskedSecret {
		base.TwilioAuthToken = *u.TwilioAuthToken
	}
	if u.TwilioPhoneNumber != nil {
		base.TwilioPhoneNumber = *u.TwilioPhoneNumber
	}
	if u.SupportAgentPhone != nil {
		base.SupportAgentPhone = *u.SupportAgentPhone
	}
	return base
}

// User is an admin dashboard account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatRequest is the web widget's turn payload.
type ChatRequest struct {
	ChatInput string `json:"chatInput"`
	SessionID string `json:"sessionId"`
}

// Validate checks that both required fields are present.
func (r *ChatRequest) Validate() error {
	if r.ChatInput == "" || r.SessionID == "" {
		return ErrMissingChatFields
	}
	return nil
}

// ChatResponse is the web widget's reply payload. Output is always
// non-empty on a 200, even when the completion call failed.
type ChatResponse struct {
	Output string `json:"output"`
}

// InboundCarrierMessage is a parsed carrier webhook payload.
type InboundCarrierMessage struct {
	From string
	To   string
	Body string
}

// Validate checks the webhook carries a sender address and a body.
func (m *InboundCarrierMessage) Validate() error {
	if strings.TrimSpace(m.From) == "" || strings.TrimSpace(m.Body) == "" {
		return ErrMissingWebhookFields
	}
	return nil
}

// LoginRequest is the admin login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the admin password-change payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// APIStatus represents the status of an API response envelope.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for admin endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
