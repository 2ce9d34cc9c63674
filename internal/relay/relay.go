// Package relay implements the conversation turn engine for both inbound
// channels: the web chat widget and the carrier (WhatsApp) webhook.
//
// A turn reads settings at most once, loads and merges session state
// under a per-key lock, calls the completion endpoint, and relays the
// reply back to the originating channel. Nothing is cached across turns,
// so a settings change takes effect on the next turn.
package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mosaaedak/chatrelay/internal/carrier"
	"github.com/mosaaedak/chatrelay/internal/genai"
	"github.com/mosaaedak/chatrelay/internal/history"
	"github.com/mosaaedak/chatrelay/internal/models"
	"github.com/mosaaedak/chatrelay/internal/store"
)

// Fixed user-facing strings. The web widget and the carrier channel both
// always deliver something readable, never a raw error.
const (
	// MsgNotConfigured is returned when no completion API key is set.
	MsgNotConfigured = "عذراً، النظام غير مُكوّن بعد. يرجى التواصل مع المسؤول."
	// MsgSystemApology substitutes for a failed completion call.
	MsgSystemApology = "عذراً، حدث خطأ في النظام. يرجى المحاولة مرة أخرى."
	// MsgNoAnswer substitutes for a successful completion with no content.
	MsgNoAnswer = "عذراً، لم أتمكن من الرد."
	// MsgHumanHandoff acknowledges an escalated turn to the customer.
	MsgHumanHandoff = "تم استلام طلبك وتحويله إلى أحد موظفينا، وسيتواصل معك في أقرب وقت. شكراً لتواصلك معنا."
)

// DefaultSupportAgentPhone receives escalations when no support agent
// number is configured in settings.
const DefaultSupportAgentPhone = "whatsapp:+967700000000"

// ErrSettingsIncomplete signals that the webhook turn cannot proceed:
// the completion key or the carrier credentials are absent. No carrier
// call is attempted in that state.
var ErrSettingsIncomplete = errors.New("required settings are missing")

// CompletionProvider is the completion step as the relay sees it.
type CompletionProvider interface {
	Complete(ctx context.Context, req genai.CompletionRequest) (string, error)
}

// Opts holds configuration options for the relay.
type Opts struct {
	Window int
}

// Option defines a configuration option for the relay.
type Option func(*Opts)

// WithWindow overrides the bounded-history window size.
func WithWindow(n int) Option {
	return func(o *Opts) { o.Window = n }
}

// Relay is the turn engine shared by both channels.
type Relay struct {
	st         store.Store
	completion CompletionProvider
	newSender  carrier.Factory
	window     int
	locks      *sessionLocks
}

// NewRelay creates a Relay. senders builds a carrier client from the
// per-turn Twilio credentials; tests substitute a mock factory.
func NewRelay(st store.Store, completion CompletionProvider, senders carrier.Factory, opts ...Option) *Relay {
	cfg := Opts{Window: history.DefaultWindow}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Relay{
		st:         st,
		completion: completion,
		newSender:  senders,
		window:     cfg.Window,
		locks:      newSessionLocks(),
	}
}

// ProcessChat runs one web-widget turn. The returned string is always a
// user-facing output; an error is returned only for infrastructure
// failures (store unavailable), which the handler converts to a generic
// server-error response.
func (r *Relay) ProcessChat(ctx context.Context, sessionID, chatInput string) (string, error) {
	turn := uuid.NewString()
	slog.Debug("Relay.ProcessChat: turn started", "turn", turn, "session", sessionID)

	settings, err := r.st.GetSettings()
	if err != nil {
		slog.Error("Relay.ProcessChat: failed to read settings", "turn", turn, "error", err)
		return "", err
	}

	unlock := r.locks.Lock(sessionID)
	defer unlock()

	msgs, err := r.loadHistory(sessionID)
	if err != nil {
		slog.Error("Relay.ProcessChat: failed to load session", "turn", turn, "session", sessionID, "error", err)
		return "", err
	}
	msgs = history.AppendAndTrim(msgs, models.Message{Role: models.RoleUser, Content: chatInput}, r.window)

	if !settings.HasCompletionKey() {
		slog.Warn("Relay.ProcessChat: no completion API key configured", "turn", turn)
		return MsgNotConfigured, nil
	}

	// The user half of the turn is durable even if the completion call
	// fails below; the assistant half is persisted only on success.
	if err := r.st.UpsertSession(sessionID, msgs); err != nil {
		slog.Error("Relay.ProcessChat: failed to persist user turn", "turn", turn, "session", sessionID, "error", err)
		return "", err
	}

	replyText, err := r.complete(ctx, turn, settings, msgs)
	if err != nil {
		return MsgSystemApology, nil
	}

	msgs = history.AppendAndTrim(msgs, models.Message{Role: models.RoleAssistant, Content: replyText}, r.window)
	if err := r.st.UpsertSession(sessionID, msgs); err != nil {
		slog.Error("Relay.ProcessChat: failed to persist assistant turn", "turn", turn, "session", sessionID, "error", err)
		return "", err
	}

	slog.Info("Relay.ProcessChat: turn completed", "turn", turn, "session", sessionID, "history_len", len(msgs))
	return replyText, nil
}

// loadHistory returns the session's message list, or an empty list for a
// first-contact key.
func (r *Relay) loadHistory(key string) ([]models.Message, error) {
	sess, err := r.st.GetSession(key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	return sess.Messages, nil
}

// complete runs the completion step against the settings snapshot taken
// at the start of the turn. A failed call is logged with status and body
// and surfaces as an error; an empty success becomes MsgNoAnswer.
func (r *Relay) complete(ctx context.Context, turn string, settings models.Settings, msgs []models.Message) (string, error) {
	replyText, err := r.completion.Complete(ctx, genai.CompletionRequest{
		APIKey:       settings.APIKey,
		Model:        settings.ModelName,
		SystemPrompt: settings.SystemPrompt,
		History:      msgs,
	})
	if err != nil {
		var remote *genai.RemoteError
		if errors.As(err, &remote) {
			slog.Error("Relay: completion endpoint failed", "turn", turn, "status", remote.StatusCode, "body", remote.Body)
		} else {
			slog.Error("Relay: completion call failed", "turn", turn, "error", err)
		}
		return "", err
	}
	if replyText == "" {
		slog.Warn("Relay: completion returned no content", "turn", turn)
		return MsgNoAnswer, nil
	}
	return replyText, nil
}
