package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mosaaedak/chatrelay/internal/carrier"
	"github.com/mosaaedak/chatrelay/internal/history"
	"github.com/mosaaedak/chatrelay/internal/models"
)

// ProcessInbound runs one carrier-webhook turn: load session keyed by the
// sender address, complete, then either auto-reply or escalate to the
// support agent. Dispatch failures are logged but never propagated — the
// webhook caller is acked once dispatch has been attempted, so the
// carrier does not re-deliver an already-processed message.
//
// ErrSettingsIncomplete is returned without any carrier call when the
// completion key or carrier credentials are missing.
func (r *Relay) ProcessInbound(ctx context.Context, inbound models.InboundCarrierMessage) error {
	turn := uuid.NewString()
	sessionKey := carrier.Canonicalize(inbound.From)
	slog.Debug("Relay.ProcessInbound: turn started", "turn", turn, "session", sessionKey)

	settings, err := r.st.GetSettings()
	if err != nil {
		slog.Error("Relay.ProcessInbound: failed to read settings", "turn", turn, "error", err)
		return err
	}
	if !settings.HasCompletionKey() || !settings.HasCarrierCredentials() {
		slog.Error("Relay.ProcessInbound: settings incomplete, refusing turn",
			"turn", turn,
			"has_api_key", settings.HasCompletionKey(),
			"has_carrier_credentials", settings.HasCarrierCredentials())
		return ErrSettingsIncomplete
	}

	sender := r.newSender(settings.TwilioAccountSID, settings.TwilioAuthToken)
	// Replies go out from the configured carrier number, falling back to
	// the number the message was received on.
	fromNumber := settings.TwilioPhoneNumber
	if fromNumber == "" {
		fromNumber = inbound.To
	}

	unlock := r.locks.Lock(sessionKey)
	defer unlock()

	msgs, err := r.loadHistory(sessionKey)
	if err != nil {
		slog.Error("Relay.ProcessInbound: failed to load session", "turn", turn, "session", sessionKey, "error", err)
		return err
	}
	msgs = history.AppendAndTrim(msgs, models.Message{Role: models.RoleUser, Content: inbound.Body}, r.window)
	if err := r.st.UpsertSession(sessionKey, msgs); err != nil {
		slog.Error("Relay.ProcessInbound: failed to persist user turn", "turn", turn, "session", sessionKey, "error", err)
		return err
	}

	replyText, err := r.complete(ctx, turn, settings, msgs)
	if err != nil {
		// The apology is sent but never persisted, so the next inbound
		// turn does not see it as prior assistant context.
		r.dispatch(ctx, turn, sender, carrier.OutboundMessage{
			From: fromNumber,
			To:   inbound.From,
			Body: MsgSystemApology,
		})
		return nil
	}

	msgs = history.AppendAndTrim(msgs, models.Message{Role: models.RoleAssistant, Content: replyText}, r.window)
	if err := r.st.UpsertSession(sessionKey, msgs); err != nil {
		slog.Error("Relay.ProcessInbound: failed to persist assistant turn", "turn", turn, "session", sessionKey, "error", err)
		return err
	}

	switch reply := Decide(replyText); reply.Kind {
	case ReplyKindEscalate:
		r.escalate(ctx, turn, sender, settings, fromNumber, inbound)
	default:
		r.autoReply(ctx, turn, sender, fromNumber, inbound.From, reply.Text)
	}

	slog.Info("Relay.ProcessInbound: turn completed", "turn", turn, "session", sessionKey, "history_len", len(msgs))
	return nil
}

// escalate notifies the support agent with the customer's message, then
// acks the customer with the fixed handoff text.
func (r *Relay) escalate(ctx context.Context, turn string, sender carrier.Sender, settings models.Settings, fromNumber string, inbound models.InboundCarrierMessage) {
	supportPhone := settings.SupportAgentPhone
	if supportPhone == "" {
		supportPhone = DefaultSupportAgentPhone
	}
	slog.Info("Relay: escalating turn to human agent", "turn", turn, "support", supportPhone)

	note := fmt.Sprintf("🔔 طلب مساعدة بشرية من العميل %s:\n\n%s", inbound.From, inbound.Body)
	r.dispatch(ctx, turn, sender, carrier.OutboundMessage{
		From: fromNumber,
		To:   supportPhone,
		Body: note,
	})
	r.dispatch(ctx, turn, sender, carrier.OutboundMessage{
		From: fromNumber,
		To:   inbound.From,
		Body: MsgHumanHandoff,
	})
}

// autoReply sends the model's reply, moving the first bare URL (if any)
// into the media parameter of the send.
func (r *Relay) autoReply(ctx context.Context, turn string, sender carrier.Sender, fromNumber, to, text string) {
	body, mediaURL := ExtractFirstURL(text)
	if mediaURL != "" && body == "" {
		// The carrier rejects an empty body even when media is attached.
		body = " "
	}
	r.dispatch(ctx, turn, sender, carrier.OutboundMessage{
		From:     fromNumber,
		To:       to,
		Body:     body,
		MediaURL: mediaURL,
	})
}

// dispatch attempts one carrier send; failures are logged only.
func (r *Relay) dispatch(ctx context.Context, turn string, sender carrier.Sender, msg carrier.OutboundMessage) {
	if err := sender.SendMessage(ctx, msg); err != nil {
		slog.Error("Relay: carrier dispatch failed", "turn", turn, "to", msg.To, "error", err)
	}
}
