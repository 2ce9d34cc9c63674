// Package carrier wraps the Twilio API for the WhatsApp webhook channel.
//
// Credentials live in the settings record and may change between turns,
// so clients are constructed per dispatch rather than held for the
// process lifetime.
package carrier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ChannelPrefix is the address prefix the carrier requires on both ends
// of a WhatsApp send.
const ChannelPrefix = "whatsapp:"

// OutboundMessage is one carrier send. MediaURL, when set, is attached as
// a separate media parameter rather than inline body text.
type OutboundMessage struct {
	From     string
	To       string
	Body     string
	MediaURL string
}

// Sender dispatches outbound messages to the carrier.
type Sender interface {
	SendMessage(ctx context.Context, msg OutboundMessage) error
}

// Factory builds a Sender from per-turn carrier credentials. The relay
// holds a Factory so tests can substitute a mock.
type Factory func(accountSID, authToken string) Sender

// Canonicalize ensures addr carries the channel prefix. The check is
// case-insensitive; the canonical form is lowercase "whatsapp:".
func Canonicalize(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return trimmed
	}
	if strings.HasPrefix(strings.ToLower(trimmed), ChannelPrefix) {
		return ChannelPrefix + trimmed[len(ChannelPrefix):]
	}
	return ChannelPrefix + trimmed
}

// Client sends WhatsApp messages through the Twilio REST API.
type Client struct {
	rest *twilio.RestClient
}

// NewClient creates a Twilio-backed Sender with the given credentials.
func NewClient(accountSID, authToken string) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{rest: rest}
}

// SendMessage sends one WhatsApp message. Both addresses are
// canonicalized before dispatch.
func (c *Client) SendMessage(ctx context.Context, msg OutboundMessage) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(Canonicalize(msg.From))
	params.SetTo(Canonicalize(msg.To))
	params.SetBody(msg.Body)
	if msg.MediaURL != "" {
		params.SetMediaUrl([]string{msg.MediaURL})
	}

	_, err := c.rest.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Carrier SendMessage failed", "to", msg.To, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", msg.To, err)
	}
	slog.Debug("Carrier message sent", "to", msg.To, "has_media", msg.MediaURL != "")
	return nil
}

// MockClient records sends for tests instead of calling Twilio.
type MockClient struct {
	SentMessages []OutboundMessage
	Err          error
}

// NewMockClient creates an empty mock sender.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, msg OutboundMessage) error {
	if m.Err != nil {
		return m.Err
	}
	msg.From = Canonicalize(msg.From)
	msg.To = Canonicalize(msg.To)
	m.SentMessages = append(m.SentMessages, msg)
	return nil
}
