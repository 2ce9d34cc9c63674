package relay

import (
	"regexp"
	"strings"
)

// EscalationSentinel is the reserved reply value that routes a carrier
// turn to a human agent instead of being sent as literal text. The match
// is exact, never substring.
const EscalationSentinel = "HUMAN_HELP_NEEDED"

// ReplyKind tags the outcome of the completion step.
type ReplyKind int

const (
	// ReplyKindText is a literal reply to auto-send back to the sender.
	ReplyKindText ReplyKind = iota
	// ReplyKindEscalate routes the turn to a human agent.
	ReplyKindEscalate
)

// Reply is the completion outcome, decided once after the completion
// step rather than re-derived by string comparison in dispatch code.
type Reply struct {
	Kind ReplyKind
	Text string
}

// Decide classifies the model's raw reply text.
func Decide(raw string) Reply {
	if raw == EscalationSentinel {
		return Reply{Kind: ReplyKindEscalate}
	}
	return Reply{Kind: ReplyKindText, Text: raw}
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// ExtractFirstURL strips the first bare URL from text and returns the
// remaining body plus the URL. The carrier treats body text and media
// attachments as separate concerns, so the URL moves to the media
// parameter of the send. URLs after the first are left inline.
func ExtractFirstURL(text string) (body, url string) {
	loc := urlPattern.FindStringIndex(text)
	if loc == nil {
		return text, ""
	}
	url = text[loc[0]:loc[1]]
	body = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return body, url
}
