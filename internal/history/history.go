// Package history enforces the bounded-window policy on conversation
// message lists.
package history

import "github.com/mosaaedak/chatrelay/internal/models"

// DefaultWindow is the maximum number of retained message halves per
// conversation. Oldest entries are evicted first.
const DefaultWindow = 20

// AppendAndTrim appends msg to the end of the history and, if the result
// exceeds window, drops entries from the front so only the last window
// entries remain. It never mutates the input slice's visible contents;
// the returned slice is the caller's to persist.
func AppendAndTrim(msgs []models.Message, msg models.Message, window int) []models.Message {
	out := make([]models.Message, 0, len(msgs)+1)
	out = append(out, msgs...)
	out = append(out, msg)
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}
