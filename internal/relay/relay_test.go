package relay

import (
	"context"
	"fmt"
	"testing"

	"github.com/mosaaedak/chatrelay/internal/carrier"
	"github.com/mosaaedak/chatrelay/internal/genai"
	"github.com/mosaaedak/chatrelay/internal/models"
	"github.com/mosaaedak/chatrelay/internal/store"
)

// fakeCompletion is a scripted CompletionProvider recording every call.
type fakeCompletion struct {
	reply string
	err   error
	calls []genai.CompletionRequest
}

func (f *fakeCompletion) Complete(ctx context.Context, req genai.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

func strptr(s string) *string { return &s }

// configuredStore returns an in-memory store with a complete settings
// record.
func configuredStore(t *testing.T) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemoryStore()
	err := st.UpdateSettings(models.SettingsUpdate{
		APIKey:            strptr("sk-or-test"),
		SystemPrompt:      strptr("you are a helper"),
		TwilioAccountSID:  strptr("AC123"),
		TwilioAuthToken:   strptr("tok456"),
		TwilioPhoneNumber: strptr("+14155238886"),
		SupportAgentPhone: strptr("+15550001111"),
	})
	if err != nil {
		t.Fatalf("failed to configure settings: %v", err)
	}
	return st
}

// newTestRelay wires a relay around the fakes and returns the mock
// carrier client shared by every sender the factory builds.
func newTestRelay(st *store.InMemoryStore, completion CompletionProvider) (*Relay, *carrier.MockClient) {
	mock := carrier.NewMockClient()
	factory := func(accountSID, authToken string) carrier.Sender { return mock }
	return NewRelay(st, completion, factory), mock
}

func TestProcessChatSuccessPersistsBothHalves(t *testing.T) {
	st := configuredStore(t)
	fc := &fakeCompletion{reply: "أهلاً بك!"}
	r, _ := newTestRelay(st, fc)

	out, err := r.ProcessChat(context.Background(), "s1", "مرحبا")
	if err != nil {
		t.Fatalf("ProcessChat failed: %v", err)
	}
	if out != "أهلاً بك!" {
		t.Errorf("unexpected output %q", out)
	}

	sess, _ := st.GetSession("s1")
	if sess == nil {
		t.Fatal("session not persisted")
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != models.RoleUser || sess.Messages[1].Role != models.RoleAssistant {
		t.Errorf("unexpected roles: %+v", sess.Messages)
	}

	if len(fc.calls) != 1 {
		t.Fatalf("expected 1 completion call, got %d", len(fc.calls))
	}
	call := fc.calls[0]
	if call.APIKey != "sk-or-test" || call.SystemPrompt != "you are a helper" {
		t.Errorf("completion call missing settings: %+v", call)
	}
	if len(call.History) != 1 || call.History[0].Content != "مرحبا" {
		t.Errorf("completion history wrong: %+v", call.History)
	}
}

func TestProcessChatNotConfiguredShortCircuits(t *testing.T) {
	st := store.NewInMemoryStore() // no API key
	fc := &fakeCompletion{reply: "should never be called"}
	r, _ := newTestRelay(st, fc)

	out, err := r.ProcessChat(context.Background(), "s1", "hi")
	if err != nil {
		t.Fatalf("ProcessChat failed: %v", err)
	}
	if out != MsgNotConfigured {
		t.Errorf("expected not-configured message, got %q", out)
	}
	if len(fc.calls) != 0 {
		t.Errorf("completion called despite missing API key: %d calls", len(fc.calls))
	}
	if sess, _ := st.GetSession("s1"); sess != nil {
		t.Error("not-configured turn was persisted")
	}
}

func TestProcessChatCompletionFailureKeepsUserHalfOnly(t *testing.T) {
	st := configuredStore(t)
	fc := &fakeCompletion{err: &genai.RemoteError{StatusCode: 500, Body: "boom"}}
	r, _ := newTestRelay(st, fc)

	out, err := r.ProcessChat(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("ProcessChat failed: %v", err)
	}
	if out != MsgSystemApology {
		t.Errorf("expected apology, got %q", out)
	}

	sess, _ := st.GetSession("s1")
	if sess == nil {
		t.Fatal("user half not persisted")
	}
	if len(sess.Messages) != 1 || sess.Messages[0].Role != models.RoleUser {
		t.Errorf("expected only the user message on disk, got %+v", sess.Messages)
	}
}

func TestProcessChatEmptyContentBecomesFallback(t *testing.T) {
	st := configuredStore(t)
	fc := &fakeCompletion{reply: ""}
	r, _ := newTestRelay(st, fc)

	out, err := r.ProcessChat(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("ProcessChat failed: %v", err)
	}
	if out != MsgNoAnswer {
		t.Errorf("expected no-answer fallback, got %q", out)
	}
	sess, _ := st.GetSession("s1")
	if len(sess.Messages) != 2 || sess.Messages[1].Content != MsgNoAnswer {
		t.Errorf("fallback not persisted as the assistant half: %+v", sess.Messages)
	}
}

func TestProcessChatWindowHoldsAcrossManyTurns(t *testing.T) {
	st := configuredStore(t)
	fc := &fakeCompletion{reply: "ok"}
	r, _ := newTestRelay(st, fc)

	for i := 0; i < 15; i++ {
		if _, err := r.ProcessChat(context.Background(), "s1", fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
	}

	sess, _ := st.GetSession("s1")
	if len(sess.Messages) != 20 {
		t.Fatalf("expected window of 20 persisted messages, got %d", len(sess.Messages))
	}
	// 15 turns produce 30 halves; the first 10 are evicted, so the
	// window opens with the user half of turn 5.
	if sess.Messages[0].Content != "turn 5" {
		t.Errorf("expected oldest retained message 'turn 5', got %q", sess.Messages[0].Content)
	}
	last := sess.Messages[len(sess.Messages)-1]
	if last.Role != models.RoleAssistant {
		t.Errorf("expected the window to end with an assistant half, got %+v", last)
	}
}

func TestProcessChatConcurrentSameKeyTurnsDoNotLoseUpdates(t *testing.T) {
	st := configuredStore(t)
	fc := &fakeCompletion{reply: "ok"}
	r, _ := newTestRelay(st, fc)

	const turns = 8
	done := make(chan error, turns)
	for i := 0; i < turns; i++ {
		go func(i int) {
			_, err := r.ProcessChat(context.Background(), "same-key", fmt.Sprintf("m%d", i))
			done <- err
		}(i)
	}
	for i := 0; i < turns; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent turn failed: %v", err)
		}
	}

	sess, _ := st.GetSession("same-key")
	// 8 turns * 2 halves = 16 messages; with per-key serialization none
	// may be lost to a clobbered write.
	if len(sess.Messages) != 16 {
		t.Errorf("expected 16 persisted messages, got %d", len(sess.Messages))
	}
}
