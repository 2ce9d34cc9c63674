package genai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mosaaedak/chatrelay/internal/models"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			t.Errorf("expected bearer auth, got %q", auth)
		}
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(raw, captured); err != nil {
				t.Errorf("failed to decode request body: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestCompleteBuildsOrderedPrompt(t *testing.T) {
	var captured capturedRequest
	srv := completionServer(t, http.StatusOK,
		`{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"marhaba"}}]}`,
		&captured)
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	out, err := c.Complete(context.Background(), CompletionRequest{
		APIKey:       "sk-or-test",
		Model:        "openai/gpt-oss-120b",
		SystemPrompt: "you are a helper",
		History: []models.Message{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
			{Role: models.RoleUser, Content: "how are you"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "marhaba" {
		t.Errorf("expected reply marhaba, got %q", out)
	}

	if captured.Model != "openai/gpt-oss-120b" {
		t.Errorf("expected model passed through, got %q", captured.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(captured.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(captured.Messages))
	}
	for i, role := range wantRoles {
		if captured.Messages[i].Role != role {
			t.Errorf("message %d: expected role %s, got %s", i, role, captured.Messages[i].Role)
		}
	}
	if captured.Messages[0].Content != "you are a helper" {
		t.Errorf("system prompt not first: %q", captured.Messages[0].Content)
	}
	if captured.Messages[3].Content != "how are you" {
		t.Errorf("history order lost: %q", captured.Messages[3].Content)
	}
}

func TestCompleteRemoteFailureCarriesStatus(t *testing.T) {
	srv := completionServer(t, http.StatusBadGateway,
		`{"error":{"message":"upstream exploded","type":"server_error"}}`, nil)
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	_, err := c.Complete(context.Background(), CompletionRequest{
		APIKey: "sk-or-test",
		Model:  "openai/gpt-oss-120b",
	})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected *RemoteError, got %T: %v", err, err)
	}
	if remote.StatusCode != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", remote.StatusCode)
	}
}

func TestCompleteEmptyChoicesIsSoftSuccess(t *testing.T) {
	srv := completionServer(t, http.StatusOK,
		`{"id":"cmpl-2","object":"chat.completion","choices":[]}`, nil)
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	out, err := c.Complete(context.Background(), CompletionRequest{
		APIKey: "sk-or-test",
		Model:  "openai/gpt-oss-120b",
	})
	if err != nil {
		t.Fatalf("expected soft success, got error: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty content, got %q", out)
	}
}
