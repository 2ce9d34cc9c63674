// Package testutil provides common test utilities and helpers for chatrelay tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mosaaedak/chatrelay/internal/api"
	"github.com/mosaaedak/chatrelay/internal/auth"
	"github.com/mosaaedak/chatrelay/internal/carrier"
	"github.com/mosaaedak/chatrelay/internal/genai"
	"github.com/mosaaedak/chatrelay/internal/models"
	"github.com/mosaaedak/chatrelay/internal/relay"
	"github.com/mosaaedak/chatrelay/internal/store"
)

// ScriptedCompletion is a CompletionProvider returning a fixed reply or
// error, recording every request it sees.
type ScriptedCompletion struct {
	Reply string
	Err   error
	Calls []genai.CompletionRequest
}

// Complete implements relay.CompletionProvider.
func (f *ScriptedCompletion) Complete(ctx context.Context, req genai.CompletionRequest) (string, error) {
	f.Calls = append(f.Calls, req)
	return f.Reply, f.Err
}

// TestServer bundles an API server with its in-memory dependencies so
// tests can drive HTTP requests and assert on state directly.
type TestServer struct {
	Server     *api.Server
	Store      *store.InMemoryStore
	Carrier    *carrier.MockClient
	Completion *ScriptedCompletion
}

// NewTestServer creates a test API server with in-memory dependencies.
// This centralizes the test server creation logic used across multiple test files.
func NewTestServer(opts ...api.Option) *TestServer {
	st := store.NewInMemoryStore()
	completion := &ScriptedCompletion{Reply: "ok"}
	mock := carrier.NewMockClient()
	factory := func(accountSID, authToken string) carrier.Sender { return mock }
	rl := relay.NewRelay(st, completion, factory)

	cfg := append([]api.Option{api.WithJWTSecret("test-secret")}, opts...)
	return &TestServer{
		Server:     api.NewServer(st, rl, cfg...),
		Store:      st,
		Carrier:    mock,
		Completion: completion,
	}
}

// StrPtr returns a pointer to s for building partial settings updates.
func StrPtr(s string) *string { return &s }

// ConfigureSettings fills the settings record with complete test
// credentials.
func (ts *TestServer) ConfigureSettings(t *testing.T) {
	t.Helper()
	err := ts.Store.UpdateSettings(models.SettingsUpdate{
		APIKey:            StrPtr("sk-or-v1-0123456789abcdef"),
		SystemPrompt:      StrPtr("you are a helper"),
		TwilioAccountSID:  StrPtr("AC123"),
		TwilioAuthToken:   StrPtr("tok456"),
		TwilioPhoneNumber: StrPtr("+14155238886"),
		SupportAgentPhone: StrPtr("+15550001111"),
	})
	if err != nil {
		t.Fatalf("failed to configure settings: %v", err)
	}
}

// SeedAdmin inserts an admin account with the given credentials and
// returns a valid bearer token for it.
func (ts *TestServer) SeedAdmin(t *testing.T, username, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := ts.Store.AddUser(username, hash)
	token, err := auth.NewTokenManager("test-secret", 0).Issue(*user)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// MustDecodeJSON decodes a recorded response body into target and fails
// the test on error.
func MustDecodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
}

// CreateFormRequest creates a form-encoded POST request the way the
// carrier webhook delivers messages.
func CreateFormRequest(t *testing.T, target string, form url.Values) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("failed to create form request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
