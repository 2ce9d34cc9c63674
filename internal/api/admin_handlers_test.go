package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mosaaedak/chatrelay/internal/models"
	"github.com/mosaaedak/chatrelay/internal/testutil"
)

func authedRequest(t *testing.T, token, method, url string, body interface{}) *http.Request {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, method, url, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestLoginIssuesToken(t *testing.T) {
	ts := testutil.NewTestServer()
	ts.SeedAdmin(t, "admin", "admin123")

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/login", models.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "login")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result := resp["result"].(map[string]interface{})
	if token, _ := result["token"].(string); token == "" {
		t.Error("login response missing token")
	}
	if result["username"] != "admin" {
		t.Errorf("unexpected username %v", result["username"])
	}
}

func TestLoginWrongPasswordRejected(t *testing.T) {
	ts := testutil.NewTestServer()
	ts.SeedAdmin(t, "admin", "admin123")

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/login", models.LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "wrong password")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestAdminRoutesRequireBearerToken(t *testing.T) {
	ts := testutil.NewTestServer()

	for _, target := range []string{"/api/settings", "/api/stats", "/api/auth/me"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rr := httptest.NewRecorder()
		ts.Server.Handler().ServeHTTP(rr, req)
		testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, target)
	}
}

func TestMeReturnsIdentity(t *testing.T) {
	ts := testutil.NewTestServer()
	token := ts.SeedAdmin(t, "admin", "admin123")

	req := authedRequest(t, token, http.MethodGet, "/api/auth/me", nil)
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "me")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result := resp["result"].(map[string]interface{})
	if result["username"] != "admin" {
		t.Errorf("unexpected identity %v", result)
	}
}

func TestSettingsGetMasksSecrets(t *testing.T) {
	ts := testutil.NewTestServer()
	ts.ConfigureSettings(t)
	token := ts.SeedAdmin(t, "admin", "admin123")

	req := authedRequest(t, token, http.MethodGet, "/api/settings", nil)
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "settings get")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result := resp["result"].(map[string]interface{})

	// Configured key is "sk-or-v1-0123456789abcdef": first 8 and last 4
	// characters stay visible.
	if result["api_key"] != "sk-or-v1"+models.MaskedSecret+"cdef" {
		t.Errorf("api key not masked as expected: %v", result["api_key"])
	}
	if result["twilio_auth_token"] != models.MaskedSecret {
		t.Errorf("auth token leaked: %v", result["twilio_auth_token"])
	}
	if result["has_twilio_auth_token"] != true {
		t.Error("expected has_twilio_auth_token to be true")
	}
}

func TestSettingsUpdateIgnoresMaskedToken(t *testing.T) {
	ts := testutil.NewTestServer()
	ts.ConfigureSettings(t)
	token := ts.SeedAdmin(t, "admin", "admin123")

	req := authedRequest(t, token, http.MethodPut, "/api/settings", models.SettingsUpdate{
		ModelName:       testutil.StrPtr("openai/gpt-4o-mini"),
		TwilioAuthToken: testutil.StrPtr(models.MaskedSecret),
	})
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "settings put")

	settings, _ := ts.Store.GetSettings()
	if settings.ModelName != "openai/gpt-4o-mini" {
		t.Errorf("model not updated: %q", settings.ModelName)
	}
	if settings.TwilioAuthToken != "tok456" {
		t.Errorf("masked placeholder overwrote the stored token: %q", settings.TwilioAuthToken)
	}
}

func TestChangePasswordRotatesCredential(t *testing.T) {
	ts := testutil.NewTestServer()
	token := ts.SeedAdmin(t, "admin", "admin123")

	req := authedRequest(t, token, http.MethodPost, "/api/auth/change-password", models.ChangePasswordRequest{
		CurrentPassword: "admin123",
		NewPassword:     "s3cure-pass",
	})
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "change password")

	// Old credential stops working, new one logs in.
	login := func(password string) int {
		req := testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/login", models.LoginRequest{
			Username: "admin",
			Password: password,
		})
		rr := httptest.NewRecorder()
		ts.Server.Handler().ServeHTTP(rr, req)
		return rr.Code
	}
	if code := login("admin123"); code != http.StatusUnauthorized {
		t.Errorf("old password still accepted: %d", code)
	}
	if code := login("s3cure-pass"); code != http.StatusOK {
		t.Errorf("new password rejected: %d", code)
	}
}

func TestChangePasswordWrongCurrentRejected(t *testing.T) {
	ts := testutil.NewTestServer()
	token := ts.SeedAdmin(t, "admin", "admin123")

	req := authedRequest(t, token, http.MethodPost, "/api/auth/change-password", models.ChangePasswordRequest{
		CurrentPassword: "nope",
		NewPassword:     "s3cure-pass",
	})
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "wrong current password")
}

func TestStatsReportsSessionsAndModel(t *testing.T) {
	ts := testutil.NewTestServer()
	ts.ConfigureSettings(t)
	token := ts.SeedAdmin(t, "admin", "admin123")
	ts.Store.UpsertSession("s1", []models.Message{{Role: models.RoleUser, Content: "hi"}})

	req := authedRequest(t, token, http.MethodGet, "/api/stats", nil)
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "stats")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result := resp["result"].(map[string]interface{})
	if result["active_sessions"].(float64) != 1 {
		t.Errorf("expected 1 active session, got %v", result["active_sessions"])
	}
	if result["has_api_key"] != true {
		t.Error("expected has_api_key true")
	}
	if result["model"] == "" {
		t.Error("expected a model name in stats")
	}
}
