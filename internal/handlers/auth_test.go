package handlers

import (
	"net/http"
	"testing"

	"pledgr/internal/payment"
)

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, payment.NewSandbox())

	status, out := s.do(t, http.MethodPost, "/auth/register", 0, map[string]string{
		"name":     "Ada Lovelace",
		"email":    "Ada@Example.com",
		"password": testPassword,
	})
	expectHTTP200(t, status)
	if token, _ := out["token"].(string); token == "" {
		t.Fatalf("expected non-empty token")
	}
	user, _ := out["user"].(map[string]any)
	if user["email"] != "ada@example.com" {
		t.Fatalf("expected lower-cased email, got %v", user["email"])
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatalf("password hash must not be serialized")
	}

	status, out = s.do(t, http.MethodPost, "/auth/register", 0, map[string]string{
		"name":     "Someone Else",
		"email":    "ada@example.com",
		"password": testPassword,
	})
	mustStatus(t, status, http.StatusConflict)
	expectCode(t, out, "conflict")

	status, out = s.do(t, http.MethodPost, "/auth/login", 0, map[string]string{
		"email":    "ada@example.com",
		"password": testPassword,
	})
	expectHTTP200(t, status)
	if token, _ := out["token"].(string); token == "" {
		t.Fatalf("expected non-empty token")
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	s := newTestServer(t, payment.NewSandbox())
	s.registerUser(t, "Ada Lovelace", "ada@example.com")

	status, wrongPassword := s.do(t, http.MethodPost, "/auth/login", 0, map[string]string{
		"email":    "ada@example.com",
		"password": "Wrong1234",
	})
	mustStatus(t, status, http.StatusUnauthorized)

	status, unknownEmail := s.do(t, http.MethodPost, "/auth/login", 0, map[string]string{
		"email":    "nobody@example.com",
		"password": "Wrong1234",
	})
	mustStatus(t, status, http.StatusUnauthorized)

	if wrongPassword["error"] != unknownEmail["error"] || wrongPassword["code"] != unknownEmail["code"] {
		t.Fatalf("responses differ: %v vs %v", wrongPassword, unknownEmail)
	}
	expectCode(t, unknownEmail, "authentication_error")
}

func TestRegisterRejectsBadInput(t *testing.T) {
	s := newTestServer(t, payment.NewSandbox())

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{"email":`},
		{"missing password", map[string]string{"name": "Ada", "email": "ada@example.com"}},
		{"bad email", map[string]string{"name": "Ada", "email": "not-an-email", "password": testPassword}},
		{"weak password", map[string]string{"name": "Ada", "email": "ada@example.com", "password": "short"}},
		{"short name", map[string]string{"name": "A", "email": "ada@example.com", "password": testPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := s.do(t, http.MethodPost, "/auth/register", 0, tt.body)
			mustStatus(t, status, http.StatusBadRequest)
			expectCode(t, out, "validation_error")
		})
	}
}

func TestMeAndUpdateProfile(t *testing.T) {
	s := newTestServer(t, payment.NewSandbox())
	userID := s.registerUser(t, "Ada Lovelace", "ada@example.com")

	status, out := s.do(t, http.MethodGet, "/auth/me", 0, nil)
	mustStatus(t, status, http.StatusUnauthorized)
	expectCode(t, out, "authentication_error")

	status, out = s.do(t, http.MethodGet, "/auth/me", userID, nil)
	expectHTTP200(t, status)
	if user, _ := out["user"].(map[string]any); user["name"] != "Ada Lovelace" {
		t.Fatalf("unexpected user %v", out)
	}

	status, out = s.do(t, http.MethodPut, "/auth/profile", userID, map[string]any{
		"website": "not a url",
	})
	mustStatus(t, status, http.StatusBadRequest)
	expectCode(t, out, "validation_error")

	status, out = s.do(t, http.MethodPut, "/auth/profile", userID, map[string]any{
		"bio":     "Analyst",
		"website": "https://ada.example.com",
		"social":  map[string]string{"twitter": "@ada"},
	})
	expectHTTP200(t, status)
	user, _ := out["user"].(map[string]any)
	if user["name"] != "Ada Lovelace" || user["bio"] != "Analyst" || user["social_twitter"] != "@ada" {
		t.Fatalf("profile not updated: %v", user)
	}
}
