package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chepyr/go-todo-tree/internal/auth"
	"github.com/chepyr/go-todo-tree/internal/models"
)

func TestRegister(t *testing.T) {
	env := setupHTTP(t)
	newUser(t, env, "taken@example.com")
	longPassword := strings.Repeat("p", 80)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Success",
			body:           `{"name":"Ada","email":"ada@example.com","password":"secret","c_password":"secret"}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `"message":"Please check your email for verification link."`,
		},
		{
			name:           "Invalid JSON",
			body:           `{"email": "test@example.com", "password": }`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"message":"Bad JSON"`,
		},
		{
			name:           "Invalid email",
			body:           `{"name":"A","email":"invalid","password":"secret","c_password":"secret"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"email":["The email must be a valid email address."]`,
		},
		{
			name:           "Email taken",
			body:           `{"name":"A","email":"taken@example.com","password":"secret","c_password":"secret"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"email":["The email has already been taken."]`,
		},
		{
			name:           "Password too short",
			body:           `{"name":"A","email":"short@example.com","password":"abc","c_password":"abc"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"password":["The password must be at least 4 characters."]`,
		},
		{
			name:           "Password longer than bcrypt allows",
			body:           `{"name":"A","email":"long@example.com","password":"` + longPassword + `","c_password":"` + longPassword + `"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"password":["The password may not be greater than 72 characters."]`,
		},
		{
			name:           "Confirmation mismatch",
			body:           `{"name":"A","email":"mismatch@example.com","password":"secret","c_password":"other"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"c_password":["The c password and password must match."]`,
		},
		{
			name:           "Wrong types",
			body:           `{"name":1,"email":"n@example.com","password":"secret","c_password":"secret"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"name":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/register", "", tt.body)
			if rec.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d body=%s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("Expected body to contain %q, got %q", tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestRegister_TokenWorks(t *testing.T) {
	env := setupHTTP(t)
	rec := env.do(t, http.MethodPost, "/api/register", "",
		`{"name":"Ada","email":"ada@example.com","password":"secret","c_password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	}](t, rec)
	if resp.Name != "Ada" || resp.Token == "" {
		t.Fatalf("response = %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/user", "Bearer "+resp.Token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/user status=%d", rec.Code)
	}
	user := decode[models.User](t, rec)
	if user.Email != "ada@example.com" {
		t.Errorf("user = %+v", user)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("password hash leaked into response")
	}
}

func TestLogin(t *testing.T) {
	env := setupHTTP(t)
	newUser(t, env, "test@example.com")

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{"Success", `{"email":"test@example.com","password":"secret"}`, http.StatusOK, `"token":"`},
		{"Wrong password", `{"email":"test@example.com","password":"nope"}`, http.StatusUnauthorized, `{"message":"Invalid credentials"}`},
		{"Unknown email", `{"email":"ghost@example.com","password":"secret"}`, http.StatusUnauthorized, `{"message":"Invalid credentials"}`},
		{"Invalid JSON", `{"email":`, http.StatusBadRequest, `"message":"Bad JSON"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/login", "", tt.body)
			if rec.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d body=%s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("Expected body to contain %q, got %q", tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := setupHTTP(t)
	env.h.RateLimiter = NewRateLimiter(2, time.Minute)
	defer env.h.RateLimiter.Stop()

	for i, want := range []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests} {
		rec := env.do(t, http.MethodPost, "/api/login", "", `{"email":"ghost@example.com","password":"x"}`)
		if rec.Code != want {
			t.Fatalf("attempt %d: status=%d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestLogout(t *testing.T) {
	env := setupHTTP(t)
	_, authz := newUser(t, env, "out@example.com")

	if rec := env.do(t, http.MethodPost, "/api/logout", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("logout without token: status=%d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/logout", authz, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Successfully logged out") {
		t.Fatalf("logout status=%d body=%s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodGet, "/api/tasks", authz, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked token: status=%d, want 401", rec.Code)
	}
}

func TestVerifyEmail(t *testing.T) {
	env := setupHTTP(t)
	userID, _ := newUser(t, env, "verify@example.com")
	good := "/api/email/verify/" + userID.String() + "/" + auth.VerificationHash("verify@example.com")

	steps := []struct {
		path        string
		wantStatus  int
		wantMessage string
	}{
		{"/api/email/verify/" + userID.String() + "/deadbeef", http.StatusBadRequest, "Invalid verification link"},
		{good, http.StatusOK, "Email verified successfully"},
		{good, http.StatusOK, "Email already verified"},
	}
	for _, step := range steps {
		rec := env.do(t, http.MethodGet, step.path, "", "")
		if rec.Code != step.wantStatus {
			t.Fatalf("GET %s: status=%d body=%s", step.path, rec.Code, rec.Body.String())
		}
		if body := decode[errorBody](t, rec); body.Message != step.wantMessage {
			t.Errorf("GET %s: message=%q, want %q", step.path, body.Message, step.wantMessage)
		}
	}
}

func TestResendVerification(t *testing.T) {
	env := setupHTTP(t)
	userID, _ := newUser(t, env, "resend@example.com")

	rec := env.do(t, http.MethodPost, "/api/email/resend", "", `{"email":"ghost@example.com"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown email: status=%d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/email/resend", "", `{"email":"resend@example.com"}`)
	if body := decode[errorBody](t, rec); rec.Code != http.StatusOK || body.Message != "Verification link sent." {
		t.Fatalf("resend: status=%d body=%s", rec.Code, rec.Body.String())
	}

	if _, err := env.h.Auth.VerifyEmail(context.Background(), userID.String(), auth.VerificationHash("resend@example.com")); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	rec = env.do(t, http.MethodPost, "/api/email/resend", "", `{"email":"resend@example.com"}`)
	if body := decode[errorBody](t, rec); body.Message != "Email already verified." {
		t.Errorf("message = %q", body.Message)
	}
}
