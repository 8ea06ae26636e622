package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/syncovids/backend/internal/auth"
	"github.com/syncovids/backend/internal/identity"
	"github.com/syncovids/backend/internal/models"
)

type fakeIdentity struct {
	signUpErr  error
	signInErr  error
	refreshErr error

	signedOut []string
}

func (f *fakeIdentity) SignUp(_ context.Context, email, _, displayName string) (*models.Account, models.SessionTokens, error) {
	if f.signUpErr != nil {
		return nil, models.SessionTokens{}, f.signUpErr
	}
	return &models.Account{ID: "u1", Email: email, DisplayName: displayName}, testTokens(), nil
}

func (f *fakeIdentity) SignIn(_ context.Context, email, _ string) (*models.Account, models.SessionTokens, error) {
	if f.signInErr != nil {
		return nil, models.SessionTokens{}, f.signInErr
	}
	return &models.Account{ID: "u1", Email: email, DisplayName: "ada"}, testTokens(), nil
}

func (f *fakeIdentity) SignOut(_ context.Context, refreshToken string) {
	f.signedOut = append(f.signedOut, refreshToken)
}

func (f *fakeIdentity) Refresh(_ context.Context, _ string) (models.SessionTokens, error) {
	if f.refreshErr != nil {
		return models.SessionTokens{}, f.refreshErr
	}
	return testTokens(), nil
}

func (f *fakeIdentity) Account(_ context.Context, id string) (*models.Account, error) {
	return &models.Account{ID: id, Email: "ada@example.com", DisplayName: "ada"}, nil
}

func testTokens() models.SessionTokens {
	return models.SessionTokens{
		AccessToken:      "access",
		AccessExpiresAt:  time.Now().Add(time.Minute),
		RefreshToken:     "refresh",
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestSignUpCreated(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup",
		strings.NewReader(`{"email":"Ada@Example.com","password":"hunter22","username":"ada"}`))
	rec := httptest.NewRecorder()
	handler.SignUp(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user object, got %v", body)
	}
	if user["email"] != "ada@example.com" {
		t.Fatalf("expected normalized email, got %v", user["email"])
	}
	if _, ok := body["tokens"]; !ok {
		t.Fatal("expected tokens in response")
	}
}

func TestSignUpValidationMessages(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{}}

	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad email", `{"email":"nope","password":"hunter22","username":"ada"}`, "Please enter a valid email address."},
		{"short password", `{"email":"a@b.com","password":"123","username":"ada"}`, "Password must be at least 6 characters."},
		{"short username", `{"email":"a@b.com","password":"hunter22","username":"ab"}`, "Username must be at least 3 characters."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.SignUp(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if got := decodeBody(t, rec)["error"]; got != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, got)
			}
		})
	}
}

func TestSignUpDuplicateEmailConflict(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{signUpErr: identity.ErrEmailInUse}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup",
		strings.NewReader(`{"email":"a@b.com","password":"hunter22","username":"ada"}`))
	rec := httptest.NewRecorder()
	handler.SignUp(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "An account with this email already exists." {
		t.Fatalf("unexpected message %v", got)
	}
}

func TestSignUpMalformedBody(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	handler.SignUp(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSignUpMethodNotAllowed(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/signup", nil)
	rec := httptest.NewRecorder()
	handler.SignUp(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestLoginOK(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"a@b.com","password":"hunter22"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejected(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{signInErr: identity.ErrInvalidCredentials}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"a@b.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Incorrect email or password." {
		t.Fatalf("unexpected message %v", got)
	}
}

func TestLoginMissingFields(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"a@b.com"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRefreshOK(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh",
		strings.NewReader(`{"refreshToken":"refresh"}`))
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := decodeBody(t, rec)["tokens"]; !ok {
		t.Fatal("expected tokens in response")
	}
}

func TestRefreshExpiredUnauthorized(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{refreshErr: auth.ErrRefreshTokenExpired}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh",
		strings.NewReader(`{"refreshToken":"stale"}`))
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefreshMissingToken(t *testing.T) {
	handler := AuthHandler{Identity: &fakeIdentity{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogoutRevokes(t *testing.T) {
	fake := &fakeIdentity{}
	handler := AuthHandler{Identity: fake}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout",
		strings.NewReader(`{"refreshToken":"refresh"}`))
	rec := httptest.NewRecorder()
	handler.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(fake.signedOut) != 1 || fake.signedOut[0] != "refresh" {
		t.Fatalf("expected sign-out with the token, got %v", fake.signedOut)
	}
}
