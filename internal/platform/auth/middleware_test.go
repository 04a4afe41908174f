package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func testVerifier() *Verifier {
	return NewVerifier(context.Background(), JWTConfig{SigningKey: testSigningKey})
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, req *http.Request, path string) (Actor, bool, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)

	var got Actor
	var called bool
	h := mw(func(c echo.Context) error {
		called = true
		got, _ = ActorFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})
	err := h(c)
	return got, called, err
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/refill-requests/patient", nil)
	_, called, err := runMiddleware(t, JWTMiddleware(testVerifier()), req, "/api/v1/refill-requests/patient")
	assertStatus(t, err, http.StatusUnauthorized)
	if called {
		t.Error("handler should not be called")
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			_, _, err := runMiddleware(t, JWTMiddleware(testVerifier()), req, "/")
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	uid := uuid.New()
	tokenStr := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: "pharmacy",
	}, testSigningKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	actor, called, err := runMiddleware(t, JWTMiddleware(testVerifier()), req, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	if actor.UserID != uid || actor.Role != RolePharmacy {
		t.Errorf("unexpected actor %+v", actor)
	}
}

func TestJWTMiddleware_RejectsBadClaims(t *testing.T) {
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tests := []struct {
		name   string
		claims Claims
		key    []byte
	}{
		{"expired", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}, Role: "patient"}, testSigningKey},
		{"no expiry", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()}, Role: "patient"}, testSigningKey},
		{"non-uuid subject", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123", ExpiresAt: exp}, Role: "patient"}, testSigningKey},
		{"unknown role", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), ExpiresAt: exp}, Role: "doctor"}, testSigningKey},
		{"wrong key", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), ExpiresAt: exp}, Role: "patient"}, []byte("another-key-entirely-not-the-test-one")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+createTestToken(t, tt.claims, tt.key))
			_, called, err := runMiddleware(t, JWTMiddleware(testVerifier()), req, "/")
			assertStatus(t, err, http.StatusUnauthorized)
			if called {
				t.Error("handler should not be called")
			}
		})
	}
}

func TestJWTMiddleware_IssuerMismatch(t *testing.T) {
	v := NewVerifier(context.Background(), JWTConfig{SigningKey: testSigningKey, Issuer: "https://id.rxhub.example"})
	token, err := IssueToken(testSigningKey, "https://evil.example", "", uuid.New(), RolePatient, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	_, _, err = runMiddleware(t, JWTMiddleware(v), req, "/")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestIssueToken_RoundTrip(t *testing.T) {
	uid := uuid.New()
	token, err := IssueToken(testSigningKey, "rx", "pharmacy-api", uid, RolePatient, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	v := NewVerifier(context.Background(), JWTConfig{SigningKey: testSigningKey, Issuer: "rx", Audience: "pharmacy-api"})
	actor, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if actor.UserID != uid || !actor.IsPatient() {
		t.Errorf("unexpected actor %+v", actor)
	}

	if _, err := IssueToken(nil, "", "", uid, RolePatient, time.Hour); err == nil {
		t.Error("expected error without signing key")
	}
	if _, err := IssueToken(testSigningKey, "", "", uid, Role("nurse"), time.Hour); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	_, called, err := runMiddleware(t, JWTMiddleware(testVerifier()), req, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called for public path")
	}
}

func TestDevAuthMiddleware_Headers(t *testing.T) {
	uid := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, uid.String())
	req.Header.Set(HeaderRole, "Patient")

	actor, called, err := runMiddleware(t, DevAuthMiddleware(testVerifier()), req, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	if actor.UserID != uid || actor.Role != RolePatient {
		t.Errorf("unexpected actor %+v", actor)
	}
}

func TestDevAuthMiddleware_MissingHeaders(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		role   string
	}{
		{"nothing", "", ""},
		{"bad user id", "abc", "patient"},
		{"bad role", uuid.NewString(), "doctor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.userID != "" {
				req.Header.Set(HeaderUserID, tt.userID)
			}
			if tt.role != "" {
				req.Header.Set(HeaderRole, tt.role)
			}
			_, _, err := runMiddleware(t, DevAuthMiddleware(testVerifier()), req, "/")
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestDevAuthMiddleware_TokenStillVerified(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	req.Header.Set(HeaderUserID, uuid.NewString())
	req.Header.Set(HeaderRole, "patient")

	_, called, err := runMiddleware(t, DevAuthMiddleware(testVerifier()), req, "/")
	assertStatus(t, err, http.StatusUnauthorized)
	if called {
		t.Error("handler should not be called with a bad token")
	}
}

func TestMustActor(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := MustActor(c)
	assertStatus(t, err, http.StatusUnauthorized)

	want := Actor{UserID: uuid.New(), Role: RolePharmacy}
	c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), want)))
	got, err := MustActor(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
