package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func okHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"user_id":  UserIDFromContext(c.Request().Context()),
		"username": UsernameFromContext(c.Request().Context()),
		"role":     RoleFromContext(c.Request().Context()),
	})
}

func serve(t *testing.T, mw echo.MiddlewareFunc, headers map[string]string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(okHandler)(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	iss := NewTokenIssuer(testSigningKey, time.Hour)
	tok, exp, err := iss.Issue("u-1", "alice", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expected future expiry, got %v", exp)
	}

	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u-1" || claims.Username != "alice" || claims.Role != RoleAdmin {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	iss := NewTokenIssuer(testSigningKey, time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _, err := iss.Issue("u-1", "alice", RoleOperator)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	iss.now = time.Now
	if _, err := iss.Parse(tok); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestTokenIssuer_WrongKey(t *testing.T) {
	tok, _, _ := NewTokenIssuer([]byte("other-key"), time.Hour).Issue("u-1", "alice", RoleAdmin)
	if _, err := NewTokenIssuer(testSigningKey, time.Hour).Parse(tok); err == nil {
		t.Error("expected token signed with another key to be rejected")
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := serve(t, JWTMiddleware(JWTConfig{Issuer: NewTokenIssuer(testSigningKey, time.Hour)}), nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{Issuer: NewTokenIssuer(testSigningKey, time.Hour)})
	for _, h := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		_, err := serve(t, mw, map[string]string{"Authorization": h})
		expectStatus(t, err, http.StatusUnauthorized)
	}
}

func TestJWTMiddleware_Bearer(t *testing.T) {
	iss := NewTokenIssuer(testSigningKey, time.Hour)
	tok, _, _ := iss.Issue("u-42", "bob", RoleOperator)

	rec, err := serve(t, JWTMiddleware(JWTConfig{Issuer: iss}), map[string]string{"Authorization": "Bearer " + tok})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`"user_id":"u-42"`, `"username":"bob"`, `"role":"Operator"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %s, got %s", want, body)
		}
	}
}

func TestJWTMiddleware_LegacyHeader(t *testing.T) {
	iss := NewTokenIssuer(testSigningKey, time.Hour)
	tok, _, _ := iss.Issue("u-7", "carol", RoleAdmin)

	rec, err := serve(t, JWTMiddleware(JWTConfig{Issuer: iss}), map[string]string{LegacyTokenHeader: tok})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{
		Issuer:  NewTokenIssuer(testSigningKey, time.Hour),
		Skipper: func(echo.Context) bool { return true },
	})
	if _, err := serve(t, mw, nil); err != nil {
		t.Errorf("expected skipped request to pass, got %v", err)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	iss := NewTokenIssuer(testSigningKey, time.Hour)
	mw := DevAuthMiddleware(JWTConfig{Issuer: iss})

	rec, err := serve(t, mw, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"role":"Admin"`) {
		t.Errorf("expected dev admin identity, got %s", rec.Body.String())
	}

	_, err = serve(t, mw, map[string]string{"Authorization": "Bearer garbage"})
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") || !IsPublicPath("/api/v1/auth/login") {
		t.Error("expected health and login to be public")
	}
	if IsPublicPath("/api/v1/rooms") {
		t.Error("expected rooms to require auth")
	}
}
