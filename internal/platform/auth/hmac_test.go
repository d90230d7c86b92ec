package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func signRequest(t *testing.T, r *http.Request, secret, timestamp, nonce string, body []byte) {
	t.Helper()

	hash := sha256.Sum256(body)
	canonical := strings.Join([]string{
		strings.ToUpper(r.Method),
		r.URL.EscapedPath(),
		timestamp,
		nonce,
		hex.EncodeToString(hash[:]),
	}, "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))

	r.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	r.Header.Set("X-Signature-Timestamp", timestamp)
	r.Header.Set("X-Signature-Nonce", nonce)
}

func newValidator(now time.Time) *HMACValidator {
	return NewHMACValidator(
		StaticSecretProvider("topsecret"),
		NewInMemoryNonceStore(),
		WithHMACClock(func() time.Time { return now }),
	)
}

func TestRequireHMACAcceptsValidSignature(t *testing.T) {
	now := time.Now().UTC()
	validator := newValidator(now)

	called := false
	handler := validator.RequireHMAC("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		meta, ok := HMACMetadataFromContext(r.Context())
		if !ok {
			t.Error("expected hmac metadata on context")
		} else if meta.Nonce != "nonce-1" {
			t.Errorf("unexpected nonce %q", meta.Nonce)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	body := []byte(`{"force":false}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders", bytes.NewReader(body))
	signRequest(t, req, "topsecret", now.Format(time.RFC3339), "nonce-1", body)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected handler to be invoked")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRequireHMACRejectsBadSignature(t *testing.T) {
	now := time.Now().UTC()
	validator := newValidator(now)

	handler := validator.RequireHMAC("admin")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	body := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders", bytes.NewReader(body))
	signRequest(t, req, "wrongsecret", now.Format(time.RFC3339), "nonce-2", body)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireHMACRejectsReplayedNonce(t *testing.T) {
	now := time.Now().UTC()
	validator := newValidator(now)

	handler := validator.RequireHMAC("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	body := []byte(`{}`)
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders", bytes.NewReader(body))
		signRequest(t, req, "topsecret", now.Format(time.RFC3339), "nonce-3", body)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusNoContent {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	if rec := send(); rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed request should be rejected, got %d", rec.Code)
	}
}

func TestRequireHMACRejectsStaleTimestamp(t *testing.T) {
	now := time.Now().UTC()
	validator := newValidator(now)

	handler := validator.RequireHMAC("admin")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	body := []byte(`{}`)
	stale := now.Add(-time.Hour).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders", bytes.NewReader(body))
	signRequest(t, req, "topsecret", stale, "nonce-4", body)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInMemoryNonceStoreExpiresEntries(t *testing.T) {
	store := NewInMemoryNonceStore()

	stored, err := store.UseNonce(context.Background(), "admin", "n1", time.Now().Add(50*time.Millisecond))
	if err != nil || !stored {
		t.Fatalf("first use should store: stored=%v err=%v", stored, err)
	}

	stored, err = store.UseNonce(context.Background(), "admin", "n1", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored {
		t.Fatal("duplicate nonce should be rejected while live")
	}

	time.Sleep(60 * time.Millisecond)

	stored, err = store.UseNonce(context.Background(), "admin", "n1", time.Now().Add(time.Minute))
	if err != nil || !stored {
		t.Fatalf("expired nonce should be reusable: stored=%v err=%v", stored, err)
	}
}
