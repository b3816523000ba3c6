package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testAppAuth(t *testing.T) *AppAuth {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	auth, err := NewAppAuth(12345, pemKey)
	if err != nil {
		t.Fatalf("NewAppAuth() failed: %v", err)
	}
	return auth
}

func TestNewAppAuth_InvalidKey(t *testing.T) {
	if _, err := NewAppAuth(12345, []byte("not a pem key")); err == nil {
		t.Error("NewAppAuth() with garbage input should fail")
	}
}

func TestAppAuth_JWT(t *testing.T) {
	auth := testAppAuth(t)

	jwt, err := auth.JWT(time.Now())
	if err != nil {
		t.Fatalf("JWT() failed: %v", err)
	}

	parts := strings.Split(jwt, ".")
	if len(parts) != 3 {
		t.Fatalf("JWT has %d segments, want 3", len(parts))
	}
	for i, part := range parts {
		if part == "" {
			t.Errorf("JWT segment %d is empty", i)
		}
	}
}

func TestInstallationTokenSource_CachesTokens(t *testing.T) {
	var mints atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/app/installations/42/access_tokens" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		n := mints.Add(1)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token": "ghs_token%d", "expires_at": %q}`,
			n, time.Now().Add(1*time.Hour).Format(time.RFC3339))
	}))
	defer server.Close()

	source := NewInstallationTokenSource(testAppAuth(t), server.URL, nil, zap.NewNop())
	ctx := context.Background()

	first, err := source.Token(ctx, 42)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	if first != "ghs_token1" {
		t.Errorf("Token() = %s, want ghs_token1", first)
	}

	// Second call must come from the cache
	second, err := source.Token(ctx, 42)
	if err != nil {
		t.Fatalf("second Token() failed: %v", err)
	}
	if second != first {
		t.Errorf("second Token() = %s, want cached %s", second, first)
	}
	if got := mints.Load(); got != 1 {
		t.Errorf("minted %d tokens, want 1", got)
	}
}

func TestInstallationTokenSource_RefreshesNearExpiry(t *testing.T) {
	var mints atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := mints.Add(1)
		w.WriteHeader(http.StatusCreated)
		// Expires inside the refresh buffer, so every call mints anew
		fmt.Fprintf(w, `{"token": "ghs_token%d", "expires_at": %q}`,
			n, time.Now().Add(1*time.Minute).Format(time.RFC3339))
	}))
	defer server.Close()

	source := NewInstallationTokenSource(testAppAuth(t), server.URL, nil, zap.NewNop())
	ctx := context.Background()

	if _, err := source.Token(ctx, 42); err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	if _, err := source.Token(ctx, 42); err != nil {
		t.Fatalf("second Token() failed: %v", err)
	}

	if got := mints.Load(); got != 2 {
		t.Errorf("minted %d tokens, want 2 (token near expiry must be refreshed)", got)
	}
}

func TestInstallationTokenSource_PerInstallation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token": "token-for%s", "expires_at": %q}`,
			strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/app/installations"), "/access_tokens"),
			time.Now().Add(1*time.Hour).Format(time.RFC3339))
	}))
	defer server.Close()

	source := NewInstallationTokenSource(testAppAuth(t), server.URL, nil, zap.NewNop())
	ctx := context.Background()

	a, err := source.Token(ctx, 1)
	if err != nil {
		t.Fatalf("Token(1) failed: %v", err)
	}
	b, err := source.Token(ctx, 2)
	if err != nil {
		t.Fatalf("Token(2) failed: %v", err)
	}

	if a == b {
		t.Errorf("installations share a token: %s", a)
	}
}

func TestInstallationTokenSource_Concurrent(t *testing.T) {
	var mints atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mints.Add(1)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token": "ghs_shared", "expires_at": %q}`,
			time.Now().Add(1*time.Hour).Format(time.RFC3339))
	}))
	defer server.Close()

	source := NewInstallationTokenSource(testAppAuth(t), server.URL, nil, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := source.Token(ctx, 42); err != nil {
				t.Errorf("concurrent Token() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// The double-check under the write lock keeps concurrent callers from
	// each minting their own token
	if got := mints.Load(); got != 1 {
		t.Errorf("minted %d tokens under concurrency, want 1", got)
	}
}

func TestInstallationTokenSource_MintFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}))
	defer server.Close()

	source := NewInstallationTokenSource(testAppAuth(t), server.URL, nil, zap.NewNop())

	if _, err := source.Token(context.Background(), 42); err == nil {
		t.Error("Token() with failing mint endpoint should fail")
	}
}
