package github

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tokenExpiryBuffer is subtracted from a token's lifetime so a token close
// to expiry is refreshed before GitHub starts rejecting it.
const tokenExpiryBuffer = 5 * time.Minute

// TokenSource provides installation access tokens for API calls.
type TokenSource interface {
	// Token returns a valid access token for the given installation.
	Token(ctx context.Context, installationID int64) (string, error)
}

// AppAuth signs short-lived JWTs as a GitHub App using its RSA private key.
type AppAuth struct {
	appID int64
	key   *rsa.PrivateKey
}

// NewAppAuth parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8) and
// returns an AppAuth for the given App ID.
func NewAppAuth(appID int64, pemKey []byte) (*AppAuth, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsed, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA, got %T", parsed)
		}
		key = rsaKey
	}

	return &AppAuth{appID: appID, key: key}, nil
}

// JWT returns a signed RS256 token identifying the App. GitHub caps the
// expiry claim at 10 minutes; the issued-at claim is backdated 60 seconds
// to tolerate clock drift.
func (a *AppAuth) JWT(now time.Time) (string, error) {
	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	claims := map[string]interface{}{
		"iat": now.Add(-60 * time.Second).Unix(),
		"exp": now.Add(9 * time.Minute).Unix(),
		"iss": a.appID,
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal jwt header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal jwt claims: %w", err)
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, a.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign jwt: %w", err)
	}

	return signingInput + "." + enc.EncodeToString(signature), nil
}

// StaticTokenSource returns the same token for every installation. Intended
// for local development with a personal access token.
type StaticTokenSource string

// Token returns the static token.
func (s StaticTokenSource) Token(ctx context.Context, installationID int64) (string, error) {
	return string(s), nil
}

// cachedToken is an installation token with its expiry.
type cachedToken struct {
	token     string
	expiresAt time.Time
}

// expired reports whether the token is past, or within the buffer of, its
// expiry.
func (t cachedToken) expired(now time.Time) bool {
	return !now.Add(tokenExpiryBuffer).Before(t.expiresAt)
}

// InstallationTokenSource mints and caches installation access tokens.
// Tokens are cached per installation and refreshed shortly before expiry.
type InstallationTokenSource struct {
	auth    *AppAuth
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[int64]cachedToken
}

// NewInstallationTokenSource creates a token source for the given App.
func NewInstallationTokenSource(auth *AppAuth, baseURL string, httpClient *http.Client, logger *zap.Logger) *InstallationTokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &InstallationTokenSource{
		auth:    auth,
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger,
		cache:   make(map[int64]cachedToken),
	}
}

// Token returns a valid access token for the installation, minting a new one
// if none is cached or the cached one is near expiry.
func (s *InstallationTokenSource) Token(ctx context.Context, installationID int64) (string, error) {
	now := time.Now()

	s.mu.RLock()
	cached, ok := s.cache[installationID]
	s.mu.RUnlock()
	if ok && !cached.expired(now) {
		return cached.token, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock
	if cached, ok := s.cache[installationID]; ok && !cached.expired(now) {
		return cached.token, nil
	}

	token, err := s.mintToken(ctx, installationID)
	if err != nil {
		return "", err
	}

	s.cache[installationID] = token
	return token.token, nil
}

// mintToken exchanges an App JWT for an installation access token.
func (s *InstallationTokenSource) mintToken(ctx context.Context, installationID int64) (cachedToken, error) {
	jwt, err := s.auth.JWT(time.Now())
	if err != nil {
		return cachedToken{}, fmt.Errorf("failed to create app jwt: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return cachedToken{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwt)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.http.Do(req)
	if err != nil {
		return cachedToken{}, fmt.Errorf("failed to request installation token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cachedToken{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return cachedToken{}, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var payload struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return cachedToken{}, fmt.Errorf("failed to decode token response: %w", err)
	}

	expiresAt := payload.ExpiresAt
	if expiresAt.IsZero() {
		// GitHub installation tokens default to a one hour lifetime
		expiresAt = time.Now().Add(1 * time.Hour)
	}

	s.logger.Info("Created installation token",
		zap.Int64("installation_id", installationID),
		zap.Time("expires_at", expiresAt),
	)

	return cachedToken{token: payload.Token, expiresAt: expiresAt}, nil
}
