// Package auth exchanges the long-lived FCM service-account credential for
// short-lived OAuth2 bearer tokens accepted by the push gateway.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"

	scopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// assertionLifetime is the validity window encoded into every signed
	// assertion: exp = iat + 3600s.
	assertionLifetime = time.Hour
)

// ServiceAccount is the parsed FCM service-account key JSON.
type ServiceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// TokenSource mints bearer tokens for the push gateway by signing an RS256
// JWT assertion and exchanging it at the OAuth token endpoint. Tokens are
// not cached: each dispatch mints a fresh one.
type TokenSource struct {
	account    ServiceAccount
	signingKey *rsa.PrivateKey
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewTokenSource parses the raw service-account key JSON and its PEM-encoded
// RSA private key. Any parse failure is fatal; there is no degraded mode.
func NewTokenSource(rawKey []byte, logger *slog.Logger) (*TokenSource, error) {
	var account ServiceAccount
	if err := json.Unmarshal(rawKey, &account); err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, fmt.Errorf("service account key is missing client_email or private_key")
	}

	signingKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account private key: %w", err)
	}

	if account.TokenURI == "" {
		account.TokenURI = defaultTokenURL
	}

	return &TokenSource{
		account:    account,
		signingKey: signingKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With("component", "TokenSource"),
		now:        time.Now,
	}, nil
}

// ProjectID returns the Firebase project the credential belongs to.
func (s *TokenSource) ProjectID() string {
	return s.account.ProjectID
}

// Token signs a fresh assertion and exchanges it for an access token.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.account.ClientEmail,
		"scope": scopeCloudPlatform,
		"aud":   s.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {grantTypeJWTBearer},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		AccessToken      string `json:"access_token"`
		ExpiresIn        int    `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token exchange response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || body.AccessToken == "" {
		if body.Error != "" {
			return "", fmt.Errorf("token endpoint rejected assertion: %s: %s", body.Error, body.ErrorDescription)
		}
		return "", fmt.Errorf("token endpoint returned %s without an access token", resp.Status)
	}

	s.logger.Debug("Minted gateway bearer token", "expires_in", body.ExpiresIn)
	return body.AccessToken, nil
}
