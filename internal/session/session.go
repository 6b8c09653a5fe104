// Package session owns the authenticated session lifecycle: code
// exchange, ID-token claims, persistence, and best-effort revocation.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ApenasGabs/queroAulas/internal/errs"
	"github.com/ApenasGabs/queroAulas/internal/logging"
)

// Provider endpoint defaults (Google).
const (
	defaultAuthURL   = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL  = "https://oauth2.googleapis.com/token"
	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"
)

// Claims are the decoded identity claims of a session.
type Claims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// Session is one authenticated session. It lives until logout, which
// triggers a best-effort revoke against the identity provider.
type Session struct {
	Credential  string    `json:"credential"` // raw signed ID token
	AccessToken string    `json:"accessToken"`
	Claims      Claims    `json:"claims"`
	ObtainedAt  time.Time `json:"obtainedAt"`
}

// Expired reports whether the access token has expired, with margin.
func (s *Session) Expired(margin time.Duration) bool {
	if s.Claims.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(s.Claims.ExpiresAt)
}

// Config configures the authenticator.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	RevokeURL    string
}

// Authenticator exchanges authorization codes for sessions.
type Authenticator struct {
	oauth      oauth2.Config
	verifier   *oidc.IDTokenVerifier
	revokeURL  string
	httpClient *http.Client
}

// New creates an authenticator. When the issuer is reachable, ID tokens
// are verified against it; otherwise claims are decoded unverified and
// a warning is logged (offline operation still works against a cached
// session).
func New(ctx context.Context, cfg Config) *Authenticator {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email",
			"https://www.googleapis.com/auth/drive.readonly"}
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = defaultRevokeURL
	}

	a := &Authenticator{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  defaultAuthURL,
				TokenURL: defaultTokenURL,
			},
			Scopes: scopes,
		},
		revokeURL:  revokeURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	if cfg.IssuerURL != "" {
		provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			logging.Warn("OIDC provider unreachable, ID tokens will not be verified",
				zap.String("issuer", cfg.IssuerURL),
				zap.Error(err))
		} else {
			a.oauth.Endpoint = provider.Endpoint()
			a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
		}
	}

	return a
}

// AuthCodeURL returns the provider's authorization URL for a state.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a session.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*Session, error) {
	const op = "session.Exchange"
	if code == "" {
		return nil, errs.New(errs.KindInvalidInput, op, "authorization code is required")
	}

	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnauthorized, op, err)
	}

	sess := &Session{
		AccessToken: token.AccessToken,
		ObtainedAt:  time.Now(),
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken != "" {
		sess.Credential = rawIDToken
		claims, err := a.claims(ctx, rawIDToken)
		if err != nil {
			return nil, errs.Wrap(errs.KindUnauthorized, op, err)
		}
		sess.Claims = claims
	}
	if sess.Claims.ExpiresAt.IsZero() && !token.Expiry.IsZero() {
		sess.Claims.ExpiresAt = token.Expiry
	}

	return sess, nil
}

// claims verifies the ID token when a verifier is configured, falling
// back to unverified decoding otherwise.
func (a *Authenticator) claims(ctx context.Context, rawIDToken string) (Claims, error) {
	if a.verifier != nil {
		idToken, err := a.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return Claims{}, fmt.Errorf("verify id token: %w", err)
		}
		var raw struct {
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := idToken.Claims(&raw); err != nil {
			return Claims{}, fmt.Errorf("decode id token claims: %w", err)
		}
		return Claims{
			Subject:   idToken.Subject,
			Email:     raw.Email,
			Name:      raw.Name,
			Picture:   raw.Picture,
			ExpiresAt: idToken.Expiry,
			IssuedAt:  idToken.IssuedAt,
		}, nil
	}
	return DecodeClaims(rawIDToken)
}

// DecodeClaims decodes ID-token claims without signature verification.
// Used when no verifier is available; callers must treat the result as
// display-only identity.
func DecodeClaims(rawIDToken string) (Claims, error) {
	var mc jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, &mc); err != nil {
		return Claims{}, fmt.Errorf("parse id token: %w", err)
	}

	claims := Claims{
		Subject: stringClaim(mc, "sub"),
		Email:   stringClaim(mc, "email"),
		Name:    stringClaim(mc, "name"),
		Picture: stringClaim(mc, "picture"),
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}

func stringClaim(mc jwt.MapClaims, key string) string {
	if v, ok := mc[key].(string); ok {
		return v
	}
	return ""
}

// Revoke revokes a token at the provider.
func (a *Authenticator) Revoke(ctx context.Context, token string) error {
	const op = "session.Revoke"
	if token == "" {
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return errs.Wrap(errs.KindUnknown, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindTransient, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.Newf(errs.KindTransient, op, "revoke returned %d", resp.StatusCode)
	}
	return nil
}

// Logout revokes the session's tokens best-effort and removes the
// session file. Revocation failure is logged, never fatal.
func (a *Authenticator) Logout(ctx context.Context, sess *Session, path string) error {
	if sess != nil {
		if err := a.Revoke(ctx, sess.AccessToken); err != nil {
			logging.Warn("token revoke failed", zap.Error(err))
		}
	}
	return Delete(path)
}

// DefaultPath returns the session file location under a state dir.
func DefaultPath(stateDir string) string {
	return filepath.Join(stateDir, "session.json")
}

// Save persists the session to disk.
func Save(path string, sess *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errs.Wrap(errs.KindStorage, "session.Save", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindStorage, "session.Save", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errs.Wrap(errs.KindStorage, "session.Save", err)
	}
	return nil
}

// Load reads a persisted session, ok=false if none exists.
func Load(path string) (*Session, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(errs.KindStorage, "session.Load", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, false, errs.Wrap(errs.KindStorage, "session.Load", err)
	}
	return &sess, true, nil
}

// Delete removes the persisted session. Missing files are fine.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindStorage, "session.Delete", err)
	}
	return nil
}
