package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// AccessCredential is a bearer token string, always carrying the "Bearer " prefix
type AccessCredential string

// NewAccessCredential normalises a raw or prefixed token
func NewAccessCredential(token string) AccessCredential {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(token, bearerPrefix) {
		return AccessCredential(token)
	}
	return AccessCredential(bearerPrefix + token)
}

// Header returns the Authorization header value
func (c AccessCredential) Header() string {
	return string(c)
}

// Token returns the bare token without the scheme prefix
func (c AccessCredential) Token() string {
	return strings.TrimPrefix(string(c), bearerPrefix)
}

// Credentials are the app id and secret issued by the developer console
type Credentials struct {
	AppID     string
	AppSecret string
}

// CredentialProvider exchanges app credentials for a tenant access token
type CredentialProvider struct {
	client      *Client
	credentials Credentials
}

// NewCredentialProvider creates a provider bound to explicit credentials
func NewCredentialProvider(client *Client, credentials Credentials) *CredentialProvider {
	return &CredentialProvider{
		client:      client,
		credentials: credentials,
	}
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// Credential fetches a fresh tenant access token.
// Every failure is an AuthenticationError.
func (p *CredentialProvider) Credential(ctx context.Context) (AccessCredential, error) {
	if p.credentials.AppID == "" || p.credentials.AppSecret == "" {
		return "", &AuthenticationError{Msg: "app id and app secret are required"}
	}

	var token tokenResponse
	err := Retry(ctx, p.client.retry, func(attempt int) error {
		var err error
		token, err = p.exchange(ctx)
		return err
	})
	if err != nil {
		p.client.logger.ErrorContext(ctx, "tenant token exchange failed",
			"app_id", p.credentials.AppID,
			"error", err,
		)
		return "", &AuthenticationError{Err: err}
	}

	if token.TenantAccessToken == "" {
		p.client.logger.ErrorContext(ctx, "tenant token missing from response",
			"app_id", p.credentials.AppID,
			"code", token.Code,
			"msg", token.Msg,
		)
		return "", &AuthenticationError{Msg: token.Msg}
	}

	p.client.logger.DebugContext(ctx, "tenant token issued",
		"app_id", p.credentials.AppID,
		"expire", token.Expire,
	)

	return NewAccessCredential(token.TenantAccessToken), nil
}

// exchange performs the token call; this endpoint answers without a data envelope
func (p *CredentialProvider) exchange(ctx context.Context) (tokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.client.timeout)
	defer cancel()

	target := p.client.baseURL + "/auth/v3/tenant_access_token/internal"
	payload, err := json.Marshal(map[string]string{
		"app_id":     p.credentials.AppID,
		"app_secret": p.credentials.AppSecret,
	})
	if err != nil {
		return tokenResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return tokenResponse{}, &NetworkError{URL: target, Status: resp.StatusCode}
	}

	var token tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEnvelopeSize)).Decode(&token); err != nil {
		return tokenResponse{}, &NetworkError{URL: target, Status: resp.StatusCode, Err: err}
	}
	return token, nil
}
