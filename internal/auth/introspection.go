package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// IntrospectionRequest is the payload sent to the introspection endpoint
type IntrospectionRequest struct {
	IdentityProvider string `json:"identity_provider"`
	Token            string `json:"token"`
}

// IntrospectionResponse is the answer from the introspection endpoint
type IntrospectionResponse struct {
	Active bool                   `json:"active"`
	Claims map[string]interface{} `json:"claims,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// subjectClaims are tried in order to find the user identity
var subjectClaims = []string{"uid", "sub", "preferred_username", "NAVident"}

// IntrospectionVerifier asks a remote endpoint whether a token is active
type IntrospectionVerifier struct {
	endpoint         string
	identityProvider string
	httpClient       *http.Client
}

// NewIntrospectionVerifier creates a verifier against endpoint for tokens issued by identityProvider
func NewIntrospectionVerifier(endpoint, identityProvider string) *IntrospectionVerifier {
	if identityProvider == "" {
		identityProvider = "azuread"
	}
	return &IntrospectionVerifier{
		endpoint:         endpoint,
		identityProvider: identityProvider,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Verify posts the token to the endpoint. Inactive tokens and tokens without a
// usable identity claim yield ErrBadToken; transport failures are returned as is.
func (v *IntrospectionVerifier) Verify(ctx context.Context, token string) (string, error) {
	body, err := json.Marshal(IntrospectionRequest{IdentityProvider: v.identityProvider, Token: token})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("introspection endpoint returned status %d", resp.StatusCode)
	}

	var result IntrospectionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrBadToken, result.Error)
	}
	if !result.Active {
		return "", ErrBadToken
	}

	for _, name := range subjectClaims {
		if s, ok := result.Claims[name].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: no identity claim in introspection response", ErrBadToken)
}
