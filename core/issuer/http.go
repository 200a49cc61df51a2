package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
)

const (
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
	// maxErrorMessage caps an unstructured error body echoed in APIError.
	maxErrorMessage = 256
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	// Client overrides the pooled client, mostly for tests.
	Client *http.Client
}

// HTTPClient calls the issuer's REST API. It makes exactly one attempt per
// call; retries are the caller's decision.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client that authenticates every request with the
// secret key as a bearer token.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	var client http.Client
	if cfg.Client != nil {
		client = *cfg.Client
	} else {
		client = *cleanhttp.DefaultPooledClient()
		client.Timeout = cfg.Timeout
		if client.Timeout == 0 {
			client.Timeout = 10 * time.Second
		}
	}
	if cfg.SecretKey != "" {
		client.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.SecretKey}),
			Base:   client.Transport,
		}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &client,
	}
}

var _ Issuer = (*HTTPClient)(nil)

func (c *HTTPClient) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPost, "/users", params, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) UpdateUser(ctx context.Context, userID string, params UpdateUserParams) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID), params, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) ListUsersByEmail(ctx context.Context, email string) ([]User, error) {
	q := url.Values{}
	q.Set("email_address", email)
	var users []User
	if err := c.do(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *HTTPClient) SendPasswordReset(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/password_reset", struct{}{}, nil)
}

func (c *HTTPClient) CreateInvitation(ctx context.Context, email string, metadata map[string]any) (*Invitation, error) {
	body := map[string]any{"email_address": email}
	if len(metadata) > 0 {
		body["public_metadata"] = metadata
	}
	var inv Invitation
	if err := c.do(ctx, http.MethodPost, "/invitations", body, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("issuer: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		if len(data) > maxResponseBytes {
			data = data[:maxResponseBytes]
		}
		code, msg := errorDetails(data)
		return &APIError{StatusCode: resp.StatusCode, Code: code, Message: msg}
	}
	if len(data) > maxResponseBytes {
		return fmt.Errorf("issuer: %s %s: response exceeds %d bytes", method, path, maxResponseBytes)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// errorDetails extracts the error code and a readable message from an
// issuer error body. Unstructured bodies are truncated.
func errorDetails(data []byte) (string, string) {
	var body struct {
		Message string `json:"message"`
		Errors  []struct {
			Code        string `json:"code"`
			Message     string `json:"message"`
			LongMessage string `json:"long_message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if len(body.Errors) > 0 {
			first := body.Errors[0]
			if first.LongMessage != "" {
				return first.Code, first.LongMessage
			}
			return first.Code, first.Message
		}
		if body.Message != "" {
			return "", body.Message
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > maxErrorMessage {
		msg = strings.ToValidUTF8(msg[:maxErrorMessage], "") + "..."
	}
	return "", msg
}
