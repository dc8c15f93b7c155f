package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Payload is the JSON body sent for every accepted question.
type Payload struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
}

// StatusError is returned when the webhook answers with a non-success status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// OAuthConfig enables the client-credentials grant for webhooks behind an
// OAuth2-protected gateway.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Options configures a Client.
type Options struct {
	URL string
	// Timeout bounds one exchange. Zero means no timeout.
	Timeout time.Duration
	// AuthHeader/AuthValue set a static header such as n8n header auth.
	AuthHeader string
	AuthValue  string
	// BearerToken sends a fixed Authorization: Bearer token.
	BearerToken string
	OAuth       *OAuthConfig
	// RateLimit caps outbound requests per second. Zero disables the limiter.
	RateLimit float64
	// HTTPClient overrides the transport; auth options wrap it.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client posts questions to an automation webhook.
type Client struct {
	url        string
	httpClient *http.Client
	authHeader string
	authValue  string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient builds a webhook client from opts.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("webhook url is required")
	}
	if (opts.AuthHeader == "") != (opts.AuthValue == "") {
		return nil, errors.New("webhook auth header and value must be set together")
	}

	base := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		base = &copied
	}
	httpClient := base
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	switch {
	case opts.OAuth != nil:
		cc := clientcredentials.Config{
			ClientID:     opts.OAuth.ClientID,
			ClientSecret: opts.OAuth.ClientSecret,
			TokenURL:     opts.OAuth.TokenURL,
			Scopes:       opts.OAuth.Scopes,
		}
		httpClient = cc.Client(ctx)
	case opts.BearerToken != "":
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.BearerToken,
			TokenType:   "Bearer",
		}))
	}
	if opts.Timeout > 0 {
		httpClient.Timeout = opts.Timeout
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:        opts.URL,
		httpClient: httpClient,
		authHeader: opts.AuthHeader,
		authValue:  opts.AuthValue,
		limiter:    limiter,
		logger:     logger.Named("webhook"),
	}, nil
}

// Exchange sends one payload and returns the full response body. A non-2xx status
// yields a *StatusError.
func (c *Client) Exchange(ctx context.Context, p Payload) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("webhook rate limit: %w", err)
		}
	}

	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}
	c.logger.Debug("webhook responded",
		zap.String("session", p.SessionID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(truncate(string(body), 512))}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
