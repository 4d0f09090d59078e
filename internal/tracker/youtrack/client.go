package youtrack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/trackrelay/internal/tracker"
)

// Credentials selects how the client authenticates. A non-empty Token wins;
// otherwise Login/Password open a cookie session.
type Credentials struct {
	Token    string
	Login    string
	Password string
}

// Client is a thin HTTP client for the YouTrack REST API. It handles
// authentication, JSON decoding, error classification and automatic retry
// with exponential backoff on HTTP 429.
//
// A Client holds session state and is not safe for concurrent use. Share
// it through tracker.Serial.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	maxRetries int

	// loggedIn is true once the session cookie has been obtained.
	loggedIn bool
}

// NewClient creates a new YouTrack client. The baseURL should be the root
// URL of the instance (e.g., https://youtrack.example.com).
func NewClient(baseURL string, creds Credentials) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		maxRetries: 3,
	}
}

// BaseURL returns the instance root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) usesSession() bool {
	return c.creds.Token == "" && c.creds.Login != ""
}

// get performs an authenticated GET and unmarshals the JSON response.
func (c *Client) get(
	ctx context.Context,
	op string,
	path string,
	params url.Values,
	result interface{},
) error {
	if c.usesSession() && !c.loggedIn {
		if err := c.login(ctx); err != nil {
			return err
		}
	}

	err := c.do(ctx, op, path, params, result)
	if c.usesSession() && isUnauthorized(err) {
		// The session expired; log in again and retry once.
		c.loggedIn = false
		if err := c.login(ctx); err != nil {
			return err
		}
		err = c.do(ctx, op, path, params, result)
	}
	return err
}

// login opens a cookie session with the configured login and password.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("login", c.creds.Login)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/rest/user/login",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &tracker.TransportError{Op: "login", Err: err}
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus("login", resp.StatusCode, body)
	}

	c.loggedIn = true
	return nil
}

// do is the core HTTP method: it builds the request, applies auth, retries
// on rate limiting and decodes JSON.
func (c *Client) do(
	ctx context.Context,
	op string,
	path string,
	params url.Values,
	result interface{},
) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if c.creds.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.creds.Token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &tracker.TransportError{Op: op, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &tracker.TransportError{
				Op:  op,
				Err: fmt.Errorf("reading response body: %w", readErr),
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on GET %s", path)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return classifyStatus(op, resp.StatusCode, respBody)
		}

		if result == nil {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return &tracker.TransportError{
				Op:  op,
				Err: fmt.Errorf("unmarshaling response from GET %s: %w", path, err),
			}
		}

		return nil
	}

	return &tracker.TransportError{
		Op:  op,
		Err: fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr),
	}
}

// classifyStatus maps a non-2xx response to a typed tracker error. Server
// failures are transport errors; client failures are domain errors.
func classifyStatus(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var apiErr ErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
		if apiErr.Description != "" {
			msg += ": " + apiErr.Description
		}
	}

	if status >= 500 {
		return &tracker.TransportError{
			Op:  op,
			Err: fmt.Errorf("unexpected status %d: %s", status, msg),
		}
	}
	return &tracker.DomainError{Op: op, StatusCode: status, Message: msg}
}

func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	de, ok := err.(*tracker.DomainError)
	return ok && de.StatusCode == http.StatusUnauthorized
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
