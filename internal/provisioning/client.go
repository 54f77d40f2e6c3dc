// Package provisioning wraps the dev-box provisioning REST API the Global
// Manager drives through the onboarding state machine (spec §4.2, §6). It
// mirrors internal/directory's client shape (circuit breaker plus bounded
// retry around a single doJSON primitive) because both are remote HTTP
// dependencies the daemons must tolerate flaking without wedging a poll
// loop.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/basket/shraga/internal/directory"
)

// State is the provisioning_state field of a dev box or customization group.
type State string

const (
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
)

// IsTerminal reports whether the state requires no further polling.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == "ValidationFailed"
}

// DevBoxStatus is the decoded response from a devbox GET.
type DevBoxStatus struct {
	Name              string `json:"name"`
	ProvisioningState State  `json:"provisioningState"`
}

// CustomizationStatus is the decoded response from a customizationGroups GET.
type CustomizationStatus struct {
	Group             string `json:"customizationGroup"`
	ProvisioningState State  `json:"provisioningState"`
}

// RemoteConnection carries the web-RDP URL for a devbox.
type RemoteConnection struct {
	WebURL string `json:"webUrl"`
}

// Config configures a Client.
type Config struct {
	Endpoint   string // e.g. https://devcenter.example.com
	Project    string
	Tokens     directory.TokenSource
	Logger     *slog.Logger
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client is the dev-box provisioning REST client.
type Client struct {
	endpoint string
	project  string
	tokens   directory.TokenSource
	logger   *slog.Logger
	http     *http.Client
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

// New builds a Client. The breaker trips after 5 consecutive transient
// failures, same threshold as internal/directory's store client.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		endpoint: cfg.Endpoint,
		project:  cfg.Project,
		tokens:   cfg.Tokens,
		logger:   cfg.Logger,
		http:     cfg.HTTPClient,
		timeout:  cfg.Timeout,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "provisioning-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("provisioning circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	operation := func() ([]byte, error) {
		data, err := c.do(ctx, op, method, path, body)
		if err != nil {
			if derr, ok := err.(*directory.Error); ok &&
				(derr.Kind == directory.KindLogicError || derr.Kind == directory.KindSchemaMismatch || derr.Kind == directory.KindFatal) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return data, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithMaxTries(3),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		return nil, err
	}

	return c.breaker.Execute(func() ([]byte, error) {
		return result, nil
	})
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &directory.Error{Kind: directory.KindLogicError, Op: op, Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	url := c.endpoint + path
	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, &directory.Error{Kind: directory.KindFatal, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(reqCtx)
		if err != nil {
			return nil, &directory.Error{Kind: directory.KindAuthFailure, Op: op, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &directory.Error{Kind: directory.KindTransientIO, Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &directory.Error{Kind: directory.KindTransientIO, Op: op, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &directory.Error{Kind: classifyStatus(resp.StatusCode), Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(data))}
	}
	return data, nil
}



func classifyStatus(status int) directory.Kind {
	switch {
	case status == 401 || status == 403:
		return directory.KindAuthFailure
	case status == 404 || status == 400:
		return directory.KindLogicError
	case status == 429 || status >= 500:
		return directory.KindTransientIO
	default:
		return directory.KindFatal
	}
}

// CreateDevBox issues the PUT that begins provisioning a named dev box for
// a user (spec §6: `/projects/<P>/users/<AADID>/devboxes/<NAME>`).
func (c *Client) CreateDevBox(ctx context.Context, azureADID, name, pool string) (DevBoxStatus, error) {
	path := fmt.Sprintf("/projects/%s/users/%s/devboxes/%s", c.project, azureADID, name)
	data, err := c.doJSON(ctx, "CreateDevBox", http.MethodPut, path, map[string]any{"poolName": pool})
	if err != nil {
		return DevBoxStatus{}, err
	}
	var status DevBoxStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return DevBoxStatus{}, &directory.Error{Kind: directory.KindSchemaMismatch, Op: "CreateDevBox", Err: err}
	}
	return status, nil
}

// GetDevBox polls provisioning status.
func (c *Client) GetDevBox(ctx context.Context, azureADID, name string) (DevBoxStatus, error) {
	path := fmt.Sprintf("/projects/%s/users/%s/devboxes/%s", c.project, azureADID, name)
	data, err := c.doJSON(ctx, "GetDevBox", http.MethodGet, path, nil)
	if err != nil {
		return DevBoxStatus{}, err
	}
	var status DevBoxStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return DevBoxStatus{}, &directory.Error{Kind: directory.KindSchemaMismatch, Op: "GetDevBox", Err: err}
	}
	return status, nil
}

// DeleteDevBox removes a dev box.
func (c *Client) DeleteDevBox(ctx context.Context, azureADID, name string) error {
	path := fmt.Sprintf("/projects/%s/users/%s/devboxes/%s", c.project, azureADID, name)
	_, err := c.doJSON(ctx, "DeleteDevBox", http.MethodDelete, path, nil)
	return err
}

// RequestCustomization kicks off the post-provision software-install group.
func (c *Client) RequestCustomization(ctx context.Context, azureADID, name, group string) (CustomizationStatus, error) {
	path := fmt.Sprintf("/projects/%s/users/%s/devboxes/%s/customizationGroups/%s", c.project, azureADID, name, group)
	data, err := c.doJSON(ctx, "RequestCustomization", http.MethodPut, path, nil)
	if err != nil {
		return CustomizationStatus{}, err
	}
	var status CustomizationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return CustomizationStatus{}, &directory.Error{Kind: directory.KindSchemaMismatch, Op: "RequestCustomization", Err: err}
	}
	return status, nil
}

// GetCustomization polls customization group status.
func (c *Client) GetCustomization(ctx context.Context, azureADID, name, group string) (CustomizationStatus, error) {
	path := fmt.Sprintf("/projects/%s/users/%s/devboxes/%s/customizationGroups/%s", c.project, azureADID, name, group)
	data, err := c.doJSON(ctx, "GetCustomization", http.MethodGet, path, nil)
	if err != nil {
		return CustomizationStatus{}, err
	}
	var status CustomizationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return CustomizationStatus{}, &directory.Error{Kind: directory.KindSchemaMismatch, Op: "GetCustomization", Err: err}
	}
	return status, nil
}

// GetRemoteConnection fetches the web-RDP URL for a provisioned dev box.
func (c *Client) GetRemoteConnection(ctx context.Context, azureADID, name string) (RemoteConnection, error) {
	path := fmt.Sprintf("/projects/%s/users/%s/devboxes/%s/remoteConnection", c.project, azureADID, name)
	data, err := c.doJSON(ctx, "GetRemoteConnection", http.MethodGet, path, nil)
	if err != nil {
		return RemoteConnection{}, err
	}
	var conn RemoteConnection
	if err := json.Unmarshal(data, &conn); err != nil {
		return RemoteConnection{}, &directory.Error{Kind: directory.KindSchemaMismatch, Op: "GetRemoteConnection", Err: err}
	}
	return conn, nil
}
