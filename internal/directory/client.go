// Package directory is the sole gateway to the remote transactional
// row-store (the "directory") that every daemon in the coordination plane
// uses as its only communication bus. It provides typed row operations,
// ETag-guarded optimistic concurrency, OData query construction, and token
// caching, wrapped in a circuit breaker and bounded retry so a flaky store
// degrades gracefully instead of wedging a poll loop.
package directory

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
)

const (
	defaultAPIVersion    = "v9.2"
	defaultRequestTimeout = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is the directory-store root, e.g. https://org.crm.dynamics.com.
	BaseURL string
	// APIVersion defaults to v9.2 when empty.
	APIVersion string
	Tokens     TokenSource
	Logger     *slog.Logger
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client is the typed OData client every daemon embeds.
type Client struct {
	baseURL    string
	apiVersion string
	tokens     TokenSource
	logger     *slog.Logger
	http       *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// New builds a Client. The circuit breaker trips after 5 consecutive
// TransientIO failures and stays open for 30s before probing again.
func New(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		tokens:     cfg.Tokens,
		logger:     cfg.Logger,
		http:       cfg.HTTPClient,
		timeout:    cfg.Timeout,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "directory-store",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("directory circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	})

	return c
}

// Row is a generic decoded directory-store row: arbitrary fields plus the
// ETag the store returned. Typed helpers (conversations.go, tasks.go, ...)
// decode into and from this shape.
type Row struct {
	ETag   string
	Fields map[string]any
}

// doJSON performs a single HTTP request wrapped in the circuit breaker and a
// bounded exponential-backoff retry. Any non-2xx response (other than 412,
// which is returned directly to the caller as a KindConcurrencyConflict so
// UpdateRow can report Conflict without retrying) is classified and retried
// up to 3 times when the Kind is TransientIO or AuthFailure.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, etag string, headers map[string]string) ([]byte, http.Header, error) {
	operation := func() (doResult, error) {
		req, err := c.buildRequest(ctx, method, path, body, etag, headers)
		if err != nil {
			return doResult{}, backoff.Permanent(&Error{Kind: KindFatal, Op: op, Err: err})
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return doResult{}, &Error{Kind: KindTransientIO, Op: op, Err: err}
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return doResult{data: data, header: resp.Header}, nil
		}

		kind := classifyStatus(resp.StatusCode)
		derr := &Error{Kind: kind, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", string(data))}
		if kind == KindConcurrencyConflict || kind == KindLogicError || kind == KindSchemaMismatch {
			// Not retriable by the backoff loop; the caller decides.
			return doResult{}, backoff.Permanent(derr)
		}
		return doResult{}, derr
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithMaxTries(3),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		return nil, nil, err
	}

	breakerResult, err := c.breaker.Execute(func() ([]byte, error) {
		return result.data, nil
	})
	if err != nil {
		return nil, nil, &Error{Kind: KindTransientIO, Op: op, Err: err}
	}
	return breakerResult, result.header, nil
}

type doResult struct {
	data   []byte
	header http.Header
}

func (c *Client) buildRequest(ctx context.Context, method, path string, body any, etag string, headers map[string]string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	url := c.baseURL + "/api/data/" + c.apiVersion + "/" + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// GetRows lists rows matching the given query.
func (c *Client) GetRows(ctx context.Context, table string, q Query) ([]Row, error) {
	path := table
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	data, _, err := c.doJSON(ctx, "GetRows("+table+")", http.MethodGet, path, nil, "", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Value []map[string]any `json:"value"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &Error{Kind: KindSchemaMismatch, Op: "GetRows(" + table + ")", Err: err}
	}

	rows := make([]Row, 0, len(envelope.Value))
	for _, f := range envelope.Value {
		rows = append(rows, rowFromFields(f))
	}
	return rows, nil
}

// GetRow fetches a single row by id.
func (c *Client) GetRow(ctx context.Context, table, id string, selectCols []string) (Row, error) {
	path := table + "(" + id + ")"
	if len(selectCols) > 0 {
		path += "?" + (Query{Select: selectCols}).Encode()
	}
	data, _, err := c.doJSON(ctx, "GetRow("+table+")", http.MethodGet, path, nil, "", nil)
	if err != nil {
		return Row{}, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Row{}, &Error{Kind: KindSchemaMismatch, Op: "GetRow(" + table + ")", Err: err}
	}
	return rowFromFields(fields), nil
}

// CreateRow inserts a new row and, when returnRepresentation is true, decodes
// the created row (including its id and ETag) from the response.
func (c *Client) CreateRow(ctx context.Context, table string, fields map[string]any, returnRepresentation bool) (Row, error) {
	headers := map[string]string{}
	if returnRepresentation {
		headers["Prefer"] = "return=representation"
	}
	data, _, err := c.doJSON(ctx, "CreateRow("+table+")", http.MethodPost, table, fields, "", headers)
	if err != nil {
		return Row{}, err
	}
	if !returnRepresentation || len(data) == 0 {
		return Row{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Row{}, &Error{Kind: KindSchemaMismatch, Op: "CreateRow(" + table + ")", Err: err}
	}
	return rowFromFields(decoded), nil
}

// UpdateResult is the outcome of an ETag-guarded PATCH.
type UpdateResult int

const (
	UpdateOK UpdateResult = iota
	UpdateConflict
)

// UpdateRow patches fields on a row. When etag is non-empty the request
// carries If-Match; a 412 response is reported as UpdateConflict rather than
// returned as an error, per §4.1 ("returns Conflict without raising").
func (c *Client) UpdateRow(ctx context.Context, table, id string, fields map[string]any, etag string) (UpdateResult, error) {
	path := table + "(" + id + ")"
	_, _, err := c.doJSON(ctx, "UpdateRow("+table+")", http.MethodPatch, path, fields, etag, nil)
	if err != nil {
		if IsConflict(err) {
			return UpdateConflict, nil
		}
		return UpdateOK, err
	}
	return UpdateOK, nil
}

// DeleteRow removes a row by id.
func (c *Client) DeleteRow(ctx context.Context, table, id string) error {
	path := table + "(" + id + ")"
	_, _, err := c.doJSON(ctx, "DeleteRow("+table+")", http.MethodDelete, path, nil, "", nil)
	return err
}

// UpsertRow creates fields if id is empty, otherwise patches the existing row.
func (c *Client) UpsertRow(ctx context.Context, table, id string, fields map[string]any) (Row, error) {
	if id == "" {
		return c.CreateRow(ctx, table, fields, true)
	}
	if _, err := c.UpdateRow(ctx, table, id, fields, ""); err != nil {
		return Row{}, err
	}
	return c.GetRow(ctx, table, id, nil)
}

// FindRows is a convenience wrapper over GetRows for a simple equality
// lookup on one column.
func (c *Client) FindRows(ctx context.Context, table, column, value string) ([]Row, error) {
	return c.GetRows(ctx, table, Query{Filter: EqFilter(column, value)})
}

func rowFromFields(fields map[string]any) Row {
	row := Row{Fields: fields}
	if etag, ok := fields["@odata.etag"].(string); ok {
		row.ETag = etag
		delete(fields, "@odata.etag")
	}
	return row
}
