// Package redcap implements registry.Service over the REDCap record API.
//
// Every call is a form-encoded POST to the project's API endpoint carrying
// the project token. Records travel as flat JSON.
package redcap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/trdsync/internal/registry"
)

// DefaultTimeout bounds a single API call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept on APIError.
const maxErrorBody = 4096

// APIError is a non-2xx response from the API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Body)
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(msg), &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return fmt.Sprintf("redcap: HTTP %d: %s", e.Status, msg)
}

// Client talks to one REDCap project.
type Client struct {
	url    string
	token  string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the API endpoint apiURL.
func New(apiURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		url:    apiURL,
		token:  token,
		http:   &http.Client{Timeout: timeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ registry.Service = (*Client)(nil)

// ExportRecords implements registry.Service.
func (c *Client) ExportRecords(ctx context.Context, fields []string) ([]registry.Record, error) {
	form := url.Values{
		"content":      {"record"},
		"action":       {"export"},
		"format":       {"json"},
		"type":         {"flat"},
		"returnFormat": {"json"},
	}
	for i, f := range fields {
		form.Set(fmt.Sprintf("fields[%d]", i), f)
	}

	body, err := c.post(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("exporting records: %w", err)
	}

	var records []registry.Record
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("exporting records: decoding response: %w", err)
	}
	c.logger.Debug("exported records", "count", len(records))
	return records, nil
}

// ImportRecords implements registry.Service.
func (c *Client) ImportRecords(ctx context.Context, records []registry.Record) (int, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("importing records: encoding: %w", err)
	}
	form := url.Values{
		"content":           {"record"},
		"action":            {"import"},
		"format":            {"json"},
		"type":              {"flat"},
		"overwriteBehavior": {"normal"},
		"forceAutoNumber":   {"false"},
		"returnContent":     {"count"},
		"returnFormat":      {"json"},
		"data":              {string(data)},
	}

	body, err := c.post(ctx, form)
	if err != nil {
		return 0, fmt.Errorf("importing records: %w", err)
	}

	var result struct {
		Count json.Number `json:"count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("importing records: decoding response: %w", err)
	}
	n, err := strconv.Atoi(result.Count.String())
	if err != nil {
		return 0, fmt.Errorf("importing records: invalid count %q", result.Count)
	}
	c.logger.Debug("imported records", "submitted", len(records), "count", n)
	return n, nil
}

// GenerateNextRecordName implements registry.Service.
func (c *Client) GenerateNextRecordName(ctx context.Context) (string, error) {
	body, err := c.post(ctx, url.Values{"content": {"generateNextRecordName"}})
	if err != nil {
		return "", fmt.Errorf("generating record name: %w", err)
	}
	name := strings.TrimSpace(string(body))
	if name == "" {
		return "", fmt.Errorf("generating record name: empty response")
	}
	return name, nil
}

func (c *Client) post(ctx context.Context, form url.Values) ([]byte, error) {
	form.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
