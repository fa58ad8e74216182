// Package aviationstack is a minimal client for the aviationstack flights
// endpoint. It makes exactly one request per call: no paging, no retries.
package aviationstack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"arrivals_etl/internal/flights"
)

// DefaultBaseURL is the public flights endpoint.
const DefaultBaseURL = "http://api.aviationstack.com/v1/flights"

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

// Config configures the client. Zero values get defaults:
//   - BaseURL: DefaultBaseURL
//   - Timeout: 15s
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Transport is an optional custom RoundTripper, mainly for tests.
	Transport http.RoundTripper
}

// Client fetches flight records.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
	}
}

// Response is the envelope returned by the flights endpoint.
type Response struct {
	Pagination *Pagination            `json:"pagination,omitempty"`
	Data       []flights.FlightRecord `json:"data"`
	Error      *APIError              `json:"error,omitempty"`
}

// Pagination is informational only; the client never pages.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
	Total  int `json:"total"`
}

// APIError is the error object the API embeds in failed responses.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequestError reports a failed call: a non-2xx status, or a 2xx response
// carrying an error object.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "request failed: status %d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, ", code %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// FetchArrivals returns up to limit records for flights arriving at
// airport.
func (c *Client) FetchArrivals(ctx context.Context, airport string, limit int) ([]flights.FlightRecord, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("access_key", c.apiKey)
	q.Set("arr_iata", airport)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", redact(u), unwrapURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var r Response
	decodeErr := json.Unmarshal(body, &r)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &RequestError{StatusCode: resp.StatusCode}
		if decodeErr == nil && r.Error != nil {
			rerr.Code = r.Error.Code
			rerr.Message = r.Error.Message
		} else {
			rerr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, rerr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if r.Error != nil {
		return nil, &RequestError{StatusCode: resp.StatusCode, Code: r.Error.Code, Message: r.Error.Message}
	}

	if len(r.Data) > limit {
		r.Data = r.Data[:limit]
	}
	return r.Data, nil
}

// redact hides the access key so URLs can be logged.
func redact(u *url.URL) string {
	cp := *u
	q := cp.Query()
	if q.Has("access_key") {
		q.Set("access_key", "REDACTED")
	}
	cp.RawQuery = q.Encode()
	return cp.String()
}

// unwrapURLError drops the *url.Error wrapper, whose message would repeat
// the unredacted URL.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
