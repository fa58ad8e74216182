package aviationstack

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBody = `{
	"pagination": {"limit": 10, "offset": 0, "count": 2, "total": 2},
	"data": [
		{"flight_date":"2024-01-01","flight_status":"scheduled",
		 "flight":{"iata":"EI100","number":"100"},
		 "departure":{"iata":"LHR","airport":"Heathrow"},
		 "arrival":{"iata":"DUB","scheduled":"2024-01-01T10:00:00"}},
		{"flight":{"iata":"BA101"},"departure":{"iata":"LHR"},"arrival":{"scheduled":"2024-01-01T11:00:00"}}
	]
}`

func TestFetchArrivalsQuery(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1/flights", APIKey: "k3y"})
	recs, err := c.FetchArrivals(context.Background(), "DUB", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/v1/flights", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "k3y", q.Get("access_key"))
	assert.Equal(t, "DUB", q.Get("arr_iata"))
	assert.Equal(t, "10", q.Get("limit"))

	require.NotNil(t, recs[0].Flight)
	assert.Equal(t, "EI100", *recs[0].Flight.IATA)
	assert.Equal(t, "scheduled", recs[0].FlightStatus)
}

func TestFetchArrivalsTruncatesToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	recs, err := c.FetchArrivals(context.Background(), "DUB", 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestFetchArrivalsErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "unauthorized with error object",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"code":"invalid_access_key","message":"You have not supplied a valid API Access Key."}}`,
			wantCode: "invalid_access_key",
			wantMsg:  "You have not supplied a valid API Access Key.",
		},
		{
			name:    "server error without json",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantMsg: "Bad Gateway",
		},
		{
			name:     "200 with error object",
			status:   http.StatusOK,
			body:     `{"error":{"code":"usage_limit_reached","message":"monthly limit"}}`,
			wantCode: "usage_limit_reached",
			wantMsg:  "monthly limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
			recs, err := c.FetchArrivals(context.Background(), "DUB", 10)
			assert.Nil(t, recs)

			var rerr *RequestError
			require.True(t, errors.As(err, &rerr), "got %v", err)
			assert.Equal(t, tt.status, rerr.StatusCode)
			assert.Equal(t, tt.wantCode, rerr.Code)
			assert.Equal(t, tt.wantMsg, rerr.Message)
		})
	}
}

func TestFetchArrivalsBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.FetchArrivals(context.Background(), "DUB", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestFetchArrivalsTimeoutRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "very-secret", Timeout: 20 * time.Millisecond})
	_, err := c.FetchArrivals(context.Background(), "DUB", 10)
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "very-secret"), err.Error())
	assert.Contains(t, err.Error(), "REDACTED")
}

func TestFetchArrivalsRejectsBadLimit(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused.invalid", APIKey: "k"})
	_, err := c.FetchArrivals(context.Background(), "DUB", 0)
	assert.Error(t, err)
}
