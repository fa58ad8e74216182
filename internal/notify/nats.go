// Package notify publishes run summaries to NATS.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"arrivals_etl/internal/flights"
)

// RunSummary is the event published after each successful run.
type RunSummary struct {
	ArrivalAirport string                   `json:"arrival_airport"`
	Records        int                      `json:"records"`
	Rows           int                      `json:"rows"`
	Skipped        int                      `json:"skipped"`
	Counts         []flights.DepartureCount `json:"counts"`
	DBPath         string                   `json:"db_path"`
	ChartPath      string                   `json:"chart_path"`
	FinishedAt     time.Time                `json:"finished_at"`
}

// Publisher sends run summaries.
type Publisher interface {
	Publish(s RunSummary) error
	Close()
}

// NATS publishes summaries on a fixed subject.
type NATS struct {
	conn    *nats.Conn
	subject string
}

// Connect dials url and returns a publisher for subject.
func Connect(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("arrivals"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(2),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: nc, subject: subject}, nil
}

// Publish encodes s as JSON and flushes it to the server.
func (n *NATS) Publish(s RunSummary) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	if err := n.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("flush %s: %w", n.subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *NATS) Close() {
	_ = n.conn.Drain()
}

// Encode marshals a summary. Counts is never null in the output.
func Encode(s RunSummary) ([]byte, error) {
	if s.Counts == nil {
		s.Counts = []flights.DepartureCount{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return data, nil
}
