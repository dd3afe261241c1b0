// Package events publishes domain lifecycle events to the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

const (
	SubjectRequestCreated   = "briefly.requests.created"
	SubjectRequestResponded = "briefly.requests.responded"
	SubjectRequestCompleted = "briefly.requests.completed"
	SubjectDocumentAdded    = "briefly.documents.added"
	SubjectDocumentUnlocked = "briefly.documents.unlocked"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Nop drops every event. Used when no bus is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

type NATSPublisher struct {
	conn *nats.Conn
}

func ConnectNATS(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("briefly-server"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	return p.conn.Publish(subject, data)
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Recorder keeps published events in memory for assertions.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	Subject string
	Payload any
}

func (r *Recorder) Publish(_ context.Context, subject string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Subject: subject, Payload: payload})
	return nil
}

// Subjects lists the subjects recorded so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Subject)
	}
	return out
}
