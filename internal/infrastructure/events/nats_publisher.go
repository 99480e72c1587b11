// Package events pushes operational events from the ledger subsystem to
// monitoring. Publishing is best-effort by contract: a monitoring outage must
// never fail a store or verification.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"medledger/internal/bootstrap/logging"
	"medledger/internal/errs"
	"medledger/internal/ports"
)

// NATSPublisher publishes operational events to one NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

var _ ports.EventPublisher = (*NATSPublisher)(nil)

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if subject == "" {
		subject = "medledger.events"
	}

	conn, err := nats.Connect(url, nats.Name("medledger"))
	if err != nil {
		return nil, errs.Wrap(err, "connect nats")
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event ports.OperationalEvent) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(err, "marshal operational event")
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return errs.Wrap(err, "publish operational event")
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}

// LogPublisher is the fallback when no NATS url is configured: events land in
// the process log so they are still visible to operators.
type LogPublisher struct{}

var _ ports.EventPublisher = LogPublisher{}

func (LogPublisher) Publish(ctx context.Context, event ports.OperationalEvent) error {
	logging.Info(ctx, "operational event",
		slog.String("kind", event.Kind),
		slog.String("record_type", event.RecordType),
		slog.String("record_id", event.RecordID),
		slog.String("tx_id", event.TxID),
		slog.String("status", event.Status),
		slog.String("result", event.Result),
		slog.String("error", event.Error),
	)
	return nil
}
