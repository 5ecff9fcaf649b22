// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// DefaultNATSSubject receives one message per record.
const DefaultNATSSubject = "coating_patents.records"

// Publisher is the part of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
	Flush() error
}

// NATS publishes each record as a JSON object keyed by column name.
type NATS struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	cols    Columns
}

// ConnectNATS dials url and returns a sink publishing on subject.
func ConnectNATS(url, subject string, cols Columns, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(
		url,
		nats.Name("coating-patents"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	n := NewNATS(conn, subject, cols)
	n.conn = conn
	return n, nil
}

// NewNATS publishes through pub. Close flushes but does not close pub.
func NewNATS(pub Publisher, subject string, cols Columns) *NATS {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATS{pub: pub, subject: subject, cols: cols}
}

// WriteRecord publishes rec.
func (n *NATS) WriteRecord(_ context.Context, rec types.Record) error {
	data, err := json.Marshal(n.cols.Map(rec))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rec.PublicationNumber, err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes a connection opened by
// ConnectNATS.
func (n *NATS) Close() error {
	err := n.pub.Flush()
	if n.conn != nil {
		n.conn.Close()
	}
	if err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}
