// Package messaging publishes pipeline lifecycle events to NATS JetStream for
// downstream consumers (dashboards, statistics jobs). Publishing is
// best-effort: failures are logged and never affect document state.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/config"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	streamName      = "ANALYSIS"
	subjectAnalyzed = "docs.analyzed"
	subjectFailed   = "docs.failed"
	streamMaxAge    = 24 * time.Hour
	connectTimeout  = 5 * time.Second
)

// DocumentAnalyzedMessage is the payload published when a document's mention
// set has been committed.
type DocumentAnalyzedMessage struct {
	DocumentID   uuid.UUID `json:"document_id"`
	MentionCount int       `json:"mention_count"`
	Timestamp    time.Time `json:"timestamp"`
	MessageID    string    `json:"message_id"`
}

// DocumentFailedMessage is the payload published when a document reaches the
// failed state.
type DocumentFailedMessage struct {
	DocumentID uuid.UUID `json:"document_id"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	MessageID  string    `json:"message_id"`
}

// NATSEventPublisher provides the NATS JetStream implementation of
// EventPublisher.
type NATSEventPublisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewNATSEventPublisher connects to NATS and ensures the analysis stream
// exists.
func NewNATSEventPublisher(cfg config.NATSConfig) (*NATSEventPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &NATSEventPublisher{conn: conn, js: js}
	if err := publisher.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	return publisher, nil
}

// ensureStream creates the analysis stream when it does not exist yet.
func (p *NATSEventPublisher) ensureStream() error {
	_, err := p.js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to check stream %s: %w", streamName, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"docs.>"},
		MaxAge:   streamMaxAge,
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", streamName, err)
	}
	return nil
}

// PublishDocumentAnalyzed emits a docs.analyzed event.
func (p *NATSEventPublisher) PublishDocumentAnalyzed(ctx context.Context, documentID uuid.UUID, mentionCount int) error {
	msg := DocumentAnalyzedMessage{
		DocumentID:   documentID,
		MentionCount: mentionCount,
		Timestamp:    time.Now().UTC(),
		MessageID:    uuid.New().String(),
	}
	return p.publish(ctx, subjectAnalyzed, msg)
}

// PublishDocumentFailed emits a docs.failed event.
func (p *NATSEventPublisher) PublishDocumentFailed(ctx context.Context, documentID uuid.UUID, reason string) error {
	msg := DocumentFailedMessage{
		DocumentID: documentID,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
		MessageID:  uuid.New().String(),
	}
	return p.publish(ctx, subjectFailed, msg)
}

func (p *NATSEventPublisher) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = p.js.Publish(subject, data, nats.Context(ctx))
	if err != nil {
		slogger.Warn(ctx, "Failed to publish event", slogger.Fields{
			"subject": subject,
			"error":   err.Error(),
		})
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection so buffered publishes flush before shutdown.
func (p *NATSEventPublisher) Close() {
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Drain(); err != nil {
			slogger.WarnNoCtx("Failed to drain NATS connection", slogger.Fields{"error": err.Error()})
		}
	}
}

// NoopEventPublisher discards all events. Used when NATS is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishDocumentAnalyzed(context.Context, uuid.UUID, int) error { return nil }
func (NoopEventPublisher) PublishDocumentFailed(context.Context, uuid.UUID, string) error {
	return nil
}
func (NoopEventPublisher) Close() {}
