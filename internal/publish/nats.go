package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/wonny/newsdeck/backend/internal/dashboard"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// CacheRebuilt is the event announced after every dashboard cache write.
type CacheRebuilt struct {
	ID           string    `json:"id"`
	GeneratedAt  time.Time `json:"generatedAt"`
	Count        int       `json:"count"`
	LatestScore  *int      `json:"latestScore,omitempty"`
	LatestCommit string    `json:"latestCommit,omitempty"`
}

// NewCacheRebuilt describes p as an event with a fresh id.
func NewCacheRebuilt(p *dashboard.Payload) CacheRebuilt {
	ev := CacheRebuilt{
		ID:          uuid.NewString(),
		GeneratedAt: p.GeneratedAt,
		Count:       p.Summary.Count,
	}
	if len(p.Data) > 0 {
		score := p.Data[0].HealthScore
		ev.LatestScore = &score
		ev.LatestCommit = p.Data[0].CommitHash
	}
	return ev
}

// MessagePublisher is the subset of a NATS connection used here.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// NATS announces cache rebuilds on a subject.
type NATS struct {
	conn    MessagePublisher
	nc      *nats.Conn
	subject string
	logger  *logger.Logger
}

// NewNATS connects to url with reconnect handling.
func NewNATS(url, subject string, log *logger.Logger) (*NATS, error) {
	if log == nil {
		log = logger.Nop()
	}

	nc, err := nats.Connect(url,
		nats.Name("quality"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := NewNATSWithConn(nc, subject, log)
	n.nc = nc
	return n, nil
}

// NewNATSWithConn wraps an existing connection.
func NewNATSWithConn(conn MessagePublisher, subject string, log *logger.Logger) *NATS {
	if log == nil {
		log = logger.Nop()
	}
	return &NATS{
		conn:    conn,
		subject: subject,
		logger:  log,
	}
}

// Publish implements dashboard.Publisher.
func (n *NATS) Publish(_ context.Context, p *dashboard.Payload) error {
	ev := NewCacheRebuilt(p)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	n.logger.WithFields(map[string]interface{}{
		"subject": n.subject,
		"id":      ev.ID,
		"size":    len(data),
	}).Debug("Event published")
	return nil
}

// Close drains and closes the owned connection.
func (n *NATS) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
