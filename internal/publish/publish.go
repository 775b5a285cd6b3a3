package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/newsdeck/backend/internal/dashboard"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// Multi fans a payload out to several publishers. Every publisher is tried;
// failures are logged and returned joined.
type Multi struct {
	publishers []dashboard.Publisher
	logger     *logger.Logger
}

// NewMulti creates a fan-out over the non-nil publishers.
func NewMulti(log *logger.Logger, publishers ...dashboard.Publisher) *Multi {
	if log == nil {
		log = logger.Nop()
	}
	m := &Multi{logger: log}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Len returns the number of configured publishers.
func (m *Multi) Len() int {
	return len(m.publishers)
}

// Publish implements dashboard.Publisher.
func (m *Multi) Publish(ctx context.Context, p *dashboard.Payload) error {
	var errs []error
	for _, pub := range m.publishers {
		if err := pub.Publish(ctx, p); err != nil {
			m.logger.WithFields(map[string]interface{}{
				"publisher": fmt.Sprintf("%T", pub),
				"error":     err.Error(),
			}).Warn("Publisher failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
