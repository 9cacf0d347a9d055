package events

import (
	"context"
	"errors"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/metrics"
)

// TopicMessage is anything that can be published as an event, such as
// types.AlertCreated and types.AlertResolved.
type TopicMessage interface {
	messaging.TopicMessage
	Body() []byte
}

type Publisher interface {
	Publish(ctx context.Context, msg TopicMessage) error
	Close() error
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return &noopPublisher{}
}

func (noopPublisher) Publish(context.Context, TopicMessage) error { return nil }
func (noopPublisher) Close() error                                { return nil }

type multiPublisher struct {
	publishers []Publisher
}

// Combine fans every message out to all publishers. A failing publisher does
// not stop delivery to the remaining ones.
func Combine(publishers ...Publisher) Publisher {
	return &multiPublisher{publishers: publishers}
}

func (m *multiPublisher) Publish(ctx context.Context, msg TopicMessage) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// PublishAll publishes messages after the state they describe has been
// committed. Failures are logged and counted but never returned, the
// committed state stands regardless of delivery.
func PublishAll(ctx context.Context, p Publisher, messages ...TopicMessage) {
	logger := logging.GetFromContext(ctx)

	for _, msg := range messages {
		err := p.Publish(ctx, msg)
		if err != nil {
			metrics.EventsPublishFailed.WithLabelValues(msg.TopicName()).Inc()
			logger.Error().Err(err).Str("topic", msg.TopicName()).Msg("failed to publish event")
		}
	}
}

type SubscriberConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type Notification struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

type Config struct {
	Notifications []Notification `yaml:"notifications"`
}
