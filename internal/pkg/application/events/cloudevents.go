package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const eventSource string = "github.com/diwise/threshold-alerts"

type cloudEventSender struct {
	client      cloudevents.Client
	subscribers map[string][]SubscriberConfig
}

// NewCloudEventSender posts events as CloudEvents over HTTP to the subscribers
// configured for the event type, i.e. the topic name of the message.
func NewCloudEventSender(cfg *Config) (Publisher, error) {
	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, err
	}

	e := &cloudEventSender{
		client:      c,
		subscribers: make(map[string][]SubscriberConfig),
	}

	if cfg != nil {
		for _, s := range cfg.Notifications {
			e.subscribers[s.Type] = append(e.subscribers[s.Type], s.Subscribers...)
		}
	}

	return e, nil
}

func (e *cloudEventSender) Publish(ctx context.Context, msg TopicMessage) error {
	subscribers, ok := e.subscribers[msg.TopicName()]
	if !ok || len(subscribers) == 0 {
		return nil
	}

	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetTime(time.Now().UTC())
	event.SetSource(eventSource)
	event.SetType(msg.TopicName())

	err := event.SetData(msg.ContentType(), msg.Body())
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)

	for _, s := range subscribers {
		ctxWithTarget := cloudevents.ContextWithTarget(ctx, s.Endpoint)

		result := e.client.Send(ctxWithTarget, event)
		if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
			logger.Error().Err(result).Msgf("failed to send event to %s", s.Endpoint)
			err = fmt.Errorf("%w", result)
		}
	}

	return err
}

func (e *cloudEventSender) Close() error {
	return nil
}
