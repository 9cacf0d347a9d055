package events

import (
	"context"
	"fmt"

	"github.com/diwise/messaging-golang/pkg/messaging"
)

// TopicPublisher is the part of a messaging.MsgContext needed to publish events.
type TopicPublisher interface {
	PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error
}

type messagingPublisher struct {
	messenger TopicPublisher
	onClose   func()
}

// NewMessagingPublisher publishes events on the message broker, routed by topic name.
// onClose is called when the publisher is closed and may be nil.
func NewMessagingPublisher(messenger TopicPublisher, onClose func()) Publisher {
	if onClose == nil {
		onClose = func() {}
	}
	return &messagingPublisher{messenger: messenger, onClose: onClose}
}

func (p *messagingPublisher) Publish(ctx context.Context, msg TopicMessage) error {
	err := p.messenger.PublishOnTopic(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.TopicName(), err)
	}
	return nil
}

func (p *messagingPublisher) Close() error {
	p.onClose()
	return nil
}
