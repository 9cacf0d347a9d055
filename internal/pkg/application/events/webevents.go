package events

import (
	"context"
	"net/http"

	gosse "github.com/alexandrevicenzi/go-sse"
)

// WebEvents relays published messages to browsers as server-sent events,
// using the topic name as event type.
type WebEvents interface {
	Publisher
	Handler() http.Handler
}

type webEvents struct {
	s *gosse.Server
}

func NewWebEvents() WebEvents {
	return &webEvents{
		s: gosse.NewServer(&gosse.Options{
			ChannelNameFunc: func(*http.Request) string { return "alerts" },
		}),
	}
}

func (we *webEvents) Handler() http.Handler {
	return we.s
}

func (we *webEvents) Publish(_ context.Context, msg TopicMessage) error {
	we.s.SendMessage("", gosse.NewMessage("", string(msg.Body()), msg.TopicName()))
	return nil
}

func (we *webEvents) Close() error {
	we.s.Shutdown()
	return nil
}
