// Package events publishes history entries as they are recorded so a printer
// can follow a run while it happens.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const HistoryTopic = "history"

// HistoryBus is an in-process pub/sub for history entries. Publishing blocks
// until every subscriber acked, which keeps entries in order.
type HistoryBus struct {
	pubsub *gochannel.GoChannel
	topic  string
}

func NewHistoryBus(logger watermill.LoggerAdapter) *HistoryBus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &HistoryBus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, logger),
		topic: HistoryTopic,
	}
}

func (b *HistoryBus) Publish(e session.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not encode history entry")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("agent", e.Agent)
	msg.Metadata.Set("type", string(e.Type))
	if err := b.pubsub.Publish(b.topic, msg); err != nil {
		return errors.Wrap(err, "could not publish history entry")
	}
	return nil
}

// Attach publishes every entry appended to h.
func (b *HistoryBus) Attach(h *session.History) {
	h.OnAppend(func(e session.Entry) {
		if err := b.Publish(e); err != nil {
			log.Warn().Err(err).Str("agent", e.Agent).Msg("could not publish history entry")
		}
	})
}

// Subscribe returns the entries published from now on. The channel is closed
// when ctx is done or the bus is closed.
func (b *HistoryBus) Subscribe(ctx context.Context) (<-chan session.Entry, error) {
	msgs, err := b.pubsub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, errors.Wrap(err, "could not subscribe to history")
	}

	out := make(chan session.Entry)
	go func() {
		defer close(out)
		for msg := range msgs {
			var e session.Entry
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				log.Warn().Err(err).Str("uuid", msg.UUID).Msg("dropping undecodable history entry")
				msg.Ack()
				continue
			}
			select {
			case out <- e:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

func (b *HistoryBus) Close() error {
	return b.pubsub.Close()
}
