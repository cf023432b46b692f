package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/booxclash/booxclash/go/internal/knockout/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string        // Prefix; each gateway instance gets its own consumer
	InstanceID    string        // Empty picks a random ID at startup
	SubjectFilter string        // e.g., "knockout.events.>"
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int           // Max messages pending ack
	MaxReconnects int
	ReconnectWait time.Duration
	// How long the server keeps an instance's consumer after it goes away
	InactiveThreshold time.Duration
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "KNOCKOUT_EVENTS",
		ConsumerName:  "knockout-gateway",
		SubjectFilter: "knockout.events.>",
		MaxDeliver:    3,
		AckWait:       10 * time.Second,
		MaxAckPending: 1000,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,

		InactiveThreshold: 5 * time.Minute,
	}
}

// Broadcaster fans a room event out to local clients
type Broadcaster interface {
	Emit(event *events.RoomEvent)
}

// EventConsumer relays room events from JetStream to WebSocket clients
type EventConsumer struct {
	broadcaster Broadcaster
	nc          *nats.Conn
	js          jetstream.JetStream
	consumer    jetstream.Consumer
	config      JetStreamConsumerConfig
}

// NewEventConsumer creates a new JetStream event consumer
func NewEventConsumer(ctx context.Context, broadcaster Broadcaster, config JetStreamConsumerConfig) (*EventConsumer, error) {
	nc, err := connectNATS(config.URL, config.MaxReconnects, config.ReconnectWait)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ec := newEventConsumer(broadcaster, config)
	ec.nc = nc
	ec.js = js

	if err := ec.ensureConsumer(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

func newEventConsumer(broadcaster Broadcaster, config JetStreamConsumerConfig) *EventConsumer {
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}
	return &EventConsumer{
		broadcaster: broadcaster,
		config:      config,
	}
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	// Live relay: a restarted gateway does not replay old rooms. Every
	// instance consumes the whole stream because any of them may hold a
	// room's sockets.
	name := ec.consumerName()
	consumerConfig := jetstream.ConsumerConfig{
		Name:              name,
		Description:       "Knockout gateway WebSocket relay",
		InactiveThreshold: ec.config.InactiveThreshold,
		FilterSubject:     ec.config.SubjectFilter,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        ec.config.MaxDeliver,
		AckWait:           ec.config.AckWait,
		MaxAckPending:     ec.config.MaxAckPending,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", name).
		Str("stream", ec.config.StreamName).
		Msg("JetStream consumer ready")

	ec.consumer = consumer
	return nil
}

// Start begins consuming events from JetStream
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.consumerName()).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg.Subject(), msg.Data()); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				// a malformed event will never decode; do not redeliver it
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (ec *EventConsumer) consumerName() string {
	return ec.config.ConsumerName + "-" + ec.config.InstanceID
}

func (ec *EventConsumer) processMessage(subject string, data []byte) error {
	var event events.RoomEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("unmarshal room event: %w", err)
	}
	if event.RoomID == "" {
		return fmt.Errorf("room event %q has no room id", event.ID)
	}
	if _, err := events.DecodePayload(&event); err != nil {
		return err
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("room_id", event.RoomID).
		Str("event_type", string(event.Type)).
		Str("subject", subject).
		Msg("relaying JetStream event")

	ec.broadcaster.Emit(&event)
	return nil
}

// Stop gracefully shuts down the event consumer
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")

	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
