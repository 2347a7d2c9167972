// Package bus wraps the NATS connection used for egress events about trips
// and notifications, and for the ingress subjects the daemon listens on.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subjects carried on the bus.
const (
	SubjectTripCreated        = "tripwatch.trip.created"
	SubjectTripUpdated        = "tripwatch.trip.updated"
	SubjectNotificationSent   = "tripwatch.notification.sent"
	SubjectNotificationFailed = "tripwatch.notification.failed"
	SubjectItineraryGenerate  = "tripwatch.itinerary.generate"
	SubjectItineraryReady     = "tripwatch.itinerary.ready"
)

// Envelope wraps every published payload with identity and timing so
// consumers can dedupe redeliveries and order what they see.
type Envelope struct {
	ID      string          `json:"id"`
	Subject string          `json:"subject"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data"`
}

// TripEvent is the payload for trip.created and trip.updated.
type TripEvent struct {
	TripID       string `json:"trip_id"`
	FlightNumber string `json:"flight_number,omitempty"`
	Status       string `json:"status,omitempty"`
}

// NotificationEvent is the payload for notification.sent and
// notification.failed.
type NotificationEvent struct {
	TripID     string `json:"trip_id"`
	Type       string `json:"type"`
	ProviderID string `json:"provider_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ItineraryEvent is the payload for itinerary.generate and itinerary.ready.
// Content is set by the generator on the ready leg.
type ItineraryEvent struct {
	TripID      string `json:"trip_id"`
	Destination string `json:"destination,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Config holds the NATS connection settings.
type Config struct {
	// URL is the NATS server URL, e.g. "nats://localhost:4222".
	URL string

	// Name identifies this client on the server.
	Name string
}

// Bus is a thin publisher/subscriber over one NATS connection.
type Bus struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// Connect dials NATS with unlimited reconnects. Connection state changes are
// logged, not surfaced: the nats client buffers publishes across reconnects.
func Connect(cfg Config, log zerolog.Logger) (*Bus, error) {
	name := cfg.Name
	if name == "" {
		name = "tripwatch"
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Info().Str("url", cfg.URL).Str("name", name).Msg("connected to nats")
	return &Bus{conn: nc, log: log}, nil
}

// Publish wraps data in an envelope and publishes it on subject.
func (b *Bus) Publish(subject string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		ID:      uuid.NewString(),
		Subject: subject,
		At:      time.Now().UTC(),
		Data:    raw,
	}
	buf, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.conn.Publish(subject, buf); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	b.log.Debug().Str("subject", subject).Str("event_id", env.ID).Msg("published")
	return nil
}

// Subscribe invokes handle with the unwrapped payload of each message on
// subject. Raw, unenveloped messages are passed through as-is so external
// producers do not have to know the envelope.
func (b *Bus) Subscribe(subject string, handle func(data []byte)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err == nil && len(env.Data) > 0 {
			handle(env.Data)
			return
		}
		handle(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.log.Info().Str("subject", subject).Msg("subscribed")
	return sub, nil
}

// Close drains the connection so buffered publishes flush before shutdown.
func (b *Bus) Close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.log.Warn().Err(err).Msg("nats drain failed, closing hard")
		b.conn.Close()
	}
}
