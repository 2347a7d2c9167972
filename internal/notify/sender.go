// Package notify owns the outbound message pipeline: idempotent dispatch,
// template rendering, the WhatsApp sender and the retry service.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

// Sender delivers one rendered notification and returns the provider's
// message id.
type Sender interface {
	Send(ctx context.Context, n *storage.Notification) (string, error)
}

// TwilioConfig holds the WhatsApp sender credentials and template mapping.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// From is the WhatsApp business number, e.g. "+14155238886".
	From string

	// ContentSIDs maps each notification type to its approved Twilio
	// content template.
	ContentSIDs map[trip.NotificationType]string
}

// TwilioSender sends WhatsApp template messages through the Twilio Content
// API. A circuit breaker fails calls fast while Twilio is down so retries
// land on the backoff schedule instead of piling onto a dead endpoint.
type TwilioSender struct {
	client  *twilio.RestClient
	from    string
	content map[trip.NotificationType]string
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewTwilioSender builds the production sender.
func NewTwilioSender(cfg TwilioConfig, log zerolog.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "twilio",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &TwilioSender{
		client:  client,
		from:    cfg.From,
		content: cfg.ContentSIDs,
		breaker: breaker,
		log:     log,
	}
}

func (s *TwilioSender) Send(ctx context.Context, n *storage.Notification) (string, error) {
	sid, ok := s.content[n.Type]
	if !ok {
		return "", fmt.Errorf("no content template configured for %s", n.Type)
	}

	vars := make(map[string]string, len(n.Variables))
	for i, v := range n.Variables {
		vars[strconv.Itoa(i+1)] = v
	}
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("marshal content variables: %w", err)
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(whatsappAddr(n.Recipient))
	params.SetFrom(whatsappAddr(s.from))
	params.SetContentSid(sid)
	params.SetContentVariables(string(varsJSON))

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.Api.CreateMessage(params)
	})
	if err != nil {
		return "", fmt.Errorf("twilio: %w", err)
	}

	msg, ok := out.(*twilioapi.ApiV2010Message)
	if !ok || msg.Sid == nil {
		return "", errors.New("twilio: response without message sid")
	}
	s.log.Debug().Str("provider_id", *msg.Sid).Str("type", string(n.Type)).Msg("message accepted by twilio")
	return *msg.Sid, nil
}

// whatsappAddr prefixes a number with the whatsapp: scheme unless it already
// has one.
func whatsappAddr(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// LogSender writes messages to the log instead of sending them. Used in
// dry-run mode and in tests.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender builds a sender that only logs.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n *storage.Notification) (string, error) {
	id := "dry-" + uuid.NewString()
	s.log.Info().Str("trip_id", n.TripID).Str("type", string(n.Type)).
		Str("to", n.Recipient).Str("provider_id", id).
		Msg("dry-run send:\n" + n.Body)
	return id, nil
}
