package notify

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"tripwatch/internal/bus"
	"tripwatch/internal/metrics"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

// Retry policy for failed sends.
const (
	retryBase   = 2 * time.Second
	retryFactor = 2
	retryCap    = 5 * time.Minute

	// MaxSendAttempts is the total number of delivery attempts before a
	// notification parks as permanently failed.
	MaxSendAttempts = 5

	defaultRetryEvery = 10 * time.Second
	retryBatch        = 50
)

// RetryDelay returns the wait after the given send attempt fails (1-based):
// 2s, 4s, 8s, ... capped at 5 minutes.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := retryBase
	for i := 1; i < attempt; i++ {
		d *= retryFactor
		if d >= retryCap {
			return retryCap
		}
	}
	return d
}

// RetryService re-sends FAILED notifications on their backoff schedule. It
// never re-renders: the logged body and variables are what gets retried.
type RetryService struct {
	store   storage.Store
	sender  Sender
	bus     Publisher
	metrics *metrics.Metrics
	clock   clockwork.Clock
	log     zerolog.Logger
	every   time.Duration
}

// NewRetryService builds the retry loop from the same wiring as the
// dispatcher.
func NewRetryService(cfg Config) *RetryService {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = defaultRetryEvery
	}
	return &RetryService{
		store:   cfg.Store,
		sender:  cfg.Sender,
		bus:     cfg.Bus,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		log:     cfg.Log,
		every:   cfg.RetryEvery,
	}
}

// Run scans for due retries until ctx is done.
func (s *RetryService) Run(ctx context.Context) error {
	s.log.Info().Dur("every", s.every).Msg("notification retry service started")
	ticker := s.clock.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the due FAILED rows.
func (s *RetryService) Sweep(ctx context.Context) {
	due, err := s.store.PendingRetries(ctx, s.clock.Now().UTC(), MaxSendAttempts, retryBatch)
	if err != nil {
		s.log.Error().Err(err).Msg("retry scan failed")
		return
	}
	for i := range due {
		s.retry(ctx, &due[i])
	}
}

func (s *RetryService) retry(ctx context.Context, n *storage.Notification) {
	log := s.log.With().Str("trip_id", n.TripID).Str("type", string(n.Type)).
		Int("attempt", n.Attempts+1).Logger()

	providerID, err := s.sender.Send(ctx, n)
	now := s.clock.Now().UTC()
	if err != nil {
		retryAt := now.Add(RetryDelay(n.Attempts + 1))
		if mErr := s.store.MarkNotificationRetry(ctx, n.ID, retryAt, err.Error()); mErr != nil {
			log.Error().Err(mErr).Msg("failed to record retry failure")
			return
		}
		s.metrics.Notification(string(n.Type), "retry_failed")
		if n.Attempts+1 >= MaxSendAttempts {
			log.Error().Err(err).Msg("notification failed permanently")
			publish(s.bus, log, bus.SubjectNotificationFailed, bus.NotificationEvent{
				TripID: n.TripID, Type: string(n.Type), Error: err.Error(),
			})
			return
		}
		log.Warn().Err(err).Time("next_retry_at", retryAt).Msg("retry failed")
		return
	}

	if err := s.store.UpdateNotificationState(ctx, n.ID, trip.NotifStateSent, &now, providerID, ""); err != nil {
		log.Error().Err(err).Msg("sent but state update failed")
		return
	}
	_ = s.store.LogConversation(ctx, storage.ConversationMessage{
		TripID: n.TripID, Direction: "out", Body: n.Body,
	})
	s.metrics.Notification(string(n.Type), "sent")
	publish(s.bus, log, bus.SubjectNotificationSent, bus.NotificationEvent{
		TripID: n.TripID, Type: string(n.Type), ProviderID: providerID,
	})
	log.Info().Str("provider_id", providerID).Msg("notification sent on retry")
}
