package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"tripwatch/internal/bus"
	"tripwatch/internal/metrics"
	"tripwatch/internal/registry"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

// Cooldown window for repeated DELAYED sends, and the estimate move that
// breaks through it.
const (
	delayedCooldown       = 15 * time.Minute
	cooldownOverrideDelta = 15 * time.Minute
)

// Publisher emits egress events about notification outcomes. *bus.Bus
// satisfies it; nil disables egress.
type Publisher interface {
	Publish(subject string, data any) error
}

// WeatherProvider returns a one-line destination forecast, or "" when no
// forecast is available.
type WeatherProvider interface {
	Forecast(ctx context.Context, iata string, at time.Time) string
}

// Config wires the notification pipeline.
type Config struct {
	Store    storage.Store
	Sender   Sender
	Registry *registry.Registry // nil means registry.Default()
	Weather  WeatherProvider
	Bus      Publisher
	Metrics  *metrics.Metrics
	Clock    clockwork.Clock // nil means the real clock
	Log      zerolog.Logger

	// RetryEvery is the retry service scan interval.
	RetryEvery time.Duration
}

// Dispatcher runs the idempotent send pipeline, one notification at a time.
type Dispatcher struct {
	store   storage.Store
	sender  Sender
	reg     *registry.Registry
	weather WeatherProvider
	bus     Publisher
	metrics *metrics.Metrics
	clock   clockwork.Clock
	log     zerolog.Logger
}

// New builds a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		store:   cfg.Store,
		sender:  cfg.Sender,
		reg:     cfg.Registry,
		weather: cfg.Weather,
		bus:     cfg.Bus,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		log:     cfg.Log,
	}
}

// IdempotencyKey derives the stable dedupe key for one notification. The
// hashed payload is canonical: fixed field order, sorted map keys. The same
// logical notification always produces the same key, on any process.
func IdempotencyKey(tripID string, typ trip.NotificationType, extra map[string]string) string {
	if extra == nil {
		extra = map[string]string{}
	}
	payload := struct {
		Extra  map[string]string `json:"extra"`
		TripID string            `json:"trip_id"`
		Type   string            `json:"type"`
	}{extra, tripID, string(typ)}

	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// extraFor builds the idempotency discriminator. Delay and gate messages key
// on the value that changed, so each new value sends exactly once; everything
// else sends once per trip and type.
func extraFor(typ trip.NotificationType, in registry.Input) map[string]string {
	switch typ {
	case trip.NotifDelayed:
		if in.NewDeparture != nil {
			return map[string]string{"estimated_out": in.NewDeparture.UTC().Format(time.RFC3339)}
		}
	case trip.NotifGateChange:
		if in.NewGate != "" {
			return map[string]string{"gate": in.NewGate}
		}
	}
	return map[string]string{}
}

// Dispatch runs one notification through the pipeline. A nil error means the
// notification was sent, deferred to quiet hours, suppressed, or handed to
// the retry service; only infrastructure failures before the send surface as
// errors.
func (d *Dispatcher) Dispatch(ctx context.Context, t *trip.Trip, typ trip.NotificationType, in registry.Input) error {
	in.Trip = t
	extra := extraFor(typ, in)
	key := IdempotencyKey(t.ID, typ, extra)
	log := d.log.With().Str("trip_id", t.ID).Str("type", string(typ)).Str("key", key).Logger()

	existing, err := d.store.LookupNotification(ctx, t.ID, key)
	if err != nil {
		return fmt.Errorf("lookup notification: %w", err)
	}
	if existing != nil {
		log.Debug().Str("state", string(existing.State)).Msg("notification already logged, skipping")
		return nil
	}

	if typ == trip.NotifDelayed {
		suppressed, err := d.suppressedByCooldown(ctx, t, in)
		if err != nil {
			return err
		}
		if suppressed {
			log.Info().Msg("delay notification suppressed by cooldown")
			d.metrics.Notification(string(typ), "cooldown")
			return nil
		}
	}

	now := d.clock.Now().UTC()
	if typ == trip.NotifReminder24h && InQuietHours(now, t.Origin) {
		runAt := NextAllowedSend(now, t.Origin)
		job := &storage.Job{
			TripID:  t.ID,
			Kind:    storage.JobDeferredNotification,
			RunAt:   runAt,
			Payload: map[string]string{"type": string(typ)},
		}
		if err := d.store.ScheduleJob(ctx, job); err != nil {
			return fmt.Errorf("defer notification: %w", err)
		}
		log.Info().Time("run_at", runAt).Msg("quiet hours, reminder deferred")
		d.metrics.Notification(string(typ), "deferred")
		return nil
	}

	renderer, ok := d.reg.ByType(typ)
	if !ok {
		return fmt.Errorf("no renderer registered for %s", typ)
	}
	if typ == trip.NotifReminder24h && in.Weather == "" && d.weather != nil {
		at := t.DepartureUTC
		if t.EstimatedIn != nil {
			at = *t.EstimatedIn
		}
		in.Weather = d.weather.Forecast(ctx, t.Destination, at)
	}
	vars := renderer.Vars(in)

	n := &storage.Notification{
		TripID:         t.ID,
		Type:           typ,
		IdempotencyKey: key,
		State:          trip.NotifStatePending,
		Recipient:      t.WhatsApp,
		Body:           renderer.Render(vars),
		Variables:      vars,
		Extra:          extra,
	}
	if err := d.store.LogNotification(ctx, n); err != nil {
		if storage.IsAlreadyLogged(err) {
			log.Debug().Msg("lost the insert race, another worker owns this notification")
			return nil
		}
		return fmt.Errorf("log notification: %w", err)
	}

	d.deliver(ctx, n, log)
	return nil
}

// suppressedByCooldown reports whether this DELAYED send falls inside the
// cooldown window of the previous one without moving the estimate enough to
// matter.
func (d *Dispatcher) suppressedByCooldown(ctx context.Context, t *trip.Trip, in registry.Input) (bool, error) {
	last, err := d.store.LastNotificationOfType(ctx, t.ID, trip.NotifDelayed)
	if err != nil {
		return false, fmt.Errorf("last delayed notification: %w", err)
	}
	if last == nil || last.State != trip.NotifStateSent || last.SentAt == nil {
		return false, nil
	}
	if d.clock.Now().UTC().Sub(*last.SentAt) >= delayedCooldown {
		return false, nil
	}

	// Inside the window. Only a real move of the estimate breaks through.
	if in.NewDeparture == nil {
		return true, nil
	}
	prev, err := time.Parse(time.RFC3339, last.Extra["estimated_out"])
	if err != nil {
		return true, nil
	}
	diff := in.NewDeparture.Sub(prev)
	if diff < 0 {
		diff = -diff
	}
	return diff < cooldownOverrideDelta, nil
}

// deliver sends a freshly logged PENDING row and records the outcome. Send
// failures do not bubble up: the row goes to FAILED and the retry service
// owns it from there.
func (d *Dispatcher) deliver(ctx context.Context, n *storage.Notification, log zerolog.Logger) {
	providerID, err := d.sender.Send(ctx, n)
	now := d.clock.Now().UTC()
	if err != nil {
		retryAt := now.Add(RetryDelay(n.Attempts + 1))
		if mErr := d.store.MarkNotificationRetry(ctx, n.ID, retryAt, err.Error()); mErr != nil {
			log.Error().Err(mErr).Msg("failed to record send failure")
		}
		d.metrics.Notification(string(n.Type), "failed")
		publish(d.bus, log, bus.SubjectNotificationFailed, bus.NotificationEvent{
			TripID: n.TripID, Type: string(n.Type), Error: err.Error(),
		})
		log.Warn().Err(err).Time("next_retry_at", retryAt).Msg("send failed, queued for retry")
		return
	}

	if err := d.store.UpdateNotificationState(ctx, n.ID, trip.NotifStateSent, &now, providerID, ""); err != nil {
		log.Error().Err(err).Msg("sent but state update failed")
		return
	}
	_ = d.store.LogConversation(ctx, storage.ConversationMessage{
		TripID: n.TripID, Direction: "out", Body: n.Body,
	})
	d.metrics.Notification(string(n.Type), "sent")
	publish(d.bus, log, bus.SubjectNotificationSent, bus.NotificationEvent{
		TripID: n.TripID, Type: string(n.Type), ProviderID: providerID,
	})
	log.Info().Str("provider_id", providerID).Msg("notification sent")
}

func publish(b Publisher, log zerolog.Logger, subject string, data any) {
	if b == nil {
		return
	}
	if err := b.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("egress publish failed")
	}
}
