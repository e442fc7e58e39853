package republish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/leviton-sync/internal/energy"
	"github.com/nerrad567/leviton-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/leviton-sync/internal/store"
)

// Broker is the slice of the MQTT client the republisher needs.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Commander executes breaker commands arriving over MQTT.
type Commander interface {
	SetBreakerRemote(ctx context.Context, breakerID string, on bool) error
	TripBreaker(ctx context.Context, breakerID string) error
	IdentifyBreaker(ctx context.Context, breakerID string) error
	LiveConnected() bool
}

// Logger is the minimal logging surface used by the republisher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Republisher mirrors the device snapshot onto a local MQTT broker and routes
// command topics back into the engine.
//
// State topics are retained JSON, one per device, published only when the
// serialized payload actually changed. Change notifications are coalesced:
// a burst of merges produces one republish pass.
type Republisher struct {
	broker  Broker
	cmd     Commander
	store   *store.Store
	tracker *energy.Tracker
	logger  Logger

	notify chan struct{}

	mu   sync.Mutex
	last map[string]string // topic -> last published payload
}

// New creates a Republisher. It does not touch the broker until Start.
func New(broker Broker, cmd Commander, st *store.Store, tracker *energy.Tracker, logger Logger) *Republisher {
	return &Republisher{
		broker:  broker,
		cmd:     cmd,
		store:   st,
		tracker: tracker,
		logger:  logger,
		notify:  make(chan struct{}, 1),
		last:    make(map[string]string),
	}
}

// Start subscribes to the command topics, registers for snapshot changes, and
// runs the publish loop until ctx is cancelled. The store registration is
// removed on return.
func (r *Republisher) Start(ctx context.Context) error {
	topics := mqtt.Topics{}

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{topics.AllBreakerSets(), r.handleSet},
		{topics.AllBreakerTrips(), r.handleTrip},
		{topics.AllBreakerIdentifies(), r.handleIdentify},
	}
	for _, s := range subs {
		if err := r.broker.Subscribe(s.topic, 1, s.handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
	}

	remove := r.store.OnChange(func() {
		select {
		case r.notify <- struct{}{}:
		default:
		}
	})
	defer remove()

	// Seed retained topics with the current snapshot.
	r.publishChanged()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.notify:
			r.publishChanged()
		}
	}
}

// breakerMessage is the retained state payload for one breaker. The daily
// field is derived from the midnight baseline, covers both legs of a two-pole
// breaker, and is omitted until a baseline exists.
type breakerMessage struct {
	*store.Breaker
	DailyEnergy *float64 `json:"dailyEnergy,omitempty"`
}

type ctMessage struct {
	*store.Ct
	DailyEnergy *float64 `json:"dailyEnergy,omitempty"`
}

// publishChanged serializes every device and republishes the topics whose
// payload differs from the last publish.
//
// Devices are cloned under the read lock and serialized outside it, since
// Tracker.DailyEnergy takes the same lock.
func (r *Republisher) publishChanged() {
	topics := mqtt.Topics{}

	whems := make(map[string]*store.Whem)
	panels := make(map[string]*store.Panel)
	breakers := make(map[string]*store.Breaker)
	cts := make(map[string]*store.Ct)
	r.store.View(func(d *store.Data) {
		for id, w := range d.Whems {
			whems[id] = w.Clone()
		}
		for id, p := range d.Panels {
			panels[id] = p.Clone()
		}
		for id, b := range d.Breakers {
			breakers[id] = b.Clone()
		}
		for id, c := range d.Cts {
			cts[id] = c.Clone()
		}
	})

	pending := make(map[string][]byte)
	for id, w := range whems {
		addMessage(pending, topics.WhemState(id), w)
	}
	for id, p := range panels {
		addMessage(pending, topics.PanelState(id), p)
	}
	for id, b := range breakers {
		msg := breakerMessage{
			Breaker:     b,
			DailyEnergy: r.tracker.BreakerDailyEnergy(id, b),
		}
		addMessage(pending, topics.BreakerState(id), msg)
	}
	for id, c := range cts {
		msg := ctMessage{
			Ct:          c,
			DailyEnergy: r.tracker.CtDailyEnergy(id, c),
		}
		addMessage(pending, topics.CtState(id), msg)
	}

	mode := "polling"
	if r.cmd.LiveConnected() {
		mode = "live"
	}
	pending[topics.SystemSync()] = []byte(mode)

	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, payload := range pending {
		if r.last[topic] == string(payload) {
			continue
		}
		if err := r.broker.PublishRetained(topic, payload); err != nil {
			r.logger.Warn("republish failed", "topic", topic, "error", err)
			continue
		}
		r.last[topic] = string(payload)
	}
}

// addMessage marshals v into pending under topic, logging nothing: the store
// types marshal cleanly and an encode failure here would be a programming error.
func addMessage(pending map[string][]byte, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	pending[topic] = payload
}

// handleSet routes levsync/breaker/{id}/set. Payload is ON or OFF,
// case-insensitive.
func (r *Republisher) handleSet(topic string, payload []byte) error {
	id, ok := breakerIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed command topic %q", topic)
	}

	var on bool
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "ON", "1", "TRUE":
		on = true
	case "OFF", "0", "FALSE":
		on = false
	default:
		return fmt.Errorf("breaker %s: unrecognized set payload %q", id, payload)
	}

	if err := r.cmd.SetBreakerRemote(context.Background(), id, on); err != nil {
		r.logger.Warn("breaker set command failed", "breaker_id", id, "on", on, "error", err)
		return err
	}
	r.logger.Debug("breaker set command applied", "breaker_id", id, "on", on)
	return nil
}

// handleTrip routes levsync/breaker/{id}/trip. The payload is ignored.
func (r *Republisher) handleTrip(topic string, _ []byte) error {
	id, ok := breakerIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed command topic %q", topic)
	}
	if err := r.cmd.TripBreaker(context.Background(), id); err != nil {
		r.logger.Warn("breaker trip command failed", "breaker_id", id, "error", err)
		return err
	}
	return nil
}

// handleIdentify routes levsync/breaker/{id}/identify. The payload is ignored.
func (r *Republisher) handleIdentify(topic string, _ []byte) error {
	id, ok := breakerIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed command topic %q", topic)
	}
	if err := r.cmd.IdentifyBreaker(context.Background(), id); err != nil {
		r.logger.Warn("breaker identify command failed", "breaker_id", id, "error", err)
		return err
	}
	return nil
}

// breakerIDFromTopic extracts the id segment from levsync/breaker/{id}/{verb}.
func breakerIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != mqtt.TopicPrefix || parts[1] != "breaker" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
