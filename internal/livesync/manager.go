package livesync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/leviton-sync/internal/energy"
	"github.com/nerrad567/leviton-sync/internal/leviton"
	"github.com/nerrad567/leviton-sync/internal/store"
)

// Client is the transport surface the manager needs besides the socket.
// GetPermissions doubles as the cheap session-validation probe used before
// each reconnection attempt.
type Client interface {
	GetPermissions(ctx context.Context) ([]leviton.Permission, error)
	SetWhemBandwidth(ctx context.Context, whemID string, mode int) error
	SetPanelStreaming(ctx context.Context, panelID string, enabled bool) error
}

// Socket is the push-channel surface the manager needs.
type Socket interface {
	Connect(ctx context.Context) error
	Disconnect()
	Subscribe(modelName, modelID string) error
	OnNotification(fn func(leviton.Notification)) func()
	OnDisconnect(fn func()) func()
}

// SocketFactory produces a fresh socket bound to the current session.
type SocketFactory func() (Socket, error)

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config carries the manager's timing policy.
type Config struct {
	// WatchdogInterval is how often socket silence is checked.
	WatchdogInterval time.Duration
	// StalenessThreshold is the silence span that forces a reconnect.
	StalenessThreshold time.Duration
	// ProactiveRefreshInterval is the connection age at which the socket
	// is cycled ahead of the server-side push cutoff.
	ProactiveRefreshInterval time.Duration
	// BandwidthKeepaliveInterval is how often hub bandwidth is toggled to
	// keep CT channels pushing at high frequency.
	BandwidthKeepaliveInterval time.Duration
	// ReconnectDelays is the backoff schedule for reconnection attempts.
	// The sequence is attempted once; exhaustion leaves polling in charge.
	ReconnectDelays []time.Duration
}

// Manager owns the live update channel: socket lifecycle, hub and breaker
// subscriptions, notification merging into the store, and the recovery
// machinery (silence watchdog, proactive refresh, backoff reconnect).
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - At most one reconnection sequence runs at a time; watchdog and
//     disconnect-handler triggers that race an in-flight sequence are
//     suppressed.
type Manager struct {
	client    Client
	newSocket SocketFactory
	store     *store.Store
	cfg       Config
	logger    Logger

	// onAuthExpired fires when a reconnection attempt discovers the
	// session is no longer valid. Optional.
	onAuthExpired func()

	mu           sync.Mutex
	sock         Socket
	removeNotif  func()
	removeDisc   func()
	lastActivity time.Time
	reconnecting bool
	timersCancel context.CancelFunc
}

// NewManager creates a live-sync manager. The factory is called once per
// connection attempt so each socket binds the freshest session token.
func NewManager(client Client, factory SocketFactory, st *store.Store, cfg Config, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		client:    client,
		newSocket: factory,
		store:     st,
		cfg:       cfg,
		logger:    logger,
	}
}

// OnAuthExpired registers a callback fired when reconnection discovers an
// expired session. Must be called before Connect.
func (m *Manager) OnAuthExpired(fn func()) {
	m.onAuthExpired = fn
}

// Connected reports whether the live channel is currently up.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sock != nil
}

// Connect brings the live channel up: socket, subscriptions, bandwidth
// priming, and the maintenance timers. A connection failure is not an
// error; the engine stays on polling and the next trigger retries.
//
// ctx must outlive the connection: the maintenance timers and any
// recovery it spawns run under it.
func (m *Manager) Connect(ctx context.Context) error {
	sock, err := m.newSocket()
	if err != nil {
		m.logger.Warn("cannot create push socket", "error", err)
		return nil
	}
	if err := sock.Connect(ctx); err != nil {
		if errors.Is(err, leviton.ErrAuth) {
			return err
		}
		m.logger.Warn("push connection failed, staying on polling", "error", err)
		return nil
	}
	m.logger.Debug("push channel connected")

	removeNotif := sock.OnNotification(m.handleNotification)
	removeDisc := sock.OnDisconnect(func() { m.handleDisconnect(ctx) })

	m.mu.Lock()
	m.sock = sock
	m.removeNotif = removeNotif
	m.removeDisc = removeDisc
	m.lastActivity = time.Now()
	m.mu.Unlock()

	var whemIDs, panelIDs []string
	whemVersions := make(map[string]string)
	breakersByWhem := make(map[string][]string)
	m.store.View(func(d *store.Data) {
		for id, whem := range d.Whems {
			whemIDs = append(whemIDs, id)
			whemVersions[id] = whem.Version
		}
		for id := range d.Panels {
			panelIDs = append(panelIDs, id)
		}
		for id, breaker := range d.Breakers {
			if breaker.IotWhemID != "" {
				breakersByWhem[breaker.IotWhemID] = append(breakersByWhem[breaker.IotWhemID], id)
			}
		}
	})

	// Prime each hub with a streaming toggle so fresh data pushes
	// immediately instead of waiting for the next server-side emission,
	// then subscribe.
	for _, whemID := range whemIDs {
		if err := m.toggleBandwidth(ctx, whemID); err != nil {
			m.logger.Warn("bandwidth prime failed for hub", "whem_id", whemID, "error", err)
		}
		if err := sock.Subscribe("IotWhem", whemID); err != nil {
			m.logger.Warn("hub subscription failed", "whem_id", whemID, "error", err)
		}
	}

	for _, panelID := range panelIDs {
		if err := m.client.SetPanelStreaming(ctx, panelID, true); err != nil {
			m.logger.Warn("streaming enable failed for panel", "panel_id", panelID, "error", err)
		}
		if err := sock.Subscribe("ResidentialBreakerPanel", panelID); err != nil {
			m.logger.Warn("panel subscription failed", "panel_id", panelID, "error", err)
		}
	}

	// Hubs on newer firmware stopped nesting breaker updates inside their
	// own notifications; those need one subscription per breaker. CT
	// channels ride the hub subscription on all firmware.
	for _, whemID := range whemIDs {
		version := whemVersions[whemID]
		if !NeedsIndividualBreakerSubs(version) {
			m.logger.Debug("hub subscription covers breakers",
				"whem_id", whemID, "version", version)
			continue
		}
		for _, breakerID := range breakersByWhem[whemID] {
			if err := sock.Subscribe("ResidentialBreaker", breakerID); err != nil {
				m.logger.Warn("breaker subscription failed", "breaker_id", breakerID, "error", err)
			}
		}
	}

	m.startTimers(ctx, len(whemIDs) > 0)
	return nil
}

// Shutdown tears the live channel down and, best effort, returns every
// hub and panel to quiet bandwidth so the next session starts from
// lifetime reporting.
func (m *Manager) Shutdown(ctx context.Context) {
	sock := m.detach()

	var whemIDs, panelIDs []string
	m.store.View(func(d *store.Data) {
		for id := range d.Whems {
			whemIDs = append(whemIDs, id)
		}
		for id := range d.Panels {
			panelIDs = append(panelIDs, id)
		}
	})
	for _, panelID := range panelIDs {
		if err := m.client.SetPanelStreaming(ctx, panelID, false); err != nil {
			m.logger.Debug("failed to quiet panel on shutdown", "panel_id", panelID, "error", err)
		}
	}
	for _, whemID := range whemIDs {
		if err := m.client.SetWhemBandwidth(ctx, whemID, store.BandwidthQuiet); err != nil {
			m.logger.Debug("failed to quiet hub on shutdown", "whem_id", whemID, "error", err)
		}
	}

	if sock != nil {
		sock.Disconnect()
	}
}

// detach removes handlers, stops timers, and releases the socket without
// disconnecting it. The caller decides what to do with the returned
// socket. Removing the disconnect handler first matters: a deliberate
// teardown must never be mistaken for a drop and trigger recovery.
func (m *Manager) detach() Socket {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeDisc != nil {
		m.removeDisc()
		m.removeDisc = nil
	}
	if m.removeNotif != nil {
		m.removeNotif()
		m.removeNotif = nil
	}
	if m.timersCancel != nil {
		m.timersCancel()
		m.timersCancel = nil
	}
	sock := m.sock
	m.sock = nil
	return sock
}

func (m *Manager) toggleBandwidth(ctx context.Context, whemID string) error {
	// The hub only pushes fresh readings on a 0 -> 1 transition; once it
	// auto-reverts to settled mode, re-sending 1 alone does nothing.
	for _, mode := range []int{store.BandwidthStreaming, store.BandwidthQuiet, store.BandwidthStreaming} {
		if err := m.client.SetWhemBandwidth(ctx, whemID, mode); err != nil {
			return err
		}
	}
	return nil
}

// startTimers runs the three maintenance loops under ctx: proactive
// refresh, silence watchdog, and (when hubs exist) bandwidth keepalive.
func (m *Manager) startTimers(ctx context.Context, hasWhems bool) {
	timerCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.timersCancel != nil {
		m.timersCancel()
	}
	m.timersCancel = cancel
	m.mu.Unlock()

	go m.runTicker(timerCtx, m.cfg.ProactiveRefreshInterval, func() { m.proactiveRefresh(ctx) })
	go m.runTicker(timerCtx, m.cfg.WatchdogInterval, func() { m.watchdog(ctx) })
	if hasWhems {
		go m.runTicker(timerCtx, m.cfg.BandwidthKeepaliveInterval, func() { m.bandwidthKeepalive(ctx) })
	}
}

func (m *Manager) runTicker(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// proactiveRefresh cycles the socket before the server's push cutoff.
// The service stops delivering push notifications once a connection is
// about an hour old no matter what traffic it carries, so the socket is
// replaced while it is still healthy.
func (m *Manager) proactiveRefresh(ctx context.Context) {
	if !m.Connected() {
		return
	}
	m.logger.Debug("proactive push refresh")
	if sock := m.detach(); sock != nil {
		sock.Disconnect()
	}
	if err := m.Connect(ctx); err != nil {
		m.logger.Warn("proactive refresh reconnect failed", "error", err)
	}
}

// watchdog forces a reconnect when the socket has been silent past the
// staleness threshold. Catches connections the server abandoned without
// closing.
func (m *Manager) watchdog(ctx context.Context) {
	m.mu.Lock()
	if m.sock == nil || m.reconnecting {
		m.mu.Unlock()
		return
	}
	silence := time.Since(m.lastActivity)
	m.mu.Unlock()

	if silence < m.cfg.StalenessThreshold {
		return
	}
	m.logger.Warn("push channel silent, forcing reconnect",
		"silence_seconds", int(silence.Seconds()))
	if sock := m.detach(); sock != nil {
		sock.Disconnect()
	}
	go m.reconnect(ctx)
}

// bandwidthKeepalive re-toggles every hub so CT channels keep pushing at
// high frequency instead of their settled-mode trickle.
func (m *Manager) bandwidthKeepalive(ctx context.Context) {
	if !m.Connected() {
		return
	}
	var whemIDs []string
	m.store.View(func(d *store.Data) {
		for id := range d.Whems {
			whemIDs = append(whemIDs, id)
		}
	})
	for _, whemID := range whemIDs {
		if err := m.toggleBandwidth(ctx, whemID); err != nil {
			m.logger.Warn("bandwidth keepalive failed", "whem_id", whemID, "error", err)
		}
	}
}

// handleDisconnect reacts to an unexpected socket drop.
func (m *Manager) handleDisconnect(ctx context.Context) {
	m.logger.Warn("push channel disconnected, polling carries sync")
	m.detach()
	go m.reconnect(ctx)
}

// reconnect walks the backoff schedule. Before each attempt the session is
// validated with a cheap REST probe, since the socket handshake cannot
// distinguish an expired session from a down service. Exhausting the
// schedule leaves polling in charge until an external trigger reconnects.
func (m *Manager) reconnect(ctx context.Context) {
	m.mu.Lock()
	if m.reconnecting {
		m.mu.Unlock()
		m.logger.Debug("reconnection already in progress")
		return
	}
	m.reconnecting = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()
	}()

	for attempt, delay := range m.cfg.ReconnectDelays {
		m.logger.Debug("scheduling reconnection attempt",
			"attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if _, err := m.client.GetPermissions(ctx); err != nil {
			if errors.Is(err, leviton.ErrAuth) {
				m.logger.Warn("session expired during reconnection", "error", err)
				if m.onAuthExpired != nil {
					m.onAuthExpired()
				}
				return
			}
			m.logger.Debug("service unreachable during reconnection",
				"attempt", attempt+1, "error", err)
			continue
		}

		if err := m.Connect(ctx); err != nil {
			m.logger.Debug("reconnection attempt failed",
				"attempt", attempt+1, "error", err)
			continue
		}
		if m.Connected() {
			m.logger.Info("push channel reconnected", "attempt", attempt+1)
			return
		}
	}
	m.logger.Warn("reconnection attempts exhausted, staying on polling")
}

// handleNotification merges one push notification into the store.
func (m *Manager) handleNotification(n leviton.Notification) {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()

	if len(n.Data) == 0 || n.ModelID == nil {
		m.logger.Debug("notification dropped: empty payload",
			"model_name", n.ModelName)
		return
	}
	modelID := modelIDString(n.ModelID)

	changed := false
	m.store.Update(func(d *store.Data) {
		switch n.ModelName {
		case "IotWhem":
			changed = m.applyWhemNotification(d, modelID, n.Data)
		case "ResidentialBreakerPanel":
			changed = m.applyPanelNotification(d, modelID, n.Data)
		case "ResidentialBreaker":
			changed = m.applyBreakerUpdate(d, modelID, n.Data)
		case "IotCt":
			changed = m.applyCtUpdate(d, modelID, n.Data)
		default:
			m.logger.Debug("notification ignored: unknown model",
				"model_name", n.ModelName, "model_id", modelID)
		}
	})

	if changed {
		m.store.NotifyChange()
	}
}

// applyWhemNotification handles a hub notification: child breaker and CT
// arrays first, then the hub's own fields.
func (m *Manager) applyWhemNotification(d *store.Data, whemID string, payload map[string]any) bool {
	changed := false

	if children, ok := payload["ResidentialBreaker"].([]any); ok {
		for _, raw := range children {
			child, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			id, _ := child["id"].(string)
			if m.applyBreakerUpdate(d, id, child) {
				changed = true
			}
		}
	}
	if children, ok := payload["IotCt"].([]any); ok {
		for _, raw := range children {
			child, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if m.applyCtUpdate(d, modelIDString(child["id"]), child) {
				changed = true
			}
		}
	}

	own := make(map[string]any)
	for k, v := range payload {
		if k != "ResidentialBreaker" && k != "IotCt" {
			own[k] = v
		}
	}
	if whem, ok := d.Whems[whemID]; ok && len(own) > 0 {
		if whem.ApplyUpdate(own) {
			changed = true
		}
	}
	return changed
}

func (m *Manager) applyPanelNotification(d *store.Data, panelID string, payload map[string]any) bool {
	changed := false

	if children, ok := payload["ResidentialBreaker"].([]any); ok {
		for _, raw := range children {
			child, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			id, _ := child["id"].(string)
			if m.applyBreakerUpdate(d, id, child) {
				changed = true
			}
		}
	}

	own := make(map[string]any)
	for k, v := range payload {
		if k != "ResidentialBreaker" {
			own[k] = v
		}
	}
	if panel, ok := d.Panels[panelID]; ok && len(own) > 0 {
		if panel.ApplyUpdate(own) {
			changed = true
		}
	}
	return changed
}

// applyBreakerUpdate merges one breaker payload: energy fields are
// normalized against the current lifetime values, and a software trip is
// synthesized for first-generation breakers that report a remote trip
// without an explicit state (they cannot be remotely re-energized, and
// the service leaves currentState unset on their trip notifications).
func (m *Manager) applyBreakerUpdate(d *store.Data, breakerID string, payload map[string]any) bool {
	breaker, ok := d.Breakers[breakerID]
	if !ok || breakerID == "" {
		return false
	}
	energy.NormalizeBreakerEnergy(payload, breaker)
	if tripped, _ := payload["remoteTrip"].(bool); tripped && !breaker.CanRemoteOn {
		if _, present := payload["currentState"]; !present {
			payload["currentState"] = store.BreakerStateSoftwareTrip
		}
	}
	return breaker.ApplyUpdate(payload)
}

func (m *Manager) applyCtUpdate(d *store.Data, ctID string, payload map[string]any) bool {
	ct, ok := d.Cts[ctID]
	if !ok {
		return false
	}
	energy.NormalizeCtEnergy(payload, ct)
	return ct.ApplyUpdate(payload)
}

// modelIDString renders a notification model id, which the wire delivers
// as either a string or a JSON number.
func modelIDString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.Itoa(int(v))
	default:
		return ""
	}
}
