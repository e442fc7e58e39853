package discovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/leviton-sync/internal/leviton"
	"github.com/nerrad567/leviton-sync/internal/store"
)

// Client is the transport surface discovery needs.
type Client interface {
	GetPermissions(ctx context.Context) ([]leviton.Permission, error)
	GetResidences(ctx context.Context, accountID int) ([]store.Residence, error)
	GetWhems(ctx context.Context, residenceID int) ([]store.Whem, error)
	GetWhemBreakers(ctx context.Context, whemID string) ([]store.Breaker, error)
	GetCts(ctx context.Context, whemID string) ([]store.Ct, error)
	GetPanels(ctx context.Context, residenceID int) ([]store.Panel, error)
	GetPanelBreakers(ctx context.Context, panelID string) ([]store.Breaker, error)
	SetWhemBandwidth(ctx context.Context, whemID string, mode int) error
	SetPanelStreaming(ctx context.Context, panelID string, enabled bool) error
}

// Logger is the logging interface used by the discoverer.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Discoverer walks the account's device tree: permissions to residences,
// residences to hubs and panels, hubs to breakers and CT channels, panels
// to breakers.
//
// Failures below the top level drop only that subtree. Only the initial
// permissions fetch can fail the whole walk; everything underneath is
// logged and skipped so one dead hub cannot hide the rest of the account.
type Discoverer struct {
	client      Client
	settleDelay time.Duration
	logger      Logger
}

// New creates a discoverer. settleDelay is how long to wait after a
// bandwidth reset before reading energy from the same device.
func New(client Client, settleDelay time.Duration, logger Logger) *Discoverer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Discoverer{client: client, settleDelay: settleDelay, logger: logger}
}

// Discover performs a full topology walk and returns a fresh snapshot.
// The result replaces any previous snapshot wholesale, never merges.
func (d *Discoverer) Discover(ctx context.Context) (*store.Data, error) {
	permissions, err := d.client.GetPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching permissions: %w", err)
	}

	data := store.NewData()
	residenceIDs := d.resolveResidences(ctx, permissions, data)
	d.logger.Debug("resolved residences", "count", len(residenceIDs))

	for _, residenceID := range residenceIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.discoverResidence(ctx, residenceID, data)
	}
	return data, nil
}

// resolveResidences unions the two residence sources in the permission
// set: permissions naming a residence directly (admin or shared access)
// and permissions naming an account whose residences are fetched in a
// second hop (owner access).
func (d *Discoverer) resolveResidences(ctx context.Context, permissions []leviton.Permission, data *store.Data) []int {
	seen := make(map[int]bool)
	var ids []int
	add := func(id int) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	accountIDs := make(map[int]bool)
	for _, perm := range permissions {
		if perm.ResidenceID != nil {
			add(*perm.ResidenceID)
		}
		if perm.ResidentialAccountID != nil {
			accountIDs[*perm.ResidentialAccountID] = true
		}
	}

	for accountID := range accountIDs {
		residences, err := d.client.GetResidences(ctx, accountID)
		if err != nil {
			d.logger.Warn("failed to fetch residences for account",
				"account_id", accountID, "error", err)
			continue
		}
		for i := range residences {
			res := residences[i]
			data.Residences[res.ID] = &res
			add(res.ID)
		}
	}
	return ids
}

// discoverResidence fills in one residence's hubs, panels, and their
// children. Every branch is independently guarded.
func (d *Discoverer) discoverResidence(ctx context.Context, residenceID int, data *store.Data) {
	d.logger.Debug("discovering residence", "residence_id", residenceID)

	whems, err := d.client.GetWhems(ctx, residenceID)
	if err != nil {
		d.logger.Warn("failed to fetch hubs for residence",
			"residence_id", residenceID, "error", err)
	} else {
		for i := range whems {
			whem := whems[i]
			data.Whems[whem.ID] = &whem
			d.discoverWhemChildren(ctx, whem.ID, data)
		}
	}

	panels, err := d.client.GetPanels(ctx, residenceID)
	if err != nil {
		d.logger.Warn("failed to fetch panels for residence",
			"residence_id", residenceID, "error", err)
		return
	}
	for i := range panels {
		panel := panels[i]
		data.Panels[panel.ID] = &panel
		d.discoverPanelBreakers(ctx, panel.ID, data)
	}
}

func (d *Discoverer) discoverWhemChildren(ctx context.Context, whemID string, data *store.Data) {
	// Reset bandwidth before reading children so the REST API returns
	// lifetime energy, not deltas from a previous session that left
	// streaming on. The mode change needs real time to take effect;
	// reading before the settle window closes yields delta values that
	// would poison the lifetime cache.
	if err := d.client.SetWhemBandwidth(ctx, whemID, store.BandwidthQuiet); err != nil {
		d.logger.Debug("failed to reset bandwidth for hub", "whem_id", whemID, "error", err)
	} else if err := d.settle(ctx); err != nil {
		return
	}

	breakers, err := d.client.GetWhemBreakers(ctx, whemID)
	if err != nil {
		d.logger.Warn("failed to fetch breakers for hub", "whem_id", whemID, "error", err)
	} else {
		for i := range breakers {
			breaker := breakers[i]
			data.Breakers[breaker.ID] = &breaker
		}
		d.logger.Debug("discovered hub breakers", "whem_id", whemID, "count", len(breakers))
	}

	cts, err := d.client.GetCts(ctx, whemID)
	if err != nil {
		d.logger.Warn("failed to fetch CT channels for hub", "whem_id", whemID, "error", err)
		return
	}
	for i := range cts {
		ct := cts[i]
		data.Cts[strconv.Itoa(ct.ID)] = &ct
	}
	d.logger.Debug("discovered hub CT channels", "whem_id", whemID, "count", len(cts))
}

func (d *Discoverer) discoverPanelBreakers(ctx context.Context, panelID string, data *store.Data) {
	if err := d.client.SetPanelStreaming(ctx, panelID, false); err != nil {
		d.logger.Debug("failed to reset streaming for panel", "panel_id", panelID, "error", err)
	} else if err := d.settle(ctx); err != nil {
		return
	}

	breakers, err := d.client.GetPanelBreakers(ctx, panelID)
	if err != nil {
		d.logger.Warn("failed to fetch breakers for panel", "panel_id", panelID, "error", err)
		return
	}
	for i := range breakers {
		breaker := breakers[i]
		data.Breakers[breaker.ID] = &breaker
	}
	d.logger.Debug("discovered panel breakers", "panel_id", panelID, "count", len(breakers))
}

// settle blocks for the bandwidth settle window, or until ctx cancels.
func (d *Discoverer) settle(ctx context.Context) error {
	timer := time.NewTimer(d.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
