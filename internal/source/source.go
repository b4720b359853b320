package source

import "github.com/shaunagostinho/geobroker/internal/position"

// Source is the interface for position collaborators. One instance exists
// per accuracy tier. Start/stop calls are idempotent; fixes are delivered
// asynchronously to the subscribed sink until stopped.
type Source interface {
	// Name returns the human-readable name of this source.
	Name() string
	// Tier returns the accuracy tier this source serves.
	Tier() position.Tier
	// Connect opens the underlying transport. Called with retry by main.
	Connect() error
	// Close releases the underlying transport.
	Close() error
	// Available reports whether the source can currently produce fixes.
	Available() bool
	// LastKnown returns the most recent cached fix without blocking.
	LastKnown() (position.Fix, bool)

	StartUpdates()
	StopUpdates()
	StartBestUpdates()
	StopBestUpdates()

	// Subscribe sets the asynchronous fix sink. Must be called before any
	// start call; the sink must not block.
	Subscribe(fn func(position.Fix))
}

// Disabled returns an inert source for a tier the operator has turned off.
// It never becomes available and never delivers fixes, which makes the
// broker's provider gate report unavailability when both tiers use it.
func Disabled(tier position.Tier) Source {
	return &disabledSource{tier: tier}
}

type disabledSource struct {
	tier position.Tier
}

func (d *disabledSource) Name() string                    { return "Disabled (" + d.tier.String() + ")" }
func (d *disabledSource) Tier() position.Tier             { return d.tier }
func (d *disabledSource) Connect() error                  { return nil }
func (d *disabledSource) Close() error                    { return nil }
func (d *disabledSource) Available() bool                 { return false }
func (d *disabledSource) LastKnown() (position.Fix, bool) { return position.Fix{}, false }
func (d *disabledSource) StartUpdates()                   {}
func (d *disabledSource) StopUpdates()                    {}
func (d *disabledSource) StartBestUpdates()               {}
func (d *disabledSource) StopBestUpdates()                {}
func (d *disabledSource) Subscribe(func(position.Fix))    {}
