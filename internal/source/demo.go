package source

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shaunagostinho/geobroker/internal/position"
)

// DemoSource generates simulated fixes for testing without hardware.
// It drives in a circle around a fixed point; the high tier reports tight
// accuracy, the low tier coarse accuracy with more jitter.
type DemoSource struct {
	delivery

	tier     position.Tier
	interval time.Duration

	mu        sync.Mutex
	connected bool
	stop      chan struct{}
	t         float64
}

// NewDemo creates a simulated source for the given tier.
func NewDemo(tier position.Tier) *DemoSource {
	return &DemoSource{tier: tier, interval: time.Second}
}

func (d *DemoSource) Name() string        { return "Demo (Simulated " + d.tier.String() + ")" }
func (d *DemoSource) Tier() position.Tier { return d.tier }

func (d *DemoSource) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil
	}
	d.connected = true
	d.stop = make(chan struct{})
	go d.run(d.stop)
	return nil
}

func (d *DemoSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil
	}
	d.connected = false
	close(d.stop)
	return nil
}

func (d *DemoSource) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *DemoSource) run(stop chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.deliver(d.synthesize())
		}
	}
}

func (d *DemoSource) synthesize() position.Fix {
	d.mu.Lock()
	d.t += 1
	t := d.t
	d.mu.Unlock()

	// Simulate driving in a circle around a point
	centerLat := 43.6532 // Toronto
	centerLon := -79.3832
	radius := 0.005 // ~500m

	accuracy := 8 + rand.Float64()*10
	if d.tier == position.LowAccuracy {
		accuracy = 80 + rand.Float64()*300
	}

	return position.Fix{
		Latitude:    centerLat + radius*math.Sin(t*0.1),
		Longitude:   centerLon + radius*math.Cos(t*0.1),
		Altitude:    76,
		HasAltitude: true,
		Accuracy:    accuracy,
		Bearing:     math.Mod(t*10, 360),
		HasBearing:  true,
		Speed:       14 + 8*math.Sin(t*0.3),
		HasSpeed:    true,
		Source:      d.tier,
		Time:        time.Now().UnixMilli(),
	}
}
