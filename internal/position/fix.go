package position

// Tier identifies which source produced a fix. Two tiers exist: a
// high-accuracy, high-power source and a low-accuracy, low-power one.
// Same-source comparisons in the arbiter use tier equality.
type Tier int

const (
	LowAccuracy Tier = iota
	HighAccuracy
)

func (t Tier) String() string {
	if t == HighAccuracy {
		return "high"
	}
	return "low"
}

// Fix is a single position sample with accuracy and time metadata.
// Values are immutable once produced by a source.
type Fix struct {
	Latitude  float64 // Decimal degrees
	Longitude float64 // Decimal degrees
	Altitude  float64 // Meters above MSL, valid only if HasAltitude
	Accuracy  float64 // Radius in meters, smaller is better
	Bearing   float64 // Degrees true, valid only if HasBearing
	Speed     float64 // m/s
	Source    Tier    // Which source produced this fix
	Time      int64   // Capture time, Unix ms

	HasAltitude bool
	HasBearing  bool
	HasSpeed    bool
}

// Report is the wire representation of a Fix sent to applications.
type Report struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Accuracy  float64  `json:"accuracy"`
	Heading   *float64 `json:"heading"`
	Velocity  float64  `json:"velocity"`
	Timestamp int64    `json:"timestamp"`
}

// Report builds the wire form. Heading is reported only when both the
// bearing and speed are valid; altitude is null when absent.
func (f Fix) Report() Report {
	r := Report{
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Accuracy:  f.Accuracy,
		Velocity:  f.Speed,
		Timestamp: f.Time,
	}
	if f.HasAltitude {
		alt := f.Altitude
		r.Altitude = &alt
	}
	if f.HasBearing && f.HasSpeed {
		hdg := f.Bearing
		r.Heading = &hdg
	}
	return r
}
