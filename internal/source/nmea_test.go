package source

import (
	"fmt"
	"math"
	"testing"

	"github.com/shaunagostinho/geobroker/internal/position"
)

// sentence appends a computed NMEA checksum to a sentence body.
func sentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

func TestParseRMCProducesFix(t *testing.T) {
	t.Parallel()

	n := NewNMEA(NMEAConfig{PortPath: "/dev/ttyGPS"}, position.HighAccuracy)
	line := sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")

	fix, ok := n.parseSentence(line, 5000)
	if !ok {
		t.Fatalf("expected a fix from valid RMC")
	}
	if math.Abs(fix.Latitude-48.1173) > 0.0001 {
		t.Fatalf("latitude = %v", fix.Latitude)
	}
	if math.Abs(fix.Longitude-11.5167) > 0.0001 {
		t.Fatalf("longitude = %v", fix.Longitude)
	}
	if math.Abs(fix.Speed-22.4*knots) > 0.001 {
		t.Fatalf("speed = %v, want %v m/s", fix.Speed, 22.4*knots)
	}
	if !fix.HasBearing || math.Abs(fix.Bearing-84.4) > 0.001 {
		t.Fatalf("bearing = %v (has=%v)", fix.Bearing, fix.HasBearing)
	}
	if fix.Source != position.HighAccuracy {
		t.Fatalf("source = %v", fix.Source)
	}
	if fix.Time != 5000 {
		t.Fatalf("time = %v, want capture timestamp", fix.Time)
	}
}

func TestParseGGAMergesAltitudeAndAccuracy(t *testing.T) {
	t.Parallel()

	n := NewNMEA(NMEAConfig{PortPath: "/dev/ttyGPS"}, position.HighAccuracy)
	gga := sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	rmc := sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")

	if _, ok := n.parseSentence(gga, 1000); ok {
		t.Fatalf("GGA alone must not complete a fix")
	}
	fix, ok := n.parseSentence(rmc, 2000)
	if !ok {
		t.Fatalf("expected a fix")
	}
	if !fix.HasAltitude || math.Abs(fix.Altitude-545.4) > 0.001 {
		t.Fatalf("altitude = %v (has=%v)", fix.Altitude, fix.HasAltitude)
	}
	if math.Abs(fix.Accuracy-0.9*hdopBaselineM) > 0.001 {
		t.Fatalf("accuracy = %v, want HDOP-derived", fix.Accuracy)
	}
}

func TestParseRMCVoidFixDropped(t *testing.T) {
	t.Parallel()

	n := NewNMEA(NMEAConfig{PortPath: "/dev/ttyGPS"}, position.HighAccuracy)
	line := sentence("GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	if _, ok := n.parseSentence(line, 1000); ok {
		t.Fatalf("void RMC must not produce a fix")
	}
}

func TestParseGarbageDropped(t *testing.T) {
	t.Parallel()

	n := NewNMEA(NMEAConfig{PortPath: "/dev/ttyGPS"}, position.HighAccuracy)
	for _, line := range []string{
		"$GPRMC,123519,A,4807.038,N*00", // bad checksum
		"not a sentence",
		"$",
	} {
		if _, ok := n.parseSentence(line, 1000); ok {
			t.Fatalf("expected drop for %q", line)
		}
	}
}
