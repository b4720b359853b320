package source

import (
	"bufio"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"

	"github.com/shaunagostinho/geobroker/internal/position"
)

// Knots to m/s.
const knots = 0.514444

// hdopBaselineM converts HDOP into an accuracy radius estimate. Consumer
// GPS modules are typically within ~5 m at HDOP 1.
const hdopBaselineM = 5.0

// NMEAConfig holds configuration for the serial NMEA source.
type NMEAConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// NMEASource reads NMEA 0183 sentences from a UART GPS and delivers fixes.
// Compatible with u-blox NEO-M8N and any standard NMEA GPS. This is the
// high-accuracy, high-power tier.
type NMEASource struct {
	delivery

	portPath string
	baudRate int
	tier     position.Tier

	connMu    sync.Mutex
	port      serial.Port
	connected bool
	closing   bool

	// Altitude/HDOP arrive on GGA while position/speed arrive on RMC, so
	// the two are merged across sentences.
	partial partialFix
}

type partialFix struct {
	altitude    float64
	hasAltitude bool
	hdop        float64
	hasHDOP     bool
}

// NewNMEA creates a serial NMEA source for the given tier.
func NewNMEA(cfg NMEAConfig, tier position.Tier) *NMEASource {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600 // Standard NMEA default
	}
	return &NMEASource{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		tier:     tier,
	}
}

func (n *NMEASource) Name() string        { return "NMEA GPS" }
func (n *NMEASource) Tier() position.Tier { return n.tier }

func (n *NMEASource) Connect() error {
	mode := &serial.Mode{
		BaudRate: n.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(n.portPath, mode)
	if err != nil {
		return fmt.Errorf("nmea: failed to open %s: %w", n.portPath, err)
	}
	port.SetReadTimeout(200 * time.Millisecond)

	n.connMu.Lock()
	n.port = port
	n.connected = true
	n.closing = false
	n.connMu.Unlock()

	go n.readLoop(port)
	log.Printf("[nmea] connected to %s at %d baud", n.portPath, n.baudRate)
	return nil
}

func (n *NMEASource) Close() error {
	n.connMu.Lock()
	n.closing = true
	n.connected = false
	port := n.port
	n.port = nil
	n.connMu.Unlock()

	if port != nil {
		return port.Close()
	}
	return nil
}

func (n *NMEASource) Available() bool {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	return n.connected
}

func (n *NMEASource) readLoop(port serial.Port) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}
		if fix, ok := n.parseSentence(line, time.Now().UnixMilli()); ok {
			n.deliver(fix)
		}
	}

	n.connMu.Lock()
	closing := n.closing
	n.connected = false
	n.connMu.Unlock()
	if !closing {
		log.Printf("[nmea] read loop ended: %v", scanner.Err())
	}
}

// parseSentence consumes one NMEA sentence. GGA sentences update the
// partial altitude/HDOP state; a valid RMC completes a fix.
func (n *NMEASource) parseSentence(line string, nowMs int64) (position.Fix, bool) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		// Noisy receivers emit partial sentences; skip quietly.
		return position.Fix{}, false
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		n.partial.altitude = m.Altitude
		n.partial.hasAltitude = m.FixQuality != "0"
		n.partial.hdop = m.HDOP
		n.partial.hasHDOP = m.HDOP > 0
		return position.Fix{}, false

	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != "A" {
			return position.Fix{}, false
		}
		fix := position.Fix{
			Latitude:   m.Latitude,
			Longitude:  m.Longitude,
			Speed:      m.Speed * knots,
			HasSpeed:   true,
			Bearing:    m.Course,
			HasBearing: true,
			Accuracy:   hdopBaselineM,
			Source:     n.tier,
			Time:       nowMs,
		}
		if n.partial.hasHDOP {
			fix.Accuracy = n.partial.hdop * hdopBaselineM
		}
		if n.partial.hasAltitude {
			fix.Altitude = n.partial.altitude
			fix.HasAltitude = true
		}
		return fix, true
	}
	return position.Fix{}, false
}
