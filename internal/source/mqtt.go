package source

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/shaunagostinho/geobroker/internal/position"
)

// MQTTConfig holds configuration for the MQTT feed source.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url" json:"brokerUrl"`
	ClientID  string `yaml:"client_id" json:"clientId"`
	Topic     string `yaml:"topic" json:"topic"`
}

// MQTTSource consumes position fixes published as JSON on a broker topic.
// This is the network-positioning analogue of a coarse cell fix; it
// normally serves the low-accuracy tier.
type MQTTSource struct {
	delivery

	cfg  MQTTConfig
	tier position.Tier

	connMu sync.Mutex
	client mqtt.Client
}

// mqttFix is the payload shape expected on the topic. It mirrors the wire
// report so a geobroker instance can feed another.
type mqttFix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Accuracy  float64  `json:"accuracy"`
	Heading   *float64 `json:"heading"`
	Velocity  *float64 `json:"velocity"`
	Timestamp int64    `json:"timestamp"`
}

// NewMQTT creates an MQTT feed source for the given tier.
func NewMQTT(cfg MQTTConfig, tier position.Tier) *MQTTSource {
	if cfg.ClientID == "" {
		cfg.ClientID = "geobroker-feed"
	}
	if cfg.Topic == "" {
		cfg.Topic = "geobroker/fixes"
	}
	return &MQTTSource{cfg: cfg, tier: tier}
}

func (m *MQTTSource) Name() string        { return "MQTT Feed" }
func (m *MQTTSource) Tier() position.Tier { return m.tier }

func (m *MQTTSource) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	token := client.Subscribe(m.cfg.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if fix, ok := m.decode(msg.Payload(), time.Now().UnixMilli()); ok {
			m.deliver(fix)
		}
	})
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return token.Error()
	}

	m.connMu.Lock()
	m.client = client
	m.connMu.Unlock()
	log.Printf("[mqtt] subscribed to %s at %s", m.cfg.Topic, m.cfg.BrokerURL)
	return nil
}

func (m *MQTTSource) Close() error {
	m.connMu.Lock()
	client := m.client
	m.client = nil
	m.connMu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
	return nil
}

func (m *MQTTSource) Available() bool {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.client != nil && m.client.IsConnected()
}

// decode parses a topic payload into a Fix. Junk payloads are dropped.
func (m *MQTTSource) decode(payload []byte, nowMs int64) (position.Fix, bool) {
	var raw mqttFix
	if err := json.Unmarshal(payload, &raw); err != nil {
		log.Printf("[mqtt] bad payload: %v", err)
		return position.Fix{}, false
	}

	fix := position.Fix{
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Accuracy:  raw.Accuracy,
		Source:    m.tier,
		Time:      raw.Timestamp,
	}
	if fix.Time == 0 {
		fix.Time = nowMs
	}
	if raw.Altitude != nil {
		fix.Altitude = *raw.Altitude
		fix.HasAltitude = true
	}
	if raw.Velocity != nil {
		fix.Speed = *raw.Velocity
		fix.HasSpeed = true
	}
	if raw.Heading != nil {
		fix.Bearing = *raw.Heading
		fix.HasBearing = true
	}
	return fix, true
}
