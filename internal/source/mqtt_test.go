package source

import (
	"testing"

	"github.com/shaunagostinho/geobroker/internal/position"
)

func TestMQTTDecode(t *testing.T) {
	t.Parallel()

	m := NewMQTT(MQTTConfig{BrokerURL: "tcp://localhost:1883"}, position.LowAccuracy)

	payload := []byte(`{"latitude":43.65,"longitude":-79.38,"altitude":76,"accuracy":150,"heading":90,"velocity":4.2,"timestamp":123456}`)
	fix, ok := m.decode(payload, 999999)
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if fix.Latitude != 43.65 || fix.Longitude != -79.38 {
		t.Fatalf("coords = %v,%v", fix.Latitude, fix.Longitude)
	}
	if fix.Accuracy != 150 {
		t.Fatalf("accuracy = %v", fix.Accuracy)
	}
	if !fix.HasAltitude || fix.Altitude != 76 {
		t.Fatalf("altitude = %v (has=%v)", fix.Altitude, fix.HasAltitude)
	}
	if !fix.HasBearing || !fix.HasSpeed {
		t.Fatalf("bearing/speed flags not set")
	}
	if fix.Time != 123456 {
		t.Fatalf("time = %v, want payload timestamp", fix.Time)
	}
	if fix.Source != position.LowAccuracy {
		t.Fatalf("source = %v", fix.Source)
	}
}

func TestMQTTDecodeDefaultsTimestamp(t *testing.T) {
	t.Parallel()

	m := NewMQTT(MQTTConfig{}, position.LowAccuracy)
	fix, ok := m.decode([]byte(`{"latitude":1,"longitude":2,"accuracy":50}`), 7777)
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if fix.Time != 7777 {
		t.Fatalf("time = %v, want receive time", fix.Time)
	}
	if fix.HasAltitude || fix.HasBearing || fix.HasSpeed {
		t.Fatalf("optional flags must stay unset")
	}
}

func TestMQTTDecodeJunkDropped(t *testing.T) {
	t.Parallel()

	m := NewMQTT(MQTTConfig{}, position.LowAccuracy)
	if _, ok := m.decode([]byte(`{not json`), 1); ok {
		t.Fatalf("junk payload must be dropped")
	}
}

func TestDeliveryGating(t *testing.T) {
	t.Parallel()

	var d delivery
	var got []position.Fix
	d.Subscribe(func(f position.Fix) { got = append(got, f) })

	d.deliver(position.Fix{Time: 1})
	if len(got) != 0 {
		t.Fatalf("fix delivered before start")
	}
	if last, ok := d.LastKnown(); !ok || last.Time != 1 {
		t.Fatalf("last-known not cached while stopped")
	}

	d.StartUpdates()
	d.deliver(position.Fix{Time: 2})
	d.StopUpdates()
	d.deliver(position.Fix{Time: 3})
	d.StartBestUpdates()
	d.deliver(position.Fix{Time: 4})
	d.StopBestUpdates()
	d.deliver(position.Fix{Time: 5})

	if len(got) != 2 || got[0].Time != 2 || got[1].Time != 4 {
		t.Fatalf("deliveries = %+v", got)
	}
	if last, _ := d.LastKnown(); last.Time != 5 {
		t.Fatalf("last-known = %v, want newest", last.Time)
	}
}
