package server

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/shaunagostinho/geobroker/internal/position"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"get location", `{"action":"getLocation","callbackId":"cb1","enableHighAccuracy":true,"maximumAge":5000,"timeout":10000}`, false},
		{"add watch", `{"action":"addWatch","id":"w1","enableHighAccuracy":false}`, false},
		{"clear watch", `{"action":"clearWatch","id":"w1"}`, false},
		{"best position", `{"action":"watchBestPosition","callbackId":"cb2"}`, false},
		{"lifecycle", `{"action":"pause"}`, false},
		{"missing action", `{"callbackId":"cb1"}`, true},
		{"unknown action", `{"action":"teleport"}`, true},
		{"get location without callback", `{"action":"getLocation"}`, true},
		{"add watch without id", `{"action":"addWatch"}`, true},
		{"clear watch without id", `{"action":"clearWatch"}`, true},
		{"negative timeout", `{"action":"getLocation","callbackId":"cb1","timeout":-1}`, true},
		{"not json", `getLocation`, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseCommand([]byte(tt.raw))
			if tt.wantErr && err == nil {
				t.Fatalf("ParseCommand(%s) succeeded, want error", tt.raw)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("ParseCommand(%s): %v", tt.raw, err)
			}
		})
	}
}

func TestParseCommandFields(t *testing.T) {
	t.Parallel()

	cmd, err := ParseCommand([]byte(`{"action":"getLocation","callbackId":"cb9","enableHighAccuracy":true,"maximumAge":3000,"timeout":7000}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.Action != "getLocation" || cmd.CallbackID != "cb9" {
		t.Fatalf("cmd = %+v", cmd)
	}
	if !cmd.EnableHighAccuracy || cmd.MaximumAge != 3000 || cmd.Timeout != 7000 {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestResultResponseFix(t *testing.T) {
	t.Parallel()

	f := position.Fix{
		Latitude: 43.65, Longitude: -79.38, Accuracy: 10,
		Source: position.HighAccuracy, Time: 1000,
	}
	data := resultResponse("cb1", "", &f, nil, false)

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Status != "ok" || r.CallbackID != "cb1" || r.KeepCallback {
		t.Fatalf("response = %+v", r)
	}
	if r.Position == nil || r.Position.Latitude != 43.65 {
		t.Fatalf("position = %+v", r.Position)
	}
}

func TestResultResponseError(t *testing.T) {
	t.Parallel()

	data := resultResponse("cb1", "", nil, position.Unavailable(), true)

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Status != "error" || r.Position != nil {
		t.Fatalf("response = %+v", r)
	}
	if r.Error == nil || r.Error.Code != position.CodeUnavailable {
		t.Fatalf("error = %+v", r.Error)
	}
	// Errors always terminate the callback.
	if r.KeepCallback {
		t.Fatal("error response must not keep the callback open")
	}
}

func TestEncodeResponseFallback(t *testing.T) {
	t.Parallel()

	bad := position.Fix{Latitude: math.NaN()}
	data := resultResponse("cb1", "", &bad, nil, false)
	if !json.Valid(data) {
		t.Fatalf("fallback payload is not valid JSON: %s", data)
	}
	if !strings.Contains(string(data), "malformed position result") {
		t.Fatalf("payload = %s", data)
	}
}
