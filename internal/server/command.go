package server

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/shaunagostinho/geobroker/internal/position"
)

//go:embed command_schema.json
var commandSchemaJSON string

var commandSchema = jsonschema.MustCompileString("command_schema.json", commandSchemaJSON)

// Command is one bridge request from a WebSocket client.
type Command struct {
	Action             string `json:"action"`
	CallbackID         string `json:"callbackId,omitempty"`
	ID                 string `json:"id,omitempty"`
	EnableHighAccuracy bool   `json:"enableHighAccuracy,omitempty"`
	MaximumAge         int64  `json:"maximumAge,omitempty"` // ms
	Timeout            int64  `json:"timeout,omitempty"`    // ms
}

// ParseCommand validates a raw message against the command schema and
// decodes it.
func ParseCommand(data []byte) (Command, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	if err := commandSchema.Validate(generic); err != nil {
		return Command{}, fmt.Errorf("invalid command: %w", err)
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// response is one bridge message sent back to a client.
type response struct {
	CallbackID   string           `json:"callbackId,omitempty"`
	ID           string           `json:"id,omitempty"`
	Status       string           `json:"status"` // "ok" or "error"
	Position     *position.Report `json:"position,omitempty"`
	Error        *position.Error  `json:"error,omitempty"`
	Message      string           `json:"message,omitempty"`
	KeepCallback bool             `json:"keepCallback"`
}

// encodeResponse serializes a response, degrading to a hand-built error
// payload when the fix cannot be marshalled (NaN/Inf coordinates).
func encodeResponse(r response) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return position.FallbackJSON(position.CodeUnavailable, "malformed position result")
	}
	return data
}

// resultResponse builds the wire message for a broker callback outcome.
func resultResponse(callbackID, id string, f *position.Fix, e *position.Error, keep bool) []byte {
	r := response{CallbackID: callbackID, ID: id, KeepCallback: keep}
	if e != nil {
		r.Status = "error"
		r.Error = e
		r.KeepCallback = false
	} else {
		r.Status = "ok"
		rep := f.Report()
		r.Position = &rep
	}
	return encodeResponse(r)
}
