// Package emax implements the client for the Emax weather-station cloud
// API: login/session handling, the realtime, history and device-list
// endpoints, and the wire models for the loosely-typed vendor payload.
package emax

import "encoding/json"

// Sensor type codes used in sensorDatas entries.
const (
	TypeTemperature = 1
	TypeHumidity    = 2
	TypeWindSpeed   = 3
	TypeRainfall    = 4
	TypeNoise       = 5
	TypeLight       = 6
	TypePressure    = 7
)

// Sentinel values the vendor uses for "no reading available". They appear
// both as integers and floats in the payload.
const (
	SentinelWord = 65535
	SentinelByte = 255
)

// envelope is the common response wrapper for all vendor endpoints.
// status is a stringified code where "0" means success; content carries the
// endpoint-specific payload.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Content json.RawMessage `json:"content"`
}

// SensorData is one entry of the realtime sensorDatas list. Entries may
// share a channel (different types) or a type (different channels). The
// per-metric sub-structures are kept as raw maps because their field sets
// vary by firmware; the station package maps descriptor keys onto them.
type SensorData struct {
	Channel      int            `json:"channel"`
	Type         int            `json:"type"`
	CurVal       *float64       `json:"curVal"`
	WindVals     map[string]any `json:"devWindVal"`
	RainfallVals map[string]any `json:"devRainfullVals"`
	NoiseVals    map[string]any `json:"devNoiseVals"`
	LightVals    map[string]any `json:"devLightVals"`
}

// Snapshot is the decoded content of one realtime response.
type Snapshot struct {
	SensorDatas []SensorData `json:"sensorDatas"`

	// Atmos is the station-level barometric pressure, used as a fallback
	// when no per-channel pressure sensor reports.
	Atmos *float64 `json:"atmos"`

	DeviceMac      string   `json:"deviceMac"`
	UpdateTime     string   `json:"updateTime"`
	DevTimezone    *float64 `json:"devTimezone"`
	DevTime        string   `json:"devTime"`
	WirelessStatus *float64 `json:"wirelessStatus"`
	PowerStatus    *float64 `json:"powerStatus"`
	WeatherStatus  *float64 `json:"weatherStatus"`
}
