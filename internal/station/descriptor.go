// Package station turns raw Emax snapshots into a flat, queryable set of
// normalized readings keyed by (channel, sensor key). All functions here
// are pure: they never mutate the snapshot and identical inputs always
// produce identical output.
package station

import (
	"time"

	"github.com/hweber/emax-station/internal/emax"
)

// ExtractorKind selects the extraction strategy for a descriptor.
type ExtractorKind int

const (
	// ExtractCustom reads a device-level field straight off the snapshot.
	ExtractCustom ExtractorKind = iota
	// ExtractScalar matches (type, channel) and reads the flat curVal.
	ExtractScalar
	// ExtractWind applies the wind channel-selection rules, then reads a
	// field from the nested devWindVal structure.
	ExtractWind
	// ExtractNested matches (type, channel) and reads a field from the
	// per-type nested sub-structure (rainfall, noise, light).
	ExtractNested
)

// Descriptor is the static definition of one logical sensor. The catalog
// below is fixed, process-wide configuration; descriptors are never
// created at runtime.
type Descriptor struct {
	Key        string
	Unit       string
	SensorType int  // 0 means no sensorDatas type is associated
	PerChannel bool // enumerated for every discovered channel
	Kind       ExtractorKind

	// Fields names the nested sub-structure fields to try, in preference
	// order; the first present, non-sentinel value wins.
	Fields []string

	// FlatFallback lets a wind descriptor fall back to the entry's flat
	// curVal when the nested field is absent.
	FlatFallback bool

	// Convert is applied to every extracted value before it is returned.
	Convert func(float64) float64

	// Custom extracts a channel-independent value from the snapshot.
	Custom func(*emax.Snapshot) any
}

// fahrenheitToCelsius converts the raw temperature scalar. The device
// reports Fahrenheit regardless of its configured display unit, so the
// conversion is unconditional.
func fahrenheitToCelsius(v float64) float64 {
	return (v - 32) * 5 / 9
}

// Descriptors is the full sensor catalog.
var Descriptors = []Descriptor{
	{Key: "temperature", Unit: "°C", SensorType: emax.TypeTemperature, PerChannel: true, Kind: ExtractScalar, Convert: fahrenheitToCelsius},
	{Key: "humidity", Unit: "%", SensorType: emax.TypeHumidity, PerChannel: true, Kind: ExtractScalar},

	// Pressure has no per-channel sensor type on most stations; the
	// resolver falls back to the station-level atmos field.
	{Key: "pressure", Unit: "hPa", Kind: ExtractScalar},

	{Key: "wind_speed", Unit: "m/s", SensorType: emax.TypeWindSpeed, PerChannel: true, Kind: ExtractWind, Fields: []string{"currWindSpeed"}, FlatFallback: true},
	{Key: "wind_speed_hour", Unit: "m/s", SensorType: emax.TypeWindSpeed, PerChannel: true, Kind: ExtractWind, Fields: []string{"hourWindSpeed"}},
	{Key: "wind_speed_day", Unit: "m/s", SensorType: emax.TypeWindSpeed, PerChannel: true, Kind: ExtractWind, Fields: []string{"dayWindSpeed"}},
	{Key: "wind_speed_week", Unit: "m/s", SensorType: emax.TypeWindSpeed, PerChannel: true, Kind: ExtractWind, Fields: []string{"weekWindSpeed"}},
	{Key: "wind_speed_month", Unit: "m/s", SensorType: emax.TypeWindSpeed, PerChannel: true, Kind: ExtractWind, Fields: []string{"monthWindSpeed"}},
	{Key: "wind_speed_year", Unit: "m/s", SensorType: emax.TypeWindSpeed, PerChannel: true, Kind: ExtractWind, Fields: []string{"yearWindSpeed"}},
	{Key: "wind_direction", Unit: "°", SensorType: emax.TypeWindSpeed, PerChannel: true, Kind: ExtractWind, Fields: []string{"windDirection"}},

	{Key: "rainfall", Unit: "mm", SensorType: emax.TypeRainfall, PerChannel: true, Kind: ExtractNested, Fields: []string{"totalRainfull"}},
	{Key: "rainfall_month", Unit: "mm", SensorType: emax.TypeRainfall, PerChannel: true, Kind: ExtractNested, Fields: []string{"monthRainfull"}},
	{Key: "rainfall_year", Unit: "mm", SensorType: emax.TypeRainfall, PerChannel: true, Kind: ExtractNested, Fields: []string{"yearRainfull"}},

	// The bare noise key takes the first available aggregate.
	{Key: "noise", Unit: "dB", SensorType: emax.TypeNoise, PerChannel: true, Kind: ExtractNested, Fields: []string{"hourNoiseAvg", "dayNoiseAvg", "hourNoiseMax", "dayNoiseMax"}},
	{Key: "noise_hour_avg", Unit: "dB", SensorType: emax.TypeNoise, PerChannel: true, Kind: ExtractNested, Fields: []string{"hourNoiseAvg"}},
	{Key: "noise_hour_max", Unit: "dB", SensorType: emax.TypeNoise, PerChannel: true, Kind: ExtractNested, Fields: []string{"hourNoiseMax"}},
	{Key: "noise_day_avg", Unit: "dB", SensorType: emax.TypeNoise, PerChannel: true, Kind: ExtractNested, Fields: []string{"dayNoiseAvg"}},
	{Key: "noise_day_max", Unit: "dB", SensorType: emax.TypeNoise, PerChannel: true, Kind: ExtractNested, Fields: []string{"dayNoiseMax"}},

	{Key: "light", Unit: "lux", SensorType: emax.TypeLight, PerChannel: true, Kind: ExtractNested, Fields: []string{"curLightIntensity"}},
	{Key: "light_hour", Unit: "lux", SensorType: emax.TypeLight, PerChannel: true, Kind: ExtractNested, Fields: []string{"hourLightIntensity"}},
	{Key: "light_max", Unit: "lux", SensorType: emax.TypeLight, PerChannel: true, Kind: ExtractNested, Fields: []string{"maxLightIntensity"}},
	{Key: "uv", SensorType: emax.TypeLight, PerChannel: true, Kind: ExtractNested, Fields: []string{"uv"}},

	{Key: "device_mac", Kind: ExtractCustom, Custom: func(s *emax.Snapshot) any {
		if s.DeviceMac == "" {
			return nil
		}
		return s.DeviceMac
	}},
	{Key: "update_time", Kind: ExtractCustom, Custom: func(s *emax.Snapshot) any {
		if s.UpdateTime == "" {
			return nil
		}
		return s.UpdateTime
	}},
	{Key: "device_time", Kind: ExtractCustom, Custom: func(s *emax.Snapshot) any {
		if s.DevTime == "" {
			return nil
		}
		return s.DevTime
	}},
	{Key: "device_timezone", Kind: ExtractCustom, Custom: func(s *emax.Snapshot) any {
		return floatOrNil(s.DevTimezone)
	}},
	{Key: "wireless_status", Kind: ExtractCustom, Custom: func(s *emax.Snapshot) any {
		return floatOrNil(s.WirelessStatus)
	}},
	{Key: "power_status", Kind: ExtractCustom, Custom: func(s *emax.Snapshot) any {
		return floatOrNil(s.PowerStatus)
	}},
	{Key: "weather_status", Kind: ExtractCustom, Custom: func(s *emax.Snapshot) any {
		return floatOrNil(s.WeatherStatus)
	}},
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// DescriptorByKey looks up a catalog entry.
func DescriptorByKey(key string) (Descriptor, bool) {
	for _, d := range Descriptors {
		if d.Key == key {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Reading is one normalized value. A nil Value means "no data for this
// (channel, key)", which is distinct from a legitimate zero.
type Reading struct {
	Channel int    `json:"channel"`
	Key     string `json:"key"`
	Unit    string `json:"unit,omitempty"`
	Value   any    `json:"value"`
}

// Observation is the fully resolved reading set derived from one snapshot.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Channels  []int     `json:"channels"`
	Readings  []Reading `json:"readings"`
}
