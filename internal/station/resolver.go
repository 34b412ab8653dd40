package station

import (
	"sort"

	"github.com/hweber/emax-station/internal/emax"
)

// InternalChannel is the station's built-in sensor unit. It is always part
// of the discovered channel set even when the payload omits it.
const InternalChannel = 0

// excludedChannel reports whether ch is one of the vendor's development
// channels (1-3). Those report garbage and are excluded unconditionally.
func excludedChannel(ch int) bool {
	return ch >= 1 && ch <= 3
}

// DiscoverChannels returns the sorted set of usable radio channels in the
// snapshot: every entry channel, plus the internal channel 0, minus the
// excluded development channels.
func DiscoverChannels(snap *emax.Snapshot) []int {
	seen := map[int]bool{InternalChannel: true}
	if snap != nil {
		for _, sd := range snap.SensorDatas {
			seen[sd.Channel] = true
		}
	}

	channels := make([]int, 0, len(seen))
	for ch := range seen {
		if excludedChannel(ch) {
			continue
		}
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	return channels
}

// Resolve extracts the normalized value for one (channel, descriptor)
// pair. A nil result means no data; a matched sensor whose flat value is
// null collapses to 0 instead.
func Resolve(snap *emax.Snapshot, channel int, desc Descriptor) any {
	if snap == nil {
		return nil
	}

	switch desc.Kind {
	case ExtractCustom:
		return filterSentinel(desc.Custom(snap))
	case ExtractWind:
		return resolveWind(snap, channel, desc)
	case ExtractNested:
		return resolveNested(snap, channel, desc)
	case ExtractScalar:
		return resolveScalar(snap, channel, desc)
	}
	return nil
}

// ResolveAll resolves the complete catalog across all discovered channels.
// Channel-independent descriptors are reported once, on the internal
// channel.
func ResolveAll(snap *emax.Snapshot) ([]int, []Reading) {
	channels := DiscoverChannels(snap)

	var readings []Reading
	for _, ch := range channels {
		for _, desc := range Descriptors {
			if !desc.PerChannel && ch != InternalChannel {
				continue
			}
			readings = append(readings, Reading{
				Channel: ch,
				Key:     desc.Key,
				Unit:    desc.Unit,
				Value:   Resolve(snap, ch, desc),
			})
		}
	}
	return channels, readings
}

// resolveScalar handles flat curVal sensors. A descriptor without a sensor
// type falls back to the station-level atmos pressure.
func resolveScalar(snap *emax.Snapshot, channel int, desc Descriptor) any {
	if desc.SensorType == 0 {
		if snap.Atmos == nil {
			return nil
		}
		return normalizeValue(*snap.Atmos, desc)
	}

	for _, sd := range snap.SensorDatas {
		if sd.Type != desc.SensorType || sd.Channel != channel {
			continue
		}
		if excludedChannel(sd.Channel) {
			continue
		}
		if sd.CurVal == nil {
			// Sensor present but reporting null: zero, not absent.
			return float64(0)
		}
		return normalizeValue(*sd.CurVal, desc)
	}
	return nil
}

// resolveWind selects the source entry for wind-family descriptors. Wind
// sensors never legitimately report on channel 0, so a channel-0 entry is
// never matched directly, and the fallback skips channel 0 as well: when
// the requested channel has no wind entry, the first non-zero-channel entry
// carrying a populated devWindVal structure is used instead.
func resolveWind(snap *emax.Snapshot, channel int, desc Descriptor) any {
	var chosen *emax.SensorData

	for i := range snap.SensorDatas {
		sd := &snap.SensorDatas[i]
		if sd.Type != emax.TypeWindSpeed {
			continue
		}
		if sd.Channel == channel && sd.Channel != InternalChannel {
			chosen = sd
			break
		}
	}
	if chosen == nil {
		for i := range snap.SensorDatas {
			sd := &snap.SensorDatas[i]
			if sd.Type != emax.TypeWindSpeed || sd.Channel == InternalChannel {
				continue
			}
			if len(sd.WindVals) > 0 {
				chosen = sd
				break
			}
		}
	}
	if chosen == nil {
		return nil
	}

	for _, field := range desc.Fields {
		if v, ok := numericField(chosen.WindVals, field); ok {
			if isSentinel(v) {
				continue
			}
			return normalizeValue(v, desc)
		}
	}

	if desc.FlatFallback {
		if chosen.CurVal == nil {
			return float64(0)
		}
		return normalizeValue(*chosen.CurVal, desc)
	}
	return nil
}

// resolveNested handles the rainfall, noise and light families: exact
// (type, channel) match, then the first present, non-sentinel field from
// the descriptor's preference list.
func resolveNested(snap *emax.Snapshot, channel int, desc Descriptor) any {
	for _, sd := range snap.SensorDatas {
		if sd.Type != desc.SensorType || sd.Channel != channel {
			continue
		}
		if excludedChannel(sd.Channel) {
			continue
		}

		vals := nestedValues(sd, desc.SensorType)
		for _, field := range desc.Fields {
			if v, ok := numericField(vals, field); ok {
				if isSentinel(v) {
					continue
				}
				return normalizeValue(v, desc)
			}
		}
		return nil
	}
	return nil
}

func nestedValues(sd emax.SensorData, sensorType int) map[string]any {
	switch sensorType {
	case emax.TypeRainfall:
		return sd.RainfallVals
	case emax.TypeNoise:
		return sd.NoiseVals
	case emax.TypeLight:
		return sd.LightVals
	}
	return nil
}

// normalizeValue applies sentinel filtering and the descriptor's unit
// conversion. The raw value is checked before converting so a converted
// sentinel cannot leak through as a plausible number; the converted result
// is checked again as well.
func normalizeValue(v float64, desc Descriptor) any {
	if isSentinel(v) {
		return nil
	}
	if desc.Convert != nil {
		v = desc.Convert(v)
	}
	if isSentinel(v) {
		return nil
	}
	return v
}

func isSentinel(v float64) bool {
	return v == emax.SentinelWord || v == emax.SentinelByte
}

// filterSentinel drops sentinel values from custom extractor results,
// passing non-numeric values through untouched.
func filterSentinel(v any) any {
	if f, ok := toFloat(v); ok && isSentinel(f) {
		return nil
	}
	return v
}

// numericField reads a numeric entry from a loosely-typed vendor map.
func numericField(m map[string]any, field string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[field]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
