package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// Normalize maps a raw wire record onto the canonical Reading.
// Keys missing from raw, or holding a non-numeric value, become types.Sentinel.
// Unknown keys are ignored.
func Normalize(raw map[string]any) types.Reading {
	reading := types.EmptyReading()

	floatMap := map[string]func(float64){
		KeyAmbientTemp:  func(v float64) { reading.AmbientTemp = v },
		KeyProbeTemp:    func(v float64) { reading.ProbeTemp = v },
		KeyHumidity:     func(v float64) { reading.Humidity = v },
		KeyLight:        func(v float64) { reading.Light = v },
		KeyDewPoint:     func(v float64) { reading.DewPoint = v },
		KeyBattery:      func(v float64) { reading.Battery = v },
		KeyAcceleration: func(v float64) { reading.Acceleration = v },
	}

	for key, setter := range floatMap {
		if value, ok := toFloat(raw[key]); ok {
			setter(value)
		}
	}

	if value, ok := toFloat(raw[KeyNodeID]); ok && value >= math.MinInt32 && value <= math.MaxInt32 {
		reading.NodeID = int(value)
	}

	return reading
}

// DecodeLine parses one newline-terminated record from a sensor node.
// A record may carry a trailing "*XXXX" CRC16/ARC checksum of the JSON object.
func DecodeLine(line []byte) (types.Reading, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return types.Reading{}, ErrEmptyLine
	}

	payload, err := stripChecksum(line)
	if err != nil {
		return types.Reading{}, &DecodeError{Line: string(line), Err: err}
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return types.Reading{}, &DecodeError{Line: string(line), Err: err}
	}
	if raw == nil {
		return types.Reading{}, &DecodeError{Line: string(line), Err: errors.New("record is not an object")}
	}

	return Normalize(raw), nil
}

// Checksum returns the 4 digit hex CRC the firmware appends after '*'.
func Checksum(payload []byte) string {
	return fmt.Sprintf("%04X", crc16.Checksum(payload, crcTable))
}

func stripChecksum(line []byte) ([]byte, error) {
	idx := bytes.LastIndexByte(line, '*')
	if idx < 0 || idx < bytes.LastIndexByte(line, '}') {
		return line, nil
	}

	payload := line[:idx]
	given := string(line[idx+1:])
	if len(given) != 4 {
		return nil, fmt.Errorf("malformed checksum %q", given)
	}
	if calc := Checksum(payload); !strings.EqualFold(given, calc) {
		return nil, fmt.Errorf("checksum mismatch: got %s, expected %s", strings.ToUpper(given), calc)
	}
	return payload, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}
