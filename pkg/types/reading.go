package types

import (
	"encoding/json"
	"log"
)

// Sentinel marks a field that was absent from the source record.
const Sentinel = -255

// Reading is the canonical telemetry record of one sensor node.
// All 8 fields are always populated; absent values hold Sentinel.
type Reading struct {
	NodeID       int     `json:"node_id"`
	AmbientTemp  float64 `json:"ambient_temp"`
	ProbeTemp    float64 `json:"probe_temp"`
	Humidity     float64 `json:"humidity"`
	Light        float64 `json:"light"`
	DewPoint     float64 `json:"dew_point"`
	Battery      float64 `json:"battery"`
	Acceleration float64 `json:"acceleration"`
}

// EmptyReading returns a Reading with every field set to Sentinel.
func EmptyReading() Reading {
	return Reading{
		NodeID:       Sentinel,
		AmbientTemp:  Sentinel,
		ProbeTemp:    Sentinel,
		Humidity:     Sentinel,
		Light:        Sentinel,
		DewPoint:     Sentinel,
		Battery:      Sentinel,
		Acceleration: Sentinel,
	}
}

// HasNodeID reports whether the record identified its node.
func (r Reading) HasNodeID() bool {
	return r.NodeID != Sentinel
}

func (r Reading) ToJsonBytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		log.Printf("Error marshaling reading: %v", err)
		return nil
	}
	return data
}

// Returns nil when the payload is not a reading.
func ReadingFromJsonBytes(data []byte) *Reading {
	reading := EmptyReading()
	if err := json.Unmarshal(data, &reading); err != nil {
		return nil
	}
	return &reading
}
