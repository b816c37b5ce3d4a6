package normalizer

import (
	"errors"
	"fmt"
)

// Wire keys emitted by the sensor node firmware.
const (
	KeyNodeID       = "id"
	KeyAmbientTemp  = "ta"
	KeyProbeTemp    = "ts"
	KeyHumidity     = "h"
	KeyLight        = "lz"
	KeyDewPoint     = "roc"
	KeyBattery      = "bat"
	KeyAcceleration = "a"
)

var ErrEmptyLine = errors.New("empty line")

// DecodeError is returned for a wire record that could not be parsed.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode record %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
