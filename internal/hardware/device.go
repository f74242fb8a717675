// Package hardware abstracts the attached sensor and actuator boards behind a
// single capability interface so the rest of the gateway stays
// hardware-agnostic.
package hardware

import (
	"context"
	"time"

	"field-gateway/internal/parse"
)

// SensorFrame is the result of one poll of every sensor.
type SensorFrame struct {
	At       time.Time
	Readings []parse.Reading
}

// Response is the actuator's reply to a command.
type Response struct {
	Line string
}

// Device is a sensor/actuator board pair.
type Device interface {
	Poll(ctx context.Context) (SensorFrame, error)
	Actuate(ctx context.Context, cmd parse.Command) (Response, error)
	Close() error
}
