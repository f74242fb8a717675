package hardware

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"field-gateway/internal/model"
	"field-gateway/internal/parse"
)

// SimDevice produces plausible sensor values without hardware attached and
// remembers the commands it was asked to perform.
type SimDevice struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	commands []parse.Command
}

// NewSimDevice creates a simulated device.
func NewSimDevice() *SimDevice {
	return &SimDevice{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (d *SimDevice) Poll(context.Context) (SensorFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pressed := d.rnd.Intn(40) == 0
	button := parse.Reading{Type: model.TypeButton, Comment: "RELEASED"}
	if pressed {
		button = parse.Reading{Type: model.TypeButton, Value: model.PresenceValue, Comment: "PRESSED", Active: true}
	}
	return SensorFrame{
		At: time.Now(),
		Readings: []parse.Reading{
			{Type: model.TypeTemperature, Value: 20.0 + d.rnd.Float64()*10.0, Unit: "°C", Active: true},
			{Type: model.TypeLight, Value: float64(d.rnd.Intn(1024)), Unit: "lux", Active: true},
			button,
		},
	}, nil
}

func (d *SimDevice) Actuate(_ context.Context, cmd parse.Command) (Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
	return Response{Line: "OK " + cmd.Line()}, nil
}

// Commands returns every command actuated so far.
func (d *SimDevice) Commands() []parse.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]parse.Command(nil), d.commands...)
}

func (d *SimDevice) Close() error { return nil }
