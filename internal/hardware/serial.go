package hardware

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"field-gateway/config"
	"field-gateway/internal/parse"
)

// sensorQueries are sent to the sensor board on every poll.
var sensorQueries = []string{"GET TEMP", "GET LUM", "GET BUTTON"}

// Link is a newline-framed request/response exchange over a byte stream.
type Link struct {
	mu     sync.Mutex
	rw     io.ReadWriter
	reader *bufio.Reader
	closer io.Closer
}

// NewLink frames rw. If rw is also an io.Closer, Close closes it.
func NewLink(rw io.ReadWriter) *Link {
	l := &Link{rw: rw, reader: bufio.NewReader(rw)}
	if c, ok := rw.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// Exchange writes request followed by a newline and reads one response line.
func (l *Link) Exchange(ctx context.Context, request string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := io.WriteString(l.rw, request+"\n"); err != nil {
		return "", fmt.Errorf("write %q: %w", request, err)
	}
	line, err := l.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read reply to %q: %w", request, err)
	}
	return strings.TrimSpace(line), nil
}

// Close closes the underlying stream when it supports closing.
func (l *Link) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// SerialDevice talks to a sensor board and an actuator board over two links.
type SerialDevice struct {
	sensors   *Link
	actuators *Link
	now       func() time.Time
}

// NewSerialDevice builds a device from two framed links.
func NewSerialDevice(sensors, actuators *Link) *SerialDevice {
	return &SerialDevice{sensors: sensors, actuators: actuators, now: time.Now}
}

// OpenSerial opens the configured serial ports.
func OpenSerial(cfg *config.HardwareConfig) (*SerialDevice, error) {
	timeout := time.Duration(cfg.ReadTimeoutMS) * time.Millisecond
	sensors, err := serial.OpenPort(&serial.Config{Name: cfg.SensorPort, Baud: cfg.Baud, ReadTimeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open sensor port %s: %w", cfg.SensorPort, err)
	}
	actuators, err := serial.OpenPort(&serial.Config{Name: cfg.ActuatorPort, Baud: cfg.Baud, ReadTimeout: timeout})
	if err != nil {
		sensors.Close()
		return nil, fmt.Errorf("open actuator port %s: %w", cfg.ActuatorPort, err)
	}
	logrus.WithFields(logrus.Fields{
		"sensor_port":   cfg.SensorPort,
		"actuator_port": cfg.ActuatorPort,
		"baud":          cfg.Baud,
	}).Info("Serial links opened")
	return NewSerialDevice(NewLink(sensors), NewLink(actuators)), nil
}

// Poll queries every sensor. Lines that do not parse are logged and skipped;
// link errors fail the poll.
func (d *SerialDevice) Poll(ctx context.Context) (SensorFrame, error) {
	frame := SensorFrame{At: d.now()}
	for _, q := range sensorQueries {
		line, err := d.sensors.Exchange(ctx, q)
		if err != nil {
			return SensorFrame{}, err
		}
		reading, err := parse.ParseReading(line)
		if err != nil {
			logrus.WithError(err).WithField("query", q).Debug("Skipping sensor reply")
			continue
		}
		frame.Readings = append(frame.Readings, reading)
	}
	return frame, nil
}

// Actuate sends cmd to the actuator board.
func (d *SerialDevice) Actuate(ctx context.Context, cmd parse.Command) (Response, error) {
	line := cmd.Line()
	if line == "" {
		return Response{}, fmt.Errorf("unsupported command %q", cmd.Kind)
	}
	reply, err := d.actuators.Exchange(ctx, line)
	if err != nil {
		return Response{}, err
	}
	return Response{Line: reply}, nil
}

// Close closes both links.
func (d *SerialDevice) Close() error {
	return errors.Join(d.sensors.Close(), d.actuators.Close())
}
